package service

import (
	"context"
	"errors"
	"time"

	"story-engine/internal/interfaces"
	"story-engine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressService - durable позиция аутентифицированного читателя и мост
// для гостевого кеша. Гостевой прогресс живет целиком на клиенте.
type ProgressService interface {
	// GetOrInitPosition reads the unique progress row or creates one at the
	// story's start page.
	GetOrInitPosition(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error)

	// ResetToStart выполняет явное "читать сначала": позиция на старт,
	// флаг завершения снят. Владение премиум-путями не отзывается.
	ResetToStart(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error)

	// ToggleBookmark flips the bookmark flag and returns the new value.
	ToggleBookmark(ctx context.Context, userID, storyID uuid.UUID) (bool, error)

	// BridgeGuestToUser reconciles a guest's local cache with server state
	// at login. The server row always wins once it exists; a fresh guest
	// cache only seeds an absent row.
	BridgeGuestToUser(ctx context.Context, userID uuid.UUID, cache *models.GuestCache) (*models.ReadingProgress, error)
}

type progressService struct {
	progressRepo interfaces.ProgressRepository
	graph        StoryGraphService
	logger       *zap.Logger
	now          func() time.Time
}

// NewProgressService creates the progress service.
func NewProgressService(progressRepo interfaces.ProgressRepository, graph StoryGraphService, logger *zap.Logger) ProgressService {
	return &progressService{
		progressRepo: progressRepo,
		graph:        graph,
		logger:       logger.Named("ProgressService"),
		now:          time.Now,
	}
}

func (s *progressService) GetOrInitPosition(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error) {
	progress, err := s.progressRepo.Get(ctx, userID, storyID)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return s.initAtStart(ctx, userID, storyID)
}

func (s *progressService) initAtStart(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error) {
	start, err := s.graph.GetStartPage(ctx, storyID)
	if err != nil {
		return nil, err
	}
	progress := &models.ReadingProgress{
		UserID:            userID,
		StoryID:           storyID,
		CurrentPageID:     start.ID,
		CurrentPageNumber: start.PageNumber,
	}
	if err := s.progressRepo.Upsert(ctx, progress); err != nil {
		return nil, err
	}
	s.logger.Debug("Initialized reading progress at start page",
		zap.Stringer("userID", userID), zap.Stringer("storyID", storyID))
	return progress, nil
}

func (s *progressService) ResetToStart(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error) {
	start, err := s.graph.GetStartPage(ctx, storyID)
	if err != nil {
		return nil, err
	}
	err = s.progressRepo.Reset(ctx, userID, storyID, models.PositionOf(start))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Сбрасывать нечего - просто создаем строку на старте
			return s.initAtStart(ctx, userID, storyID)
		}
		return nil, err
	}
	return s.progressRepo.Get(ctx, userID, storyID)
}

func (s *progressService) ToggleBookmark(ctx context.Context, userID, storyID uuid.UUID) (bool, error) {
	progress, err := s.GetOrInitPosition(ctx, userID, storyID)
	if err != nil {
		return false, err
	}
	newValue := !progress.IsBookmarked
	if err := s.progressRepo.SetBookmark(ctx, userID, storyID, newValue); err != nil {
		return false, err
	}
	return newValue, nil
}

func (s *progressService) BridgeGuestToUser(ctx context.Context, userID uuid.UUID, cache *models.GuestCache) (*models.ReadingProgress, error) {
	existing, err := s.progressRepo.Get(ctx, userID, cache.StoryID)
	if err == nil {
		// Серверное состояние авторитетно: не даем устаревшему локальному
		// кешу затереть прогресс с другого устройства.
		s.logger.Debug("Server progress exists, guest cache discarded",
			zap.Stringer("userID", userID), zap.Stringer("storyID", cache.StoryID))
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if !cache.IsFresh(s.now()) {
		s.logger.Debug("Guest cache is stale, starting from the beginning",
			zap.Stringer("userID", userID), zap.Stringer("storyID", cache.StoryID))
		return s.initAtStart(ctx, userID, cache.StoryID)
	}

	// Кеш свежий и серверной строки нет: позиция должна существовать в графе
	page, err := s.graph.GetPage(ctx, cache.StoryID, cache.Position)
	if err != nil {
		if errors.Is(err, models.ErrPageNotFound) {
			return s.initAtStart(ctx, userID, cache.StoryID)
		}
		return nil, err
	}

	progress := &models.ReadingProgress{
		UserID:            userID,
		StoryID:           cache.StoryID,
		CurrentPageID:     page.ID,
		CurrentPageNumber: page.PageNumber,
	}
	if err := s.progressRepo.Upsert(ctx, progress); err != nil {
		return nil, err
	}
	s.logger.Info("Guest progress bridged to user",
		zap.Stringer("userID", userID),
		zap.Stringer("storyID", cache.StoryID),
		zap.Int("pageNumber", page.PageNumber))
	return progress, nil
}
