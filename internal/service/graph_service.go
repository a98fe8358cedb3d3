package service

import (
	"context"
	"errors"
	"fmt"

	"story-engine/internal/interfaces"
	"story-engine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoryGraphService - валидированное read-only представление графа истории.
// Единственный источник правды о том, "что дальше".
type StoryGraphService interface {
	// GetStory returns published story metadata.
	GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error)

	// ListStories returns published stories for browsing.
	ListStories(ctx context.Context, limit, offset int) ([]*models.Story, error)

	// GetStartPage returns the unique starting page of a story.
	GetStartPage(ctx context.Context, storyID uuid.UUID) (*models.Page, error)

	// GetPage resolves a position to its page. The ordinal is the canonical
	// address; the stable ID is accepted as a secondary key.
	GetPage(ctx context.Context, storyID uuid.UUID, pos models.Position) (*models.Page, error)

	// GetOutgoingChoices returns the choices leaving a page in authoring order.
	GetOutgoingChoices(ctx context.Context, pageID uuid.UUID) ([]*models.Choice, error)

	// GetAutoAdvanceTarget returns the page at ordinal+1 within the story,
	// or nil when the page is the last one.
	GetAutoAdvanceTarget(ctx context.Context, storyID uuid.UUID, pageNumber int) (*models.Page, error)

	// GetGraph returns the full story graph, cache-first.
	GetGraph(ctx context.Context, storyID uuid.UUID) (*models.StoryGraph, error)

	// ValidateGraph runs the publish-time integrity checks and returns the
	// list of violations. Invoked by the authoring subsystem, never on the
	// read path.
	ValidateGraph(ctx context.Context, storyID uuid.UUID) ([]string, error)
}

type storyGraphService struct {
	repo   interfaces.StoryRepository
	cache  interfaces.GraphCache
	logger *zap.Logger
}

// NewStoryGraphService creates the graph service. cache may be nil in tests.
func NewStoryGraphService(repo interfaces.StoryRepository, cache interfaces.GraphCache, logger *zap.Logger) StoryGraphService {
	return &storyGraphService{
		repo:   repo,
		cache:  cache,
		logger: logger.Named("StoryGraphService"),
	}
}

func (s *storyGraphService) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	return s.repo.GetStory(ctx, storyID)
}

func (s *storyGraphService) ListStories(ctx context.Context, limit, offset int) ([]*models.Story, error) {
	return s.repo.ListStories(ctx, limit, offset)
}

func (s *storyGraphService) GetStartPage(ctx context.Context, storyID uuid.UUID) (*models.Page, error) {
	starts, err := s.repo.GetStartPages(ctx, storyID)
	if err != nil {
		return nil, err
	}
	switch len(starts) {
	case 0:
		return nil, models.ErrNotFound
	case 1:
		return starts[0], nil
	default:
		// Обязан отлавливаться publish-time валидацией, в корректных данных
		// сюда не попадаем.
		s.logger.Error("Story has multiple starting pages",
			zap.Stringer("storyID", storyID), zap.Int("count", len(starts)))
		return nil, models.ErrInvariantViolation
	}
}

func (s *storyGraphService) GetPage(ctx context.Context, storyID uuid.UUID, pos models.Position) (*models.Page, error) {
	if pos.PageNumber > 0 {
		return s.repo.GetPageByNumber(ctx, storyID, pos.PageNumber)
	}
	if pos.PageID != uuid.Nil {
		page, err := s.repo.GetPageByID(ctx, pos.PageID)
		if err != nil {
			return nil, err
		}
		if page.StoryID != storyID {
			return nil, models.ErrPageNotFound
		}
		return page, nil
	}
	return nil, models.ErrPageNotFound
}

func (s *storyGraphService) GetOutgoingChoices(ctx context.Context, pageID uuid.UUID) ([]*models.Choice, error) {
	return s.repo.GetOutgoingChoices(ctx, pageID)
}

func (s *storyGraphService) GetAutoAdvanceTarget(ctx context.Context, storyID uuid.UUID, pageNumber int) (*models.Page, error) {
	next, err := s.repo.GetPageByNumber(ctx, storyID, pageNumber+1)
	if err != nil {
		if errors.Is(err, models.ErrPageNotFound) {
			// Последняя страница - автоперехода нет
			return nil, nil
		}
		return nil, err
	}
	return next, nil
}

func (s *storyGraphService) GetGraph(ctx context.Context, storyID uuid.UUID) (*models.StoryGraph, error) {
	if s.cache != nil {
		graph, err := s.cache.GetGraph(ctx, storyID)
		if err == nil {
			return graph, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			// Недоступный кеш не должен ронять чтение
			s.logger.Warn("Graph cache read failed, falling back to database",
				zap.Stringer("storyID", storyID), zap.Error(err))
		}
	}

	graph, err := s.repo.GetGraph(ctx, storyID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetGraph(ctx, graph); err != nil {
			s.logger.Warn("Failed to populate graph cache", zap.Stringer("storyID", storyID), zap.Error(err))
		}
	}
	return graph, nil
}

// ValidateGraph проверяет инварианты графа целиком:
//   - ровно одна стартовая страница;
//   - каждая цель перехода существует в той же истории и адреса согласованы;
//   - концовка не имеет исходящих переходов;
//   - cost > 0 только у премиум-переходов;
//   - не-концовка без переходов имеет страницу ordinal+1 для автоперехода;
//   - каждая страница достижима от старта.
func (s *storyGraphService) ValidateGraph(ctx context.Context, storyID uuid.UUID) ([]string, error) {
	graph, err := s.repo.GetGraph(ctx, storyID)
	if err != nil {
		return nil, err
	}

	var problems []string

	pagesByID := make(map[uuid.UUID]*models.Page, len(graph.Pages))
	pagesByNumber := make(map[int]*models.Page, len(graph.Pages))
	var start *models.Page
	startCount := 0
	for _, p := range graph.Pages {
		pagesByID[p.ID] = p
		pagesByNumber[p.PageNumber] = p
		if p.IsStarting {
			startCount++
			start = p
		}
	}

	if startCount == 0 {
		problems = append(problems, "story has no starting page")
	} else if startCount > 1 {
		problems = append(problems, fmt.Sprintf("story has %d starting pages, expected exactly one", startCount))
	}

	outgoing := make(map[uuid.UUID][]*models.Choice, len(graph.Pages))
	for _, c := range graph.Choices {
		outgoing[c.PageID] = append(outgoing[c.PageID], c)

		target, ok := pagesByID[c.TargetPageID]
		if !ok {
			problems = append(problems, fmt.Sprintf("choice %s points to missing page %s", c.ID, c.TargetPageID))
		} else if target.PageNumber != c.TargetPageNumber {
			problems = append(problems, fmt.Sprintf("choice %s target addresses disagree: id says page %d, ordinal says %d",
				c.ID, target.PageNumber, c.TargetPageNumber))
		}
		if c.Cost > 0 && !c.IsPremium {
			problems = append(problems, fmt.Sprintf("choice %s has cost %d but is not premium", c.ID, c.Cost))
		}
	}

	for _, p := range graph.Pages {
		if p.IsEnding && len(outgoing[p.ID]) > 0 {
			problems = append(problems, fmt.Sprintf("ending page %d has outgoing choices", p.PageNumber))
		}
		if !p.IsEnding && len(outgoing[p.ID]) == 0 {
			if _, ok := pagesByNumber[p.PageNumber+1]; !ok {
				problems = append(problems, fmt.Sprintf("page %d is not an ending but has no choices and no auto-advance target", p.PageNumber))
			}
		}
	}

	// Достижимость от старта: переходы + автопереходы страниц без выбора
	if startCount == 1 {
		visited := map[uuid.UUID]bool{start.ID: true}
		queue := []*models.Page{start}
		for len(queue) > 0 {
			page := queue[0]
			queue = queue[1:]

			for _, c := range outgoing[page.ID] {
				if target, ok := pagesByID[c.TargetPageID]; ok && !visited[target.ID] {
					visited[target.ID] = true
					queue = append(queue, target)
				}
			}
			if !page.IsEnding && len(outgoing[page.ID]) == 0 {
				if next, ok := pagesByNumber[page.PageNumber+1]; ok && !visited[next.ID] {
					visited[next.ID] = true
					queue = append(queue, next)
				}
			}
		}
		for _, p := range graph.Pages {
			if !visited[p.ID] {
				problems = append(problems, fmt.Sprintf("page %d is unreachable from the starting page", p.PageNumber))
			}
		}
	}

	// Валидация - и момент обновления кеша: граф мог измениться перед публикацией
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, storyID); err != nil {
			s.logger.Warn("Failed to invalidate graph cache after validation",
				zap.Stringer("storyID", storyID), zap.Error(err))
		}
	}

	if len(problems) > 0 {
		s.logger.Warn("Story graph validation failed",
			zap.Stringer("storyID", storyID), zap.Strings("problems", problems))
	}
	return problems, nil
}
