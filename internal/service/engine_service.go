package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"story-engine/internal/interfaces"
	"story-engine/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func nowUTC() time.Time { return time.Now().UTC() }

// Внутренние маркеры исхода транзакции покупки. Наружу не выходят:
// оба разрешаются повторной проверкой владения.
var (
	errDebitInsufficient = errors.New("conditional debit affected no rows")
	errPurchaseConflict  = errors.New("purchase insert absorbed by unique constraint")
)

// Resolution - результат продвижения: новая страница и все, что нужно
// клиенту для рендера без второго запроса.
type Resolution struct {
	Page     *models.Page
	Choices  []*models.Choice
	IsEnding bool
	// Progress is nil for guest readers; their position lives client-side.
	Progress *models.ReadingProgress
	// Purchase is set only when the traversed choice is premium.
	Purchase *PurchaseInfo
}

// PurchaseInfo описывает премиум-составляющую перехода.
type PurchaseInfo struct {
	Cost         int  `json:"cost"`
	AlreadyOwned bool `json:"alreadyOwned"`
}

// EngineService - единственная state-transition функция движка.
type EngineService interface {
	// ResolveChoice validates the chosen edge against the reader's current
	// position, settles the premium gate against the ledger, advances the
	// durable progress and returns the new position. userID is uuid.Nil
	// for guests.
	ResolveChoice(ctx context.Context, userID, storyID uuid.UUID, currentPos models.Position, choiceID uuid.UUID) (*Resolution, error)

	// AdvancePage moves a reader forward from an auto-advancing page
	// (no choice presented). Free by construction.
	AdvancePage(ctx context.Context, userID, storyID uuid.UUID, currentPos models.Position) (*Resolution, error)
}

type engineService struct {
	graph        StoryGraphService
	progressRepo interfaces.ProgressRepository
	ledgerRepo   interfaces.LedgerRepository
	tx           interfaces.TxManager
	logger       *zap.Logger
}

// NewEngineService creates the choice resolution service.
func NewEngineService(
	graph StoryGraphService,
	progressRepo interfaces.ProgressRepository,
	ledgerRepo interfaces.LedgerRepository,
	tx interfaces.TxManager,
	logger *zap.Logger,
) EngineService {
	return &engineService{
		graph:        graph,
		progressRepo: progressRepo,
		ledgerRepo:   ledgerRepo,
		tx:           tx,
		logger:       logger.Named("EngineService"),
	}
}

func (s *engineService) ResolveChoice(ctx context.Context, userID, storyID uuid.UUID, currentPos models.Position, choiceID uuid.UUID) (*Resolution, error) {
	currentPage, err := s.graph.GetPage(ctx, storyID, currentPos)
	if err != nil {
		return nil, err
	}

	choice, err := s.findChoiceOnPage(ctx, currentPage, choiceID)
	if err != nil {
		return nil, err
	}

	var purchase *PurchaseInfo
	if choice.IsPremium {
		purchase, err = s.settlePremium(ctx, userID, choice)
		if err != nil {
			return nil, err
		}
	}

	destination, err := s.graph.GetPage(ctx, storyID, models.Position{PageID: choice.TargetPageID, PageNumber: choice.TargetPageNumber})
	if err != nil {
		// Publish-time валидация гарантирует целостность ребер; дырявый
		// граф - баг данных, не пользовательская ошибка.
		s.logger.Error("Choice destination does not resolve",
			zap.Stringer("choiceID", choice.ID), zap.Stringer("targetPageID", choice.TargetPageID), zap.Error(err))
		return nil, models.ErrInvariantViolation
	}

	// Мутация леджера уже зафиксирована: падение дальше оставляет читателя
	// "оплатил, еще не перешел" - безопасно ретраится за счет идемпотентности.
	resolution, err := s.advanceTo(ctx, userID, storyID, destination, true)
	if err != nil {
		return nil, err
	}
	resolution.Purchase = purchase

	s.logger.Info("Choice resolved",
		zap.Stringer("userID", userID),
		zap.Stringer("storyID", storyID),
		zap.Stringer("choiceID", choiceID),
		zap.Int("destinationPage", destination.PageNumber),
		zap.Bool("premium", choice.IsPremium))
	return resolution, nil
}

func (s *engineService) AdvancePage(ctx context.Context, userID, storyID uuid.UUID, currentPos models.Position) (*Resolution, error) {
	currentPage, err := s.graph.GetPage(ctx, storyID, currentPos)
	if err != nil {
		return nil, err
	}

	choices, err := s.graph.GetOutgoingChoices(ctx, currentPage.ID)
	if err != nil {
		return nil, err
	}
	if len(choices) > 0 {
		// Страница ждет решения, автопереход с нее - это replay со
		// сломанного клиента
		return nil, models.ErrStalePosition
	}
	if currentPage.IsEnding {
		return nil, models.ErrStalePosition
	}

	next, err := s.graph.GetAutoAdvanceTarget(ctx, storyID, currentPage.PageNumber)
	if err != nil {
		return nil, err
	}
	if next == nil {
		s.logger.Error("Non-ending page has neither choices nor an auto-advance target",
			zap.Stringer("storyID", storyID), zap.Int("pageNumber", currentPage.PageNumber))
		return nil, models.ErrInvariantViolation
	}

	return s.advanceTo(ctx, userID, storyID, next, false)
}

// findChoiceOnPage проверяет, что выбранное ребро исходит из текущей
// страницы. Выбор с любой другой страницы - replay с устаревшей позицией,
// наружу он неотличим от несуществующего выбора.
func (s *engineService) findChoiceOnPage(ctx context.Context, currentPage *models.Page, choiceID uuid.UUID) (*models.Choice, error) {
	choices, err := s.graph.GetOutgoingChoices(ctx, currentPage.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range choices {
		if c.ID == choiceID {
			return c, nil
		}
	}
	return nil, models.ErrChoiceNotFound
}

// settlePremium пропускает читателя через премиум-шлюз: владение - бесплатно,
// иначе атомарное списание + запись покупки в одной транзакции.
func (s *engineService) settlePremium(ctx context.Context, userID uuid.UUID, choice *models.Choice) (*PurchaseInfo, error) {
	if userID == uuid.Nil {
		return nil, models.ErrAuthRequired
	}

	// Единственная точка интерпретации PurchasedPath во всем движке
	owned, err := s.ledgerRepo.HasPurchase(ctx, userID, choice.ID)
	if err != nil {
		return nil, err
	}
	if owned {
		return &PurchaseInfo{Cost: choice.Cost, AlreadyOwned: true}, nil
	}

	txErr := s.tx.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		ok, err := s.ledgerRepo.TryDebit(ctx, tx, userID, choice.Cost)
		if err != nil {
			return err
		}
		if !ok {
			return errDebitInsufficient
		}
		inserted, err := s.ledgerRepo.RecordPurchase(ctx, tx, &models.PurchasedPath{
			UserID:    userID,
			ChoiceID:  choice.ID,
			StoryID:   choice.StoryID,
			PricePaid: choice.Cost,
		})
		if err != nil {
			return err
		}
		if !inserted {
			// Конкурентный запрос успел купить: откатываем списание
			return errPurchaseConflict
		}
		return nil
	})

	switch {
	case txErr == nil:
		s.logger.Info("Premium choice purchased",
			zap.Stringer("userID", userID),
			zap.Stringer("choiceID", choice.ID),
			zap.Int("cost", choice.Cost))
		return &PurchaseInfo{Cost: choice.Cost, AlreadyOwned: false}, nil

	case errors.Is(txErr, errDebitInsufficient), errors.Is(txErr, errPurchaseConflict):
		// Оба исхода означают "кто-то другой уже решил вопрос" либо
		// "денег не хватило". Перечитываем владение: конкурентный
		// конфликт всегда разрешается в "уже куплено", не в ошибку.
		owned, err := s.ledgerRepo.HasPurchase(ctx, userID, choice.ID)
		if err != nil {
			return nil, err
		}
		if owned {
			return &PurchaseInfo{Cost: choice.Cost, AlreadyOwned: true}, nil
		}
		balance, err := s.ledgerRepo.GetBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
		return nil, &models.InsufficientBalanceError{Required: choice.Cost, Available: balance}

	default:
		return nil, fmt.Errorf("premium purchase transaction failed: %w", txErr)
	}
}

// advanceTo переводит прогресс на страницу назначения и собирает Resolution.
// Для гостей серверный прогресс не трогается.
func (s *engineService) advanceTo(ctx context.Context, userID, storyID uuid.UUID, destination *models.Page, choiceMade bool) (*Resolution, error) {
	choices, err := s.graph.GetOutgoingChoices(ctx, destination.ID)
	if err != nil {
		return nil, err
	}

	resolution := &Resolution{
		Page:     destination,
		Choices:  choices,
		IsEnding: destination.IsEnding,
	}

	if userID == uuid.Nil {
		return resolution, nil
	}

	pos := models.PositionOf(destination)
	err = s.progressRepo.Advance(ctx, userID, storyID, pos, choiceMade, destination.IsEnding)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Первый переход без предварительного GET position: создаем
			// строку сразу на странице назначения
			progress := &models.ReadingProgress{
				UserID:            userID,
				StoryID:           storyID,
				CurrentPageID:     destination.ID,
				CurrentPageNumber: destination.PageNumber,
				PagesRead:         1,
			}
			if choiceMade {
				progress.ChoicesMade = 1
			}
			if destination.IsEnding {
				progress.IsCompleted = true
				now := nowUTC()
				progress.CompletedAt = &now
			}
			if err := s.progressRepo.Upsert(ctx, progress); err != nil {
				return nil, err
			}
			resolution.Progress = progress
			return resolution, nil
		}
		return nil, err
	}

	progress, err := s.progressRepo.Get(ctx, userID, storyID)
	if err != nil {
		return nil, err
	}
	resolution.Progress = progress
	return resolution, nil
}
