package mocks

import (
	"context"

	"story-engine/internal/interfaces"
	"story-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock StoryRepository
type StoryRepository struct {
	mock.Mock
}

func (m *StoryRepository) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, storyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Story), args.Error(1)
}

func (m *StoryRepository) ListStories(ctx context.Context, limit, offset int) ([]*models.Story, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Story), args.Error(1)
}

func (m *StoryRepository) GetStartPages(ctx context.Context, storyID uuid.UUID) ([]*models.Page, error) {
	args := m.Called(ctx, storyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Page), args.Error(1)
}

func (m *StoryRepository) GetPageByNumber(ctx context.Context, storyID uuid.UUID, pageNumber int) (*models.Page, error) {
	args := m.Called(ctx, storyID, pageNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page), args.Error(1)
}

func (m *StoryRepository) GetPageByID(ctx context.Context, pageID uuid.UUID) (*models.Page, error) {
	args := m.Called(ctx, pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page), args.Error(1)
}

func (m *StoryRepository) GetOutgoingChoices(ctx context.Context, pageID uuid.UUID) ([]*models.Choice, error) {
	args := m.Called(ctx, pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Choice), args.Error(1)
}

func (m *StoryRepository) GetGraph(ctx context.Context, storyID uuid.UUID) (*models.StoryGraph, error) {
	args := m.Called(ctx, storyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StoryGraph), args.Error(1)
}

// Mock GraphCache
type GraphCache struct {
	mock.Mock
}

func (m *GraphCache) GetGraph(ctx context.Context, storyID uuid.UUID) (*models.StoryGraph, error) {
	args := m.Called(ctx, storyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StoryGraph), args.Error(1)
}

func (m *GraphCache) SetGraph(ctx context.Context, graph *models.StoryGraph) error {
	args := m.Called(ctx, graph)
	return args.Error(0)
}

func (m *GraphCache) Invalidate(ctx context.Context, storyID uuid.UUID) error {
	args := m.Called(ctx, storyID)
	return args.Error(0)
}

// Mock ProgressRepository
type ProgressRepository struct {
	mock.Mock
}

func (m *ProgressRepository) Get(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error) {
	args := m.Called(ctx, userID, storyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReadingProgress), args.Error(1)
}

func (m *ProgressRepository) Upsert(ctx context.Context, progress *models.ReadingProgress) error {
	args := m.Called(ctx, progress)
	return args.Error(0)
}

func (m *ProgressRepository) Advance(ctx context.Context, userID, storyID uuid.UUID, pos models.Position, choiceMade, completed bool) error {
	args := m.Called(ctx, userID, storyID, pos, choiceMade, completed)
	return args.Error(0)
}

func (m *ProgressRepository) Reset(ctx context.Context, userID, storyID uuid.UUID, start models.Position) error {
	args := m.Called(ctx, userID, storyID, start)
	return args.Error(0)
}

func (m *ProgressRepository) SetBookmark(ctx context.Context, userID, storyID uuid.UUID, bookmarked bool) error {
	args := m.Called(ctx, userID, storyID, bookmarked)
	return args.Error(0)
}

// Mock LedgerRepository
type LedgerRepository struct {
	mock.Mock
}

func (m *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *LedgerRepository) Credit(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	args := m.Called(ctx, userID, amount)
	return args.Int(0), args.Error(1)
}

func (m *LedgerRepository) TryDebit(ctx context.Context, querier interfaces.DBTX, userID uuid.UUID, amount int) (bool, error) {
	args := m.Called(ctx, querier, userID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *LedgerRepository) RecordPurchase(ctx context.Context, querier interfaces.DBTX, purchase *models.PurchasedPath) (bool, error) {
	args := m.Called(ctx, querier, purchase)
	return args.Bool(0), args.Error(1)
}

func (m *LedgerRepository) HasPurchase(ctx context.Context, userID, choiceID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, choiceID)
	return args.Bool(0), args.Error(1)
}

// Mock TxManager. Выполняет fn сразу, без настоящей транзакции.
type TxManager struct {
	mock.Mock
}

func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.DBTX) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx, nil)
}
