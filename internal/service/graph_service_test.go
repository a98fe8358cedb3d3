package service

import (
	"context"
	"testing"

	"story-engine/internal/interfaces/mocks"
	"story-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStoryGraphService_GetStartPage(t *testing.T) {
	ctx := context.Background()
	storyID := uuid.New()

	t.Run("returns the single start page", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())
		start := makePage(storyID, 1, func(p *models.Page) { p.IsStarting = true })
		repo.On("GetStartPages", ctx, storyID).Return([]*models.Page{start}, nil).Once()

		page, err := svc.GetStartPage(ctx, storyID)
		require.NoError(t, err)
		assert.Equal(t, start.ID, page.ID)
		repo.AssertExpectations(t)
	})

	t.Run("no start page is not found", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())
		repo.On("GetStartPages", ctx, storyID).Return([]*models.Page{}, nil).Once()

		_, err := svc.GetStartPage(ctx, storyID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("multiple start pages violate the graph invariant", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())
		repo.On("GetStartPages", ctx, storyID).Return([]*models.Page{
			makePage(storyID, 1), makePage(storyID, 2),
		}, nil).Once()

		_, err := svc.GetStartPage(ctx, storyID)
		assert.ErrorIs(t, err, models.ErrInvariantViolation)
	})
}

func TestStoryGraphService_GetPage(t *testing.T) {
	ctx := context.Background()
	storyID := uuid.New()

	t.Run("ordinal is the canonical address", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())
		page := makePage(storyID, 6)
		repo.On("GetPageByNumber", ctx, storyID, 6).Return(page, nil).Once()

		// ID намеренно чужой: при наличии ordinal он не используется
		got, err := svc.GetPage(ctx, storyID, models.Position{PageID: uuid.New(), PageNumber: 6})
		require.NoError(t, err)
		assert.Equal(t, page.ID, got.ID)
		repo.AssertNotCalled(t, "GetPageByID", mock.Anything, mock.Anything)
	})

	t.Run("falls back to the stable id when ordinal is absent", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())
		page := makePage(storyID, 6)
		repo.On("GetPageByID", ctx, page.ID).Return(page, nil).Once()

		got, err := svc.GetPage(ctx, storyID, models.Position{PageID: page.ID})
		require.NoError(t, err)
		assert.Equal(t, 6, got.PageNumber)
	})

	t.Run("id from another story does not resolve", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())
		foreign := makePage(uuid.New(), 2)
		repo.On("GetPageByID", ctx, foreign.ID).Return(foreign, nil).Once()

		_, err := svc.GetPage(ctx, storyID, models.Position{PageID: foreign.ID})
		assert.ErrorIs(t, err, models.ErrPageNotFound)
	})

	t.Run("empty position does not resolve", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())

		_, err := svc.GetPage(ctx, storyID, models.Position{})
		assert.ErrorIs(t, err, models.ErrPageNotFound)
	})
}

func TestStoryGraphService_GetAutoAdvanceTarget(t *testing.T) {
	ctx := context.Background()
	storyID := uuid.New()

	t.Run("returns the next ordinal", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())
		next := makePage(storyID, 3)
		repo.On("GetPageByNumber", ctx, storyID, 3).Return(next, nil).Once()

		got, err := svc.GetAutoAdvanceTarget(ctx, storyID, 2)
		require.NoError(t, err)
		assert.Equal(t, next.ID, got.ID)
	})

	t.Run("last page has no target", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())
		repo.On("GetPageByNumber", ctx, storyID, 10).Return(nil, models.ErrPageNotFound).Once()

		got, err := svc.GetAutoAdvanceTarget(ctx, storyID, 9)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestStoryGraphService_GetGraph_CacheFirst(t *testing.T) {
	ctx := context.Background()
	storyID := uuid.New()
	graph := &models.StoryGraph{Story: &models.Story{ID: storyID, Title: "test"}}

	t.Run("cache hit skips the database", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		cache := new(mocks.GraphCache)
		svc := NewStoryGraphService(repo, cache, zap.NewNop())
		cache.On("GetGraph", ctx, storyID).Return(graph, nil).Once()

		got, err := svc.GetGraph(ctx, storyID)
		require.NoError(t, err)
		assert.Equal(t, graph, got)
		repo.AssertNotCalled(t, "GetGraph", mock.Anything, mock.Anything)
	})

	t.Run("cache miss loads from the database and populates the cache", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		cache := new(mocks.GraphCache)
		svc := NewStoryGraphService(repo, cache, zap.NewNop())
		cache.On("GetGraph", ctx, storyID).Return(nil, models.ErrNotFound).Once()
		repo.On("GetGraph", ctx, storyID).Return(graph, nil).Once()
		cache.On("SetGraph", ctx, graph).Return(nil).Once()

		got, err := svc.GetGraph(ctx, storyID)
		require.NoError(t, err)
		assert.Equal(t, graph, got)
		cache.AssertExpectations(t)
	})

	t.Run("broken cache falls back to the database", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		cache := new(mocks.GraphCache)
		svc := NewStoryGraphService(repo, cache, zap.NewNop())
		cache.On("GetGraph", ctx, storyID).Return(nil, assert.AnError).Once()
		repo.On("GetGraph", ctx, storyID).Return(graph, nil).Once()
		cache.On("SetGraph", ctx, graph).Return(nil).Once()

		got, err := svc.GetGraph(ctx, storyID)
		require.NoError(t, err)
		assert.Equal(t, graph, got)
	})
}

func TestStoryGraphService_ValidateGraph(t *testing.T) {
	ctx := context.Background()
	storyID := uuid.New()

	// Базовый корректный граф: старт -> выбор на две ветки -> концовки
	buildValidGraph := func() *models.StoryGraph {
		start := makePage(storyID, 1, func(p *models.Page) { p.IsStarting = true })
		fork := makePage(storyID, 2)
		fork.PageType = models.PageTypeChoice
		left := makePage(storyID, 3, func(p *models.Page) { p.IsEnding = true })
		right := makePage(storyID, 4, func(p *models.Page) { p.IsEnding = true })
		return &models.StoryGraph{
			Story: &models.Story{ID: storyID},
			Pages: []*models.Page{start, fork, left, right},
			Choices: []*models.Choice{
				makeChoice(storyID, fork, left),
				makeChoice(storyID, fork, right),
			},
		}
	}

	run := func(t *testing.T, graph *models.StoryGraph) []string {
		t.Helper()
		repo := new(mocks.StoryRepository)
		svc := NewStoryGraphService(repo, nil, zap.NewNop())
		repo.On("GetGraph", ctx, storyID).Return(graph, nil).Once()
		problems, err := svc.ValidateGraph(ctx, storyID)
		require.NoError(t, err)
		return problems
	}

	t.Run("valid graph has no problems", func(t *testing.T) {
		assert.Empty(t, run(t, buildValidGraph()))
	})

	t.Run("missing start page", func(t *testing.T) {
		graph := buildValidGraph()
		graph.Pages[0].IsStarting = false
		problems := run(t, graph)
		require.NotEmpty(t, problems)
		assert.Contains(t, problems[0], "no starting page")
	})

	t.Run("dangling choice target", func(t *testing.T) {
		graph := buildValidGraph()
		graph.Choices[0].TargetPageID = uuid.New()
		problems := run(t, graph)
		assert.NotEmpty(t, problems)
	})

	t.Run("disagreeing dual addresses", func(t *testing.T) {
		graph := buildValidGraph()
		graph.Choices[0].TargetPageNumber = 99
		problems := run(t, graph)
		require.NotEmpty(t, problems)
		assert.Contains(t, problems[0], "disagree")
	})

	t.Run("cost without premium flag", func(t *testing.T) {
		graph := buildValidGraph()
		graph.Choices[0].Cost = 10
		problems := run(t, graph)
		require.NotEmpty(t, problems)
		assert.Contains(t, problems[0], "not premium")
	})

	t.Run("ending with outgoing choices", func(t *testing.T) {
		graph := buildValidGraph()
		graph.Pages[1].IsEnding = true
		problems := run(t, graph)
		assert.NotEmpty(t, problems)
	})

	t.Run("dead-end page that is not an ending", func(t *testing.T) {
		graph := buildValidGraph()
		// Страница 4 без флага концовки и без страницы 5 для автоперехода
		graph.Pages[3].IsEnding = false
		problems := run(t, graph)
		assert.NotEmpty(t, problems)
	})

	t.Run("unreachable page", func(t *testing.T) {
		graph := buildValidGraph()
		orphan := makePage(storyID, 7, func(p *models.Page) { p.IsEnding = true })
		graph.Pages = append(graph.Pages, orphan)
		problems := run(t, graph)
		require.NotEmpty(t, problems)
		assert.Contains(t, problems[0], "unreachable")
	})

	t.Run("validation invalidates the cached graph", func(t *testing.T) {
		repo := new(mocks.StoryRepository)
		cache := new(mocks.GraphCache)
		svc := NewStoryGraphService(repo, cache, zap.NewNop())
		repo.On("GetGraph", ctx, storyID).Return(buildValidGraph(), nil).Once()
		cache.On("Invalidate", ctx, storyID).Return(nil).Once()

		_, err := svc.ValidateGraph(ctx, storyID)
		require.NoError(t, err)
		cache.AssertExpectations(t)
	})
}
