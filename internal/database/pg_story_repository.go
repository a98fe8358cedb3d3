package database

import (
	"context"
	"errors"

	"story-engine/internal/interfaces"
	"story-engine/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgStoryRepository creates a new read-only repository over the
// authoring-owned story tables.
func NewPgStoryRepository(pool *pgxpool.Pool, logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{
		pool:   pool,
		logger: logger.Named("PgStoryRepo"),
	}
}

const getStoryQuery = `
SELECT id, title, category, spice_level, word_count, path_count, status, created_at, updated_at
FROM stories
WHERE id = $1 AND status = 'published'`

const listStoriesQuery = `
SELECT id, title, category, spice_level, word_count, path_count, status, created_at, updated_at
FROM stories
WHERE status = 'published'
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`

const getStartPagesQuery = `
SELECT id, story_id, page_number, content, page_type, is_starting, is_ending, created_at
FROM pages
WHERE story_id = $1 AND is_starting
ORDER BY page_number`

const getPageByNumberQuery = `
SELECT id, story_id, page_number, content, page_type, is_starting, is_ending, created_at
FROM pages
WHERE story_id = $1 AND page_number = $2`

const getPageByIDQuery = `
SELECT id, story_id, page_number, content, page_type, is_starting, is_ending, created_at
FROM pages
WHERE id = $1`

const getOutgoingChoicesQuery = `
SELECT id, story_id, page_id, target_page_id, target_page_number, text, is_premium, cost, sort_order
FROM choices
WHERE page_id = $1
ORDER BY sort_order`

const getStoryPagesQuery = `
SELECT id, story_id, page_number, content, page_type, is_starting, is_ending, created_at
FROM pages
WHERE story_id = $1
ORDER BY page_number`

const getStoryChoicesQuery = `
SELECT c.id, c.story_id, c.page_id, c.target_page_id, c.target_page_number, c.text, c.is_premium, c.cost, c.sort_order
FROM choices c
JOIN pages p ON p.id = c.page_id
WHERE c.story_id = $1
ORDER BY p.page_number, c.sort_order`

func (r *pgStoryRepository) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	story := &models.Story{}
	err := pgxscan.Get(ctx, r.pool, story, getStoryQuery, storyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrStoryNotFound
		}
		r.logger.Error("Failed to get story", zap.Stringer("storyID", storyID), zap.Error(err))
		return nil, err
	}
	return story, nil
}

func (r *pgStoryRepository) ListStories(ctx context.Context, limit, offset int) ([]*models.Story, error) {
	var stories []*models.Story
	if err := pgxscan.Select(ctx, r.pool, &stories, listStoriesQuery, limit, offset); err != nil {
		r.logger.Error("Failed to list stories", zap.Error(err))
		return nil, err
	}
	return stories, nil
}

func (r *pgStoryRepository) GetStartPages(ctx context.Context, storyID uuid.UUID) ([]*models.Page, error) {
	var pages []*models.Page
	if err := pgxscan.Select(ctx, r.pool, &pages, getStartPagesQuery, storyID); err != nil {
		r.logger.Error("Failed to get start pages", zap.Stringer("storyID", storyID), zap.Error(err))
		return nil, err
	}
	return pages, nil
}

func (r *pgStoryRepository) GetPageByNumber(ctx context.Context, storyID uuid.UUID, pageNumber int) (*models.Page, error) {
	page := &models.Page{}
	err := pgxscan.Get(ctx, r.pool, page, getPageByNumberQuery, storyID, pageNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPageNotFound
		}
		r.logger.Error("Failed to get page by number",
			zap.Stringer("storyID", storyID), zap.Int("pageNumber", pageNumber), zap.Error(err))
		return nil, err
	}
	return page, nil
}

func (r *pgStoryRepository) GetPageByID(ctx context.Context, pageID uuid.UUID) (*models.Page, error) {
	page := &models.Page{}
	err := pgxscan.Get(ctx, r.pool, page, getPageByIDQuery, pageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPageNotFound
		}
		r.logger.Error("Failed to get page by id", zap.Stringer("pageID", pageID), zap.Error(err))
		return nil, err
	}
	return page, nil
}

func (r *pgStoryRepository) GetOutgoingChoices(ctx context.Context, pageID uuid.UUID) ([]*models.Choice, error) {
	var choices []*models.Choice
	if err := pgxscan.Select(ctx, r.pool, &choices, getOutgoingChoicesQuery, pageID); err != nil {
		r.logger.Error("Failed to get outgoing choices", zap.Stringer("pageID", pageID), zap.Error(err))
		return nil, err
	}
	return choices, nil
}

func (r *pgStoryRepository) GetGraph(ctx context.Context, storyID uuid.UUID) (*models.StoryGraph, error) {
	story, err := r.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}

	var pages []*models.Page
	if err := pgxscan.Select(ctx, r.pool, &pages, getStoryPagesQuery, storyID); err != nil {
		r.logger.Error("Failed to get story pages", zap.Stringer("storyID", storyID), zap.Error(err))
		return nil, err
	}

	var choices []*models.Choice
	if err := pgxscan.Select(ctx, r.pool, &choices, getStoryChoicesQuery, storyID); err != nil {
		r.logger.Error("Failed to get story choices", zap.Stringer("storyID", storyID), zap.Error(err))
		return nil, err
	}

	return &models.StoryGraph{Story: story, Pages: pages, Choices: choices}, nil
}
