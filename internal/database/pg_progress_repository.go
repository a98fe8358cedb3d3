package database

import (
	"context"
	"errors"
	"time"

	"story-engine/internal/interfaces"
	"story-engine/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.ProgressRepository = (*pgProgressRepository)(nil)

type pgProgressRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgProgressRepository creates a new repository for reading progress rows.
func NewPgProgressRepository(pool *pgxpool.Pool, logger *zap.Logger) interfaces.ProgressRepository {
	return &pgProgressRepository{
		pool:   pool,
		logger: logger.Named("PgProgressRepo"),
	}
}

const getProgressQuery = `
SELECT user_id, story_id, current_page_id, current_page_number, is_bookmarked,
       is_completed, completed_at, pages_read, choices_made, created_at, updated_at
FROM reading_progress
WHERE user_id = $1 AND story_id = $2`

const upsertProgressQuery = `
INSERT INTO reading_progress (user_id, story_id, current_page_id, current_page_number,
                              is_bookmarked, is_completed, completed_at, pages_read, choices_made, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (user_id, story_id) DO UPDATE SET
    current_page_id = EXCLUDED.current_page_id,
    current_page_number = EXCLUDED.current_page_number,
    is_bookmarked = EXCLUDED.is_bookmarked,
    is_completed = EXCLUDED.is_completed,
    completed_at = EXCLUDED.completed_at,
    pages_read = EXCLUDED.pages_read,
    choices_made = EXCLUDED.choices_made,
    updated_at = EXCLUDED.updated_at`

const advanceProgressQuery = `
UPDATE reading_progress SET
    current_page_id = $3,
    current_page_number = $4,
    pages_read = pages_read + 1,
    choices_made = choices_made + $5,
    is_completed = CASE WHEN $6 THEN TRUE ELSE is_completed END,
    completed_at = CASE WHEN $6 THEN now() ELSE completed_at END,
    updated_at = now()
WHERE user_id = $1 AND story_id = $2`

const resetProgressQuery = `
UPDATE reading_progress SET
    current_page_id = $3,
    current_page_number = $4,
    is_completed = FALSE,
    completed_at = NULL,
    updated_at = now()
WHERE user_id = $1 AND story_id = $2`

const setBookmarkQuery = `
UPDATE reading_progress SET is_bookmarked = $3, updated_at = now()
WHERE user_id = $1 AND story_id = $2`

func (r *pgProgressRepository) Get(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error) {
	progress := &models.ReadingProgress{}
	err := pgxscan.Get(ctx, r.pool, progress, getProgressQuery, userID, storyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get reading progress",
			zap.Stringer("userID", userID), zap.Stringer("storyID", storyID), zap.Error(err))
		return nil, err
	}
	return progress, nil
}

func (r *pgProgressRepository) Upsert(ctx context.Context, progress *models.ReadingProgress) error {
	progress.UpdatedAt = time.Now()
	_, err := r.pool.Exec(ctx, upsertProgressQuery,
		progress.UserID,
		progress.StoryID,
		progress.CurrentPageID,
		progress.CurrentPageNumber,
		progress.IsBookmarked,
		progress.IsCompleted,
		progress.CompletedAt,
		progress.PagesRead,
		progress.ChoicesMade,
		progress.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert reading progress",
			zap.Stringer("userID", progress.UserID), zap.Stringer("storyID", progress.StoryID), zap.Error(err))
		return err
	}
	r.logger.Debug("Upserted reading progress",
		zap.Stringer("userID", progress.UserID),
		zap.Stringer("storyID", progress.StoryID),
		zap.Int("pageNumber", progress.CurrentPageNumber))
	return nil
}

func (r *pgProgressRepository) Advance(ctx context.Context, userID, storyID uuid.UUID, pos models.Position, choiceMade, completed bool) error {
	choiceInc := 0
	if choiceMade {
		choiceInc = 1
	}
	cmdTag, err := r.pool.Exec(ctx, advanceProgressQuery,
		userID, storyID, pos.PageID, pos.PageNumber, choiceInc, completed)
	if err != nil {
		r.logger.Error("Failed to advance reading progress",
			zap.Stringer("userID", userID), zap.Stringer("storyID", storyID), zap.Error(err))
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgProgressRepository) Reset(ctx context.Context, userID, storyID uuid.UUID, start models.Position) error {
	cmdTag, err := r.pool.Exec(ctx, resetProgressQuery, userID, storyID, start.PageID, start.PageNumber)
	if err != nil {
		r.logger.Error("Failed to reset reading progress",
			zap.Stringer("userID", userID), zap.Stringer("storyID", storyID), zap.Error(err))
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("Reading progress reset",
		zap.Stringer("userID", userID), zap.Stringer("storyID", storyID))
	return nil
}

func (r *pgProgressRepository) SetBookmark(ctx context.Context, userID, storyID uuid.UUID, bookmarked bool) error {
	cmdTag, err := r.pool.Exec(ctx, setBookmarkQuery, userID, storyID, bookmarked)
	if err != nil {
		r.logger.Error("Failed to set bookmark",
			zap.Stringer("userID", userID), zap.Stringer("storyID", storyID), zap.Error(err))
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
