package interfaces

import (
	"context"

	"story-engine/internal/models"

	"github.com/google/uuid"
)

// ProgressRepository stores the durable reading position of authenticated
// readers. One row per (user, story), enforced by the primary key.
//
//go:generate mockery --name ProgressRepository --output ./mocks --outpkg mocks --case=underscore
type ProgressRepository interface {
	// Get retrieves the progress row, models.ErrNotFound when absent.
	Get(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error)

	// Upsert creates or updates the row by its unique key; never duplicates.
	Upsert(ctx context.Context, progress *models.ReadingProgress) error

	// Advance moves the position to a new page and bumps the counters.
	// completed marks the story finished without deleting the row.
	Advance(ctx context.Context, userID, storyID uuid.UUID, pos models.Position, choiceMade, completed bool) error

	// Reset returns the position to the start page and clears the
	// completion flag; counters and bookmarks are kept.
	Reset(ctx context.Context, userID, storyID uuid.UUID, start models.Position) error

	// SetBookmark toggles the bookmark flag without touching the position.
	SetBookmark(ctx context.Context, userID, storyID uuid.UUID, bookmarked bool) error
}
