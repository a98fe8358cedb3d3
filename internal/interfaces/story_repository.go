package interfaces

import (
	"context"

	"story-engine/internal/models"

	"github.com/google/uuid"
)

// StoryRepository defines read access to published story graphs.
// Authoring writes these tables; the engine only reads them.
//
//go:generate mockery --name StoryRepository --output ./mocks --outpkg mocks --case=underscore
type StoryRepository interface {
	// GetStory retrieves published story metadata by ID.
	GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error)

	// ListStories returns published stories ordered by creation time, newest first.
	ListStories(ctx context.Context, limit, offset int) ([]*models.Story, error)

	// GetStartPages returns all pages flagged is_starting for a story.
	// The graph service decides between NotFound and InvariantViolation.
	GetStartPages(ctx context.Context, storyID uuid.UUID) ([]*models.Page, error)

	// GetPageByNumber resolves a page by its canonical ordinal address.
	GetPageByNumber(ctx context.Context, storyID uuid.UUID, pageNumber int) (*models.Page, error)

	// GetPageByID resolves a page by its stable secondary key.
	GetPageByID(ctx context.Context, pageID uuid.UUID) (*models.Page, error)

	// GetOutgoingChoices returns the choices leaving a page in authoring order.
	GetOutgoingChoices(ctx context.Context, pageID uuid.UUID) ([]*models.Choice, error)

	// GetGraph loads the full page/choice graph of a story.
	GetGraph(ctx context.Context, storyID uuid.UUID) (*models.StoryGraph, error)
}

// GraphCache кеширует провалидированные графы опубликованных историй.
// Контент иммутабелен после публикации, поэтому кеш безопасен.
//
//go:generate mockery --name GraphCache --output ./mocks --outpkg mocks --case=underscore
type GraphCache interface {
	GetGraph(ctx context.Context, storyID uuid.UUID) (*models.StoryGraph, error)
	SetGraph(ctx context.Context, graph *models.StoryGraph) error
	Invalidate(ctx context.Context, storyID uuid.UUID) error
}
