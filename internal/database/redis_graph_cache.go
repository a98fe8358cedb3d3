package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"story-engine/internal/interfaces"
	"story-engine/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.GraphCache = (*redisGraphCache)(nil)

// redisGraphCache хранит сериализованные графы историй. Контент истории
// иммутабелен после публикации, инвалидация нужна только при повторной
// publish-time валидации.
type redisGraphCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisGraphCache creates a Redis-backed story graph cache.
func NewRedisGraphCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) interfaces.GraphCache {
	return &redisGraphCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisGraphCache"),
	}
}

func graphKey(storyID uuid.UUID) string {
	return fmt.Sprintf("story_graph:%s", storyID)
}

func (c *redisGraphCache) GetGraph(ctx context.Context, storyID uuid.UUID) (*models.StoryGraph, error) {
	raw, err := c.client.Get(ctx, graphKey(storyID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, models.ErrNotFound
		}
		c.logger.Warn("Failed to get graph from cache", zap.Stringer("storyID", storyID), zap.Error(err))
		return nil, err
	}

	graph := &models.StoryGraph{}
	if err := json.Unmarshal(raw, graph); err != nil {
		// Поврежденная запись - выбрасываем и ведем себя как cache miss
		c.logger.Error("Corrupted graph cache entry, dropping", zap.Stringer("storyID", storyID), zap.Error(err))
		c.client.Del(ctx, graphKey(storyID))
		return nil, models.ErrNotFound
	}
	return graph, nil
}

func (c *redisGraphCache) SetGraph(ctx context.Context, graph *models.StoryGraph) error {
	raw, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to marshal story graph: %w", err)
	}
	if err := c.client.Set(ctx, graphKey(graph.Story.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to set graph in cache", zap.Stringer("storyID", graph.Story.ID), zap.Error(err))
		return err
	}
	c.logger.Debug("Story graph cached",
		zap.Stringer("storyID", graph.Story.ID),
		zap.Int("pages", len(graph.Pages)),
		zap.Int("choices", len(graph.Choices)))
	return nil
}

func (c *redisGraphCache) Invalidate(ctx context.Context, storyID uuid.UUID) error {
	if err := c.client.Del(ctx, graphKey(storyID)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate graph cache", zap.Stringer("storyID", storyID), zap.Error(err))
		return err
	}
	return nil
}
