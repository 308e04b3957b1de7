package ai

import (
	"context"
	"time"

	"github.com/tjfontaine/lambda-api/internal/cache"
	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/storage"
)

// CheckpointTTL bounds how long a graph checkpoint lives in Redis.
const CheckpointTTL = 7 * 24 * time.Hour

// RedisCheckpoints stores graph checkpoints as JSON under checkpoint:<graphId>.
type RedisCheckpoints struct {
	cache *cache.Client
	ttl   time.Duration
}

var _ storage.CheckpointStore = (*RedisCheckpoints)(nil)

// NewRedisCheckpoints creates a Redis backed checkpoint store.
func NewRedisCheckpoints(c *cache.Client) *RedisCheckpoints {
	return &RedisCheckpoints{cache: c, ttl: CheckpointTTL}
}

func checkpointKey(graphID string) string {
	return "checkpoint:" + graphID
}

func (r *RedisCheckpoints) SaveCheckpoint(ctx context.Context, graphID string, state *domain.GraphState) error {
	return r.cache.SetJSON(ctx, checkpointKey(graphID), state, r.ttl)
}

func (r *RedisCheckpoints) LoadCheckpoint(ctx context.Context, graphID string) (*domain.GraphState, error) {
	var state domain.GraphState
	found, err := r.cache.GetJSON(ctx, checkpointKey(graphID), &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return &state, nil
}

// SelectCheckpoints picks the checkpoint backend: Redis when a cache is
// configured, else the relational store, else fallback.
func SelectCheckpoints(c *cache.Client, sql storage.CheckpointStore, fallback storage.CheckpointStore) storage.CheckpointStore {
	switch {
	case c != nil:
		return NewRedisCheckpoints(c)
	case sql != nil:
		return sql
	default:
		return fallback
	}
}
