package ai

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/lambda-api/internal/cache"
	"github.com/tjfontaine/lambda-api/internal/domain"
)

// MemoryTTL is how long a mirrored conversation survives in Redis.
const MemoryTTL = 24 * time.Hour

// Memory holds conversation history by id. The in-process map is
// authoritative; when a cache is configured each update is mirrored to
// memory:<id> and a miss falls back to the mirror. Mirror failures are logged
// and otherwise ignored.
type Memory struct {
	mu     sync.Mutex
	convs  map[string][]domain.Message
	cache  *cache.Client
	logger *slog.Logger
}

// NewMemory creates a Memory. c may be nil.
func NewMemory(c *cache.Client, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		convs:  make(map[string][]domain.Message),
		cache:  c,
		logger: logger,
	}
}

func memoryKey(id string) string {
	return "memory:" + id
}

// Load returns a copy of the history for id. Unknown ids yield nil.
func (m *Memory) Load(ctx context.Context, id string) []domain.Message {
	m.mu.Lock()
	msgs, ok := m.convs[id]
	m.mu.Unlock()
	if ok {
		return append([]domain.Message(nil), msgs...)
	}

	if m.cache == nil {
		return nil
	}

	var mirrored []domain.Message
	found, err := m.cache.GetJSON(ctx, memoryKey(id), &mirrored)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load conversation mirror",
			slog.String("conversation_id", id),
			slog.String("error", err.Error()))
		return nil
	}
	if !found {
		return nil
	}

	m.mu.Lock()
	if _, ok := m.convs[id]; !ok {
		m.convs[id] = mirrored
	}
	m.mu.Unlock()
	return append([]domain.Message(nil), mirrored...)
}

// Append adds messages to the history for id and mirrors the result.
func (m *Memory) Append(ctx context.Context, id string, msgs ...domain.Message) {
	m.mu.Lock()
	m.convs[id] = append(m.convs[id], msgs...)
	snapshot := append([]domain.Message(nil), m.convs[id]...)
	m.mu.Unlock()

	m.mirror(ctx, id, snapshot)
}

// Clear forgets the history for id.
func (m *Memory) Clear(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.convs, id)
	m.mu.Unlock()

	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, memoryKey(id)); err != nil {
		m.logger.WarnContext(ctx, "failed to delete conversation mirror",
			slog.String("conversation_id", id),
			slog.String("error", err.Error()))
	}
}

func (m *Memory) mirror(ctx context.Context, id string, msgs []domain.Message) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SetJSON(ctx, memoryKey(id), msgs, MemoryTTL); err != nil {
		m.logger.WarnContext(ctx, "failed to mirror conversation",
			slog.String("conversation_id", id),
			slog.String("error", err.Error()))
	}
}
