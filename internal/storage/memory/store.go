// Package memory provides an in-memory storage.Store used when no
// DATABASE_URL driver is reachable and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu          sync.RWMutex
	examples    map[string]*domain.Example
	users       map[string]*domain.User
	sessions    map[string]*domain.Session
	checkpoints map[string]*domain.GraphState
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		examples:    make(map[string]*domain.Example),
		users:       make(map[string]*domain.User),
		sessions:    make(map[string]*domain.Session),
		checkpoints: make(map[string]*domain.GraphState),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

func (s *Store) CreateExample(ctx context.Context, ex *domain.Example) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.examples[ex.ID]; exists {
		return fmt.Errorf("example %s: %w", ex.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = now
	}
	ex.UpdatedAt = now

	cp := *ex
	s.examples[ex.ID] = &cp
	return nil
}

func (s *Store) GetExample(ctx context.Context, id string) (*domain.Example, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, exists := s.examples[id]
	if !exists {
		return nil, fmt.Errorf("example %s: %w", id, storage.ErrNotFound)
	}
	cp := *ex
	return &cp, nil
}

func (s *Store) ListExamples(ctx context.Context, opts storage.ListOptions) ([]*domain.Example, error) {
	opts = opts.Normalize()

	s.mu.RLock()
	out := make([]*domain.Example, 0, len(s.examples))
	for _, ex := range s.examples {
		cp := *ex
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if opts.Offset >= len(out) {
		return []*domain.Example{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[opts.Offset:end], nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = strings.ToLower(u.Email)
	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("user %s: %w", u.ID, storage.ErrConflict)
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("user %s: %w", u.Email, storage.ErrConflict)
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
}

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.TokenHash == tokenHash {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("session by token: %w", storage.ErrNotFound)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.sessions {
		if sess.Expired(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, graphID string, state *domain.GraphState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *state
	cp.Messages = append([]domain.Message(nil), state.Messages...)
	s.checkpoints[graphID] = &cp
	return nil
}

func (s *Store) LoadCheckpoint(ctx context.Context, graphID string) (*domain.GraphState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.checkpoints[graphID]
	if !exists {
		return nil, fmt.Errorf("checkpoint %s: %w", graphID, storage.ErrNotFound)
	}
	cp := *state
	cp.Messages = append([]domain.Message(nil), state.Messages...)
	return &cp, nil
}
