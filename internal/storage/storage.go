// Package storage defines the persistence interfaces used by the API.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique key already exists.
	ErrConflict = errors.New("already exists")
)

// ExampleStore persists the demo example resource.
type ExampleStore interface {
	CreateExample(ctx context.Context, ex *domain.Example) error
	GetExample(ctx context.Context, id string) (*domain.Example, error)
	ListExamples(ctx context.Context, opts ListOptions) ([]*domain.Example, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// SessionStore persists sign-in sessions by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// CheckpointStore persists graph state between runs.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, graphID string, state *domain.GraphState) error
	LoadCheckpoint(ctx context.Context, graphID string) (*domain.GraphState, error)
}

// Store is the full relational store.
type Store interface {
	ExampleStore
	UserStore
	SessionStore
	CheckpointStore
	Ping(ctx context.Context) error
	Close() error
}

// ListOptions bounds list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps the options to sane bounds.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 || o.Limit > 100 {
		o.Limit = 20
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
