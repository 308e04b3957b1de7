// Package auth implements email and password accounts with opaque bearer
// session tokens. Only an HMAC of each token is stored.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/storage"
)

// DefaultSessionTTL is how long a session stays valid after sign-in.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidSession is returned for an unknown or expired session token.
	ErrInvalidSession = errors.New("invalid session")

	// ErrUserExists is returned when signing up with a registered email.
	ErrUserExists = errors.New("user already exists")
)

// Store is the persistence the service needs.
type Store interface {
	storage.UserStore
	storage.SessionStore
}

// ClientInfo describes where a sign-in came from.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Service manages accounts and sessions.
type Service struct {
	store      Store
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithClock overrides the clock used for session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. The secret keys the session token HMAC.
func NewService(store Store, secret string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	if len(secret) < 32 {
		return nil, errors.New("auth secret must be at least 32 characters")
	}
	s := &Service{
		store:      store,
		secret:     []byte(secret),
		ttl:        DefaultSessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SignUp registers a user and opens a session for them.
func (s *Service) SignUp(ctx context.Context, email, password, name string, client ClientInfo) (*domain.User, *domain.Session, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, nil, "", ErrUserExists
		}
		return nil, nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	sess, token, err := s.openSession(ctx, user, client)
	if err != nil {
		return nil, nil, "", err
	}
	return user, sess, token, nil
}

// SignIn verifies credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string, client ClientInfo) (*domain.User, *domain.Session, string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, "", ErrInvalidCredentials
		}
		return nil, nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, "", ErrInvalidCredentials
	}

	sess, token, err := s.openSession(ctx, user, client)
	if err != nil {
		return nil, nil, "", err
	}
	return user, sess, token, nil
}

// ResolveSession returns the user and session for a token. Expired sessions
// are deleted and reported as ErrInvalidSession.
func (s *Service) ResolveSession(ctx context.Context, token string) (*domain.User, *domain.Session, error) {
	if token == "" {
		return nil, nil, ErrInvalidSession
	}

	tokenHash := s.HashToken(token)
	sess, err := s.store.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, fmt.Errorf("failed to look up session: %w", err)
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(tokenHash), []byte(sess.TokenHash)) != 1 {
		return nil, nil, ErrInvalidSession
	}

	if sess.Expired(s.now()) {
		_ = s.store.DeleteSession(ctx, sess.ID)
		return nil, nil, ErrInvalidSession
	}

	user, err := s.store.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, sess, nil
}

// SignOut ends the session identified by token. Unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sess, err := s.store.GetSessionByTokenHash(ctx, s.HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up session: %w", err)
	}
	return s.store.DeleteSession(ctx, sess.ID)
}

// PurgeExpired deletes sessions that expired before now.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now())
}

// HashToken derives the stored form of a session token.
func (s *Service) HashToken(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) openSession(ctx context.Context, user *domain.User, client ClientInfo) (*domain.Session, string, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: s.HashToken(token),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}
	return sess, token, nil
}

// GenerateToken returns 32 random bytes, base64url encoded.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
