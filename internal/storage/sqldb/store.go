package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/lambda-api/internal/domain"
	"github.com/tjfontaine/lambda-api/internal/storage"
	"github.com/tjfontaine/lambda-api/internal/storage/dialect"
)

// Store is a SQL implementation of storage.Store that supports SQLite and
// PostgreSQL.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ storage.Store = (*Store)(nil)

// Open connects to the database named by a DATABASE_URL, runs the dialect
// pragmas and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	d, dsn, err := dialect.FromURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unsupported database url: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	ts := s.dialect.TimestampType()
	boolean := s.dialect.BooleanType()

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS examples (
id TEXT PRIMARY KEY,
name TEXT NOT NULL,
description TEXT NOT NULL DEFAULT '',
is_active %s NOT NULL DEFAULT %s,
created_at %s NOT NULL,
updated_at %s NOT NULL
)`, boolean, s.boolLiteral(true), ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
id TEXT PRIMARY KEY,
email TEXT NOT NULL UNIQUE,
name TEXT NOT NULL DEFAULT '',
password_hash TEXT NOT NULL,
created_at %s NOT NULL
)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sessions (
id TEXT PRIMARY KEY,
user_id TEXT NOT NULL,
token_hash TEXT NOT NULL UNIQUE,
expires_at %s NOT NULL,
created_at %s NOT NULL,
FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
)`, ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS graph_checkpoints (
graph_id TEXT PRIMARY KEY,
state TEXT NOT NULL,
updated_at %s NOT NULL
)`, ts),
		`CREATE INDEX IF NOT EXISTS idx_examples_created ON examples(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return s.runMigrations(ctx)
}

func (s *Store) runMigrations(ctx context.Context) error {
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"sessions", "ip_address", "ALTER TABLE sessions ADD COLUMN ip_address TEXT NOT NULL DEFAULT ''"},
		{"sessions", "user_agent", "ALTER TABLE sessions ADD COLUMN user_agent TEXT NOT NULL DEFAULT ''"},
	}

	for _, m := range migrations {
		exists, err := s.columnExists(ctx, m.table, m.column)
		if err != nil {
			return fmt.Errorf("failed to check column %s.%s: %w", m.table, m.column, err)
		}
		if !exists {
			if _, err := s.db.ExecContext(ctx, m.ddl); err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", m.table, m.column, err)
			}
		}
	}

	return nil
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	var count int
	query := s.dialect.Rebind(s.dialect.ColumnExistsQuery())
	if err := s.db.QueryRowContext(ctx, query, table, column).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) boolLiteral(v bool) string {
	if s.dialect.BooleanType() == "BOOLEAN" {
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	if v {
		return "1"
	}
	return "0"
}

// notFound maps sql.ErrNoRows to storage.ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// =============================================================================
// Examples
// =============================================================================

func (s *Store) CreateExample(ctx context.Context, ex *domain.Example) error {
	now := time.Now().UTC()
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = now
	}
	ex.UpdatedAt = now

	query := s.dialect.Rebind(`INSERT INTO examples (id, name, description, is_active, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		ex.ID, ex.Name, ex.Description, ex.IsActive, ex.CreatedAt, ex.UpdatedAt)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("example %s: %w", ex.ID, storage.ErrConflict)
		}
		return fmt.Errorf("failed to create example: %w", err)
	}
	return nil
}

func (s *Store) GetExample(ctx context.Context, id string) (*domain.Example, error) {
	query := s.dialect.Rebind(`SELECT id, name, description, is_active, created_at, updated_at
	          FROM examples WHERE id = ?`)

	var ex domain.Example
	if err := s.db.GetContext(ctx, &ex, query, id); err != nil {
		return nil, notFound(err, "example", id)
	}
	return &ex, nil
}

func (s *Store) ListExamples(ctx context.Context, opts storage.ListOptions) ([]*domain.Example, error) {
	opts = opts.Normalize()
	query := s.dialect.Rebind(`SELECT id, name, description, is_active, created_at, updated_at
	          FROM examples ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`)

	var out []*domain.Example
	if err := s.db.SelectContext(ctx, &out, query, opts.Limit, opts.Offset); err != nil {
		return nil, fmt.Errorf("failed to list examples: %w", err)
	}
	return out, nil
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = strings.ToLower(u.Email)

	query := s.dialect.Rebind(`INSERT INTO users (id, email, name, password_hash, created_at)
	          VALUES (?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query, u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, storage.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := s.dialect.Rebind(`SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`)

	var u domain.User
	if err := s.db.GetContext(ctx, &u, query, id); err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(email)
	query := s.dialect.Rebind(`SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`)

	var u domain.User
	if err := s.db.GetContext(ctx, &u, query, email); err != nil {
		return nil, notFound(err, "user", email)
	}
	return &u, nil
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	query := s.dialect.Rebind(`INSERT INTO sessions (id, user_id, token_hash, ip_address, user_agent, expires_at, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.UserID, sess.TokenHash, sess.IPAddress, sess.UserAgent, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := s.dialect.Rebind(`SELECT id, user_id, token_hash, ip_address, user_agent, expires_at, created_at
	          FROM sessions WHERE token_hash = ?`)

	var sess domain.Session
	if err := s.db.GetContext(ctx, &sess, query, tokenHash); err != nil {
		return nil, notFound(err, "session", "by token")
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	query := s.dialect.Rebind(`DELETE FROM sessions WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	query := s.dialect.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// Graph checkpoints
// =============================================================================

func (s *Store) SaveCheckpoint(ctx context.Context, graphID string, state *domain.GraphState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal graph state: %w", err)
	}

	query := s.dialect.Rebind(fmt.Sprintf(`INSERT INTO graph_checkpoints (graph_id, state, updated_at)
	          VALUES (?, ?, ?) %s`, s.dialect.UpsertClause("graph_id", []string{"state", "updated_at"})))

	if _, err := s.db.ExecContext(ctx, query, graphID, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *Store) LoadCheckpoint(ctx context.Context, graphID string) (*domain.GraphState, error) {
	query := s.dialect.Rebind(`SELECT state FROM graph_checkpoints WHERE graph_id = ?`)

	var raw string
	if err := s.db.QueryRowContext(ctx, query, graphID).Scan(&raw); err != nil {
		return nil, notFound(err, "checkpoint", graphID)
	}

	var state domain.GraphState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph state: %w", err)
	}
	return &state, nil
}
