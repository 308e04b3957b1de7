package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		dialectType DialectType
		wantName    string
		wantErr     bool
	}{
		{"sqlite", SQLite, "sqlite", false},
		{"postgres", Postgres, "postgres", false},
		{"mysql", DialectType("mysql"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.dialectType)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestFromURL(t *testing.T) {
	tests := []struct {
		url      string
		wantName string
		wantDSN  string
		wantErr  bool
	}{
		{"postgres://u:p@db:5432/app?sslmode=disable", "postgres", "postgres://u:p@db:5432/app?sslmode=disable", false},
		{"postgresql://db/app", "postgres", "postgresql://db/app", false},
		{"sqlite:data/app.db", "sqlite", "data/app.db", false},
		{"sqlite:///tmp/app.db", "sqlite", "/tmp/app.db", false},
		{"file:memdb1?mode=memory&cache=shared", "sqlite", "file:memdb1?mode=memory&cache=shared", false},
		{"sqlite:", "", "", true},
		{"mysql://db/app", "", "", true},
		{"no-scheme", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			d, dsn, err := FromURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
			if dsn != tt.wantDSN {
				t.Errorf("dsn = %v, want %v", dsn, tt.wantDSN)
			}
		})
	}
}

func TestSQLiteDialect_Rebind(t *testing.T) {
	d := &sqliteDialect{}
	query := "SELECT * FROM users WHERE id = ? AND name = ?"
	if got := d.Rebind(query); got != query {
		t.Errorf("Rebind() = %v, want %v", got, query)
	}
}

func TestPostgresDialect_Rebind(t *testing.T) {
	d := &postgresDialect{}
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT * FROM users WHERE id = ?", "SELECT * FROM users WHERE id = $1"},
		{"SELECT * FROM users WHERE id = ? AND name = ?", "SELECT * FROM users WHERE id = $1 AND name = $2"},
		{"INSERT INTO users VALUES (?, ?, ?)", "INSERT INTO users VALUES ($1, $2, $3)"},
		{"SELECT * FROM users", "SELECT * FROM users"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := d.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpsertClause(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		columns []string
		want    string
	}{
		{"sqlite nothing", &sqliteDialect{}, nil, "ON CONFLICT(id) DO NOTHING"},
		{"sqlite update", &sqliteDialect{}, []string{"state", "updated_at"}, "ON CONFLICT(id) DO UPDATE SET state=excluded.state, updated_at=excluded.updated_at"},
		{"postgres nothing", &postgresDialect{}, nil, "ON CONFLICT (id) DO NOTHING"},
		{"postgres update", &postgresDialect{}, []string{"state", "updated_at"}, "ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.UpsertClause("id", tt.columns); got != tt.want {
				t.Errorf("UpsertClause() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDialect_Types(t *testing.T) {
	tests := []struct {
		name          string
		dialect       Dialect
		boolType      string
		timestampType string
		driver        string
	}{
		{"sqlite", &sqliteDialect{}, "INTEGER", "TIMESTAMP", "sqlite"},
		{"postgres", &postgresDialect{}, "BOOLEAN", "TIMESTAMP WITH TIME ZONE", "pgx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.BooleanType(); got != tt.boolType {
				t.Errorf("BooleanType() = %v, want %v", got, tt.boolType)
			}
			if got := tt.dialect.TimestampType(); got != tt.timestampType {
				t.Errorf("TimestampType() = %v, want %v", got, tt.timestampType)
			}
			if got := tt.dialect.DriverName(); got != tt.driver {
				t.Errorf("DriverName() = %v, want %v", got, tt.driver)
			}
		})
	}
}

func TestDialect_PragmaStatements(t *testing.T) {
	if len((&sqliteDialect{}).PragmaStatements()) == 0 {
		t.Error("SQLite should have pragma statements")
	}
	if (&postgresDialect{}).PragmaStatements() != nil {
		t.Error("PostgreSQL should not have pragma statements")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	sqliteErr := errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")
	if !(&sqliteDialect{}).IsUniqueViolation(sqliteErr) {
		t.Error("sqlite unique violation not detected")
	}
	if (&sqliteDialect{}).IsUniqueViolation(errors.New("disk I/O error")) {
		t.Error("unrelated sqlite error reported as unique violation")
	}

	pgErr := fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505"})
	if !(&postgresDialect{}).IsUniqueViolation(pgErr) {
		t.Error("postgres unique violation not detected")
	}
	if (&postgresDialect{}).IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation reported as unique violation")
	}
}
