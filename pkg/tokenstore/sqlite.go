package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godilite/aiticket/pkg/database"
	_ "github.com/mattn/go-sqlite3"
)

// A token file sees a single writer; one connection avoids SQLITE_BUSY
// between pooled connections.
const (
	maxOpenConns    = 1
	connMaxIdleTime = 30 * time.Second
)

const schema = `
	CREATE TABLE IF NOT EXISTS client_tokens (
		origin     TEXT NOT NULL,
		key        TEXT NOT NULL,
		token      TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (origin, key)
	)`

// SQLite stores the token in a local sqlite file.
type SQLite struct {
	db     *sql.DB
	origin string
	key    string
}

// OpenSQLite opens (creating if needed) the token database at path.
func OpenSQLite(ctx context.Context, path, origin string) (*SQLite, error) {
	if origin == "" {
		return nil, fmt.Errorf("tokenstore: origin is required")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("tokenstore: create directory: %w", err)
		}
	}

	db, err := database.New(ctx,
		database.WithDriver("sqlite3"),
		database.WithDataSource(path),
		database.WithMaxOpenConns(maxOpenConns),
		database.WithConnMaxIdleTime(connMaxIdleTime),
		database.WithMigrations(schema),
	)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: open sqlite: %w", err)
	}
	return NewSQLite(db, origin), nil
}

// NewSQLite wraps an already migrated handle.
func NewSQLite(db *sql.DB, origin string) *SQLite {
	return &SQLite{db: db, origin: origin, key: DefaultKey}
}

func (s *SQLite) Load(ctx context.Context) (string, error) {
	const query = `SELECT token FROM client_tokens WHERE origin = ? AND key = ?`

	var token string
	err := s.db.QueryRowContext(ctx, query, s.origin, s.key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query token: %w", err)
	}
	return token, nil
}

func (s *SQLite) Save(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	const query = `
		INSERT INTO client_tokens (origin, key, token, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (origin, key) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, s.origin, s.key, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	const query = `DELETE FROM client_tokens WHERE origin = ? AND key = ?`
	if _, err := s.db.ExecContext(ctx, query, s.origin, s.key); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
