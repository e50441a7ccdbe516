package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aegisdns/syncd/internal/common"
)

// SQLiteStore keeps key/value pairs in a single table, namespaced so the
// local and synced stores can share one database file.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
}

func NewSQLiteStore(db *sql.DB, namespace string) *SQLiteStore {
	return &SQLiteStore{db: db, namespace: namespace}
}

// EnsureSchema creates the backing table if it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
		  namespace TEXT NOT NULL,
		  key       TEXT NOT NULL,
		  value     TEXT NOT NULL,
		  PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = ? AND key = ?`,
		s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("kv[%s/%s]: %w", s.namespace, key, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get kv[%s/%s]: %w", s.namespace, key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value) VALUES (?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value
	`, s.namespace, key, value)
	if err != nil {
		return fmt.Errorf("failed to set kv[%s/%s]: %w", s.namespace, key, err)
	}
	return nil
}
