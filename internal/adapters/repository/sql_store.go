package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskmaster/taskflow/internal/infrastructure/database"
	"github.com/taskmaster/taskflow/internal/ports"
)

// SQLStore implements ports.KeyValueStore on the kv_store table
type SQLStore struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLStore wraps an open, migrated database
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := s.db.DB.Rebind(`SELECT value FROM kv_store WHERE storage_key = ?`)

	var value []byte
	err := s.db.DB.GetContext(ctx, &value, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrKeyNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}

	return value, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	query := s.db.DB.Rebind(`
		INSERT INTO kv_store (storage_key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (storage_key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`)

	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.DB.ExecContext(ctx, query, key, value, s.now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
