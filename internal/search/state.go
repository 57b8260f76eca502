package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// StateStore persists small search-scheduler values (last backlog day and
// similar) in the search_state key/value table.
type StateStore struct {
	db *sql.DB
}

// NewStateStore creates a StateStore.
func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{db: db}
}

// GetInt returns the stored integer for key, or fallback when absent.
func (s *StateStore) GetInt(ctx context.Context, key string, fallback int64) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM search_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read search state %q: %w", key, err)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback, nil
	}
	return n, nil
}

// SetInt stores an integer for key.
func (s *StateStore) SetInt(ctx context.Context, key string, value int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, strconv.FormatInt(value, 10))
	if err != nil {
		return fmt.Errorf("failed to write search state %q: %w", key, err)
	}
	return nil
}
