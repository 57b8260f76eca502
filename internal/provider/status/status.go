// Package status persists per-provider refresh timestamps and failure
// visibility in the provider_status table.
package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FailureKind categorizes a recorded provider failure.
type FailureKind string

const (
	FailureAuth    FailureKind = "auth"
	FailureNetwork FailureKind = "network"
	FailureParse   FailureKind = "parse"
)

// Store reads and writes provider_status rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LastUpdate returns the time of the provider's last successful cache refresh.
// A provider never refreshed reports the zero time.
func (s *Store) LastUpdate(ctx context.Context, provider string) (time.Time, error) {
	return s.timestamp(ctx, provider, "last_update")
}

// LastSearch returns the time the provider's cache was last queried for
// needed episodes.
func (s *Store) LastSearch(ctx context.Context, provider string) (time.Time, error) {
	return s.timestamp(ctx, provider, "last_search")
}

func (s *Store) timestamp(ctx context.Context, provider, column string) (time.Time, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM provider_status WHERE provider = ?`, column),
		provider).Scan(&unix)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read provider status: %w", err)
	}
	if unix == 0 {
		return time.Time{}, nil
	}
	return time.Unix(unix, 0).UTC(), nil
}

// SetLastUpdate records a successful refresh and clears the failure counter.
func (s *Store) SetLastUpdate(ctx context.Context, provider string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_status (provider, last_update, failure_count, last_failure_kind)
		 VALUES (?, ?, 0, '')
		 ON CONFLICT(provider) DO UPDATE SET last_update = excluded.last_update,
		     failure_count = 0, last_failure_kind = ''`,
		provider, at.Unix())
	if err != nil {
		return fmt.Errorf("failed to set last update: %w", err)
	}
	return nil
}

// SetLastSearch records when the provider's cache was last queried.
func (s *Store) SetLastSearch(ctx context.Context, provider string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_status (provider, last_search) VALUES (?, ?)
		 ON CONFLICT(provider) DO UPDATE SET last_search = excluded.last_search`,
		provider, at.Unix())
	if err != nil {
		return fmt.Errorf("failed to set last search: %w", err)
	}
	return nil
}

// RecordFailure increments the provider's failure counter. Failures never
// block other providers; the counter exists for operator visibility.
func (s *Store) RecordFailure(ctx context.Context, provider string, kind FailureKind, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_status (provider, failure_count, last_failure, last_failure_kind)
		 VALUES (?, 1, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET failure_count = failure_count + 1,
		     last_failure = excluded.last_failure, last_failure_kind = excluded.last_failure_kind`,
		provider, at.Unix(), string(kind))
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// Failures returns the provider's consecutive failure count and last kind.
func (s *Store) Failures(ctx context.Context, provider string) (int, FailureKind, error) {
	var (
		count int
		kind  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT failure_count, last_failure_kind FROM provider_status WHERE provider = ?`,
		provider).Scan(&count, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to read failures: %w", err)
	}
	return count, FailureKind(kind), nil
}
