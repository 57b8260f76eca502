// Package history records snatch and failure events for tracked episodes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/show"
	"github.com/fetcharr/fetcharr/internal/tvcache"
)

// Action is the kind of event recorded.
type Action string

const (
	ActionSnatched Action = "snatched"
	ActionFailed   Action = "failed"
)

// Entry is one history row.
type Entry struct {
	ID       int64
	Date     time.Time
	Action   Action
	Provider string
	Name     string
	URL      string
	ShowID   int64
	Season   int
	Episodes []int
	Quality  show.Quality
}

// Store persists history rows.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a history store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// RecordSnatch logs a successful snatch of a candidate.
func (s *Store) RecordSnatch(ctx context.Context, c *tvcache.Candidate) error {
	return s.record(ctx, ActionSnatched, c)
}

// RecordFailure logs a failed snatch of a candidate.
func (s *Store) RecordFailure(ctx context.Context, c *tvcache.Candidate) error {
	return s.record(ctx, ActionFailed, c)
}

func (s *Store) record(ctx context.Context, action Action, c *tvcache.Candidate) error {
	season := -1
	numbers := make([]int, 0, len(c.Episodes))
	for _, ep := range c.Episodes {
		season = ep.Season
		numbers = append(numbers, ep.Episode)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (date, action, provider, name, url, show_id, season, episodes, quality)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(), string(action), c.Provider, c.Name, c.URL,
		c.Show.ID, season, tvcache.EncodeEpisodes(numbers), int(c.Quality))
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", action, err)
	}
	return nil
}

// Recent returns the most recent history rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, action, provider, name, url, show_id, season, episodes, quality
		 FROM history ORDER BY date DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			date     int64
			action   string
			episodes string
			quality  int
		)
		if err := rows.Scan(&e.ID, &date, &action, &e.Provider, &e.Name, &e.URL,
			&e.ShowID, &e.Season, &episodes, &quality); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Date = time.Unix(date, 0).UTC()
		e.Action = Action(action)
		e.Episodes = tvcache.DecodeEpisodes(episodes)
		e.Quality = show.Quality(quality)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
