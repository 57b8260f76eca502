// Package tvcache is the provider result cache: a per-provider table of
// normalized, parsed release records, the updater that refreshes it, and the
// matcher that answers which cached releases are still needed.
package tvcache

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/show"
)

// Record is one normalized cache row.
type Record struct {
	Name      string
	Season    int // -1 when the parse could not determine a season
	Episodes  []int
	IndexerID int64 // external show registry id; 0 means unusable
	URL       string
	Time      int64 // insertion timestamp, seconds since epoch

	Quality      show.Quality
	ReleaseGroup string
	Version      int // -1 means no explicit version marker

	Seeders  int
	Leechers int
	Size     int64
	PubDate  string
	Hash     string
}

// EncodeEpisodes serializes an episode list in the delimited |e1|e2| form.
func EncodeEpisodes(episodes []int) string {
	if len(episodes) == 0 {
		return "||"
	}
	var b strings.Builder
	b.WriteByte('|')
	for _, ep := range episodes {
		b.WriteString(strconv.Itoa(ep))
		b.WriteByte('|')
	}
	return b.String()
}

// DecodeEpisodes parses the delimited |e1|e2| form.
func DecodeEpisodes(encoded string) []int {
	var episodes []int
	for _, part := range strings.Split(encoded, "|") {
		if part == "" {
			continue
		}
		if v, err := strconv.Atoi(part); err == nil {
			episodes = append(episodes, v)
		}
	}
	return episodes
}

// The metric columns added after the base schema. Each is individually,
// idempotently migratable so stores created by older schema versions
// self-upgrade on open.
var metricColumns = []struct {
	name string
	ddl  string
}{
	{"release_group", "release_group TEXT"},
	{"version", "version NUMERIC DEFAULT -1"},
	{"seeders", "seeders NUMERIC DEFAULT -1"},
	{"leechers", "leechers NUMERIC DEFAULT -1"},
	{"size", "size NUMERIC DEFAULT -1"},
	{"pubdate", "pubdate TEXT"},
	{"hash", "hash TEXT"},
}

var tableNamePattern = regexp.MustCompile(`[^a-z0-9_]+`)

// Store is the durable, deduplicated result cache for one provider. Writes
// are owned exclusively by the provider's Updater; the Matcher reads only.
type Store struct {
	db       *sql.DB
	provider string
	table    string
	logger   zerolog.Logger
}

// NewStore creates the store for a provider and ensures its table exists and
// is at the current schema.
func NewStore(ctx context.Context, db *sql.DB, provider string, logger zerolog.Logger) (*Store, error) {
	table := "cache_" + tableNamePattern.ReplaceAllString(strings.ToLower(provider), "_")
	s := &Store{
		db:       db,
		provider: provider,
		table:    table,
		logger:   logger.With().Str("component", "tvcache").Str("provider", provider).Logger(),
	}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Provider returns the provider id this store caches for.
func (s *Store) Provider() string {
	return s.provider
}

// ensureTable creates the cache table if missing and adds any metric columns
// an older store lacks. A concurrent "table already exists" race is benign;
// any other creation error makes the store unusable and propagates.
func (s *Store) ensureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			name TEXT,
			season NUMERIC,
			episodes TEXT,
			indexerid NUMERIC,
			url TEXT UNIQUE,
			time NUMERIC,
			quality NUMERIC
		)`, s.table))
	if err != nil {
		if isAlreadyExists(err) {
			s.logger.Debug().Msg("cache table creation raced, continuing")
		} else {
			return fmt.Errorf("failed to create cache table %s: %w", s.table, err)
		}
	}

	existing, err := s.columns(ctx)
	if err != nil {
		return err
	}

	for _, col := range metricColumns {
		if existing[col.name] {
			continue
		}
		_, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, s.table, col.ddl))
		if err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("failed to add column %s to %s: %w", col.name, s.table, err)
		}
	}

	return nil
}

func (s *Store) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect cache table %s: %w", s.table, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}

// UpsertBatch writes all records in one transaction. Rows are keyed by url:
// re-seen urls replace the previous row, so the dedup invariant holds across
// refresh cycles.
func (s *Store) UpsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s
		 (name, season, episodes, indexerid, url, time, quality,
		  release_group, version, seeders, leechers, size, pubdate, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.Name, r.Season, EncodeEpisodes(r.Episodes), r.IndexerID, r.URL, r.Time,
			int(r.Quality), r.ReleaseGroup, r.Version, r.Seeders, r.Leechers, r.Size,
			r.PubDate, r.Hash)
		if err != nil {
			return fmt.Errorf("failed to insert cache row %q: %w", r.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache write: %w", err)
	}

	s.logger.Debug().Int("rows", len(records)).Msg("cache batch written")
	return nil
}

// Trim deletes rows older than the retention window. No-op when retention is
// zero or negative.
func (s *Store) Trim(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Unix() - int64(retentionDays)*86400
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE time < ?`, s.table), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to trim cache: %w", err)
	}

	removed, _ := res.RowsAffected()
	if removed > 0 {
		s.logger.Debug().Int64("removed", removed).Int("retentionDays", retentionDays).Msg("cache trimmed")
	}
	return removed, nil
}

// RemoveDuplicateURLs deletes any rows sharing a url beyond the first. The
// unique constraint makes this a no-op in normal operation; it exists to
// repair stores written by schema versions that lacked the constraint.
func (s *Store) RemoveDuplicateURLs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE rowid NOT IN (SELECT MIN(rowid) FROM %s GROUP BY url)`,
		s.table, s.table))
	if err != nil {
		return 0, fmt.Errorf("failed to dedup cache: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}

// Search returns rows for a show's season matching any of the given episode
// numbers, restricted to an allowed-quality set. One membership clause is
// emitted per episode; results are flattened into a single slice.
func (s *Store) Search(ctx context.Context, indexerID int64, season int, episodes []int, allowed show.QualitySet) ([]Record, error) {
	if len(episodes) == 0 {
		return nil, nil
	}

	var (
		clauses []string
		args    []interface{}
	)
	args = append(args, indexerID, season)
	for _, ep := range episodes {
		clauses = append(clauses, "episodes LIKE ?")
		args = append(args, "%|"+strconv.Itoa(ep)+"|%")
	}

	query := fmt.Sprintf(
		`SELECT name, season, episodes, indexerid, url, time, quality,
		        release_group, version, seeders, leechers, size, pubdate, hash
		 FROM %s WHERE indexerid = ? AND season = ? AND (%s)`,
		s.table, strings.Join(clauses, " OR "))

	if len(allowed) > 0 {
		placeholders := make([]string, len(allowed))
		for i, q := range allowed {
			placeholders[i] = "?"
			args = append(args, int(q))
		}
		query += fmt.Sprintf(" AND quality IN (%s)", strings.Join(placeholders, ", "))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search cache: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// All returns every row in the store, newest first.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT name, season, episodes, indexerid, url, time, quality,
		        release_group, version, seeders, leechers, size, pubdate, hash
		 FROM %s ORDER BY time DESC`, s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Stats summarizes the store for the status API.
type Stats struct {
	Provider string `json:"provider"`
	Rows     int64  `json:"rows"`
	Oldest   int64  `json:"oldest,omitempty"`
	Newest   int64  `json:"newest,omitempty"`
}

// Stats returns row count and age boundaries.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Provider: s.provider}
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(MIN(time), 0), COALESCE(MAX(time), 0) FROM %s`, s.table)).
		Scan(&stats.Rows, &stats.Oldest, &stats.Newest)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return stats, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			r            Record
			episodes     string
			quality      int
			group        sql.NullString
			version      sql.NullInt64
			seeders      sql.NullInt64
			leechers     sql.NullInt64
			size         sql.NullInt64
			pubdate, hsh sql.NullString
		)
		if err := rows.Scan(&r.Name, &r.Season, &episodes, &r.IndexerID, &r.URL, &r.Time,
			&quality, &group, &version, &seeders, &leechers, &size, &pubdate, &hsh); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		r.Episodes = DecodeEpisodes(episodes)
		r.Quality = show.Quality(quality)
		r.ReleaseGroup = group.String
		r.Version = -1
		if version.Valid {
			r.Version = int(version.Int64)
		}
		r.Seeders = -1
		if seeders.Valid {
			r.Seeders = int(seeders.Int64)
		}
		r.Leechers = -1
		if leechers.Valid {
			r.Leechers = int(leechers.Int64)
		}
		r.Size = -1
		if size.Valid {
			r.Size = size.Int64
		}
		r.PubDate = pubdate.String
		r.Hash = hsh.String
		records = append(records, r)
	}
	return records, rows.Err()
}
