package show

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var nonWordPattern = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeTitle lowercases a show title and strips punctuation and articles
// so registry lookups tolerate release-name formatting differences.
func NormalizeTitle(title string) string {
	normalized := strings.ToLower(strings.TrimSpace(title))
	normalized = nonWordPattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(normalized, article) {
			normalized = normalized[len(article):]
			break
		}
	}
	return strings.ReplaceAll(normalized, " ", "")
}

// Registry is the in-memory view of tracked shows, backed by the database.
// It replaces the process-wide show list: every consumer receives it
// explicitly via its constructor.
type Registry struct {
	db     *sql.DB
	logger zerolog.Logger

	mu          sync.RWMutex
	byID        map[int64]*Show
	byIndexerID map[int64]*Show
	byName      map[string]*Show
}

// NewRegistry creates an empty registry. Call Load to populate it.
func NewRegistry(db *sql.DB, logger zerolog.Logger) *Registry {
	return &Registry{
		db:          db,
		logger:      logger.With().Str("component", "show-registry").Logger(),
		byID:        make(map[int64]*Show),
		byIndexerID: make(map[int64]*Show),
		byName:      make(map[string]*Show),
	}
}

// Load reads all shows and episodes from the database.
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, indexer_id, name, anime, paused, allowed_qualities, preferred_qualities FROM shows`)
	if err != nil {
		return fmt.Errorf("failed to load shows: %w", err)
	}
	defer rows.Close()

	var shows []*Show
	for rows.Next() {
		var (
			s                  Show
			anime, paused      int
			allowed, preferred string
		)
		if err := rows.Scan(&s.ID, &s.IndexerID, &s.Name, &anime, &paused, &allowed, &preferred); err != nil {
			return fmt.Errorf("failed to scan show: %w", err)
		}
		s.Anime = anime != 0
		s.Paused = paused != 0
		s.Allowed = DecodeQualitySet(allowed)
		s.Preferred = DecodeQualitySet(preferred)
		shows = append(shows, &s)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, s := range shows {
		if err := r.loadEpisodes(ctx, s); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[int64]*Show, len(shows))
	r.byIndexerID = make(map[int64]*Show, len(shows))
	r.byName = make(map[string]*Show, len(shows))
	for _, s := range shows {
		r.byID[s.ID] = s
		r.byIndexerID[s.IndexerID] = s
		r.byName[NormalizeTitle(s.Name)] = s
	}

	r.logger.Info().Int("shows", len(shows)).Msg("show registry loaded")
	return nil
}

func (r *Registry) loadEpisodes(ctx context.Context, s *Show) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, season, episode, airdate, status, quality FROM episodes WHERE show_id = ?`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load episodes for show %d: %w", s.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id              int64
			season, episode int
			airdate         int64
			status, quality int
		)
		if err := rows.Scan(&id, &season, &episode, &airdate, &status, &quality); err != nil {
			return fmt.Errorf("failed to scan episode: %w", err)
		}
		var airDate time.Time
		if airdate > 0 {
			airDate = time.Unix(airdate, 0).UTC()
		}
		s.addEpisode(NewEpisode(id, s.ID, season, episode, airDate, Status(status), Quality(quality)))
	}
	return rows.Err()
}

// FindByID returns the tracked show with the given internal id, or nil.
func (r *Registry) FindByID(id int64) *Show {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// FindByIndexerID returns the tracked show with the given external id, or nil.
func (r *Registry) FindByIndexerID(indexerID int64) *Show {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byIndexerID[indexerID]
}

// FindByName returns the tracked show whose normalized name matches, or nil.
func (r *Registry) FindByName(name string) *Show {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[NormalizeTitle(name)]
}

// All returns all tracked shows.
func (r *Registry) All() []*Show {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shows := make([]*Show, 0, len(r.byIndexerID))
	for _, s := range r.byIndexerID {
		shows = append(shows, s)
	}
	return shows
}

// AddShow inserts a show and its episodes into the database and registry.
func (r *Registry) AddShow(ctx context.Context, s *Show) error {
	anime, paused := 0, 0
	if s.Anime {
		anime = 1
	}
	if s.Paused {
		paused = 1
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO shows (indexer_id, name, anime, paused, allowed_qualities, preferred_qualities)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.IndexerID, s.Name, anime, paused, s.Allowed.Encode(), s.Preferred.Encode())
	if err != nil {
		return fmt.Errorf("failed to insert show: %w", err)
	}
	s.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.byID[s.ID] = s
	r.byIndexerID[s.IndexerID] = s
	r.byName[NormalizeTitle(s.Name)] = s
	r.mu.Unlock()

	return nil
}

// AddEpisode inserts an episode for a tracked show.
func (r *Registry) AddEpisode(ctx context.Context, s *Show, season, episode int, airDate time.Time, status Status) (*Episode, error) {
	var airdate int64
	if !airDate.IsZero() {
		airdate = airDate.Unix()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO episodes (show_id, season, episode, airdate, status, quality) VALUES (?, ?, ?, ?, ?, 0)`,
		s.ID, season, episode, airdate, int(status))
	if err != nil {
		return nil, fmt.Errorf("failed to insert episode: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	ep := NewEpisode(id, s.ID, season, episode, airDate, status, QualityUnknown)
	s.addEpisode(ep)
	return ep, nil
}

// SaveEpisodeStatus persists an episode's status after SetStatus.
func (r *Registry) SaveEpisodeStatus(ctx context.Context, ep *Episode) error {
	status, quality := ep.Status()
	_, err := r.db.ExecContext(ctx,
		`UPDATE episodes SET status = ?, quality = ? WHERE id = ?`,
		int(status), int(quality), ep.ID)
	if err != nil {
		return fmt.Errorf("failed to update episode %d: %w", ep.ID, err)
	}
	return nil
}
