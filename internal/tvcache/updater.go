package tvcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/provider"
	"github.com/fetcharr/fetcharr/internal/provider/status"
	"github.com/fetcharr/fetcharr/internal/provider/types"
	"github.com/fetcharr/fetcharr/internal/release"
)

// Broadcaster pushes cache lifecycle events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// TrimConfig controls age-based cache trimming.
type TrimConfig struct {
	Enabled bool
	MaxAge  int // days
}

// Updater runs one provider's refresh cycle: throttled fetch, early stop on
// previously seen items, per-item parse isolation and a single mass-write.
//
// The early-stop heuristic assumes the feed is ordered newest-first. For an
// unordered feed it can under-ingest older-but-unseen items; the tradeoff is
// accepted to bound per-cycle parsing cost on sources that return unbounded
// history.
type Updater struct {
	store   *Store
	adapter provider.Adapter
	parser  release.Parser
	status  *status.Store
	trim    TrimConfig
	hub     Broadcaster
	logger  zerolog.Logger

	// recentResults is mutated only by this updater's own cycle.
	mu            sync.Mutex
	recentResults []string
}

// NewUpdater creates an Updater for one provider.
func NewUpdater(store *Store, adapter provider.Adapter, parser release.Parser, statusStore *status.Store, trim TrimConfig, hub Broadcaster, logger zerolog.Logger) *Updater {
	return &Updater{
		store:   store,
		adapter: adapter,
		parser:  parser,
		status:  statusStore,
		trim:    trim,
		hub:     hub,
		logger:  logger.With().Str("component", "cache-updater").Str("provider", store.Provider()).Logger(),
	}
}

// ShouldUpdate reports whether enough time has passed since the last
// successful refresh. This is the primary defense against hammering
// rate-limited or slow sources.
func (u *Updater) ShouldUpdate(ctx context.Context) (bool, error) {
	last, err := u.status.LastUpdate(ctx, u.store.Provider())
	if err != nil {
		return false, err
	}
	minTime := time.Duration(u.adapter.Definition().MinTimeMinutes) * time.Minute
	return time.Since(last) >= minTime, nil
}

// Refresh runs one cache refresh cycle. force bypasses the minTime throttle.
// Provider-level failures abort this cycle only; they are recorded for
// visibility and never corrupt cached state.
func (u *Updater) Refresh(ctx context.Context, force bool) error {
	if !force {
		ok, err := u.ShouldUpdate(ctx)
		if err != nil {
			return err
		}
		if !ok {
			u.logger.Debug().Msg("cache refresh throttled, skipping")
			return nil
		}
	}

	items, err := u.adapter.Search(ctx, types.SearchStrings{types.ModeRSS: {""}})
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrAuthFailed):
			u.logger.Warn().Err(err).Msg("provider authentication failed, aborting refresh")
			u.recordFailure(ctx, status.FailureAuth)
		case errors.Is(err, provider.ErrNoData):
			u.logger.Debug().Msg("provider returned no data")
			return nil
		default:
			u.logger.Warn().Err(err).Msg("provider refresh failed")
			u.recordFailure(ctx, status.FailureNetwork)
		}
		return err
	}

	now := time.Now()
	if u.trim.Enabled {
		if _, err := u.store.Trim(ctx, u.trim.MaxAge); err != nil {
			u.logger.Warn().Err(err).Msg("cache trim failed")
		}
	}
	if err := u.status.SetLastUpdate(ctx, u.store.Provider(), now); err != nil {
		u.logger.Warn().Err(err).Msg("failed to record last update")
	}

	fresh := u.stopAtSeen(items)
	records := u.parseItems(fresh, now)

	if err := u.store.UpsertBatch(ctx, records); err != nil {
		return err
	}

	u.rememberRecent(items)

	u.logger.Info().
		Int("fetched", len(items)).
		Int("fresh", len(fresh)).
		Int("cached", len(records)).
		Msg("cache refresh completed")

	if u.hub != nil {
		u.hub.Broadcast("cache:refreshed", map[string]interface{}{
			"provider": u.store.Provider(),
			"fetched":  len(items),
			"cached":   len(records),
		})
	}

	return nil
}

// stopAtSeen walks the fetched items newest-first and stops once enough
// previously seen urls have appeared: everything after is assumed cached.
func (u *Updater) stopAtSeen(items []types.RawItem) []types.RawItem {
	u.mu.Lock()
	recent := make(map[string]bool, len(u.recentResults))
	for _, url := range u.recentResults {
		recent[url] = true
	}
	u.mu.Unlock()

	stopAt := u.adapter.Definition().StopAt

	var fresh []types.RawItem
	seen := 0
	for _, item := range items {
		if recent[item.URL] {
			seen++
			if seen >= stopAt {
				u.logger.Debug().Int("seen", seen).Msg("early stop: reached previously seen items")
				break
			}
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh
}

// parseItems parses each retained item in isolation: a malformed release
// name never stops ingestion of the other items in the same response.
func (u *Updater) parseItems(items []types.RawItem, now time.Time) []Record {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		parsed, err := u.parser.Parse(item.Title)
		if err != nil {
			// Routine: bad release names are expected input.
			u.logger.Debug().Str("title", item.Title).Err(err).Msg("skipping unparseable item")
			continue
		}
		if parsed.Show == nil || parsed.Show.IndexerID == 0 {
			u.logger.Debug().Str("title", item.Title).Msg("skipping item without resolvable show")
			continue
		}

		records = append(records, Record{
			Name:         item.Title,
			Season:       parsed.Season,
			Episodes:     parsed.Episodes,
			IndexerID:    parsed.Show.IndexerID,
			URL:          item.URL,
			Time:         now.Unix(),
			Quality:      parsed.Quality,
			ReleaseGroup: parsed.ReleaseGroup,
			Version:      parsed.Version,
			Seeders:      item.Seeders,
			Leechers:     item.Leechers,
			Size:         item.Size,
			PubDate:      item.PubDate,
			Hash:         item.Hash,
		})
	}
	return records
}

// rememberRecent keeps the newest slice of this cycle's fetched urls for the
// next cycle's early-stop check.
func (u *Updater) rememberRecent(items []types.RawItem) {
	max := u.adapter.Definition().MaxRecentItems
	if len(items) > max {
		items = items[:max]
	}
	urls := make([]string, 0, len(items))
	for _, item := range items {
		urls = append(urls, item.URL)
	}

	u.mu.Lock()
	u.recentResults = urls
	u.mu.Unlock()
}

// RecentResults returns the urls retained from the last successful cycle.
func (u *Updater) RecentResults() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.recentResults...)
}

func (u *Updater) recordFailure(ctx context.Context, kind status.FailureKind) {
	if err := u.status.RecordFailure(ctx, u.store.Provider(), kind, time.Now()); err != nil {
		u.logger.Warn().Err(err).Msg("failed to record provider failure")
	}
}
