package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/provider/defs"
	"github.com/fetcharr/fetcharr/internal/show"
	"github.com/fetcharr/fetcharr/internal/tvcache"
)

// cpuPresetDelays maps the configured cpu preset to the pause inserted
// between consecutive snatches in one item.
var cpuPresetDelays = map[string]time.Duration{
	"high":   50 * time.Millisecond,
	"normal": 100 * time.Millisecond,
	"low":    200 * time.Millisecond,
}

// DelayForPreset returns the inter-snatch delay for a cpu preset, falling
// back to the normal preset for unknown values.
func DelayForPreset(preset string) time.Duration {
	if d, ok := cpuPresetDelays[strings.ToLower(preset)]; ok {
		return d
	}
	return cpuPresetDelays["normal"]
}

// Provider bundles one provider's cache machinery.
type Provider struct {
	Def     *defs.Definition
	Store   *tvcache.Store
	Updater *tvcache.Updater
	Matcher *tvcache.Matcher
}

// Snatcher submits an accepted candidate for download.
type Snatcher interface {
	Snatch(ctx context.Context, c *tvcache.Candidate) error
}

// Searcher runs one search pass across all enabled providers: refresh each
// provider's cache, collect candidates per episode, pick the best one and
// snatch it. Provider failures skip that provider only; the pass continues
// with the rest.
type Searcher struct {
	providers []*Provider
	snatcher  Snatcher
	delay     time.Duration
	logger    zerolog.Logger
}

// NewSearcher creates a Searcher. cpuPreset controls the pause between
// consecutive snatches.
func NewSearcher(providers []*Provider, snatcher Snatcher, cpuPreset string, logger zerolog.Logger) *Searcher {
	return &Searcher{
		providers: providers,
		snatcher:  snatcher,
		delay:     DelayForPreset(cpuPreset),
		logger:    logger.With().Str("component", "searcher").Logger(),
	}
}

type searchOptions struct {
	forced         bool
	allowDowngrade bool
	forceRefresh   bool
	backlogOnly    bool
}

// collect refreshes providers and gathers candidates per episode.
func (s *Searcher) collect(ctx context.Context, episodes []*show.Episode, opts searchOptions) (map[*show.Episode][]*tvcache.Candidate, error) {
	found := make(map[*show.Episode][]*tvcache.Candidate)

	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.Def.Enabled {
			continue
		}
		if opts.backlogOnly && !p.Def.SupportsBacklog {
			continue
		}

		if err := p.Updater.Refresh(ctx, opts.forceRefresh); err != nil {
			// Provider-level: already logged and recorded by the updater.
			continue
		}

		needed, err := p.Matcher.FindNeeded(ctx, episodes, opts.forced, opts.allowDowngrade)
		if err != nil {
			return nil, fmt.Errorf("matching against %s failed: %w", p.Def.Name, err)
		}
		for ep, candidates := range needed {
			found[ep] = append(found[ep], candidates...)
		}
	}

	return found, nil
}

// run performs a full search-and-snatch pass over the episode segment and
// returns the number of snatched releases.
func (s *Searcher) run(ctx context.Context, episodes []*show.Episode, opts searchOptions) (int, error) {
	found, err := s.collect(ctx, episodes, opts)
	if err != nil {
		return 0, err
	}

	// Pick the best candidate per episode, then dedupe by url so a
	// multi-episode release is snatched once.
	picked := make(map[string]*tvcache.Candidate)
	for _, candidates := range found {
		best := pickBest(candidates)
		if best != nil {
			picked[best.URL] = best
		}
	}

	snatched := 0
	for _, c := range picked {
		if err := ctx.Err(); err != nil {
			return snatched, err
		}

		// Re-check the want-policy: an earlier snatch in this same pass may
		// already have covered these episodes.
		still := false
		for _, ep := range c.Episodes {
			if c.Show.WantEpisode(ep.Season, ep.Episode, c.Quality, opts.forced, opts.allowDowngrade) {
				still = true
				break
			}
		}
		if !still {
			continue
		}

		if err := s.snatcher.Snatch(ctx, c); err != nil {
			// Item-level: one failed snatch does not abort the pass.
			s.logger.Warn().Err(err).Str("name", c.Name).Msg("snatch failed")
			continue
		}
		snatched++

		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return snatched, ctx.Err()
		}
	}

	return snatched, nil
}

// pickBest orders candidates by quality, then seeders, then recency.
func pickBest(candidates []*tvcache.Candidate) *tvcache.Candidate {
	if len(candidates) == 0 {
		return nil
	}
	sorted := append([]*tvcache.Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Quality != sorted[j].Quality {
			return sorted[i].Quality > sorted[j].Quality
		}
		return sorted[i].Seeders > sorted[j].Seeders
	})
	return sorted[0]
}

func segmentKey(showID int64, episodes []*show.Episode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", showID)
	numbers := make([]string, 0, len(episodes))
	for _, ep := range episodes {
		numbers = append(numbers, fmt.Sprintf("%dx%d", ep.Season, ep.Episode))
	}
	sort.Strings(numbers)
	for _, n := range numbers {
		b.WriteString(":")
		b.WriteString(n)
	}
	return b.String()
}

// DailySearchItem searches for a show's recently aired episodes.
type DailySearchItem struct {
	Searcher *Searcher
	Show     *show.Show
	Episodes []*show.Episode
}

func (i *DailySearchItem) Name() string {
	return fmt.Sprintf("daily search: %s", i.Show.Name)
}

func (i *DailySearchItem) Priority() Priority { return PriorityDaily }

func (i *DailySearchItem) DedupKey() string {
	return "daily:" + segmentKey(i.Show.ID, i.Episodes)
}

func (i *DailySearchItem) Run(ctx context.Context) error {
	_, err := i.Searcher.run(ctx, i.Episodes, searchOptions{})
	return err
}

// BacklogQueueItem searches one show's wanted back-catalog segment. Limited
// runs come from the frequent limited cycle and only cover recent episodes;
// full runs cover everything wanted.
type BacklogQueueItem struct {
	Searcher *Searcher
	Show     *show.Show
	Episodes []*show.Episode
	Limited  bool
}

func (i *BacklogQueueItem) Name() string {
	kind := "full"
	if i.Limited {
		kind = "limited"
	}
	return fmt.Sprintf("%s backlog: %s", kind, i.Show.Name)
}

func (i *BacklogQueueItem) Priority() Priority { return PriorityBacklog }

// DedupKey is per show: a show already queued for backlog is not queued
// again, whatever the segment.
func (i *BacklogQueueItem) DedupKey() string {
	return fmt.Sprintf("backlog:%d", i.Show.ID)
}

func (i *BacklogQueueItem) Run(ctx context.Context) error {
	_, err := i.Searcher.run(ctx, i.Episodes, searchOptions{backlogOnly: true})
	return err
}

// ForcedSearchItem is a user-initiated search for an episode segment. It
// bypasses the refresh throttle and relaxes status checks.
type ForcedSearchItem struct {
	Searcher       *Searcher
	Show           *show.Show
	Episodes       []*show.Episode
	AllowDowngrade bool
}

func (i *ForcedSearchItem) Name() string {
	return fmt.Sprintf("forced search: %s", i.Show.Name)
}

func (i *ForcedSearchItem) Priority() Priority { return PriorityForced }

func (i *ForcedSearchItem) DedupKey() string {
	return "forced:" + segmentKey(i.Show.ID, i.Episodes)
}

func (i *ForcedSearchItem) Run(ctx context.Context) error {
	_, err := i.Searcher.run(ctx, i.Episodes, searchOptions{
		forced:         true,
		allowDowngrade: i.AllowDowngrade,
		forceRefresh:   true,
	})
	return err
}

// ManualSearchItem collects candidates for an episode segment without
// snatching anything; the user picks from the results.
type ManualSearchItem struct {
	Searcher *Searcher
	Show     *show.Show
	Episodes []*show.Episode

	done    chan struct{}
	mu      sync.Mutex
	results []*tvcache.Candidate
}

// NewManualSearchItem creates a manual search over an episode segment.
func NewManualSearchItem(searcher *Searcher, s *show.Show, episodes []*show.Episode) *ManualSearchItem {
	return &ManualSearchItem{
		Searcher: searcher,
		Show:     s,
		Episodes: episodes,
		done:     make(chan struct{}),
	}
}

func (i *ManualSearchItem) Name() string {
	return fmt.Sprintf("manual search: %s", i.Show.Name)
}

func (i *ManualSearchItem) Priority() Priority { return PriorityForced }

func (i *ManualSearchItem) DedupKey() string {
	return "manual:" + segmentKey(i.Show.ID, i.Episodes)
}

func (i *ManualSearchItem) Run(ctx context.Context) error {
	if i.done != nil {
		defer close(i.done)
	}
	found, err := i.Searcher.collect(ctx, i.Episodes, searchOptions{
		forced:         true,
		allowDowngrade: true,
		forceRefresh:   true,
	})
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var results []*tvcache.Candidate
	for _, candidates := range found {
		for _, c := range candidates {
			if seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			results = append(results, c)
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Quality != results[b].Quality {
			return results[a].Quality > results[b].Quality
		}
		return results[a].Seeders > results[b].Seeders
	})

	i.mu.Lock()
	i.results = results
	i.mu.Unlock()
	return nil
}

// Done is closed when the item's run finishes, whatever the outcome.
func (i *ManualSearchItem) Done() <-chan struct{} {
	return i.done
}

// Results returns the candidates collected by the last run.
func (i *ManualSearchItem) Results() []*tvcache.Candidate {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*tvcache.Candidate(nil), i.results...)
}

// FailedQueueItem retries episodes whose previous snatch failed: they are
// reset to Wanted and searched again with relaxed status checks.
type FailedQueueItem struct {
	Searcher *Searcher
	Registry *show.Registry
	Show     *show.Show
	Episodes []*show.Episode
}

func (i *FailedQueueItem) Name() string {
	return fmt.Sprintf("failed retry: %s", i.Show.Name)
}

func (i *FailedQueueItem) Priority() Priority { return PriorityFailed }

func (i *FailedQueueItem) DedupKey() string {
	return "failed:" + segmentKey(i.Show.ID, i.Episodes)
}

func (i *FailedQueueItem) Run(ctx context.Context) error {
	for _, ep := range i.Episodes {
		ep.SetStatus(show.StatusWanted, show.QualityUnknown)
		if err := i.Registry.SaveEpisodeStatus(ctx, ep); err != nil {
			return err
		}
	}
	_, err := i.Searcher.run(ctx, i.Episodes, searchOptions{forced: true, forceRefresh: true})
	return err
}
