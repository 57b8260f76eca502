package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fetcharr/fetcharr/internal/provider"
	"github.com/fetcharr/fetcharr/internal/provider/defs"
	"github.com/fetcharr/fetcharr/internal/provider/status"
	"github.com/fetcharr/fetcharr/internal/provider/types"
	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/show"
	"github.com/fetcharr/fetcharr/internal/testutil"
	"github.com/fetcharr/fetcharr/internal/tvcache"
)

// feedAdapter serves a canned feed.
type feedAdapter struct {
	def   *defs.Definition
	items []types.RawItem
	err   error
}

func (a *feedAdapter) Definition() *defs.Definition { return a.def }

func (a *feedAdapter) Login(ctx context.Context) error { return nil }

func (a *feedAdapter) Search(ctx context.Context, _ types.SearchStrings) ([]types.RawItem, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.items, nil
}

// captureSnatcher records snatched candidates and mirrors the real service's
// status transition so the in-pass want re-check sees it.
type captureSnatcher struct {
	mu       sync.Mutex
	snatched []*tvcache.Candidate
}

func (s *captureSnatcher) Snatch(ctx context.Context, c *tvcache.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snatched = append(s.snatched, c)
	for _, ep := range c.Episodes {
		ep.SetStatus(show.StatusSnatched, c.Quality)
	}
	return nil
}

func searchDef(id string, backlog bool) *defs.Definition {
	def := &defs.Definition{
		ID:              id,
		Name:            id,
		Protocol:        "torrent",
		Enabled:         true,
		SupportsBacklog: backlog,
	}
	def.Normalize()
	return def
}

func newSearchProvider(t *testing.T, tdb *testutil.TestDB, registry *show.Registry, def *defs.Definition, feed []types.RawItem) *Provider {
	t.Helper()
	ctx := context.Background()

	store, err := tvcache.NewStore(ctx, tdb.Conn, def.ID, tdb.Logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	statusStore := status.NewStore(tdb.Conn)
	parser := release.NewNameParser(registry)
	adapter := &feedAdapter{def: def, items: feed}

	return &Provider{
		Def:     def,
		Store:   store,
		Updater: tvcache.NewUpdater(store, adapter, parser, statusStore, tvcache.TrimConfig{}, nil, tdb.Logger),
		Matcher: tvcache.NewMatcher(store, def, registry, &release.WordFilter{}, statusStore, tdb.Logger),
	}
}

func TestSearcherSnatchesBestCandidate(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	registry := show.NewRegistry(tdb.Conn, tdb.Logger)
	sh := &show.Show{
		IndexerID: 100,
		Name:      "Some Show",
		Allowed:   show.QualitySet{show.QualityHDTV, show.QualityFullHDWebDL},
	}
	if err := registry.AddShow(ctx, sh); err != nil {
		t.Fatalf("AddShow: %v", err)
	}
	ep, err := registry.AddEpisode(ctx, sh, 1, 1, time.Now().AddDate(0, 0, -1), show.StatusWanted)
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}

	feed := []types.RawItem{
		types.NewRawItem("Some.Show.S01E01.720p.HDTV-GRP", "http://x/720"),
		types.NewRawItem("Some.Show.S01E01.1080p.WEB-DL-GRP", "http://x/1080"),
	}
	p := newSearchProvider(t, tdb, registry, searchDef("feedprov", true), feed)

	snatcher := &captureSnatcher{}
	searcher := NewSearcher([]*Provider{p}, snatcher, "high", testutil.NopLogger())

	snatched, err := searcher.run(ctx, []*show.Episode{ep}, searchOptions{forceRefresh: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snatched != 1 {
		t.Fatalf("snatched %d releases, want 1", snatched)
	}
	if snatcher.snatched[0].URL != "http://x/1080" {
		t.Errorf("snatched %q, want the higher quality release", snatcher.snatched[0].URL)
	}
	if st, q := ep.Status(); st != show.StatusSnatched || q != show.QualityFullHDWebDL {
		t.Errorf("episode state = (%s, %s) after snatch", st, q)
	}
}

func TestSearcherSkipsProvidersWithoutBacklog(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	registry := show.NewRegistry(tdb.Conn, tdb.Logger)
	sh := &show.Show{IndexerID: 100, Name: "Some Show", Allowed: show.QualitySet{show.QualityHDTV}}
	if err := registry.AddShow(ctx, sh); err != nil {
		t.Fatalf("AddShow: %v", err)
	}
	ep, err := registry.AddEpisode(ctx, sh, 1, 1, time.Now().AddDate(0, 0, -10), show.StatusWanted)
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}

	feed := []types.RawItem{types.NewRawItem("Some.Show.S01E01.720p.HDTV-GRP", "http://x/1")}
	rssOnly := newSearchProvider(t, tdb, registry, searchDef("rssonly", false), feed)

	snatcher := &captureSnatcher{}
	searcher := NewSearcher([]*Provider{rssOnly}, snatcher, "high", testutil.NopLogger())

	snatched, err := searcher.run(ctx, []*show.Episode{ep}, searchOptions{backlogOnly: true, forceRefresh: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snatched != 0 {
		t.Errorf("backlog pass used a provider without backlog support")
	}
}

func TestSearcherContinuesPastFailingProvider(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	registry := show.NewRegistry(tdb.Conn, tdb.Logger)
	sh := &show.Show{IndexerID: 100, Name: "Some Show", Allowed: show.QualitySet{show.QualityHDTV}}
	if err := registry.AddShow(ctx, sh); err != nil {
		t.Fatalf("AddShow: %v", err)
	}
	ep, err := registry.AddEpisode(ctx, sh, 1, 1, time.Now().AddDate(0, 0, -1), show.StatusWanted)
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}

	broken := newSearchProvider(t, tdb, registry, searchDef("broken", true), nil)
	broken.Updater = tvcache.NewUpdater(broken.Store,
		&feedAdapter{def: broken.Def, err: provider.ErrAuthFailed},
		release.NewNameParser(registry), status.NewStore(tdb.Conn),
		tvcache.TrimConfig{}, nil, tdb.Logger)

	healthy := newSearchProvider(t, tdb, registry, searchDef("healthy", true),
		[]types.RawItem{types.NewRawItem("Some.Show.S01E01.720p.HDTV-GRP", "http://x/1")})

	snatcher := &captureSnatcher{}
	searcher := NewSearcher([]*Provider{broken, healthy}, snatcher, "high", testutil.NopLogger())

	snatched, err := searcher.run(ctx, []*show.Episode{ep}, searchOptions{forceRefresh: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snatched != 1 {
		t.Errorf("snatched %d, want 1 from the healthy provider", snatched)
	}
}

func TestPickBest(t *testing.T) {
	hd := &tvcache.Candidate{Name: "hd", Quality: show.QualityHDTV, Seeders: 50}
	fullhd := &tvcache.Candidate{Name: "fullhd", Quality: show.QualityFullHDWebDL, Seeders: 2}
	seeded := &tvcache.Candidate{Name: "seeded", Quality: show.QualityHDTV, Seeders: 80}

	if got := pickBest([]*tvcache.Candidate{hd, fullhd, seeded}); got != fullhd {
		t.Errorf("pickBest chose %q, want quality to dominate", got.Name)
	}
	if got := pickBest([]*tvcache.Candidate{hd, seeded}); got != seeded {
		t.Errorf("pickBest chose %q, want seeders to break quality ties", got.Name)
	}
	if got := pickBest(nil); got != nil {
		t.Errorf("pickBest(nil) = %v", got)
	}
}

func TestDelayForPreset(t *testing.T) {
	if DelayForPreset("high") >= DelayForPreset("low") {
		t.Error("high preset should pause less than low")
	}
	if DelayForPreset("bogus") != DelayForPreset("normal") {
		t.Error("unknown preset should fall back to normal")
	}
}
