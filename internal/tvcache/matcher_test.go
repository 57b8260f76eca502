package tvcache

import (
	"context"
	"testing"
	"time"

	"github.com/fetcharr/fetcharr/internal/provider/defs"
	"github.com/fetcharr/fetcharr/internal/provider/status"
	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/show"
	"github.com/fetcharr/fetcharr/internal/testutil"
)

type matcherFixture struct {
	tdb      *testutil.TestDB
	registry *show.Registry
	store    *Store
	status   *status.Store
}

func newMatcherFixture(t *testing.T) *matcherFixture {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	registry := show.NewRegistry(tdb.Conn, tdb.Logger)

	store, err := NewStore(context.Background(), tdb.Conn, "matchprov", tdb.Logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	return &matcherFixture{
		tdb:      tdb,
		registry: registry,
		store:    store,
		status:   status.NewStore(tdb.Conn),
	}
}

func (f *matcherFixture) addShow(t *testing.T, indexerID int64, name string, anime bool) *show.Show {
	t.Helper()
	sh := &show.Show{
		IndexerID: indexerID,
		Name:      name,
		Anime:     anime,
		Allowed:   show.QualitySet{show.QualitySDTV, show.QualityHDTV},
		Preferred: show.QualitySet{show.QualityFullHDWebDL},
	}
	if err := f.registry.AddShow(context.Background(), sh); err != nil {
		t.Fatalf("AddShow: %v", err)
	}
	return sh
}

func (f *matcherFixture) addEpisode(t *testing.T, sh *show.Show, season, episode int, st show.Status) *show.Episode {
	t.Helper()
	ep, err := f.registry.AddEpisode(context.Background(), sh, season, episode,
		time.Now().AddDate(0, 0, -2), st)
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}
	return ep
}

func (f *matcherFixture) matcher(t *testing.T, def *defs.Definition) *Matcher {
	t.Helper()
	return NewMatcher(f.store, def, f.registry, &release.WordFilter{}, f.status, f.tdb.Logger)
}

func plainDef() *defs.Definition {
	def := &defs.Definition{ID: "matchprov", Name: "matchprov", Protocol: "torrent", Enabled: true}
	def.Normalize()
	return def
}

func (f *matcherFixture) seed(t *testing.T, records ...Record) {
	t.Helper()
	now := time.Now().Unix()
	for i := range records {
		if records[i].Time == 0 {
			records[i].Time = now
		}
	}
	if err := f.store.UpsertBatch(context.Background(), records); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
}

func TestMatcherFindsWantedEpisodes(t *testing.T) {
	f := newMatcherFixture(t)
	sh := f.addShow(t, 100, "Some Show", false)
	ep := f.addEpisode(t, sh, 1, 1, show.StatusWanted)

	f.seed(t,
		Record{Name: "Some.Show.S01E01.720p.HDTV-GRP", Season: 1, Episodes: []int{1},
			IndexerID: 100, URL: "http://x/1", Quality: show.QualityHDTV},
		Record{Name: "Some.Show.S01E02.720p.HDTV-GRP", Season: 1, Episodes: []int{2},
			IndexerID: 100, URL: "http://x/2", Quality: show.QualityHDTV},
	)

	m := f.matcher(t, plainDef())
	needed, err := m.FindNeeded(context.Background(), []*show.Episode{ep}, false, false)
	if err != nil {
		t.Fatalf("FindNeeded: %v", err)
	}

	candidates := needed[ep]
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].URL != "http://x/1" {
		t.Errorf("candidate url = %q", candidates[0].URL)
	}
	if candidates[0].Show != sh {
		t.Errorf("candidate not linked to owning show")
	}
}

func TestMatcherExcludesAmbiguousRows(t *testing.T) {
	f := newMatcherFixture(t)
	sh := f.addShow(t, 100, "Some Show", false)
	ep := f.addEpisode(t, sh, 1, 1, show.StatusWanted)

	// Ambiguous season and empty episode list rows are cached but never
	// matched. Seeded with season 1 so the season filter alone cannot be
	// what excludes the empty-episodes row.
	f.seed(t,
		Record{Name: "Some.Show.2024.01.02.720p.HDTV", Season: -1, Episodes: nil,
			IndexerID: 100, URL: "http://x/amb", Quality: show.QualityHDTV},
		Record{Name: "Some.Show.S01.720p.HDTV", Season: 1, Episodes: nil,
			IndexerID: 100, URL: "http://x/empty", Quality: show.QualityHDTV},
	)

	m := f.matcher(t, plainDef())
	needed, err := m.FindNeeded(context.Background(), []*show.Episode{ep}, false, false)
	if err != nil {
		t.Fatalf("FindNeeded: %v", err)
	}
	if len(needed) != 0 {
		t.Errorf("ambiguous rows produced candidates: %v", needed)
	}
}

func TestMatcherAnimeScoping(t *testing.T) {
	f := newMatcherFixture(t)
	standard := f.addShow(t, 100, "Standard Show", false)
	anime := f.addShow(t, 200, "Anime Show", true)
	stdEp := f.addEpisode(t, standard, 1, 1, show.StatusWanted)
	animeEp := f.addEpisode(t, anime, 1, 1, show.StatusWanted)

	f.seed(t,
		Record{Name: "Standard.Show.S01E01.720p.HDTV", Season: 1, Episodes: []int{1},
			IndexerID: 100, URL: "http://x/std", Quality: show.QualityHDTV},
		Record{Name: "Anime.Show.S01E01.720p.HDTV", Season: 1, Episodes: []int{1},
			IndexerID: 200, URL: "http://x/anime", Quality: show.QualityHDTV},
	)

	episodes := []*show.Episode{stdEp, animeEp}

	animeOnly := plainDef()
	animeOnly.AnimeOnly = true
	needed, err := f.matcher(t, animeOnly).FindNeeded(context.Background(), episodes, false, false)
	if err != nil {
		t.Fatalf("FindNeeded: %v", err)
	}
	if len(needed[stdEp]) != 0 {
		t.Errorf("anime-only provider matched a standard show")
	}
	if len(needed[animeEp]) != 1 {
		t.Errorf("anime-only provider missed the anime show")
	}

	standardOnly := plainDef()
	standardOnly.StandardOnly = true
	needed, err = f.matcher(t, standardOnly).FindNeeded(context.Background(), episodes, false, false)
	if err != nil {
		t.Fatalf("FindNeeded: %v", err)
	}
	if len(needed[animeEp]) != 0 {
		t.Errorf("standard-only provider matched an anime show")
	}
	if len(needed[stdEp]) != 1 {
		t.Errorf("standard-only provider missed the standard show")
	}
}

func TestMatcherDelegatesWantPolicy(t *testing.T) {
	f := newMatcherFixture(t)
	sh := f.addShow(t, 100, "Some Show", false)
	ep := f.addEpisode(t, sh, 1, 1, show.StatusWanted)
	ep.SetStatus(show.StatusDownloaded, show.QualityHDTV)

	f.seed(t,
		// Upgrade toward a preferred quality is accepted.
		Record{Name: "upgrade", Season: 1, Episodes: []int{1},
			IndexerID: 100, URL: "http://x/up", Quality: show.QualityFullHDWebDL},
		// Same quality again is not.
		Record{Name: "same", Season: 1, Episodes: []int{1},
			IndexerID: 100, URL: "http://x/same", Quality: show.QualityHDTV},
	)

	m := f.matcher(t, plainDef())
	needed, err := m.FindNeeded(context.Background(), []*show.Episode{ep}, false, false)
	if err != nil {
		t.Fatalf("FindNeeded: %v", err)
	}

	candidates := needed[ep]
	if len(candidates) != 1 || candidates[0].Name != "upgrade" {
		t.Fatalf("candidates = %+v, want only the preferred upgrade", candidates)
	}

	// Forced with downgrade allowed accepts any allowed quality.
	needed, err = m.FindNeeded(context.Background(), []*show.Episode{ep}, true, true)
	if err != nil {
		t.Fatalf("forced FindNeeded: %v", err)
	}
	if len(needed[ep]) != 2 {
		t.Errorf("forced+downgrade returned %d candidates, want 2", len(needed[ep]))
	}
}

func TestMatcherRecordsLastSearch(t *testing.T) {
	f := newMatcherFixture(t)
	sh := f.addShow(t, 100, "Some Show", false)
	ep := f.addEpisode(t, sh, 1, 1, show.StatusWanted)

	m := f.matcher(t, plainDef())
	if _, err := m.FindNeeded(context.Background(), []*show.Episode{ep}, false, false); err != nil {
		t.Fatalf("FindNeeded: %v", err)
	}

	last, err := f.status.LastSearch(context.Background(), "matchprov")
	if err != nil {
		t.Fatalf("LastSearch: %v", err)
	}
	if last.IsZero() {
		t.Errorf("last search not recorded")
	}
}
