package tvcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/provider/defs"
	"github.com/fetcharr/fetcharr/internal/provider/status"
	"github.com/fetcharr/fetcharr/internal/provider/types"
	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/show"
)

// Candidate is a cached release accepted by the want-policy for one or more
// episodes. Selection among candidates belongs to the search queue; the
// matcher does no scoring.
type Candidate struct {
	Provider string
	Protocol types.Protocol

	Name         string
	URL          string
	Quality      show.Quality
	ReleaseGroup string
	Version      int

	Seeders  int
	Leechers int
	Size     int64
	PubDate  string
	Hash     string

	Show     *show.Show
	Episodes []*show.Episode
}

// Matcher answers "what do I still need" queries against one provider's
// result cache. Rows that fail any check are skipped individually; a
// malformed row never aborts the whole matching pass.
type Matcher struct {
	store    *Store
	def      *defs.Definition
	registry *show.Registry
	filter   *release.WordFilter
	status   *status.Store
	logger   zerolog.Logger
}

// NewMatcher creates a Matcher over one provider's store.
func NewMatcher(store *Store, def *defs.Definition, registry *show.Registry, filter *release.WordFilter, statusStore *status.Store, logger zerolog.Logger) *Matcher {
	return &Matcher{
		store:    store,
		def:      def,
		registry: registry,
		filter:   filter,
		status:   statusStore,
		logger:   logger.With().Str("component", "need-matcher").Str("provider", store.Provider()).Logger(),
	}
}

// FindNeeded returns, per episode, the cached releases the owning show's
// want-policy still accepts. The final accept/reject decision is delegated
// to show.WantEpisode; quality-upgrade policy lives there and nowhere else.
func (m *Matcher) FindNeeded(ctx context.Context, episodes []*show.Episode, forced, allowDowngrade bool) (map[*show.Episode][]*Candidate, error) {
	needed := make(map[*show.Episode][]*Candidate)
	if len(episodes) == 0 {
		return needed, nil
	}

	for owner, group := range groupBySeason(m.registry, episodes) {
		numbers := make([]int, 0, len(group.episodes))
		byNumber := make(map[int]*show.Episode, len(group.episodes))
		for _, ep := range group.episodes {
			numbers = append(numbers, ep.Episode)
			byNumber[ep.Episode] = ep
		}

		allowed := append(append(show.QualitySet{}, group.show.Allowed...), group.show.Preferred...)
		rows, err := m.store.Search(ctx, group.show.IndexerID, owner.season, numbers, allowed)
		if err != nil {
			return nil, err
		}

		for i := range rows {
			m.matchRow(&rows[i], byNumber, forced, allowDowngrade, needed)
		}
	}

	if err := m.status.SetLastSearch(ctx, m.store.Provider(), time.Now()); err != nil {
		m.logger.Debug().Err(err).Msg("failed to record last search")
	}

	return needed, nil
}

func (m *Matcher) matchRow(row *Record, byNumber map[int]*show.Episode, forced, allowDowngrade bool, needed map[*show.Episode][]*Candidate) {
	// Text filter runs before any show lookup so garbage is discarded cheaply.
	if !m.filter.Accept(row.Name) {
		m.logger.Debug().Str("name", row.Name).Msg("rejected by release-name filter")
		return
	}

	tracked := m.registry.FindByIndexerID(row.IndexerID)
	if tracked == nil {
		m.logger.Debug().Int64("indexerid", row.IndexerID).Msg("cache row references untracked show")
		return
	}

	// Anime-only providers never serve standard shows and vice versa:
	// the numbering schemes cross-contaminate.
	if m.def.AnimeOnly && !tracked.Anime {
		m.logger.Debug().Str("name", row.Name).Msg("anime-only provider, non-anime show")
		return
	}
	if m.def.StandardOnly && tracked.Anime {
		m.logger.Debug().Str("name", row.Name).Msg("standard-only provider, anime show")
		return
	}

	// Ambiguous parses are cached but never matched.
	if row.Season == -1 || len(row.Episodes) == 0 {
		return
	}

	var wanted []*show.Episode
	for _, number := range row.Episodes {
		ep, ok := byNumber[number]
		if !ok {
			continue
		}
		if tracked.WantEpisode(row.Season, number, row.Quality, forced, allowDowngrade) {
			wanted = append(wanted, ep)
		}
	}
	if len(wanted) == 0 {
		return
	}

	candidate := &Candidate{
		Provider:     m.store.Provider(),
		Protocol:     types.Protocol(m.def.Protocol),
		Name:         row.Name,
		URL:          row.URL,
		Quality:      row.Quality,
		ReleaseGroup: row.ReleaseGroup,
		Version:      row.Version,
		Seeders:      row.Seeders,
		Leechers:     row.Leechers,
		Size:         row.Size,
		PubDate:      row.PubDate,
		Hash:         row.Hash,
		Show:         tracked,
		Episodes:     wanted,
	}

	for _, ep := range wanted {
		needed[ep] = append(needed[ep], candidate)
	}
}

type seasonGroup struct {
	show     *show.Show
	season   int
	episodes []*show.Episode
}

type seasonGroupKey struct {
	showID int64
	season int
}

// groupBySeason buckets a segment by (show, season) so one cache query is
// issued per bucket. Episodes whose show is no longer tracked are dropped.
func groupBySeason(registry *show.Registry, episodes []*show.Episode) map[seasonGroupKey]*seasonGroup {
	groups := make(map[seasonGroupKey]*seasonGroup)
	for _, ep := range episodes {
		owner := registry.FindByID(ep.ShowID)
		if owner == nil {
			continue
		}
		key := seasonGroupKey{showID: ep.ShowID, season: ep.Season}
		g, ok := groups[key]
		if !ok {
			g = &seasonGroup{show: owner, season: ep.Season}
			groups[key] = g
		}
		g.episodes = append(g.episodes, ep)
	}
	return groups
}
