package search

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/show"
)

// Daily promotes aired episodes to Wanted and queues a search for them.
type Daily struct {
	queue    *Queue
	searcher *Searcher
	registry *show.Registry
	logger   zerolog.Logger
}

// NewDaily creates the daily scheduler.
func NewDaily(queue *Queue, searcher *Searcher, registry *show.Registry, logger zerolog.Logger) *Daily {
	return &Daily{
		queue:    queue,
		searcher: searcher,
		registry: registry,
		logger:   logger.With().Str("component", "daily-search").Logger(),
	}
}

// Run marks episodes that have aired since the last pass as Wanted and
// enqueues one daily item per show that gained searchable episodes.
func (d *Daily) Run(ctx context.Context) error {
	now := time.Now()
	// Only chase episodes aired in the last day here; older gaps belong to
	// the backlog.
	recent := now.AddDate(0, 0, -1)

	for _, s := range d.registry.All() {
		if s.Paused {
			continue
		}

		var segment []*show.Episode
		for _, ep := range s.Episodes() {
			if ep.AirDate.IsZero() || ep.AirDate.After(now) {
				continue
			}
			status, _ := ep.Status()
			if status == show.StatusUnaired {
				ep.SetStatus(show.StatusWanted, show.QualityUnknown)
				if err := d.registry.SaveEpisodeStatus(ctx, ep); err != nil {
					return err
				}
				status = show.StatusWanted
			}
			if status == show.StatusWanted && ep.AirDate.After(recent) {
				segment = append(segment, ep)
			}
		}
		if len(segment) == 0 {
			continue
		}

		item := &DailySearchItem{Searcher: d.searcher, Show: s, Episodes: segment}
		if _, err := d.queue.Push(item); err != nil {
			if errors.Is(err, ErrDuplicateItem) {
				d.logger.Debug().Str("show", s.Name).Msg("daily item already queued")
				continue
			}
			return err
		}
	}

	return nil
}
