package search

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/show"
)

const lastBacklogKey = "last_backlog"

// ordinalDay returns the calendar day as days since the Unix epoch, so the
// full-backlog throttle survives restarts as a single integer.
func ordinalDay(t time.Time) int64 {
	return t.UTC().Unix() / 86400
}

// Backlog schedules backlog searches. A full pass covers every wanted
// episode and runs at most once per configured cycle; the runs in between
// are limited to episodes aired within the backlog window.
type Backlog struct {
	queue    *Queue
	searcher *Searcher
	registry *show.Registry
	state    *StateStore
	logger   zerolog.Logger

	cycleDays   int64
	backlogDays int
}

// NewBacklog creates a backlog scheduler. frequencyMinutes is the minimum
// spacing between full passes; backlogDays bounds the limited passes.
func NewBacklog(queue *Queue, searcher *Searcher, registry *show.Registry, state *StateStore, frequencyMinutes, backlogDays int, logger zerolog.Logger) *Backlog {
	cycleDays := int64(frequencyMinutes) / (24 * 60)
	if cycleDays < 1 {
		cycleDays = 1
	}
	return &Backlog{
		queue:       queue,
		searcher:    searcher,
		registry:    registry,
		state:       state,
		logger:      logger.With().Str("component", "backlog").Logger(),
		cycleDays:   cycleDays,
		backlogDays: backlogDays,
	}
}

// Run enqueues one backlog item per show with outstanding wanted episodes.
// force always runs a full pass.
func (b *Backlog) Run(ctx context.Context, force bool) error {
	today := ordinalDay(time.Now())

	full := force
	if !full {
		last, err := b.state.GetInt(ctx, lastBacklogKey, 0)
		if err != nil {
			return err
		}
		full = today >= last+b.cycleDays
	}

	cutoff := time.Now().AddDate(0, 0, -b.backlogDays)

	queued := 0
	for _, s := range b.registry.All() {
		if s.Paused {
			continue
		}
		segment := b.segment(s, full, cutoff)
		if len(segment) == 0 {
			continue
		}

		item := &BacklogQueueItem{
			Searcher: b.searcher,
			Show:     s,
			Episodes: segment,
			Limited:  !full,
		}
		if _, err := b.queue.Push(item); err != nil {
			if errors.Is(err, ErrDuplicateItem) {
				b.logger.Debug().Str("show", s.Name).Msg("backlog item already queued")
				continue
			}
			return err
		}
		queued++
	}

	if full {
		if err := b.state.SetInt(ctx, lastBacklogKey, today); err != nil {
			return err
		}
	}

	b.logger.Info().Bool("full", full).Int("shows", queued).Msg("backlog pass queued")
	return nil
}

// segment collects the show's wanted episodes; limited passes only keep
// episodes aired within the backlog window.
func (b *Backlog) segment(s *show.Show, full bool, cutoff time.Time) []*show.Episode {
	var segment []*show.Episode
	for _, ep := range s.Episodes() {
		status, _ := ep.Status()
		if status != show.StatusWanted {
			continue
		}
		if !full && (ep.AirDate.IsZero() || ep.AirDate.Before(cutoff)) {
			continue
		}
		segment = append(segment, ep)
	}
	return segment
}
