// Package search runs episode searches through a single-worker priority
// queue and schedules the recurring daily and backlog passes.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrDuplicateItem is returned when an equivalent item is already queued or
// running. Admission dedup keeps one backlog item per show and one search
// item per episode segment.
var ErrDuplicateItem = errors.New("equivalent search item already queued")

// Priority orders queue admission. User-initiated searches always run before
// automatic ones.
type Priority int

const (
	PriorityDaily Priority = iota
	PriorityBacklog
	PriorityFailed
	PriorityForced
)

func (p Priority) String() string {
	switch p {
	case PriorityDaily:
		return "daily"
	case PriorityBacklog:
		return "backlog"
	case PriorityFailed:
		return "failed"
	case PriorityForced:
		return "forced"
	}
	return "unknown"
}

// State is the lifecycle state of a queued item.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateSuccess
	StateFailed
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// Item is a unit of search work. DedupKey identifies equivalent items for
// admission dedup; items with an empty key are never deduplicated.
type Item interface {
	Name() string
	Priority() Priority
	DedupKey() string
	Run(ctx context.Context) error
}

// Broadcaster pushes queue lifecycle events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

type entry struct {
	id       uuid.UUID
	item     Item
	state    State
	seq      uint64
	enqueued time.Time
	err      error
}

// ItemStatus is a point-in-time snapshot of one queue entry.
type ItemStatus struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Priority string    `json:"priority"`
	State    string    `json:"state"`
	Enqueued time.Time `json:"enqueued"`
	Error    string    `json:"error,omitempty"`
}

// Queue is a single-worker priority queue. One item runs at a time; within a
// priority band items run in admission order. A failing or panicking item
// never takes the worker down.
type Queue struct {
	logger zerolog.Logger
	hub    Broadcaster

	mu      sync.Mutex
	wake    chan struct{}
	pending []*entry
	active  *entry
	dedup   map[string]bool
	seq     uint64

	done chan struct{}
}

// NewQueue creates a stopped queue. Call Start to begin processing.
func NewQueue(hub Broadcaster, logger zerolog.Logger) *Queue {
	return &Queue{
		logger: logger.With().Str("component", "search-queue").Logger(),
		hub:    hub,
		wake:   make(chan struct{}, 1),
		dedup:  make(map[string]bool),
		done:   make(chan struct{}),
	}
}

// Push admits an item. Equivalent items (same dedup key) already queued or
// running are rejected with ErrDuplicateItem.
func (q *Queue) Push(item Item) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if key := item.DedupKey(); key != "" {
		if q.dedup[key] {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateItem, item.Name())
		}
		q.dedup[key] = true
	}

	q.seq++
	e := &entry{
		id:       uuid.New(),
		item:     item,
		state:    StateCreated,
		seq:      q.seq,
		enqueued: time.Now(),
	}
	q.pending = append(q.pending, e)

	q.logger.Debug().
		Str("item", item.Name()).
		Str("priority", item.Priority().String()).
		Msg("search item queued")

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return e.id, nil
}

// Start runs the worker until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	go q.worker(ctx)
}

// Wait blocks until the worker has exited after cancellation.
func (q *Queue) Wait() {
	<-q.done
}

func (q *Queue) worker(ctx context.Context) {
	defer close(q.done)
	for {
		e := q.next()
		if e == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.runOne(ctx, e)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// next pops the highest-priority pending entry, FIFO within a priority band.
func (q *Queue) next() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	sort.SliceStable(q.pending, func(i, j int) bool {
		if q.pending[i].item.Priority() != q.pending[j].item.Priority() {
			return q.pending[i].item.Priority() > q.pending[j].item.Priority()
		}
		return q.pending[i].seq < q.pending[j].seq
	})

	e := q.pending[0]
	q.pending = q.pending[1:]
	e.state = StateRunning
	q.active = e
	return e
}

// runOne executes one item. The finish step always runs, whatever the item
// did: success, error or panic.
func (q *Queue) runOne(ctx context.Context, e *entry) {
	defer q.finish(e)

	q.broadcast("search:started", e)

	err := q.safeRun(ctx, e)

	q.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.err = err
	} else {
		e.state = StateSuccess
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn().Err(err).Str("item", e.item.Name()).Msg("search item failed")
	} else {
		q.logger.Info().Str("item", e.item.Name()).Msg("search item completed")
	}
}

func (q *Queue) safeRun(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search item panicked: %v", r)
			q.logger.Error().
				Interface("panic", r).
				Str("item", e.item.Name()).
				Bytes("stack", debug.Stack()).
				Msg("recovered from search item panic")
		}
	}()
	return e.item.Run(ctx)
}

func (q *Queue) finish(e *entry) {
	q.mu.Lock()
	e.state = StateFinished
	q.active = nil
	if key := e.item.DedupKey(); key != "" {
		delete(q.dedup, key)
	}
	q.mu.Unlock()

	q.broadcast("search:finished", e)
}

func (q *Queue) broadcast(msgType string, e *entry) {
	if q.hub == nil {
		return
	}
	q.hub.Broadcast(msgType, map[string]interface{}{
		"id":       e.id.String(),
		"item":     e.item.Name(),
		"priority": e.item.Priority().String(),
	})
}

// Status returns a snapshot of the running and pending items, running first,
// then by admission order within descending priority.
func (q *Queue) Status() []ItemStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	statuses := make([]ItemStatus, 0, len(q.pending)+1)
	if q.active != nil {
		statuses = append(statuses, snapshot(q.active))
	}

	sorted := append([]*entry(nil), q.pending...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].item.Priority() != sorted[j].item.Priority() {
			return sorted[i].item.Priority() > sorted[j].item.Priority()
		}
		return sorted[i].seq < sorted[j].seq
	})
	for _, e := range sorted {
		statuses = append(statuses, snapshot(e))
	}
	return statuses
}

// Len returns the number of pending items, excluding the running one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func snapshot(e *entry) ItemStatus {
	s := ItemStatus{
		ID:       e.id,
		Name:     e.item.Name(),
		Priority: e.item.Priority().String(),
		State:    e.state.String(),
		Enqueued: e.enqueued,
	}
	if e.err != nil {
		s.Error = e.err.Error()
	}
	return s
}
