package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fetcharr/fetcharr/internal/testutil"
)

// recordedItem is a scriptable queue item.
type recordedItem struct {
	name     string
	priority Priority
	dedup    string
	run      func(ctx context.Context) error
}

func (i *recordedItem) Name() string       { return i.name }
func (i *recordedItem) Priority() Priority { return i.priority }
func (i *recordedItem) DedupKey() string   { return i.dedup }
func (i *recordedItem) Run(ctx context.Context) error {
	if i.run != nil {
		return i.run(ctx)
	}
	return nil
}

// runLog collects execution order across items.
type runLog struct {
	mu    sync.Mutex
	order []string
	done  chan struct{}
	want  int
}

func newRunLog(want int) *runLog {
	return &runLog{done: make(chan struct{}), want: want}
}

func (l *runLog) record(name string) {
	l.mu.Lock()
	l.order = append(l.order, name)
	if len(l.order) == l.want {
		close(l.done)
	}
	l.mu.Unlock()
}

func (l *runLog) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-l.done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain in time")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

func logged(log *runLog, name string, p Priority) *recordedItem {
	return &recordedItem{
		name:     name,
		priority: p,
		run: func(ctx context.Context) error {
			log.record(name)
			return nil
		},
	}
}

func TestQueuePriorityOrdering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue(nil, testutil.NopLogger())
	log := newRunLog(4)

	// Admitted in reverse priority order; must drain highest first, FIFO
	// within a band.
	mustPush(t, q, logged(log, "daily", PriorityDaily))
	mustPush(t, q, logged(log, "backlog", PriorityBacklog))
	mustPush(t, q, logged(log, "failed", PriorityFailed))
	mustPush(t, q, logged(log, "forced", PriorityForced))

	q.Start(ctx)

	got := log.wait(t)
	want := []string{"forced", "failed", "backlog", "daily"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("run order = %v, want %v", got, want)
		}
	}
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue(nil, testutil.NopLogger())
	log := newRunLog(3)

	mustPush(t, q, logged(log, "first", PriorityBacklog))
	mustPush(t, q, logged(log, "second", PriorityBacklog))
	mustPush(t, q, logged(log, "third", PriorityBacklog))

	q.Start(ctx)

	got := log.wait(t)
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("run order = %v, want %v", got, want)
		}
	}
}

func TestQueueAdmissionDedup(t *testing.T) {
	q := NewQueue(nil, testutil.NopLogger())

	first := &recordedItem{name: "a", priority: PriorityBacklog, dedup: "backlog:1"}
	dup := &recordedItem{name: "b", priority: PriorityBacklog, dedup: "backlog:1"}
	other := &recordedItem{name: "c", priority: PriorityBacklog, dedup: "backlog:2"}

	mustPush(t, q, first)
	if _, err := q.Push(dup); !errors.Is(err, ErrDuplicateItem) {
		t.Fatalf("duplicate push error = %v, want ErrDuplicateItem", err)
	}
	mustPush(t, q, other)

	if q.Len() != 2 {
		t.Errorf("queue length = %d, want 2", q.Len())
	}
}

func TestQueueDedupReleasedAfterFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue(nil, testutil.NopLogger())
	log := newRunLog(1)

	item := &recordedItem{
		name:     "a",
		priority: PriorityBacklog,
		dedup:    "backlog:1",
		run: func(ctx context.Context) error {
			log.record("a")
			return nil
		},
	}
	mustPush(t, q, item)
	q.Start(ctx)
	log.wait(t)

	// The key must be free again once the item finished. Finish happens
	// just after the run callback, so allow a moment.
	deadline := time.After(5 * time.Second)
	for {
		if _, err := q.Push(&recordedItem{name: "b", priority: PriorityBacklog, dedup: "backlog:1"}); err == nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("dedup key never released after finish")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestQueueSurvivesErrorsAndPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue(nil, testutil.NopLogger())
	log := newRunLog(3)

	mustPush(t, q, &recordedItem{
		name:     "boom",
		priority: PriorityForced,
		run: func(ctx context.Context) error {
			log.record("boom")
			panic("exploded")
		},
	})
	mustPush(t, q, &recordedItem{
		name:     "fails",
		priority: PriorityForced,
		run: func(ctx context.Context) error {
			log.record("fails")
			return errors.New("search failed")
		},
	})
	mustPush(t, q, logged(log, "ok", PriorityDaily))

	q.Start(ctx)

	got := log.wait(t)
	if got[len(got)-1] != "ok" {
		t.Fatalf("run order = %v, want the healthy item to still run last", got)
	}
}

func TestQueueStatusSnapshot(t *testing.T) {
	q := NewQueue(nil, testutil.NopLogger())

	mustPush(t, q, &recordedItem{name: "low", priority: PriorityDaily})
	mustPush(t, q, &recordedItem{name: "high", priority: PriorityForced})

	statuses := q.Status()
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if statuses[0].Name != "high" || statuses[1].Name != "low" {
		t.Errorf("status order = [%s %s], want [high low]", statuses[0].Name, statuses[1].Name)
	}
	for _, s := range statuses {
		if s.State != "created" {
			t.Errorf("pending item %s in state %s, want created", s.Name, s.State)
		}
		if s.ID.String() == "" {
			t.Errorf("item %s has no id", s.Name)
		}
	}
}

func mustPush(t *testing.T, q *Queue, item Item) {
	t.Helper()
	if _, err := q.Push(item); err != nil {
		t.Fatalf("Push(%s): %v", item.Name(), err)
	}
}
