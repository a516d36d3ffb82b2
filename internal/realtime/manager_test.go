package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hearth/internal/core"
	"hearth/internal/store"
)

// fakeSub is a hand-driven push channel. Close marks the handle released
// without closing the event channel, so tests can deliver late events the
// way a real network still in flight would.
type fakeSub struct {
	status chan store.Status
	events chan store.Change

	mu     sync.Mutex
	closed bool
}

func newFakeSub() *fakeSub {
	return &fakeSub{
		status: make(chan store.Status, 4),
		events: make(chan store.Change, 16),
	}
}

func (s *fakeSub) Status() <-chan store.Status { return s.status }
func (s *fakeSub) Events() <-chan store.Change { return s.events }

func (s *fakeSub) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeFetcher serves per-scope rows and counts fetches.
type fakeFetcher struct {
	mu      sync.Mutex
	rows    map[string][]core.Message
	fetches int
	err     error
}

func (f *fakeFetcher) set(scope string, rows ...core.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = make(map[string][]core.Message)
	}
	f.rows[scope] = rows
}

func (f *fakeFetcher) fetch(_ context.Context, scope string) ([]core.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]core.Message, len(f.rows[scope]))
	copy(out, f.rows[scope])
	return out, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func decodeMessage(ch store.Change) (Event[core.Message], bool) {
	ev := Event[core.Message]{Kind: ch.Kind, ID: ch.RowID}
	if row, ok := ch.Row.(core.Message); ok {
		ev.Row = row
	} else if ch.Kind != store.ChangeDelete {
		return Event[core.Message]{}, false
	}
	return ev, true
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func newTestManager(t *testing.T, fetcher *fakeFetcher, subscribe func(string) (store.Subscription, error)) *Manager[core.Message] {
	t.Helper()
	m, err := NewManager(Config[core.Message]{
		View:         "chat",
		Order:        OrderChronological,
		Fetch:        fetcher.fetch,
		Subscribe:    subscribe,
		Decode:       decodeMessage,
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestManagerAttachFetchesThenGoesLive(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set("g1", msg("a", "hello", 1), msg("b", "world", 2))

	sub := newFakeSub()
	m := newTestManager(t, fetcher, func(string) (store.Subscription, error) {
		return sub, nil
	})
	defer m.Detach()

	if err := m.Attach(context.Background(), "g1"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	assertIDs(t, m.Snapshot(), "a", "b")

	sub.status <- store.StatusSubscribed
	waitFor(t, func() bool { return m.State() == StateLive }, "live state")

	// Inbound events are routed through the merge engine.
	sub.events <- store.Change{
		Collection: store.CollectionMessages,
		Scope:      "g1",
		Kind:       store.ChangeInsert,
		RowID:      "c",
		Row:        msg("c", "!", 3),
	}
	waitFor(t, func() bool { return len(m.Snapshot()) == 3 }, "event applied")
	assertIDs(t, m.Snapshot(), "a", "b", "c")
}

func TestManagerSubscribeErrorFallsBackToPolling(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set("g1", msg("a", "hello", 1))

	m := newTestManager(t, fetcher, func(string) (store.Subscription, error) {
		return nil, errors.New("channel refused")
	})
	defer m.Detach()

	if err := m.Attach(context.Background(), "g1"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if m.State() != StatePolling {
		t.Fatalf("expected polling state, got %s", m.State())
	}

	// The reconciler picks up rows the channel would have pushed.
	fetcher.set("g1", msg("a", "hello", 1), msg("b", "late", 2))
	waitFor(t, func() bool { return len(m.Snapshot()) == 2 }, "poll reconciliation")
}

func TestManagerChannelErrorFallsBackToPolling(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set("g1", msg("a", "hello", 1))

	sub := newFakeSub()
	m := newTestManager(t, fetcher, func(string) (store.Subscription, error) {
		return sub, nil
	})
	defer m.Detach()

	if err := m.Attach(context.Background(), "g1"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	sub.status <- store.StatusSubscribed
	waitFor(t, func() bool { return m.State() == StateLive }, "live state")

	sub.status <- store.StatusError
	waitFor(t, func() bool { return m.State() == StatePolling }, "polling state")
	if !sub.isClosed() {
		t.Fatalf("failed channel was not released")
	}
}

func TestManagerPollingOverwritesOptimisticEntity(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set("g1", msg("a", "confirmed", 1))

	sub := newFakeSub()
	m := newTestManager(t, fetcher, func(string) (store.Subscription, error) {
		return sub, nil
	})
	defer m.Detach()

	if err := m.Attach(context.Background(), "g1"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	sub.status <- store.StatusSubscribed

	// A local-only row the store never confirmed.
	sub.events <- store.Change{
		Collection: store.CollectionMessages,
		Scope:      "g1",
		Kind:       store.ChangeInsert,
		RowID:      "optimistic",
		Row:        msg("optimistic", "not yet round-tripped", 9),
	}
	waitFor(t, func() bool { return len(m.Snapshot()) == 2 }, "optimistic row applied")

	// Degrade to polling: the wholesale replace drops the unconfirmed row.
	sub.status <- store.StatusError
	waitFor(t, func() bool {
		snap := m.Snapshot()
		return len(snap) == 1 && snap[0].ID == "a"
	}, "polling overwrite of optimistic row")
}

func TestManagerScopeSwitchTearsDownPreviousChannel(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set("g1", msg("a", "scope one", 1))
	fetcher.set("g2", msg("b", "scope two", 1))

	subs := make(map[string]*fakeSub)
	var mu sync.Mutex
	m := newTestManager(t, fetcher, func(scope string) (store.Subscription, error) {
		mu.Lock()
		defer mu.Unlock()
		s := newFakeSub()
		subs[scope] = s
		return s, nil
	})
	defer m.Detach()

	if err := m.Attach(context.Background(), "g1"); err != nil {
		t.Fatalf("Attach g1: %v", err)
	}
	mu.Lock()
	sub1 := subs["g1"]
	mu.Unlock()
	sub1.status <- store.StatusSubscribed
	waitFor(t, func() bool { return m.State() == StateLive }, "g1 live")

	if err := m.Attach(context.Background(), "g2"); err != nil {
		t.Fatalf("Attach g2: %v", err)
	}
	if !sub1.isClosed() {
		t.Fatalf("previous scope's channel was not torn down")
	}
	if m.Scope() != "g2" {
		t.Fatalf("expected scope g2, got %s", m.Scope())
	}
	assertIDs(t, m.Snapshot(), "b")

	// An event for the old scope still in flight must not mutate the new
	// snapshot.
	sub1.events <- store.Change{
		Collection: store.CollectionMessages,
		Scope:      "g1",
		Kind:       store.ChangeInsert,
		RowID:      "stray",
		Row:        msg("stray", "from old scope", 7),
	}
	time.Sleep(20 * time.Millisecond)
	assertIDs(t, m.Snapshot(), "b")
}

func TestManagerDetachDiscardsInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	fetched := make(chan struct{})
	m, err := NewManager(Config[core.Message]{
		View:  "chat",
		Order: OrderChronological,
		Fetch: func(context.Context, string) ([]core.Message, error) {
			close(fetched)
			<-release
			return []core.Message{msg("late", "too late", 1)}, nil
		},
		Subscribe: func(string) (store.Subscription, error) { return newFakeSub(), nil },
		Decode:    decodeMessage,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	attached := make(chan struct{})
	go func() {
		_ = m.Attach(context.Background(), "g1")
		close(attached)
	}()

	<-fetched
	m.Detach()
	close(release)
	<-attached

	if got := m.Snapshot(); len(got) != 0 {
		t.Fatalf("in-flight fetch mutated a detached manager: %v", ids(got))
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle after detach, got %s", m.State())
	}
}

func TestManagerDetachDuringPollingFallbackLeavesNoOrphanPoller(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set("g1", msg("a", "hello", 1))

	m := newTestManager(t, fetcher, func(string) (store.Subscription, error) {
		return nil, errors.New("channel refused")
	})

	// Race Detach against the polling-fallback setup repeatedly; whichever
	// side wins, no reconciler may survive the final Detach.
	for i := 0; i < 25; i++ {
		attached := make(chan struct{})
		go func() {
			_ = m.Attach(context.Background(), "g1")
			close(attached)
		}()
		m.Detach()
		<-attached
		m.Detach()
	}

	before := fetcher.count()
	time.Sleep(60 * time.Millisecond)
	if after := fetcher.count(); after != before {
		t.Fatalf("reconciler kept running after detach: %d extra fetches", after-before)
	}
}

func TestManagerInitialFetchFailureKeepsEmptySnapshot(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("store unavailable")}

	sub := newFakeSub()
	m := newTestManager(t, fetcher, func(string) (store.Subscription, error) {
		return sub, nil
	})
	defer m.Detach()

	// A read failure is absorbed: the view renders an empty snapshot
	// rather than an error screen.
	if err := m.Attach(context.Background(), "g1"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got := m.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", ids(got))
	}
}

func TestManagerAttachEmptyScope(t *testing.T) {
	fetcher := &fakeFetcher{}
	m := newTestManager(t, fetcher, func(string) (store.Subscription, error) {
		return newFakeSub(), nil
	})
	if err := m.Attach(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty scope")
	}
}
