// Package realtime keeps locally materialized view snapshots consistent
// with the remote store: a pure merge engine folds change events into an
// ordered snapshot, a lifecycle manager owns one push channel per
// (view, scope) pair, and a polling reconciler covers for a failed channel.
package realtime

import (
	"sort"
	"time"

	"hearth/internal/store"
)

// Entity is a synchronized row: identity plus the ordering key.
type Entity interface {
	EntityID() string
	EntityCreatedAt() time.Time
}

// Order selects how a view keeps its snapshot sorted.
type Order int

const (
	// OrderChronological keeps the snapshot ascending by created_at
	// (chat transcripts, list items).
	OrderChronological Order = iota

	// OrderNewestFirst keeps the most recent row at the front
	// (list collections). Inserts prepend; newly created rows are
	// already the most recent.
	OrderNewestFirst
)

// Event is one decoded change for a view's entity type. Row is the
// complete new row for inserts and updates; for deletes only ID is set.
type Event[T Entity] struct {
	Kind store.ChangeKind
	ID   string
	Row  T
}

// Apply folds one event into the snapshot and returns the new snapshot.
// It is a pure, synchronous reduction: no I/O, no locking, strict arrival
// order. When the event changes nothing the input slice is returned as is.
//
// insert is idempotent: a row that already exists (delivered through both
// the push channel and a refetch) leaves the snapshot unchanged. update
// replaces the matching row wholesale and falls back to insert when the
// row is not locally known, which tolerates an update arriving before its
// insert. delete is a no-op when the row is absent.
func Apply[T Entity](snapshot []T, ev Event[T], order Order) []T {
	switch ev.Kind {
	case store.ChangeInsert:
		return applyInsert(snapshot, ev.Row, order)

	case store.ChangeUpdate:
		id := ev.Row.EntityID()
		for i, row := range snapshot {
			if row.EntityID() == id {
				next := make([]T, len(snapshot))
				copy(next, snapshot)
				next[i] = ev.Row
				return next
			}
		}
		// Update for a row we never saw: treat as insert.
		return applyInsert(snapshot, ev.Row, order)

	case store.ChangeDelete:
		id := ev.ID
		if id == "" {
			id = ev.Row.EntityID()
		}
		for i, row := range snapshot {
			if row.EntityID() == id {
				next := make([]T, 0, len(snapshot)-1)
				next = append(next, snapshot[:i]...)
				next = append(next, snapshot[i+1:]...)
				return next
			}
		}
		return snapshot
	}
	return snapshot
}

// ApplyAll folds a sequence of events in order.
func ApplyAll[T Entity](snapshot []T, events []Event[T], order Order) []T {
	for _, ev := range events {
		snapshot = Apply(snapshot, ev, order)
	}
	return snapshot
}

func applyInsert[T Entity](snapshot []T, row T, order Order) []T {
	id := row.EntityID()
	for _, existing := range snapshot {
		if existing.EntityID() == id {
			return snapshot
		}
	}

	if order == OrderNewestFirst {
		next := make([]T, 0, len(snapshot)+1)
		next = append(next, row)
		next = append(next, snapshot...)
		return next
	}

	next := make([]T, 0, len(snapshot)+1)
	next = append(next, snapshot...)
	next = append(next, row)
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].EntityCreatedAt().Before(next[j].EntityCreatedAt())
	})
	return next
}
