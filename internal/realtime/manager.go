package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	applog "hearth/internal/log"
	"hearth/internal/store"
)

// State of one (view, scope) attachment.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateConnecting State = "connecting"
	StateLive       State = "live"
	StatePolling    State = "polling"
)

// Metrics receives sync-core observations. All methods must be cheap and
// non-blocking; a nil Metrics disables instrumentation.
type Metrics interface {
	EventApplied(view string, kind string)
	DuplicateDropped(view string)
	PollReconcile(view string)
	ChannelError(view string)
	AttachmentActive(view string, delta int)
}

// Config wires a Manager to one view's store operations.
type Config[T Entity] struct {
	// View names the snapshot for logs and metrics ("chat", "list_items", ...).
	View string

	Order Order

	// Fetch performs the full scope read used for the initial load and for
	// every polling reconciliation.
	Fetch func(ctx context.Context, scope string) ([]T, error)

	// Subscribe opens the push channel for a scope. A synchronous error
	// degrades the attachment straight to polling.
	Subscribe func(scope string) (store.Subscription, error)

	// Decode converts a raw change into this view's event type. Returning
	// false discards the change.
	Decode func(store.Change) (Event[T], bool)

	// PollInterval for the reconciler; DefaultPollInterval when zero.
	PollInterval time.Duration

	// OnEvent, when set, observes every applied event. It runs outside the
	// snapshot lock and is best-effort: it must not block event delivery.
	OnEvent func(Event[T])

	Metrics Metrics
}

// Manager owns the snapshot for one view and at most one attachment at a
// time. Attach tears down any previous attachment before opening the next
// one, so no two live channels ever exist for the same view, and events
// from an abandoned scope can never leak into the current snapshot.
//
// A session degraded to polling stays there; it returns to push delivery
// only through a fresh Attach.
type Manager[T Entity] struct {
	cfg Config[T]

	mu         sync.Mutex
	state      State
	scope      string
	epoch      uint64
	snapshot   []T
	attachment *attachment

	updates chan struct{}
}

// attachment is the owned resource record for one scope: the push channel
// handle and the poll timer. Attach and Detach are its only mutators.
type attachment struct {
	scope  string
	sub    store.Subscription
	poller *Poller
}

func NewManager[T Entity](cfg Config[T]) (*Manager[T], error) {
	if cfg.Fetch == nil || cfg.Subscribe == nil || cfg.Decode == nil {
		return nil, errors.New("realtime: Fetch, Subscribe and Decode are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Manager[T]{
		cfg:     cfg,
		state:   StateIdle,
		updates: make(chan struct{}, 1),
	}, nil
}

// Attach binds the manager to a scope: full fetch, then push channel, with
// polling as the fallback. Any previous attachment is torn down first,
// unconditionally. Fetch and subscribe failures are absorbed (the snapshot
// stays renderable); only an empty scope is an error.
func (m *Manager[T]) Attach(ctx context.Context, scope string) error {
	if scope == "" {
		return errors.New("realtime: empty scope")
	}

	m.Detach()

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.scope = scope
	m.state = StateFetching
	att := &attachment{scope: scope}
	m.attachment = att
	m.mu.Unlock()

	if mt := m.cfg.Metrics; mt != nil {
		mt.AttachmentActive(m.cfg.View, 1)
	}

	rows, err := m.cfg.Fetch(ctx, scope)
	if err != nil {
		// Stale-but-visible beats an error screen; the channel or the
		// poller will fill the snapshot in.
		slog.WarnContext(ctx, "Initial fetch failed",
			applog.FieldView, m.cfg.View, applog.FieldScope, scope, applog.FieldError, err)
		rows = nil
	}
	if !m.replaceSnapshot(epoch, rows) {
		return nil // detached mid-fetch; result discarded
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	sub, err := m.cfg.Subscribe(scope)
	if err != nil {
		slog.WarnContext(ctx, "Push channel unavailable, falling back to polling",
			applog.FieldView, m.cfg.View, applog.FieldScope, scope, applog.FieldError, err)
		if mt := m.cfg.Metrics; mt != nil {
			mt.ChannelError(m.cfg.View)
		}
		m.startPolling(ctx, epoch, att)
		return nil
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		sub.Close()
		return nil
	}
	att.sub = sub
	m.mu.Unlock()

	go m.consume(ctx, epoch, att, sub)
	return nil
}

// Detach releases the current attachment: the channel is closed and the
// poller stopped, unconditionally and synchronously. Idempotent.
func (m *Manager[T]) Detach() {
	m.mu.Lock()
	m.epoch++
	att := m.attachment
	m.attachment = nil
	m.state = StateIdle
	m.scope = ""
	m.snapshot = nil
	var sub store.Subscription
	var poller *Poller
	if att != nil {
		sub = att.sub
		poller = att.poller
	}
	m.mu.Unlock()

	if att == nil {
		return
	}
	if sub != nil {
		sub.Close()
	}
	if poller != nil {
		poller.Stop()
	}
	if mt := m.cfg.Metrics; mt != nil {
		mt.AttachmentActive(m.cfg.View, -1)
	}
}

// Snapshot returns a copy of the current snapshot, safe to render.
func (m *Manager[T]) Snapshot() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, len(m.snapshot))
	copy(out, m.snapshot)
	return out
}

// Updates signals after every snapshot change. The channel is coalescing:
// a slow consumer sees at least one signal, not one per change.
func (m *Manager[T]) Updates() <-chan struct{} { return m.updates }

func (m *Manager[T]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager[T]) Scope() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

// consume routes push-channel traffic: status transitions drive the state
// machine, change events go through the merge engine.
func (m *Manager[T]) consume(ctx context.Context, epoch uint64, att *attachment, sub store.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return

		case st, ok := <-sub.Status():
			if !ok {
				return
			}
			switch st {
			case store.StatusSubscribed:
				m.mu.Lock()
				if m.epoch == epoch {
					m.state = StateLive
				}
				m.mu.Unlock()

			case store.StatusError:
				if mt := m.cfg.Metrics; mt != nil {
					mt.ChannelError(m.cfg.View)
				}
				m.mu.Lock()
				current := m.epoch == epoch
				m.mu.Unlock()
				sub.Close()
				if current {
					slog.WarnContext(ctx, "Push channel failed, falling back to polling",
						applog.FieldView, m.cfg.View, applog.FieldScope, att.scope)
					m.startPolling(ctx, epoch, att)
				}
				return
			}

		case ch, ok := <-sub.Events():
			if !ok {
				return
			}
			ev, valid := m.cfg.Decode(ch)
			if !valid {
				continue
			}
			if m.applyEvent(epoch, ev) && m.cfg.OnEvent != nil {
				m.cfg.OnEvent(ev)
			}
		}
	}
}

// applyEvent merges one event into the snapshot. Events from a stale epoch
// (the scope changed while the event was in flight) are discarded.
func (m *Manager[T]) applyEvent(epoch uint64, ev Event[T]) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	before := len(m.snapshot)
	m.snapshot = Apply(m.snapshot, ev, m.cfg.Order)
	after := len(m.snapshot)
	m.mu.Unlock()

	if mt := m.cfg.Metrics; mt != nil {
		if ev.Kind == store.ChangeInsert && after == before {
			mt.DuplicateDropped(m.cfg.View)
		} else {
			mt.EventApplied(m.cfg.View, string(ev.Kind))
		}
	}
	m.notify()
	return true
}

func (m *Manager[T]) startPolling(ctx context.Context, epoch uint64, att *attachment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return
	}
	m.state = StatePolling
	poller := NewPoller(m.cfg.PollInterval, func(ctx context.Context) {
		m.reconcile(ctx, epoch, att.scope)
	})
	att.poller = poller
	// Started under the lock: a Detach racing this call either bumped the
	// epoch already (we return above) or runs after and stops a poller
	// that is actually running. No window for an orphan loop.
	poller.Start(ctx)
}

// reconcile is one polling pass: the same full fetch as the initial load,
// then a wholesale snapshot replace. A local row the store never confirmed
// disappears here; that is the accepted weak-consistency trade-off.
func (m *Manager[T]) reconcile(ctx context.Context, epoch uint64, scope string) {
	rows, err := m.cfg.Fetch(ctx, scope)
	if err != nil {
		slog.WarnContext(ctx, "Polling reconciliation fetch failed",
			applog.FieldView, m.cfg.View, applog.FieldScope, scope, applog.FieldError, err)
		return
	}
	if m.replaceSnapshot(epoch, rows) {
		if mt := m.cfg.Metrics; mt != nil {
			mt.PollReconcile(m.cfg.View)
		}
	}
}

func (m *Manager[T]) replaceSnapshot(epoch uint64, rows []T) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	m.snapshot = rows
	m.mu.Unlock()
	m.notify()
	return true
}

func (m *Manager[T]) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}
