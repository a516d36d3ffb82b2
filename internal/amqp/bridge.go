package amqp

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	applog "hearth/internal/log"
	"hearth/internal/store"
)

// ChangeTransport is the slice of the client the bridge needs; tests swap
// in an in-process fake.
type ChangeTransport interface {
	PublishChange(ctx context.Context, ch store.Change) error
	ConsumeChanges(ctx context.Context, handler func(store.Change)) error
}

// Bridge extends the in-process change hub across instances: local writes
// go out on the fanout exchange, remote writes come back in through the
// hub as if a local write had published them.
//
// Echo prevention is two-sided. Outbound, only changes with an empty
// Origin (produced by this process's store) are published. Inbound,
// changes are stamped with the emitting instance's id before re-injection,
// and a delivery carrying our own id is dropped.
type Bridge struct {
	transport  ChangeTransport
	hub        *store.Hub
	instanceID string
	sub        store.Subscription
}

// NewBridge opens the wildcard hub subscription immediately so no local
// write published after construction is missed.
func NewBridge(transport ChangeTransport, hub *store.Hub, instanceID string) *Bridge {
	return &Bridge{
		transport:  transport,
		hub:        hub,
		instanceID: instanceID,
		sub:        hub.Subscribe("", ""),
	}
}

// Run pumps both directions until ctx is done or either side fails.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.sub
	defer sub.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.transport.ConsumeChanges(ctx, b.inject)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-sub.Status():
				// Hub status transitions are irrelevant here.
			case ch, ok := <-sub.Events():
				if !ok {
					return nil // hub closed, store shutting down
				}
				if ch.Origin != "" {
					continue // re-injected remote change, never echo it back
				}
				if err := b.transport.PublishChange(ctx, ch); err != nil {
					// Best-effort: other instances fall back to polling.
					slog.WarnContext(ctx, "Failed to publish change event",
						applog.FieldCollection, ch.Collection,
						applog.FieldScope, ch.Scope,
						applog.FieldError, err)
				}
			}
		}
	})

	return g.Wait()
}

func (b *Bridge) inject(ch store.Change) {
	if ch.Origin == b.instanceID {
		return // our own publish fanned back to us
	}
	b.hub.Publish(ch)
}
