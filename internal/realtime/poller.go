package realtime

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval matches the fallback cadence used when a push
// channel cannot be established.
const DefaultPollInterval = 3 * time.Second

// Poller runs one reconciliation pass on a fixed interval. The pass runs
// synchronously inside the loop goroutine, so passes never overlap: ticks
// that fire while a pass is still in flight coalesce into at most one
// pending tick.
type Poller struct {
	interval time.Duration
	pass     func(ctx context.Context)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewPoller(interval time.Duration, pass func(ctx context.Context)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{interval: interval, pass: pass}
}

// Start begins the polling loop. Starting an already-running poller is a
// no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go func() {
		defer close(doneCh)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.pass(ctx)
			}
		}
	}()
}

// Stop clears the timer and waits for an in-flight pass to finish.
// Safe to call more than once and on a never-started poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
