// Package payments creates embedded checkout sessions for settling a debt.
// The core records settlements manually; a created session is handed to the
// UI as an opaque client secret and never awaited.
package payments

import (
	"context"
	"errors"

	"hearth/internal/core"
)

// ErrNotConfigured is returned when no provider credentials are present.
var ErrNotConfigured = errors.New("payments: provider not configured")

// SessionRequest describes one settlement payment.
type SessionRequest struct {
	Amount        core.Money
	Description   string
	PayerName     string
	RecipientName string
}

// Session is the provider handle the UI needs to render checkout.
type Session struct {
	ID           string
	ClientSecret string
}

// SessionProvider opens a checkout session with an external payment
// processor.
type SessionProvider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// StaticProvider returns a fixed session; it backs tests and the memory
// backend.
type StaticProvider struct {
	Session Session
	Err     error
}

func (p *StaticProvider) CreateSession(_ context.Context, _ SessionRequest) (Session, error) {
	if p.Err != nil {
		return Session{}, p.Err
	}
	return p.Session, nil
}
