package amqp

import (
	"context"
	"fmt"

	"hearth/internal/core"
)

// ProfileGetter resolves a user id to their profile for the export row.
type ProfileGetter interface {
	GetProfile(ctx context.Context, id string) (core.Profile, error)
}

// ExportPublisher is the queue side the notifier needs.
type ExportPublisher interface {
	PublishExpenseExport(ctx context.Context, msg *ExpenseExportMessage) error
}

// ExportNotifier queues recorded expenses for the sheets exporter. It
// implements the ledger's Notifier port.
type ExportNotifier struct {
	publisher ExportPublisher
	profiles  ProfileGetter
}

func NewExportNotifier(publisher ExportPublisher, profiles ProfileGetter) *ExportNotifier {
	return &ExportNotifier{publisher: publisher, profiles: profiles}
}

// ExpenseRecorded resolves the payer's display name and queues the export.
// A failed name lookup degrades to the raw user id; the export still goes
// out.
func (n *ExportNotifier) ExpenseRecorded(ctx context.Context, e core.Expense) error {
	paidByName := e.PaidBy
	if n.profiles != nil {
		if p, err := n.profiles.GetProfile(ctx, e.PaidBy); err == nil && p.DisplayName != "" {
			paidByName = p.DisplayName
		}
	}
	if err := n.publisher.PublishExpenseExport(ctx, NewExpenseExportMessage(e, paidByName)); err != nil {
		return fmt.Errorf("queue expense export: %w", err)
	}
	return nil
}
