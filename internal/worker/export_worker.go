// Package worker drains the expense-export queue into the household
// budget spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"hearth/internal/amqp"
	"hearth/internal/core"
	applog "hearth/internal/log"
	"hearth/internal/sheets"
)

// ExportWorker appends each queued expense as one spreadsheet row.
type ExportWorker struct {
	appender sheets.ExpenseAppender
}

func NewExportWorker(appender sheets.ExpenseAppender) *ExportWorker {
	return &ExportWorker{appender: appender}
}

// HandleExportMessage processes a single queued export. An append failure
// is returned so the delivery is requeued and retried.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ExpenseExportMessage) error {
	row := sheets.ExpenseRow{
		Date:        msg.Date,
		GroupID:     msg.GroupID,
		Description: msg.Description,
		Amount:      core.Money{Cents: msg.AmountCents},
		PaidBy:      msg.PaidByName,
	}

	ref, err := w.appender.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	slog.InfoContext(ctx, "Exported expense",
		applog.FieldExpenseID, msg.ExpenseID,
		applog.FieldSheetsRef, ref,
		applog.FieldAmountCents, msg.AmountCents)
	return nil
}
