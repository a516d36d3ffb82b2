// Package sheets defines the outbound port for the household budget
// export: recorded expenses appended as rows to a shared spreadsheet.
package sheets

import (
	"context"
	"time"

	"hearth/internal/core"
)

// ExpenseRow is one exported ledger entry. PaidBy carries the payer's
// display name; the spreadsheet is read by people, not by the app.
type ExpenseRow struct {
	Date        time.Time
	GroupID     string
	Description string
	Amount      core.Money
	PaidBy      string
}

// ExpenseAppender appends one row and returns a reference to where it
// landed (sheet range, row key).
type ExpenseAppender interface {
	Append(ctx context.Context, row ExpenseRow) (rowRef string, err error)
}
