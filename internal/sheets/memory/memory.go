// Package memory is an in-process ExpenseAppender for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "hearth/internal/sheets"
)

type Appender struct {
	mu   sync.Mutex
	rows []ports.ExpenseRow

	// Err, when set, fails every Append.
	Err error
}

var _ ports.ExpenseAppender = (*Appender)(nil)

func New() *Appender {
	return &Appender{}
}

func (a *Appender) Append(_ context.Context, row ports.ExpenseRow) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return "", a.Err
	}
	a.rows = append(a.rows, row)
	return fmt.Sprintf("memory!A%d", len(a.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (a *Appender) Rows() []ports.ExpenseRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ports.ExpenseRow, len(a.rows))
	copy(out, a.rows)
	return out
}
