package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"hearth/internal/core"
	applog "hearth/internal/log"
)

// Store is the slice of the remote store the ledger reads and writes.
type Store interface {
	InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	ListExpenses(ctx context.Context, groupID string, limit int) ([]core.Expense, error)
	ListExpensesByIDs(ctx context.Context, ids []string) ([]core.Expense, error)
	ListExpensesByPayer(ctx context.Context, userID string) ([]core.Expense, error)
	ListMembers(ctx context.Context, groupID string) ([]core.Membership, error)
	InsertSplit(ctx context.Context, s core.Split) (core.Split, error)
	GetSplit(ctx context.Context, id string) (core.Split, error)
	ListSplitsByDebtor(ctx context.Context, userID string, unsettledOnly bool) ([]core.Split, error)
	ListSplitsByExpenses(ctx context.Context, expenseIDs []string) ([]core.Split, error)
	SettleSplit(ctx context.Context, id string) error
}

// Notifier observes recorded expenses, e.g. to queue a budget export.
// Notification is best-effort and never fails the recording.
type Notifier interface {
	ExpenseRecorded(ctx context.Context, e core.Expense) error
}

// Metrics receives ledger counters; nil disables instrumentation.
type Metrics interface {
	ExpenseRecorded(amountCents int64)
	SplitsCreated(n int)
	SplitSettled()
}

// Debt is one unsettled split joined to its expense for payer and group
// context.
type Debt struct {
	Split   core.Split
	Expense core.Expense
}

// Service is the ledger engine. It takes no locks: concurrent RecordExpense
// calls race freely, and membership is not re-checked between the member
// fetch and the split inserts.
type Service struct {
	store    Store
	policy   RoundingPolicy
	notifier Notifier
	metrics  Metrics
}

func NewService(store Store, policy RoundingPolicy, notifier Notifier, metrics Metrics) *Service {
	return &Service{store: store, policy: policy, notifier: notifier, metrics: metrics}
}

// RecordExpense creates the expense, then divides it evenly among the
// group's members, one unsettled split per non-payer member.
//
// The expense insert fails fast. Split creation after it is best-effort:
// there is no rollback, so a partial failure leaves the expense with the
// splits created so far and returns them alongside the error.
func (s *Service) RecordExpense(ctx context.Context, groupID, paidBy, description string, amount core.Money) (core.Expense, []core.Split, error) {
	expense := core.Expense{
		GroupID:     groupID,
		Description: description,
		Amount:      amount,
		PaidBy:      paidBy,
	}
	if err := expense.Validate(); err != nil {
		return core.Expense{}, nil, err
	}

	created, err := s.store.InsertExpense(ctx, expense)
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("insert expense: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ExpenseRecorded(created.Amount.Cents)
	}

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return created, nil, fmt.Errorf("list members for split: %w", err)
	}

	memberIDs := make([]string, len(members))
	for i, m := range members {
		memberIDs[i] = m.UserID
	}

	splits := ComputeSplits(created.Amount, paidBy, memberIDs, s.policy)
	inserted := make([]core.Split, 0, len(splits))
	for _, sp := range splits {
		sp.ExpenseID = created.ID
		row, err := s.store.InsertSplit(ctx, sp)
		if err != nil {
			// No rollback: the expense and any earlier splits stand.
			return created, inserted, fmt.Errorf("insert split for %s: %w", sp.UserID, err)
		}
		inserted = append(inserted, row)
	}
	if s.metrics != nil && len(inserted) > 0 {
		s.metrics.SplitsCreated(len(inserted))
	}

	s.notifyRecorded(ctx, created)

	slog.InfoContext(ctx, "Expense recorded",
		applog.FieldExpenseID, created.ID,
		applog.FieldGroupID, groupID,
		applog.FieldAmountCents, created.Amount.Cents,
		"splits", len(inserted))

	return created, inserted, nil
}

func (s *Service) notifyRecorded(ctx context.Context, e core.Expense) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ExpenseRecorded(ctx, e); err != nil {
		slog.WarnContext(ctx, "Failed to queue expense export",
			applog.FieldExpenseID, e.ID, applog.FieldError, err)
	}
}

// YouOwe projects the user's unsettled splits joined to their expenses,
// most recent expense first.
func (s *Service) YouOwe(ctx context.Context, userID string) ([]Debt, error) {
	splits, err := s.store.ListSplitsByDebtor(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("list splits for debtor: %w", err)
	}
	if len(splits) == 0 {
		return nil, nil
	}

	expenseIDs := make([]string, 0, len(splits))
	for _, sp := range splits {
		expenseIDs = append(expenseIDs, sp.ExpenseID)
	}
	expenses, err := s.store.ListExpensesByIDs(ctx, expenseIDs)
	if err != nil {
		return nil, fmt.Errorf("join expenses: %w", err)
	}
	byID := make(map[string]core.Expense, len(expenses))
	for _, e := range expenses {
		byID[e.ID] = e
	}

	debts := make([]Debt, 0, len(splits))
	for _, sp := range splits {
		e, ok := byID[sp.ExpenseID]
		if !ok {
			continue // expense row missing; skip rather than invent context
		}
		debts = append(debts, Debt{Split: sp, Expense: e})
	}
	sortDebts(debts)
	return debts, nil
}

// OwedToYou projects unsettled splits on expenses the user paid, excluding
// any split the user might hold themselves, most recent expense first.
func (s *Service) OwedToYou(ctx context.Context, userID string) ([]Debt, error) {
	expenses, err := s.store.ListExpensesByPayer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses by payer: %w", err)
	}
	if len(expenses) == 0 {
		return nil, nil
	}

	expenseIDs := make([]string, len(expenses))
	byID := make(map[string]core.Expense, len(expenses))
	for i, e := range expenses {
		expenseIDs[i] = e.ID
		byID[e.ID] = e
	}

	splits, err := s.store.ListSplitsByExpenses(ctx, expenseIDs)
	if err != nil {
		return nil, fmt.Errorf("list splits for expenses: %w", err)
	}

	debts := make([]Debt, 0, len(splits))
	for _, sp := range splits {
		if sp.IsSettled || sp.UserID == userID {
			continue
		}
		debts = append(debts, Debt{Split: sp, Expense: byID[sp.ExpenseID]})
	}
	sortDebts(debts)
	return debts, nil
}

// TotalOwed sums what the user still owes across all groups.
func (s *Service) TotalOwed(ctx context.Context, userID string) (core.Money, error) {
	debts, err := s.YouOwe(ctx, userID)
	if err != nil {
		return core.Money{}, err
	}
	return sumDebts(debts), nil
}

// TotalOwedToYou sums what others still owe the user.
func (s *Service) TotalOwedToYou(ctx context.Context, userID string) (core.Money, error) {
	debts, err := s.OwedToYou(ctx, userID)
	if err != nil {
		return core.Money{}, err
	}
	return sumDebts(debts), nil
}

// Settle marks one split paid. Settlement is binary: no partial amounts,
// and no netting against debts running the other way.
func (s *Service) Settle(ctx context.Context, splitID string) error {
	if _, err := s.store.GetSplit(ctx, splitID); err != nil {
		return fmt.Errorf("settle split %s: %w", splitID, err)
	}
	if err := s.store.SettleSplit(ctx, splitID); err != nil {
		return fmt.Errorf("settle split %s: %w", splitID, err)
	}
	if s.metrics != nil {
		s.metrics.SplitSettled()
	}
	return nil
}

// RecentExpenses lists the group's expenses, most recent first.
func (s *Service) RecentExpenses(ctx context.Context, groupID string, limit int) ([]core.Expense, error) {
	expenses, err := s.store.ListExpenses(ctx, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

func sortDebts(debts []Debt) {
	sort.SliceStable(debts, func(i, j int) bool {
		return debts[i].Expense.CreatedAt.After(debts[j].Expense.CreatedAt)
	})
}

func sumDebts(debts []Debt) core.Money {
	var total int64
	for _, d := range debts {
		total += d.Split.Amount.Cents
	}
	return core.Money{Cents: total}
}
