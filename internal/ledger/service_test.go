package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"hearth/internal/core"
	"hearth/internal/store/memory"
)

func setupGroup(t *testing.T, st *memory.Store, members ...string) core.Group {
	t.Helper()
	ctx := context.Background()
	g, err := st.CreateGroup(ctx, core.Group{Name: "Household", CreatedBy: members[0]})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	for _, userID := range members[1:] {
		if err := st.AddMember(ctx, core.Membership{GroupID: g.ID, UserID: userID}); err != nil {
			t.Fatalf("AddMember %s: %v", userID, err)
		}
	}
	return g
}

func TestRecordExpenseSplitsEvenly(t *testing.T) {
	st := memory.New()
	g := setupGroup(t, st, "alice", "bob", "carol")
	svc := NewService(st, PolicyIndependent, nil, nil)

	expense, splits, err := svc.RecordExpense(context.Background(), g.ID, "alice", "Costco", core.Money{Cents: 3000})
	if err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if expense.ID == "" {
		t.Fatalf("expense id not assigned")
	}
	if len(splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(splits))
	}
	for _, sp := range splits {
		if sp.UserID == "alice" {
			t.Fatalf("payer received a split")
		}
		if sp.Amount.Cents != 1000 {
			t.Fatalf("expected 10.00 split, got %s", sp.Amount)
		}
		if sp.ExpenseID != expense.ID {
			t.Fatalf("split not linked to expense")
		}
	}
}

func TestRecordExpenseSingleMemberGroup(t *testing.T) {
	st := memory.New()
	g := setupGroup(t, st, "alice")
	svc := NewService(st, PolicyIndependent, nil, nil)

	_, splits, err := svc.RecordExpense(context.Background(), g.ID, "alice", "Solo groceries", core.Money{Cents: 1299})
	if err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if len(splits) != 0 {
		t.Fatalf("expected zero splits, got %d", len(splits))
	}
}

func TestRecordExpenseRejectsInvalidInput(t *testing.T) {
	st := memory.New()
	g := setupGroup(t, st, "alice", "bob")
	svc := NewService(st, PolicyIndependent, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name        string
		description string
		amount      core.Money
	}{
		{"empty description", "", core.Money{Cents: 100}},
		{"zero amount", "Rent", core.Money{Cents: 0}},
		{"negative amount", "Rent", core.Money{Cents: -100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.RecordExpense(ctx, g.ID, "alice", tc.description, tc.amount); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	// Nothing reached the store.
	expenses, err := st.ListExpenses(ctx, g.ID, 0)
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(expenses) != 0 {
		t.Fatalf("validation failures must not write expenses, found %d", len(expenses))
	}
}

// failingSplitStore lets the expense through, then fails split inserts
// after a threshold.
type failingSplitStore struct {
	*memory.Store
	failAfter int
	inserted  int
}

func (f *failingSplitStore) InsertSplit(ctx context.Context, sp core.Split) (core.Split, error) {
	if f.inserted >= f.failAfter {
		return core.Split{}, errors.New("store write refused")
	}
	f.inserted++
	return f.Store.InsertSplit(ctx, sp)
}

func TestRecordExpensePartialSplitFailure(t *testing.T) {
	st := memory.New()
	g := setupGroup(t, st, "alice", "bob", "carol")
	failing := &failingSplitStore{Store: st, failAfter: 1}
	svc := NewService(failing, PolicyIndependent, nil, nil)
	ctx := context.Background()

	expense, splits, err := svc.RecordExpense(ctx, g.ID, "alice", "Utilities", core.Money{Cents: 3000})
	if err == nil {
		t.Fatalf("expected error from split insert failure")
	}

	// No rollback: the expense and the first split stand.
	if expense.ID == "" {
		t.Fatalf("expense should have been created before the failure")
	}
	if len(splits) != 1 {
		t.Fatalf("expected 1 surviving split, got %d", len(splits))
	}
	stored, err := st.GetExpense(ctx, expense.ID)
	if err != nil || stored.ID != expense.ID {
		t.Fatalf("expense missing from store after partial failure: %v", err)
	}
}

func TestSettlementProjections(t *testing.T) {
	st := memory.New()
	g := setupGroup(t, st, "alice", "bob", "carol")
	svc := NewService(st, PolicyIndependent, nil, nil)
	ctx := context.Background()

	// Expense(amount=9.00, payer=alice) with 3.00 splits for bob and carol.
	_, splits, err := svc.RecordExpense(ctx, g.ID, "alice", "Dinner", core.Money{Cents: 900})
	if err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if len(splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(splits))
	}

	owes, err := svc.YouOwe(ctx, "bob")
	if err != nil {
		t.Fatalf("YouOwe: %v", err)
	}
	if len(owes) != 1 || owes[0].Split.Amount.Cents != 300 {
		t.Fatalf("expected bob to owe one 3.00 split, got %+v", owes)
	}
	if owes[0].Expense.PaidBy != "alice" {
		t.Fatalf("debt missing expense context")
	}

	owed, err := svc.OwedToYou(ctx, "alice")
	if err != nil {
		t.Fatalf("OwedToYou: %v", err)
	}
	if len(owed) != 2 {
		t.Fatalf("expected 2 debts owed to alice, got %d", len(owed))
	}

	total, err := svc.TotalOwedToYou(ctx, "alice")
	if err != nil {
		t.Fatalf("TotalOwedToYou: %v", err)
	}
	if total.Cents != 600 {
		t.Fatalf("expected 6.00 owed to alice, got %s", total)
	}

	totalOwed, err := svc.TotalOwed(ctx, "bob")
	if err != nil {
		t.Fatalf("TotalOwed: %v", err)
	}
	if totalOwed.Cents != 300 {
		t.Fatalf("expected bob to owe 3.00, got %s", totalOwed)
	}

	// Settling bob's split removes it from every projection.
	var bobSplit core.Split
	for _, sp := range splits {
		if sp.UserID == "bob" {
			bobSplit = sp
		}
	}
	if err := svc.Settle(ctx, bobSplit.ID); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	owes, err = svc.YouOwe(ctx, "bob")
	if err != nil {
		t.Fatalf("YouOwe after settle: %v", err)
	}
	if len(owes) != 0 {
		t.Fatalf("settled split still projected: %+v", owes)
	}
	total, err = svc.TotalOwedToYou(ctx, "alice")
	if err != nil {
		t.Fatalf("TotalOwedToYou after settle: %v", err)
	}
	if total.Cents != 300 {
		t.Fatalf("expected 3.00 after settlement, got %s", total)
	}
}

func TestDebtsAreNeverNetted(t *testing.T) {
	st := memory.New()
	g := setupGroup(t, st, "alice", "bob")
	svc := NewService(st, PolicyIndependent, nil, nil)
	ctx := context.Background()

	// Alice pays one expense, bob pays another. The opposing debts stay
	// separate; nothing cancels out.
	if _, _, err := svc.RecordExpense(ctx, g.ID, "alice", "Groceries", core.Money{Cents: 2000}); err != nil {
		t.Fatalf("RecordExpense alice: %v", err)
	}
	if _, _, err := svc.RecordExpense(ctx, g.ID, "bob", "Internet", core.Money{Cents: 4000}); err != nil {
		t.Fatalf("RecordExpense bob: %v", err)
	}

	bobOwes, err := svc.TotalOwed(ctx, "bob")
	if err != nil {
		t.Fatalf("TotalOwed bob: %v", err)
	}
	aliceOwes, err := svc.TotalOwed(ctx, "alice")
	if err != nil {
		t.Fatalf("TotalOwed alice: %v", err)
	}
	if bobOwes.Cents != 1000 || aliceOwes.Cents != 2000 {
		t.Fatalf("expected 10.00 and 20.00 outstanding, got %s and %s", bobOwes, aliceOwes)
	}
}

func TestYouOweSortedMostRecentFirst(t *testing.T) {
	st := memory.New()
	g := setupGroup(t, st, "alice", "bob")
	ctx := context.Background()

	old := core.Expense{GroupID: g.ID, Description: "Old", Amount: core.Money{Cents: 1000}, PaidBy: "alice",
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	recent := core.Expense{GroupID: g.ID, Description: "Recent", Amount: core.Money{Cents: 2000}, PaidBy: "alice",
		CreatedAt: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)}

	oldRow, err := st.InsertExpense(ctx, old)
	if err != nil {
		t.Fatalf("InsertExpense: %v", err)
	}
	recentRow, err := st.InsertExpense(ctx, recent)
	if err != nil {
		t.Fatalf("InsertExpense: %v", err)
	}
	for _, expenseID := range []string{oldRow.ID, recentRow.ID} {
		if _, err := st.InsertSplit(ctx, core.Split{ExpenseID: expenseID, UserID: "bob", Amount: core.Money{Cents: 500}}); err != nil {
			t.Fatalf("InsertSplit: %v", err)
		}
	}

	svc := NewService(st, PolicyIndependent, nil, nil)
	debts, err := svc.YouOwe(ctx, "bob")
	if err != nil {
		t.Fatalf("YouOwe: %v", err)
	}
	if len(debts) != 2 {
		t.Fatalf("expected 2 debts, got %d", len(debts))
	}
	if debts[0].Expense.Description != "Recent" {
		t.Fatalf("expected most recent expense first, got %q", debts[0].Expense.Description)
	}
}

// recordingNotifier captures export notifications.
type recordingNotifier struct {
	recorded []core.Expense
	err      error
}

func (n *recordingNotifier) ExpenseRecorded(_ context.Context, e core.Expense) error {
	n.recorded = append(n.recorded, e)
	return n.err
}

func TestRecordExpenseNotifiesExporter(t *testing.T) {
	st := memory.New()
	g := setupGroup(t, st, "alice", "bob")
	notifier := &recordingNotifier{}
	svc := NewService(st, PolicyIndependent, notifier, nil)

	expense, _, err := svc.RecordExpense(context.Background(), g.ID, "alice", "Cleaning", core.Money{Cents: 1500})
	if err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if len(notifier.recorded) != 1 || notifier.recorded[0].ID != expense.ID {
		t.Fatalf("exporter not notified: %+v", notifier.recorded)
	}
}

func TestRecordExpenseNotifierFailureIsAbsorbed(t *testing.T) {
	st := memory.New()
	g := setupGroup(t, st, "alice", "bob")
	notifier := &recordingNotifier{err: errors.New("broker down")}
	svc := NewService(st, PolicyIndependent, notifier, nil)

	if _, _, err := svc.RecordExpense(context.Background(), g.ID, "alice", "Cleaning", core.Money{Cents: 1500}); err != nil {
		t.Fatalf("notifier failure must not fail the recording: %v", err)
	}
}

func TestSettleUnknownSplit(t *testing.T) {
	st := memory.New()
	svc := NewService(st, PolicyIndependent, nil, nil)
	if err := svc.Settle(context.Background(), "no-such-split"); err == nil {
		t.Fatalf("expected error for unknown split")
	}
}
