package core

import (
	"testing"
	"time"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestMessageValidate(t *testing.T) {
	good := Message{GroupID: "g1", UserID: "u1", Content: "hello", Type: MessageText}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Message{
		{GroupID: "g1", UserID: "u1", Content: "   "},
		{GroupID: "", UserID: "u1", Content: "hello"},
		{GroupID: "g1", UserID: "", Content: "hello"},
	}
	for i, m := range bads {
		if err := m.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		GroupID:     "g1",
		Description: "Costco run",
		Amount:      Money{Cents: 3000},
		PaidBy:      "u1",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{GroupID: "g1", Description: "", Amount: Money{Cents: 1}, PaidBy: "u1"},
		{GroupID: "g1", Description: "a", Amount: Money{Cents: 0}, PaidBy: "u1"},
		{GroupID: "", Description: "a", Amount: Money{Cents: 1}, PaidBy: "u1"},
		{GroupID: "g1", Description: "a", Amount: Money{Cents: 1}, PaidBy: ""},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestListItemValidate(t *testing.T) {
	good := ListItem{ListID: "l1", Name: "Milk", Category: "dairy", Quantity: 1, AddedBy: "u1"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (ListItem{ListID: "l1", Name: "", Quantity: 1}).Validate(); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := (ListItem{ListID: "l1", Name: "Milk", Quantity: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero quantity")
	}
}

func TestCalendarEventValidate(t *testing.T) {
	start := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	good := CalendarEvent{GroupID: "g1", Title: "Dinner", StartsAt: start, EndsAt: start.Add(time.Hour)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := CalendarEvent{GroupID: "g1", Title: "Dinner", StartsAt: start, EndsAt: start.Add(-time.Hour)}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for end before start")
	}
}
