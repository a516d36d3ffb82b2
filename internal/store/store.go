// Package store defines the remote-store contract the rest of the
// application is written against: typed reads/writes per collection plus a
// per-scope push subscription yielding row-level change events.
package store

import (
	"context"

	"hearth/internal/core"
)

// Collection names, shared between the sqlite schema, the change hub and
// the AMQP bridge routing keys.
const (
	CollectionMessages      = "messages"
	CollectionShoppingLists = "shopping_lists"
	CollectionListItems     = "list_items"
	CollectionCalendar      = "calendar_events"
	CollectionExpenses      = "expenses"
	CollectionSplits        = "expense_splits"
)

// ChangeKind discriminates row-level change events.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is a single row-level change event. Row carries the complete new
// row for inserts and updates (full-row replace, never a field patch). For
// deletes only RowID is meaningful.
type Change struct {
	Collection string
	Scope      string
	Kind       ChangeKind
	RowID      string
	Row        any

	// Origin is empty for changes produced by this process. The AMQP
	// bridge stamps re-injected remote changes with the emitting instance
	// id so they are never published back out.
	Origin string
}

// Status reports push-channel state transitions to the subscriber.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusSubscribed Status = "subscribed"
	StatusError      Status = "error"
)

// Subscription is a live push channel for one (collection, scope) pair.
// Close is idempotent and releases the channel unconditionally.
type Subscription interface {
	// Status emits connecting/subscribed/error transitions.
	Status() <-chan Status

	// Events emits change events matching the subscription filter.
	Events() <-chan Change

	Close()
}

// Store is the hosted relational store the views and the ledger read and
// write. Every call may suspend on the network; none retries on its own.
type Store interface {
	// Profiles
	GetProfile(ctx context.Context, id string) (core.Profile, error)
	ListProfiles(ctx context.Context, ids []string) ([]core.Profile, error)
	UpsertProfile(ctx context.Context, p core.Profile) error

	// Groups and membership
	CreateGroup(ctx context.Context, g core.Group) (core.Group, error)
	GetGroupByInviteCode(ctx context.Context, code string) (core.Group, error)
	ListGroups(ctx context.Context, userID string) ([]core.Group, error)
	AddMember(ctx context.Context, m core.Membership) error
	ListMembers(ctx context.Context, groupID string) ([]core.Membership, error)

	// Chat transcript, chronological ascending, capped at limit.
	ListMessages(ctx context.Context, groupID string, limit int) ([]core.Message, error)
	InsertMessage(ctx context.Context, m core.Message) (core.Message, error)

	// Shopping list collection, most recent first.
	ListShoppingLists(ctx context.Context, groupID string) ([]core.ShoppingList, error)
	InsertShoppingList(ctx context.Context, l core.ShoppingList) (core.ShoppingList, error)
	UpdateShoppingList(ctx context.Context, l core.ShoppingList) error
	DeleteShoppingList(ctx context.Context, id string) error

	// List items, chronological ascending.
	ListItems(ctx context.Context, listID string) ([]core.ListItem, error)
	GetListItem(ctx context.Context, id string) (core.ListItem, error)
	InsertListItem(ctx context.Context, i core.ListItem) (core.ListItem, error)
	UpdateListItem(ctx context.Context, i core.ListItem) error
	DeleteListItem(ctx context.Context, id string) error

	// Calendar events, ascending by start time.
	ListCalendarEvents(ctx context.Context, groupID string) ([]core.CalendarEvent, error)
	InsertCalendarEvent(ctx context.Context, e core.CalendarEvent) (core.CalendarEvent, error)
	DeleteCalendarEvent(ctx context.Context, id string) error

	// Ledger relation. Expenses are append-only.
	InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	ListExpenses(ctx context.Context, groupID string, limit int) ([]core.Expense, error)
	ListExpensesByIDs(ctx context.Context, ids []string) ([]core.Expense, error)
	ListExpensesByPayer(ctx context.Context, userID string) ([]core.Expense, error)
	InsertSplit(ctx context.Context, s core.Split) (core.Split, error)
	GetSplit(ctx context.Context, id string) (core.Split, error)
	ListSplitsByDebtor(ctx context.Context, userID string, unsettledOnly bool) ([]core.Split, error)
	ListSplitsByExpenses(ctx context.Context, expenseIDs []string) ([]core.Split, error)
	SettleSplit(ctx context.Context, id string) error

	// Subscribe opens a push channel filtered to (collection, scope).
	// An empty scope matches every scope of the collection.
	Subscribe(collection, scope string) (Subscription, error)

	Close() error
}
