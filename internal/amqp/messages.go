package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"hearth/internal/core"
	"hearth/internal/store"
)

// ChangeMessage is the wire form of a store change on the fanout exchange.
// Origin names the publishing instance so consumers can drop their own
// echoes.
type ChangeMessage struct {
	Collection string          `json:"collection"`
	Scope      string          `json:"scope"`
	Kind       string          `json:"kind"`
	RowID      string          `json:"row_id"`
	Origin     string          `json:"origin"`
	Row        json.RawMessage `json:"row,omitempty"`
}

// EncodeChange serializes a local change, stamping it with this instance's
// id as the origin.
func EncodeChange(ch store.Change, origin string) ([]byte, error) {
	msg := ChangeMessage{
		Collection: ch.Collection,
		Scope:      ch.Scope,
		Kind:       string(ch.Kind),
		RowID:      ch.RowID,
		Origin:     origin,
	}
	if ch.Row != nil {
		raw, err := json.Marshal(ch.Row)
		if err != nil {
			return nil, fmt.Errorf("marshal row: %w", err)
		}
		msg.Row = raw
	}
	return json.Marshal(msg)
}

// DecodeChange deserializes a wire change back into a typed store.Change.
// The row payload is decoded by collection; an unknown collection is an
// error rather than a silently untyped row.
func DecodeChange(body []byte) (store.Change, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return store.Change{}, fmt.Errorf("unmarshal change: %w", err)
	}

	ch := store.Change{
		Collection: msg.Collection,
		Scope:      msg.Scope,
		Kind:       store.ChangeKind(msg.Kind),
		RowID:      msg.RowID,
		Origin:     msg.Origin,
	}
	if len(msg.Row) == 0 {
		return ch, nil
	}

	row, err := decodeRow(msg.Collection, msg.Row)
	if err != nil {
		return store.Change{}, err
	}
	ch.Row = row
	return ch, nil
}

func decodeRow(collection string, raw json.RawMessage) (any, error) {
	switch collection {
	case store.CollectionMessages:
		var row core.Message
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("unmarshal message row: %w", err)
		}
		return row, nil
	case store.CollectionShoppingLists:
		var row core.ShoppingList
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("unmarshal shopping list row: %w", err)
		}
		return row, nil
	case store.CollectionListItems:
		var row core.ListItem
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("unmarshal list item row: %w", err)
		}
		return row, nil
	case store.CollectionCalendar:
		var row core.CalendarEvent
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("unmarshal calendar event row: %w", err)
		}
		return row, nil
	case store.CollectionExpenses:
		var row core.Expense
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("unmarshal expense row: %w", err)
		}
		return row, nil
	case store.CollectionSplits:
		var row core.Split
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("unmarshal split row: %w", err)
		}
		return row, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
}

// ExpenseExportMessage queues one recorded expense for the sheets exporter.
// It carries everything the exporter needs; the worker never reads the
// store.
type ExpenseExportMessage struct {
	ExpenseID   string    `json:"expense_id"`
	GroupID     string    `json:"group_id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	PaidByName  string    `json:"paid_by_name"`
	Date        time.Time `json:"date"`
}

func NewExpenseExportMessage(e core.Expense, paidByName string) *ExpenseExportMessage {
	return &ExpenseExportMessage{
		ExpenseID:   e.ID,
		GroupID:     e.GroupID,
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		PaidByName:  paidByName,
		Date:        e.CreatedAt,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseExportMessageFromJSON creates a message from JSON bytes
func ExpenseExportMessageFromJSON(data []byte) (*ExpenseExportMessage, error) {
	var msg ExpenseExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
