package core

import (
	"errors"
	"strings"
	"time"
)

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"

	ListActive   ListStatus = "active"
	ListArchived ListStatus = "archived"
)

type (
	MessageType string

	ListStatus string

	// Profile is the public identity of a household member.
	Profile struct {
		ID          string
		DisplayName string
	}

	Group struct {
		ID         string
		Name       string
		InviteCode string
		CreatedBy  string
		CreatedAt  time.Time
	}

	Membership struct {
		GroupID  string
		UserID   string
		JoinedAt time.Time
	}

	Message struct {
		ID        string
		GroupID   string
		UserID    string
		Content   string
		Type      MessageType
		CreatedAt time.Time
	}

	ShoppingList struct {
		ID        string
		GroupID   string
		Name      string
		Status    ListStatus
		CreatedBy string
		CreatedAt time.Time
	}

	ListItem struct {
		ID                 string
		ListID             string
		Name               string
		Category           string
		Quantity           float64
		Unit               string
		IsChecked          bool
		AddedBy            string
		CheckedBy          string
		PriceEstimateCents int64
		Notes              string
		CreatedAt          time.Time
	}

	CalendarEvent struct {
		ID        string
		GroupID   string
		Title     string
		StartsAt  time.Time
		EndsAt    time.Time
		CreatedBy string
		CreatedAt time.Time
	}

	// Expense is immutable once created. There is no edit or delete path.
	Expense struct {
		ID          string
		GroupID     string
		Description string
		Amount      Money
		PaidBy      string
		CreatedAt   time.Time
	}

	// Split is one member's share of an Expense. The payer never holds a
	// Split for their own expense; their share stays implicit.
	Split struct {
		ID        string
		ExpenseID string
		UserID    string
		Amount    Money
		IsSettled bool
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyMessage     = errors.New("empty message")
	ErrEmptyName        = errors.New("empty name")
	ErrMissingGroup     = errors.New("missing group id")
	ErrMissingUser      = errors.New("missing user id")
	ErrNotFound         = errors.New("not found")
)

// EntityID implements realtime.Entity.
func (m Message) EntityID() string { return m.ID }

// EntityCreatedAt implements realtime.Entity.
func (m Message) EntityCreatedAt() time.Time { return m.CreatedAt }

func (l ShoppingList) EntityID() string            { return l.ID }
func (l ShoppingList) EntityCreatedAt() time.Time  { return l.CreatedAt }
func (i ListItem) EntityID() string                { return i.ID }
func (i ListItem) EntityCreatedAt() time.Time      { return i.CreatedAt }
func (e CalendarEvent) EntityID() string           { return e.ID }
func (e CalendarEvent) EntityCreatedAt() time.Time { return e.CreatedAt }
func (e Expense) EntityID() string                 { return e.ID }
func (e Expense) EntityCreatedAt() time.Time       { return e.CreatedAt }

func (m Message) Validate() error {
	if len(strings.TrimSpace(m.Content)) == 0 {
		return ErrEmptyMessage
	}
	if len(m.Content) > 4000 {
		return errors.New("message too long (max 4000 characters)")
	}
	if m.GroupID == "" {
		return ErrMissingGroup
	}
	if m.UserID == "" {
		return ErrMissingUser
	}
	return nil
}

func (l ShoppingList) Validate() error {
	if len(strings.TrimSpace(l.Name)) == 0 {
		return ErrEmptyName
	}
	if len(l.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if l.GroupID == "" {
		return ErrMissingGroup
	}
	return nil
}

func (i ListItem) Validate() error {
	if len(strings.TrimSpace(i.Name)) == 0 {
		return ErrEmptyName
	}
	if i.ListID == "" {
		return errors.New("missing list id")
	}
	if i.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return nil
}

func (e CalendarEvent) Validate() error {
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyName
	}
	if e.GroupID == "" {
		return ErrMissingGroup
	}
	if e.StartsAt.IsZero() {
		return errors.New("missing start time")
	}
	if !e.EndsAt.IsZero() && e.EndsAt.Before(e.StartsAt) {
		return errors.New("end time before start time")
	}
	return nil
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.GroupID == "" {
		return ErrMissingGroup
	}
	if e.PaidBy == "" {
		return ErrMissingUser
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
