// Package memory is a map-backed implementation of the store contract.
// It backs local development and package tests; writes flow through the
// same change hub as the sqlite store so realtime behavior matches.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hearth/internal/core"
	"hearth/internal/store"
)

type Store struct {
	mu sync.Mutex

	profiles map[string]core.Profile
	groups   map[string]core.Group
	members  []core.Membership
	messages map[string]core.Message
	lists    map[string]core.ShoppingList
	items    map[string]core.ListItem
	events   map[string]core.CalendarEvent
	expenses map[string]core.Expense
	splits   map[string]core.Split

	hub *store.Hub
}

func New() *Store {
	return &Store{
		profiles: make(map[string]core.Profile),
		groups:   make(map[string]core.Group),
		messages: make(map[string]core.Message),
		lists:    make(map[string]core.ShoppingList),
		items:    make(map[string]core.ListItem),
		events:   make(map[string]core.CalendarEvent),
		expenses: make(map[string]core.Expense),
		splits:   make(map[string]core.Split),
		hub:      store.NewHub(),
	}
}

// Hub exposes the change hub so the AMQP bridge can tap local writes.
func (s *Store) Hub() *store.Hub { return s.hub }

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) Subscribe(collection, scope string) (store.Subscription, error) {
	return s.hub.Subscribe(collection, scope), nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// --- Profiles ---

func (s *Store) GetProfile(_ context.Context, id string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return core.Profile{}, core.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProfiles(_ context.Context, ids []string) ([]core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) UpsertProfile(_ context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

// --- Groups and membership ---

func (s *Store) CreateGroup(_ context.Context, g core.Group) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = newID(g.ID)
	g.CreatedAt = stamp(g.CreatedAt)
	if g.InviteCode == "" {
		g.InviteCode = strings.ToUpper(uuid.NewString()[:8])
	}
	s.groups[g.ID] = g
	s.members = append(s.members, core.Membership{
		GroupID:  g.ID,
		UserID:   g.CreatedBy,
		JoinedAt: g.CreatedAt,
	})
	return g, nil
}

func (s *Store) GetGroupByInviteCode(_ context.Context, code string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if strings.EqualFold(g.InviteCode, code) {
			return g, nil
		}
	}
	return core.Group{}, core.ErrNotFound
}

func (s *Store) ListGroups(_ context.Context, userID string) ([]core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Group
	for _, m := range s.members {
		if m.UserID != userID {
			continue
		}
		if g, ok := s.groups[m.GroupID]; ok {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AddMember(_ context.Context, m core.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.GroupID == m.GroupID && existing.UserID == m.UserID {
			return nil // already a member
		}
	}
	m.JoinedAt = stamp(m.JoinedAt)
	s.members = append(s.members, m)
	return nil
}

func (s *Store) ListMembers(_ context.Context, groupID string) ([]core.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Membership
	for _, m := range s.members {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- Messages ---

func (s *Store) ListMessages(_ context.Context, groupID string, limit int) ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Message
	for _, m := range s.messages {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) InsertMessage(_ context.Context, m core.Message) (core.Message, error) {
	s.mu.Lock()
	m.ID = newID(m.ID)
	m.CreatedAt = stamp(m.CreatedAt)
	if m.Type == "" {
		m.Type = core.MessageText
	}
	s.messages[m.ID] = m
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionMessages,
		Scope:      m.GroupID,
		Kind:       store.ChangeInsert,
		RowID:      m.ID,
		Row:        m,
	})
	return m, nil
}

// --- Shopping lists ---

func (s *Store) ListShoppingLists(_ context.Context, groupID string) ([]core.ShoppingList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ShoppingList
	for _, l := range s.lists {
		if groupID == "" || l.GroupID == groupID {
			out = append(out, l)
		}
	}
	// Collection view: most recent first.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) InsertShoppingList(_ context.Context, l core.ShoppingList) (core.ShoppingList, error) {
	s.mu.Lock()
	l.ID = newID(l.ID)
	l.CreatedAt = stamp(l.CreatedAt)
	if l.Status == "" {
		l.Status = core.ListActive
	}
	s.lists[l.ID] = l
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionShoppingLists,
		Scope:      l.GroupID,
		Kind:       store.ChangeInsert,
		RowID:      l.ID,
		Row:        l,
	})
	return l, nil
}

func (s *Store) UpdateShoppingList(_ context.Context, l core.ShoppingList) error {
	s.mu.Lock()
	existing, ok := s.lists[l.ID]
	if !ok {
		s.mu.Unlock()
		return core.ErrNotFound
	}
	l.CreatedAt = existing.CreatedAt
	l.GroupID = existing.GroupID
	l.CreatedBy = existing.CreatedBy
	s.lists[l.ID] = l
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionShoppingLists,
		Scope:      l.GroupID,
		Kind:       store.ChangeUpdate,
		RowID:      l.ID,
		Row:        l,
	})
	return nil
}

func (s *Store) DeleteShoppingList(_ context.Context, id string) error {
	s.mu.Lock()
	l, ok := s.lists[id]
	if !ok {
		s.mu.Unlock()
		return core.ErrNotFound
	}
	delete(s.lists, id)
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionShoppingLists,
		Scope:      l.GroupID,
		Kind:       store.ChangeDelete,
		RowID:      id,
	})
	return nil
}

// --- List items ---

func (s *Store) ListItems(_ context.Context, listID string) ([]core.ListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ListItem
	for _, i := range s.items {
		if i.ListID == listID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetListItem(_ context.Context, id string) (core.ListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.items[id]
	if !ok {
		return core.ListItem{}, core.ErrNotFound
	}
	return i, nil
}

func (s *Store) InsertListItem(_ context.Context, i core.ListItem) (core.ListItem, error) {
	s.mu.Lock()
	i.ID = newID(i.ID)
	i.CreatedAt = stamp(i.CreatedAt)
	s.items[i.ID] = i
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionListItems,
		Scope:      i.ListID,
		Kind:       store.ChangeInsert,
		RowID:      i.ID,
		Row:        i,
	})
	return i, nil
}

func (s *Store) UpdateListItem(_ context.Context, i core.ListItem) error {
	s.mu.Lock()
	existing, ok := s.items[i.ID]
	if !ok {
		s.mu.Unlock()
		return core.ErrNotFound
	}
	i.CreatedAt = existing.CreatedAt
	i.ListID = existing.ListID
	i.AddedBy = existing.AddedBy
	s.items[i.ID] = i
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionListItems,
		Scope:      i.ListID,
		Kind:       store.ChangeUpdate,
		RowID:      i.ID,
		Row:        i,
	})
	return nil
}

func (s *Store) DeleteListItem(_ context.Context, id string) error {
	s.mu.Lock()
	i, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return core.ErrNotFound
	}
	delete(s.items, id)
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionListItems,
		Scope:      i.ListID,
		Kind:       store.ChangeDelete,
		RowID:      id,
	})
	return nil
}

// --- Calendar events ---

func (s *Store) ListCalendarEvents(_ context.Context, groupID string) ([]core.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.CalendarEvent
	for _, e := range s.events {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (s *Store) InsertCalendarEvent(_ context.Context, e core.CalendarEvent) (core.CalendarEvent, error) {
	s.mu.Lock()
	e.ID = newID(e.ID)
	e.CreatedAt = stamp(e.CreatedAt)
	s.events[e.ID] = e
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionCalendar,
		Scope:      e.GroupID,
		Kind:       store.ChangeInsert,
		RowID:      e.ID,
		Row:        e,
	})
	return e, nil
}

func (s *Store) DeleteCalendarEvent(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.events[id]
	if !ok {
		s.mu.Unlock()
		return core.ErrNotFound
	}
	delete(s.events, id)
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionCalendar,
		Scope:      e.GroupID,
		Kind:       store.ChangeDelete,
		RowID:      id,
	})
	return nil
}

// --- Ledger relation ---

func (s *Store) InsertExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	e.ID = newID(e.ID)
	e.CreatedAt = stamp(e.CreatedAt)
	s.expenses[e.ID] = e
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionExpenses,
		Scope:      e.GroupID,
		Kind:       store.ChangeInsert,
		RowID:      e.ID,
		Row:        e,
	})
	return e, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, core.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, groupID string, limit int) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if groupID == "" || e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListExpensesByPayer(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.PaidBy == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListExpensesByIDs(_ context.Context, ids []string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.expenses[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) InsertSplit(_ context.Context, sp core.Split) (core.Split, error) {
	s.mu.Lock()
	sp.ID = newID(sp.ID)
	expense, ok := s.expenses[sp.ExpenseID]
	if !ok {
		s.mu.Unlock()
		return core.Split{}, core.ErrNotFound
	}
	s.splits[sp.ID] = sp
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionSplits,
		Scope:      expense.GroupID,
		Kind:       store.ChangeInsert,
		RowID:      sp.ID,
		Row:        sp,
	})
	return sp, nil
}

func (s *Store) GetSplit(_ context.Context, id string) (core.Split, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.splits[id]
	if !ok {
		return core.Split{}, core.ErrNotFound
	}
	return sp, nil
}

func (s *Store) ListSplitsByDebtor(_ context.Context, userID string, unsettledOnly bool) ([]core.Split, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Split
	for _, sp := range s.splits {
		if sp.UserID != userID {
			continue
		}
		if unsettledOnly && sp.IsSettled {
			continue
		}
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListSplitsByExpenses(_ context.Context, expenseIDs []string) ([]core.Split, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(expenseIDs))
	for _, id := range expenseIDs {
		want[id] = true
	}
	var out []core.Split
	for _, sp := range s.splits {
		if want[sp.ExpenseID] {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SettleSplit(_ context.Context, id string) error {
	s.mu.Lock()
	sp, ok := s.splits[id]
	if !ok {
		s.mu.Unlock()
		return core.ErrNotFound
	}
	sp.IsSettled = true
	s.splits[id] = sp
	expense := s.expenses[sp.ExpenseID]
	s.mu.Unlock()

	s.hub.Publish(store.Change{
		Collection: store.CollectionSplits,
		Scope:      expense.GroupID,
		Kind:       store.ChangeUpdate,
		RowID:      sp.ID,
		Row:        sp,
	})
	return nil
}

var _ store.Store = (*Store)(nil)
