// Package sqlite implements the store contract on an embedded SQLite
// database. Every confirmed write publishes its change event through the
// shared hub, so push subscriptions behave the same as against the memory
// store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"hearth/internal/core"
	"hearth/internal/store"
)

type Store struct {
	db  *sql.DB
	hub *store.Hub
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Single writer; the driver serializes anyway and this avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, hub: store.NewHub()}, nil
}

// Hub exposes the change hub so the AMQP bridge can tap local writes.
func (s *Store) Hub() *store.Hub { return s.hub }

func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

func (s *Store) Subscribe(collection, scope string) (store.Subscription, error) {
	return s.hub.Subscribe(collection, scope), nil
}

var _ store.Store = (*Store)(nil)

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

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

// --- Profiles ---

func (s *Store) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	var p core.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.DisplayName)
	if err != nil {
		return core.Profile{}, mapNotFound(err)
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context, ids []string) ([]core.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name FROM profiles WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []core.Profile
	for rows.Next() {
		var p core.Profile
		if err := rows.Scan(&p.ID, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpsertProfile(ctx context.Context, p core.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, display_name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name`,
		p.ID, p.DisplayName)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// --- Groups and membership ---

func (s *Store) CreateGroup(ctx context.Context, g core.Group) (core.Group, error) {
	g.ID = newID(g.ID)
	g.CreatedAt = stamp(g.CreatedAt)
	if g.InviteCode == "" {
		g.InviteCode = strings.ToUpper(uuid.NewString()[:8])
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Group{}, fmt.Errorf("begin create group: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, invite_code, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.InviteCode, g.CreatedBy, encodeTime(g.CreatedAt)); err != nil {
		return core.Group{}, fmt.Errorf("insert group: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		g.ID, g.CreatedBy, encodeTime(g.CreatedAt)); err != nil {
		return core.Group{}, fmt.Errorf("insert creator membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Group{}, fmt.Errorf("commit create group: %w", err)
	}
	return g, nil
}

func (s *Store) GetGroupByInviteCode(ctx context.Context, code string) (core.Group, error) {
	var g core.Group
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, invite_code, created_by, created_at FROM groups
		 WHERE invite_code = ? COLLATE NOCASE`, code).
		Scan(&g.ID, &g.Name, &g.InviteCode, &g.CreatedBy, &createdAt)
	if err != nil {
		return core.Group{}, mapNotFound(err)
	}
	g.CreatedAt = decodeTime(createdAt)
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context, userID string) ([]core.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.invite_code, g.created_by, g.created_at
		 FROM groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY g.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []core.Group
	for rows.Next() {
		var g core.Group
		var createdAt string
		if err := rows.Scan(&g.ID, &g.Name, &g.InviteCode, &g.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.CreatedAt = decodeTime(createdAt)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) AddMember(ctx context.Context, m core.Membership) error {
	m.JoinedAt = stamp(m.JoinedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)
		 ON CONFLICT(group_id, user_id) DO NOTHING`,
		m.GroupID, m.UserID, encodeTime(m.JoinedAt))
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, groupID string) ([]core.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, user_id, joined_at FROM group_members
		 WHERE group_id = ? ORDER BY joined_at ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []core.Membership
	for rows.Next() {
		var m core.Membership
		var joinedAt string
		if err := rows.Scan(&m.GroupID, &m.UserID, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.JoinedAt = decodeTime(joinedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Messages ---

func (s *Store) ListMessages(ctx context.Context, groupID string, limit int) ([]core.Message, error) {
	query := `SELECT id, group_id, user_id, content, type, created_at FROM messages
	          WHERE group_id = ? ORDER BY created_at ASC`
	args := []any{groupID}
	if limit > 0 {
		// Keep the most recent rows while preserving ascending order.
		query = `SELECT id, group_id, user_id, content, type, created_at FROM (
		           SELECT id, group_id, user_id, content, type, created_at FROM messages
		           WHERE group_id = ? ORDER BY created_at DESC LIMIT ?
		         ) ORDER BY created_at ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var m core.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Content, &m.Type, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = decodeTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) InsertMessage(ctx context.Context, m core.Message) (core.Message, error) {
	m.ID = newID(m.ID)
	m.CreatedAt = stamp(m.CreatedAt)
	if m.Type == "" {
		m.Type = core.MessageText
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, group_id, user_id, content, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.UserID, m.Content, string(m.Type), encodeTime(m.CreatedAt))
	if err != nil {
		return core.Message{}, fmt.Errorf("insert message: %w", err)
	}

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

func (s *Store) ListShoppingLists(ctx context.Context, groupID string) ([]core.ShoppingList, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, name, status, created_by, created_at FROM shopping_lists
		 WHERE (? = '' OR group_id = ?) ORDER BY created_at DESC`, groupID, groupID)
	if err != nil {
		return nil, fmt.Errorf("list shopping lists: %w", err)
	}
	defer rows.Close()

	var out []core.ShoppingList
	for rows.Next() {
		var l core.ShoppingList
		var createdAt string
		if err := rows.Scan(&l.ID, &l.GroupID, &l.Name, &l.Status, &l.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan shopping list: %w", err)
		}
		l.CreatedAt = decodeTime(createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) InsertShoppingList(ctx context.Context, l core.ShoppingList) (core.ShoppingList, error) {
	l.ID = newID(l.ID)
	l.CreatedAt = stamp(l.CreatedAt)
	if l.Status == "" {
		l.Status = core.ListActive
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shopping_lists (id, group_id, name, status, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.GroupID, l.Name, string(l.Status), l.CreatedBy, encodeTime(l.CreatedAt))
	if err != nil {
		return core.ShoppingList{}, fmt.Errorf("insert shopping list: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionShoppingLists,
		Scope:      l.GroupID,
		Kind:       store.ChangeInsert,
		RowID:      l.ID,
		Row:        l,
	})
	return l, nil
}

func (s *Store) UpdateShoppingList(ctx context.Context, l core.ShoppingList) error {
	existing, err := s.getShoppingList(ctx, l.ID)
	if err != nil {
		return err
	}
	l.GroupID = existing.GroupID
	l.CreatedBy = existing.CreatedBy
	l.CreatedAt = existing.CreatedAt

	if _, err := s.db.ExecContext(ctx,
		`UPDATE shopping_lists SET name = ?, status = ? WHERE id = ?`,
		l.Name, string(l.Status), l.ID); err != nil {
		return fmt.Errorf("update shopping list: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionShoppingLists,
		Scope:      l.GroupID,
		Kind:       store.ChangeUpdate,
		RowID:      l.ID,
		Row:        l,
	})
	return nil
}

func (s *Store) DeleteShoppingList(ctx context.Context, id string) error {
	existing, err := s.getShoppingList(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shopping_lists WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete shopping list: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionShoppingLists,
		Scope:      existing.GroupID,
		Kind:       store.ChangeDelete,
		RowID:      id,
	})
	return nil
}

func (s *Store) getShoppingList(ctx context.Context, id string) (core.ShoppingList, error) {
	var l core.ShoppingList
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, name, status, created_by, created_at FROM shopping_lists WHERE id = ?`, id).
		Scan(&l.ID, &l.GroupID, &l.Name, &l.Status, &l.CreatedBy, &createdAt)
	if err != nil {
		return core.ShoppingList{}, mapNotFound(err)
	}
	l.CreatedAt = decodeTime(createdAt)
	return l, nil
}

// --- List items ---

func (s *Store) ListItems(ctx context.Context, listID string) ([]core.ListItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, list_id, name, category, quantity, unit, is_checked, added_by,
		        checked_by, price_estimate_cents, notes, created_at
		 FROM list_items WHERE list_id = ? ORDER BY created_at ASC`, listID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []core.ListItem
	for rows.Next() {
		i, err := scanListItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func scanListItem(rows *sql.Rows) (core.ListItem, error) {
	var i core.ListItem
	var createdAt string
	var checked int
	if err := rows.Scan(&i.ID, &i.ListID, &i.Name, &i.Category, &i.Quantity, &i.Unit,
		&checked, &i.AddedBy, &i.CheckedBy, &i.PriceEstimateCents, &i.Notes, &createdAt); err != nil {
		return core.ListItem{}, fmt.Errorf("scan list item: %w", err)
	}
	i.IsChecked = checked != 0
	i.CreatedAt = decodeTime(createdAt)
	return i, nil
}

func (s *Store) InsertListItem(ctx context.Context, i core.ListItem) (core.ListItem, error) {
	i.ID = newID(i.ID)
	i.CreatedAt = stamp(i.CreatedAt)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO list_items (id, list_id, name, category, quantity, unit, is_checked,
		                         added_by, checked_by, price_estimate_cents, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.ListID, i.Name, i.Category, i.Quantity, i.Unit, boolToInt(i.IsChecked),
		i.AddedBy, i.CheckedBy, i.PriceEstimateCents, i.Notes, encodeTime(i.CreatedAt))
	if err != nil {
		return core.ListItem{}, fmt.Errorf("insert list item: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionListItems,
		Scope:      i.ListID,
		Kind:       store.ChangeInsert,
		RowID:      i.ID,
		Row:        i,
	})
	return i, nil
}

func (s *Store) UpdateListItem(ctx context.Context, i core.ListItem) error {
	existing, err := s.GetListItem(ctx, i.ID)
	if err != nil {
		return err
	}
	i.ListID = existing.ListID
	i.AddedBy = existing.AddedBy
	i.CreatedAt = existing.CreatedAt

	if _, err := s.db.ExecContext(ctx,
		`UPDATE list_items SET name = ?, category = ?, quantity = ?, unit = ?,
		        is_checked = ?, checked_by = ?, price_estimate_cents = ?, notes = ?
		 WHERE id = ?`,
		i.Name, i.Category, i.Quantity, i.Unit, boolToInt(i.IsChecked),
		i.CheckedBy, i.PriceEstimateCents, i.Notes, i.ID); err != nil {
		return fmt.Errorf("update list item: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionListItems,
		Scope:      i.ListID,
		Kind:       store.ChangeUpdate,
		RowID:      i.ID,
		Row:        i,
	})
	return nil
}

func (s *Store) DeleteListItem(ctx context.Context, id string) error {
	existing, err := s.GetListItem(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM list_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete list item: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionListItems,
		Scope:      existing.ListID,
		Kind:       store.ChangeDelete,
		RowID:      id,
	})
	return nil
}

func (s *Store) GetListItem(ctx context.Context, id string) (core.ListItem, error) {
	var i core.ListItem
	var createdAt string
	var checked int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, list_id, name, category, quantity, unit, is_checked, added_by,
		        checked_by, price_estimate_cents, notes, created_at
		 FROM list_items WHERE id = ?`, id).
		Scan(&i.ID, &i.ListID, &i.Name, &i.Category, &i.Quantity, &i.Unit,
			&checked, &i.AddedBy, &i.CheckedBy, &i.PriceEstimateCents, &i.Notes, &createdAt)
	if err != nil {
		return core.ListItem{}, mapNotFound(err)
	}
	i.IsChecked = checked != 0
	i.CreatedAt = decodeTime(createdAt)
	return i, nil
}

// --- Calendar events ---

func (s *Store) ListCalendarEvents(ctx context.Context, groupID string) ([]core.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, title, starts_at, ends_at, created_by, created_at
		 FROM calendar_events WHERE group_id = ? ORDER BY starts_at ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer rows.Close()

	var out []core.CalendarEvent
	for rows.Next() {
		var e core.CalendarEvent
		var startsAt, endsAt, createdAt string
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Title, &startsAt, &endsAt, &e.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		e.StartsAt = decodeTime(startsAt)
		e.EndsAt = decodeTime(endsAt)
		e.CreatedAt = decodeTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertCalendarEvent(ctx context.Context, e core.CalendarEvent) (core.CalendarEvent, error) {
	e.ID = newID(e.ID)
	e.CreatedAt = stamp(e.CreatedAt)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_events (id, group_id, title, starts_at, ends_at, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupID, e.Title, encodeTime(e.StartsAt), encodeTime(e.EndsAt),
		e.CreatedBy, encodeTime(e.CreatedAt))
	if err != nil {
		return core.CalendarEvent{}, fmt.Errorf("insert calendar event: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionCalendar,
		Scope:      e.GroupID,
		Kind:       store.ChangeInsert,
		RowID:      e.ID,
		Row:        e,
	})
	return e, nil
}

func (s *Store) DeleteCalendarEvent(ctx context.Context, id string) error {
	var groupID string
	err := s.db.QueryRowContext(ctx,
		`SELECT group_id FROM calendar_events WHERE id = ?`, id).Scan(&groupID)
	if err != nil {
		return mapNotFound(err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionCalendar,
		Scope:      groupID,
		Kind:       store.ChangeDelete,
		RowID:      id,
	})
	return nil
}

// --- Ledger relation ---

func (s *Store) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.ID = newID(e.ID)
	e.CreatedAt = stamp(e.CreatedAt)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, description, amount_cents, paid_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupID, e.Description, e.Amount.Cents, e.PaidBy, encodeTime(e.CreatedAt))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionExpenses,
		Scope:      e.GroupID,
		Kind:       store.ChangeInsert,
		RowID:      e.ID,
		Row:        e,
	})
	return e, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	var e core.Expense
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, description, amount_cents, paid_by, created_at
		 FROM expenses WHERE id = ?`, id).
		Scan(&e.ID, &e.GroupID, &e.Description, &e.Amount.Cents, &e.PaidBy, &createdAt)
	if err != nil {
		return core.Expense{}, mapNotFound(err)
	}
	e.CreatedAt = decodeTime(createdAt)
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, groupID string, limit int) ([]core.Expense, error) {
	query := `SELECT id, group_id, description, amount_cents, paid_by, created_at
	          FROM expenses WHERE (? = '' OR group_id = ?) ORDER BY created_at DESC`
	args := []any{groupID, groupID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryExpenses(ctx, query, args...)
}

func (s *Store) ListExpensesByPayer(ctx context.Context, userID string) ([]core.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT id, group_id, description, amount_cents, paid_by, created_at
		 FROM expenses WHERE paid_by = ? ORDER BY created_at DESC`, userID)
}

func (s *Store) ListExpensesByIDs(ctx context.Context, ids []string) ([]core.Expense, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryExpenses(ctx,
		`SELECT id, group_id, description, amount_cents, paid_by, created_at
		 FROM expenses WHERE id IN (`+placeholders+`)`, args...)
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var e core.Expense
		var createdAt string
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Description, &e.Amount.Cents, &e.PaidBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.CreatedAt = decodeTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertSplit(ctx context.Context, sp core.Split) (core.Split, error) {
	sp.ID = newID(sp.ID)

	expense, err := s.GetExpense(ctx, sp.ExpenseID)
	if err != nil {
		return core.Split{}, fmt.Errorf("lookup expense for split: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO expense_splits (id, expense_id, user_id, amount_cents, is_settled)
		 VALUES (?, ?, ?, ?, ?)`,
		sp.ID, sp.ExpenseID, sp.UserID, sp.Amount.Cents, boolToInt(sp.IsSettled))
	if err != nil {
		return core.Split{}, fmt.Errorf("insert split: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionSplits,
		Scope:      expense.GroupID,
		Kind:       store.ChangeInsert,
		RowID:      sp.ID,
		Row:        sp,
	})
	return sp, nil
}

func (s *Store) GetSplit(ctx context.Context, id string) (core.Split, error) {
	var sp core.Split
	var settled int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, expense_id, user_id, amount_cents, is_settled
		 FROM expense_splits WHERE id = ?`, id).
		Scan(&sp.ID, &sp.ExpenseID, &sp.UserID, &sp.Amount.Cents, &settled)
	if err != nil {
		return core.Split{}, mapNotFound(err)
	}
	sp.IsSettled = settled != 0
	return sp, nil
}

func (s *Store) ListSplitsByDebtor(ctx context.Context, userID string, unsettledOnly bool) ([]core.Split, error) {
	query := `SELECT id, expense_id, user_id, amount_cents, is_settled
	          FROM expense_splits WHERE user_id = ?`
	if unsettledOnly {
		query += ` AND is_settled = 0`
	}
	query += ` ORDER BY id ASC`
	return s.querySplits(ctx, query, userID)
}

func (s *Store) ListSplitsByExpenses(ctx context.Context, expenseIDs []string) ([]core.Split, error) {
	if len(expenseIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(expenseIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(expenseIDs))
	for i, id := range expenseIDs {
		args[i] = id
	}
	return s.querySplits(ctx,
		`SELECT id, expense_id, user_id, amount_cents, is_settled
		 FROM expense_splits WHERE expense_id IN (`+placeholders+`) ORDER BY id ASC`, args...)
}

func (s *Store) querySplits(ctx context.Context, query string, args ...any) ([]core.Split, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query splits: %w", err)
	}
	defer rows.Close()

	var out []core.Split
	for rows.Next() {
		var sp core.Split
		var settled int
		if err := rows.Scan(&sp.ID, &sp.ExpenseID, &sp.UserID, &sp.Amount.Cents, &settled); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		sp.IsSettled = settled != 0
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Store) SettleSplit(ctx context.Context, id string) error {
	sp, err := s.GetSplit(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE expense_splits SET is_settled = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("settle split: %w", err)
	}
	sp.IsSettled = true

	expense, err := s.GetExpense(ctx, sp.ExpenseID)
	if err != nil {
		return fmt.Errorf("lookup expense for settled split: %w", err)
	}

	s.hub.Publish(store.Change{
		Collection: store.CollectionSplits,
		Scope:      expense.GroupID,
		Kind:       store.ChangeUpdate,
		RowID:      sp.ID,
		Row:        sp,
	})
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
