package http

import (
	"context"
	"errors"

	"hearth/internal/chat"
	"hearth/internal/core"
	"hearth/internal/realtime"
	"hearth/internal/store"
)

var errUnknownView = errors.New("unknown view")

// syncSession is one attached view behind a websocket connection.
type syncSession interface {
	Attach(ctx context.Context, scope string) error
	Detach()
	Updates() <-chan struct{}
	State() realtime.State
	// Rows renders the current snapshot as wire DTOs.
	Rows(ctx context.Context) any
}

// newSyncSession builds a session for a view name. Scope is the group id for
// every view except list_items, where it is the list id.
func (s *Server) newSyncSession(view string) (syncSession, error) {
	switch view {
	case "chat":
		svc, err := s.newChatService()
		if err != nil {
			return nil, err
		}
		return &chatSession{svc: svc}, nil

	case "shopping_lists":
		return newManagerSession(s, view, realtime.OrderNewestFirst,
			store.CollectionShoppingLists,
			s.store.ListShoppingLists,
			func(l core.ShoppingList) any { return toShoppingListDTO(l) })

	case "list_items":
		return newManagerSession(s, view, realtime.OrderChronological,
			store.CollectionListItems,
			s.store.ListItems,
			func(i core.ListItem) any { return toListItemDTO(i) })

	case "calendar":
		return newManagerSession(s, view, realtime.OrderChronological,
			store.CollectionCalendar,
			s.store.ListCalendarEvents,
			func(e core.CalendarEvent) any { return toCalendarEventDTO(e) })

	case "expenses":
		return newManagerSession(s, view, realtime.OrderNewestFirst,
			store.CollectionExpenses,
			func(ctx context.Context, scope string) ([]core.Expense, error) {
				return s.store.ListExpenses(ctx, scope, 0)
			},
			func(e core.Expense) any { return toExpenseDTO(e) })

	default:
		return nil, errUnknownView
	}
}

func newManagerSession[T realtime.Entity](
	s *Server,
	view string,
	order realtime.Order,
	collection string,
	fetch func(ctx context.Context, scope string) ([]T, error),
	render func(T) any,
) (syncSession, error) {
	manager, err := realtime.NewManager(realtime.Config[T]{
		View:  view,
		Order: order,
		Fetch: fetch,
		Subscribe: func(scope string) (store.Subscription, error) {
			return s.store.Subscribe(collection, scope)
		},
		Decode:       decodeRow[T],
		PollInterval: s.pollInterval,
		Metrics:      s.realtimeMetrics(),
	})
	if err != nil {
		return nil, err
	}
	return &managerSession[T]{manager: manager, render: render}, nil
}

// decodeRow converts a raw change into a typed event. Deletes carry no row;
// a row of the wrong type is discarded.
func decodeRow[T realtime.Entity](ch store.Change) (realtime.Event[T], bool) {
	ev := realtime.Event[T]{Kind: ch.Kind, ID: ch.RowID}
	if ch.Kind == store.ChangeDelete {
		return ev, true
	}
	row, ok := ch.Row.(T)
	if !ok {
		return ev, false
	}
	ev.Row = row
	return ev, true
}

type managerSession[T realtime.Entity] struct {
	manager *realtime.Manager[T]
	render  func(T) any
}

func (m *managerSession[T]) Attach(ctx context.Context, scope string) error {
	return m.manager.Attach(ctx, scope)
}

func (m *managerSession[T]) Detach()                  { m.manager.Detach() }
func (m *managerSession[T]) Updates() <-chan struct{} { return m.manager.Updates() }
func (m *managerSession[T]) State() realtime.State    { return m.manager.State() }

func (m *managerSession[T]) Rows(context.Context) any {
	snapshot := m.manager.Snapshot()
	out := make([]any, 0, len(snapshot))
	for _, row := range snapshot {
		out = append(out, m.render(row))
	}
	return out
}

// chatSession renders the transcript with display names resolved through the
// service's cache.
type chatSession struct {
	svc *chat.Service
}

func (c *chatSession) Attach(ctx context.Context, scope string) error {
	return c.svc.Attach(ctx, scope)
}

func (c *chatSession) Detach()                  { c.svc.Detach() }
func (c *chatSession) Updates() <-chan struct{} { return c.svc.Updates() }
func (c *chatSession) State() realtime.State    { return c.svc.State() }

func (c *chatSession) Rows(ctx context.Context) any {
	messages := c.svc.Transcript()
	out := make([]any, 0, len(messages))
	for _, m := range messages {
		dto := toMessageDTO(m)
		dto.DisplayName = c.svc.DisplayName(ctx, m.UserID)
		out = append(out, dto)
	}
	return out
}
