// Package chat provides the group transcript: a synchronized message view
// plus author display-name enrichment.
package chat

import (
	"context"
	"log/slog"
	"time"

	"hearth/internal/cache"
	"hearth/internal/core"
	applog "hearth/internal/log"
	"hearth/internal/realtime"
	"hearth/internal/store"
)

// PlaceholderName is shown while a profile lookup is pending or failed.
// Enrichment is cosmetic and never blocks message flow.
const PlaceholderName = "User"

const (
	defaultHistoryLimit = 200
	nameCacheSize       = 512
	nameCacheTTL        = 30 * time.Minute
)

// Store is the slice of the remote store the transcript needs.
type Store interface {
	ListMessages(ctx context.Context, groupID string, limit int) ([]core.Message, error)
	InsertMessage(ctx context.Context, m core.Message) (core.Message, error)
	GetProfile(ctx context.Context, id string) (core.Profile, error)
	ListProfiles(ctx context.Context, ids []string) ([]core.Profile, error)
	Subscribe(collection, scope string) (store.Subscription, error)
}

// Options tune the transcript view; zero values take defaults.
type Options struct {
	HistoryLimit int
	PollInterval time.Duration
	Metrics      realtime.Metrics

	// Names is the display-name cache, usually shared across sessions so
	// one lookup serves every open transcript. Nil builds a private one.
	Names *cache.LRU[string]
}

// NewNameCache builds a display-name cache sized for household use.
// Register it with a cache.Manager so entries for idle users expire
// instead of pinning memory until the next read.
func NewNameCache() *cache.LRU[string] {
	return cache.NewLRU[string](nameCacheSize, nameCacheTTL)
}

// Service owns the synchronized transcript for at most one group at a time
// and a scope-wide display-name cache.
type Service struct {
	store   Store
	limit   int
	names   *cache.LRU[string]
	manager *realtime.Manager[core.Message]
}

func NewService(st Store, opts Options) (*Service, error) {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	names := opts.Names
	if names == nil {
		names = NewNameCache()
	}

	s := &Service{
		store: st,
		limit: limit,
		names: names,
	}

	manager, err := realtime.NewManager(realtime.Config[core.Message]{
		View:  "chat",
		Order: realtime.OrderChronological,
		Fetch: s.fetch,
		Subscribe: func(scope string) (store.Subscription, error) {
			return st.Subscribe(store.CollectionMessages, scope)
		},
		Decode:       decodeMessage,
		PollInterval: opts.PollInterval,
		OnEvent:      s.onEvent,
		Metrics:      opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	s.manager = manager
	return s, nil
}

// Attach switches the transcript to a group's chat.
func (s *Service) Attach(ctx context.Context, groupID string) error {
	return s.manager.Attach(ctx, groupID)
}

func (s *Service) Detach() { s.manager.Detach() }

// Transcript returns the current messages, chronological ascending.
func (s *Service) Transcript() []core.Message { return s.manager.Snapshot() }

func (s *Service) Updates() <-chan struct{} { return s.manager.Updates() }

func (s *Service) State() realtime.State { return s.manager.State() }

// Send validates and writes one text message. The write surfaces its error
// to the caller; delivery back into the transcript rides the push channel
// or the next reconciliation.
func (s *Service) Send(ctx context.Context, groupID, userID, content string) (core.Message, error) {
	m := core.Message{
		GroupID: groupID,
		UserID:  userID,
		Content: content,
		Type:    core.MessageText,
	}
	if err := m.Validate(); err != nil {
		return core.Message{}, err
	}
	return s.store.InsertMessage(ctx, m)
}

// DisplayName resolves an author's name from the cache, looking the profile
// up on a miss. Any failure falls back to the placeholder.
func (s *Service) DisplayName(ctx context.Context, userID string) string {
	if name, ok := s.names.Get(userID); ok {
		return name
	}
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil || p.DisplayName == "" {
		return PlaceholderName
	}
	s.names.Set(userID, p.DisplayName)
	return p.DisplayName
}

// fetch loads the transcript and warms the name cache for every author in
// one batch read. A failed warm-up is absorbed: names degrade to the
// placeholder, the transcript still renders.
func (s *Service) fetch(ctx context.Context, groupID string) ([]core.Message, error) {
	messages, err := s.store.ListMessages(ctx, groupID, s.limit)
	if err != nil {
		return nil, err
	}
	s.warmNames(ctx, messages)
	return messages, nil
}

func (s *Service) warmNames(ctx context.Context, messages []core.Message) {
	var unseen []string
	seen := make(map[string]struct{})
	for _, m := range messages {
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}
		if _, ok := s.names.Get(m.UserID); !ok {
			unseen = append(unseen, m.UserID)
		}
	}
	if len(unseen) == 0 {
		return
	}

	profiles, err := s.store.ListProfiles(ctx, unseen)
	if err != nil {
		slog.WarnContext(ctx, "Profile warm-up failed", "authors", len(unseen), applog.FieldError, err)
		return
	}
	for _, p := range profiles {
		if p.DisplayName != "" {
			s.names.Set(p.ID, p.DisplayName)
		}
	}
}

// onEvent resolves the author of a newly arrived message when the cache has
// not seen them yet. The lookup runs off the event path.
func (s *Service) onEvent(ev realtime.Event[core.Message]) {
	if ev.Kind != store.ChangeInsert && ev.Kind != store.ChangeUpdate {
		return
	}
	userID := ev.Row.UserID
	if userID == "" {
		return
	}
	if _, ok := s.names.Get(userID); ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p, err := s.store.GetProfile(ctx, userID)
		if err != nil || p.DisplayName == "" {
			return
		}
		s.names.Set(userID, p.DisplayName)
	}()
}

func decodeMessage(ch store.Change) (realtime.Event[core.Message], bool) {
	ev := realtime.Event[core.Message]{Kind: ch.Kind, ID: ch.RowID}
	if ch.Kind == store.ChangeDelete {
		return ev, true
	}
	row, ok := ch.Row.(core.Message)
	if !ok {
		return ev, false
	}
	ev.Row = row
	return ev, true
}
