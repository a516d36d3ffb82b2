package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"hearth/internal/core"
	"hearth/internal/store/memory"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestTranscriptFollowsSends(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	if err := st.UpsertProfile(ctx, core.Profile{ID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}

	svc, err := NewService(st, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Attach(ctx, "group-1"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer svc.Detach()

	sent, err := svc.Send(ctx, "group-1", "alice", "hello household")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.ID == "" {
		t.Fatalf("message id not assigned")
	}

	waitFor(t, func() bool {
		msgs := svc.Transcript()
		return len(msgs) == 1 && msgs[0].ID == sent.ID
	}, "message delivered to transcript")

	if name := svc.DisplayName(ctx, "alice"); name != "Alice" {
		t.Fatalf("expected Alice, got %q", name)
	}
}

func TestTranscriptChronologicalOrder(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	base := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		m := core.Message{GroupID: "g", UserID: "alice", Content: content,
			Type: core.MessageText, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if _, err := st.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}

	svc, err := NewService(st, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Attach(ctx, "g"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer svc.Detach()

	waitFor(t, func() bool { return len(svc.Transcript()) == 3 }, "history loaded")
	msgs := svc.Transcript()
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Content != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, msgs[i].Content)
		}
	}
}

func TestSendRejectsInvalidMessages(t *testing.T) {
	st := memory.New()
	svc, err := NewService(st, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		name    string
		groupID string
		userID  string
		content string
	}{
		{"empty content", "g", "alice", ""},
		{"whitespace only", "g", "alice", "   "},
		{"missing group", "", "alice", "hi"},
		{"missing user", "g", "", "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Send(ctx, tc.groupID, tc.userID, tc.content); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	msgs, err := st.ListMessages(ctx, "g", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("rejected sends must not reach the store, found %d", len(msgs))
	}
}

// profileCountingStore counts GetProfile lookups so tests can assert the
// cache absorbed repeats.
type profileCountingStore struct {
	*memory.Store
	lookups atomic.Int32
	fail    bool
}

func (s *profileCountingStore) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	s.lookups.Add(1)
	if s.fail {
		return core.Profile{}, errors.New("store unreachable")
	}
	return s.Store.GetProfile(ctx, id)
}

func TestDisplayNameCachesLookups(t *testing.T) {
	inner := memory.New()
	ctx := context.Background()
	if err := inner.UpsertProfile(ctx, core.Profile{ID: "bob", DisplayName: "Bob"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	st := &profileCountingStore{Store: inner}

	svc, err := NewService(st, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	for i := 0; i < 3; i++ {
		if name := svc.DisplayName(ctx, "bob"); name != "Bob" {
			t.Fatalf("expected Bob, got %q", name)
		}
	}
	if n := st.lookups.Load(); n != 1 {
		t.Fatalf("expected a single store lookup, got %d", n)
	}
}

func TestSharedNameCacheServesEverySession(t *testing.T) {
	inner := memory.New()
	ctx := context.Background()
	if err := inner.UpsertProfile(ctx, core.Profile{ID: "bob", DisplayName: "Bob"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	st := &profileCountingStore{Store: inner}

	names := NewNameCache()
	first, err := NewService(st, Options{Names: names})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	second, err := NewService(st, Options{Names: names})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if name := first.DisplayName(ctx, "bob"); name != "Bob" {
		t.Fatalf("expected Bob, got %q", name)
	}
	if name := second.DisplayName(ctx, "bob"); name != "Bob" {
		t.Fatalf("expected Bob, got %q", name)
	}
	if n := st.lookups.Load(); n != 1 {
		t.Fatalf("expected the shared cache to absorb the second lookup, got %d", n)
	}
}

func TestDisplayNameFallsBackToPlaceholder(t *testing.T) {
	st := &profileCountingStore{Store: memory.New(), fail: true}
	svc, err := NewService(st, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if name := svc.DisplayName(context.Background(), "ghost"); name != PlaceholderName {
		t.Fatalf("expected placeholder, got %q", name)
	}
}

func TestFetchWarmsNamesInOneBatch(t *testing.T) {
	inner := memory.New()
	ctx := context.Background()
	if err := inner.UpsertProfile(ctx, core.Profile{ID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if _, err := inner.InsertMessage(ctx, core.Message{GroupID: "g", UserID: "alice",
		Content: "hi", Type: core.MessageText}); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	st := &profileCountingStore{Store: inner}

	svc, err := NewService(st, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Attach(ctx, "g"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer svc.Detach()

	waitFor(t, func() bool { return len(svc.Transcript()) == 1 }, "history loaded")

	// The batch warm-up during fetch already cached the author; resolving
	// the name afterwards must not touch the store.
	if name := svc.DisplayName(ctx, "alice"); name != "Alice" {
		t.Fatalf("expected Alice, got %q", name)
	}
	if n := st.lookups.Load(); n != 0 {
		t.Fatalf("expected zero per-author lookups after batch warm-up, got %d", n)
	}
}
