package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hearth/internal/ledger"
	"hearth/internal/payments"
	"hearth/internal/store/memory"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	led := ledger.NewService(st, ledger.PolicyIndependent, nil, nil)
	srv := NewServer(Options{
		Addr:   "127.0.0.1:0",
		Store:  st,
		Ledger: led,
		Payments: &payments.StaticProvider{
			Session: payments.Session{ID: "cs_test", ClientSecret: "secret"},
		},
		PollInterval: 50 * time.Millisecond,
	})
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { st.Close() })
	return srv, ts, st
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func createGroup(t *testing.T, ts *httptest.Server, name, userID string) groupDTO {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/groups",
		map[string]string{"name": name, "created_by": userID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group: status %d", resp.StatusCode)
	}
	return decodeBody[groupDTO](t, resp)
}

func TestHealthEndpoints(t *testing.T) {
	_, ts, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
	}
}

func TestProfileRoundTrip(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/profile",
		map[string]string{"id": "u1", "display_name": "Alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upsert profile: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	got := decodeBody[profileDTO](t, doJSON(t, http.MethodGet, ts.URL+"/api/profiles/u1", nil))
	if got.DisplayName != "Alice" {
		t.Fatalf("expected Alice, got %q", got.DisplayName)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/profiles/missing", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGroupCreateJoinList(t *testing.T) {
	_, ts, _ := newTestServer(t)

	g := createGroup(t, ts, "Home", "u1")
	if g.InviteCode == "" {
		t.Fatalf("expected invite code, got %+v", g)
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/groups/join",
		map[string]string{"invite_code": strings.ToLower(g.InviteCode), "user_id": "u2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	groups := decodeBody[[]groupDTO](t, doJSON(t, http.MethodGet, ts.URL+"/api/groups?user_id=u2", nil))
	if len(groups) != 1 || groups[0].ID != g.ID {
		t.Fatalf("expected joined group, got %+v", groups)
	}

	members := decodeBody[[]membershipDTO](t,
		doJSON(t, http.MethodGet, ts.URL+"/api/groups/"+g.ID+"/members", nil))
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %+v", members)
	}
}

func TestJoinUnknownInviteCode(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/groups/join",
		map[string]string{"invite_code": "NOPE", "user_id": "u1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMessagesWithDisplayNames(t *testing.T) {
	_, ts, _ := newTestServer(t)
	g := createGroup(t, ts, "Home", "u1")

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/profile",
		map[string]string{"id": "u1", "display_name": "Alice"})
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/groups/"+g.ID+"/messages",
		map[string]string{"user_id": "u1", "content": "hello"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send message: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	msgs := decodeBody[[]messageDTO](t,
		doJSON(t, http.MethodGet, ts.URL+"/api/groups/"+g.ID+"/messages", nil))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[0].DisplayName != "Alice" {
		t.Fatalf("unexpected message %+v", msgs[0])
	}
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	_, ts, _ := newTestServer(t)
	g := createGroup(t, ts, "Home", "u1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/groups/"+g.ID+"/messages",
		map[string]string{"user_id": "u1", "content": "   "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestShoppingListAndItemFlow(t *testing.T) {
	_, ts, _ := newTestServer(t)
	g := createGroup(t, ts, "Home", "u1")

	list := decodeBody[shoppingListDTO](t,
		doJSON(t, http.MethodPost, ts.URL+"/api/groups/"+g.ID+"/lists",
			map[string]string{"name": "Weekly", "created_by": "u1"}))
	if list.Status != "active" {
		t.Fatalf("expected active list, got %+v", list)
	}

	item := decodeBody[listItemDTO](t,
		doJSON(t, http.MethodPost, ts.URL+"/api/lists/"+list.ID+"/items",
			map[string]any{"name": "Milk", "quantity": 2, "unit": "l", "added_by": "u1"}))

	checked := decodeBody[listItemDTO](t,
		doJSON(t, http.MethodPost, ts.URL+"/api/items/"+item.ID+"/check",
			map[string]any{"user_id": "u2", "checked": true}))
	if !checked.IsChecked || checked.CheckedBy != "u2" {
		t.Fatalf("expected item checked by u2, got %+v", checked)
	}

	items := decodeBody[[]listItemDTO](t,
		doJSON(t, http.MethodGet, ts.URL+"/api/lists/"+list.ID+"/items", nil))
	if len(items) != 1 || !items[0].IsChecked {
		t.Fatalf("expected checked item in listing, got %+v", items)
	}

	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/items/"+item.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete item: status %d", resp.StatusCode)
	}
}

func TestCalendarEventFlow(t *testing.T) {
	_, ts, _ := newTestServer(t)
	g := createGroup(t, ts, "Home", "u1")

	starts := time.Date(2026, 9, 10, 18, 0, 0, 0, time.UTC)
	event := decodeBody[calendarEventDTO](t,
		doJSON(t, http.MethodPost, ts.URL+"/api/groups/"+g.ID+"/calendar",
			map[string]any{"title": "Dinner", "starts_at": starts, "created_by": "u1"}))

	events := decodeBody[[]calendarEventDTO](t,
		doJSON(t, http.MethodGet, ts.URL+"/api/groups/"+g.ID+"/calendar", nil))
	if len(events) != 1 || events[0].ID != event.ID {
		t.Fatalf("expected created event, got %+v", events)
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/groups/"+g.ID+"/calendar",
		map[string]any{"title": "Bad", "starts_at": starts, "ends_at": starts.Add(-time.Hour), "created_by": "u1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for end before start, got %d", resp.StatusCode)
	}
}

func TestExpenseLedgerFlow(t *testing.T) {
	_, ts, _ := newTestServer(t)
	g := createGroup(t, ts, "Home", "u1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/groups/join",
		map[string]string{"invite_code": g.InviteCode, "user_id": "u2"})
	resp.Body.Close()

	type recordResp struct {
		Expense expenseDTO `json:"expense"`
		Splits  []splitDTO `json:"splits"`
	}
	rec := decodeBody[recordResp](t,
		doJSON(t, http.MethodPost, ts.URL+"/api/groups/"+g.ID+"/expenses",
			map[string]string{"description": "Groceries", "amount": "30.00", "paid_by": "u1"}))
	if rec.Expense.AmountCents != 3000 {
		t.Fatalf("expected 3000 cents, got %+v", rec.Expense)
	}
	if len(rec.Splits) != 1 || rec.Splits[0].UserID != "u2" || rec.Splits[0].AmountCents != 1500 {
		t.Fatalf("expected one 1500c split for u2, got %+v", rec.Splits)
	}

	debts := decodeBody[[]debtDTO](t,
		doJSON(t, http.MethodGet, ts.URL+"/api/ledger/you-owe?user_id=u2", nil))
	if len(debts) != 1 || debts[0].Expense.ID != rec.Expense.ID {
		t.Fatalf("expected one debt, got %+v", debts)
	}

	owed := decodeBody[[]debtDTO](t,
		doJSON(t, http.MethodGet, ts.URL+"/api/ledger/owed-to-you?user_id=u1", nil))
	if len(owed) != 1 {
		t.Fatalf("expected one owed split, got %+v", owed)
	}

	type balance struct {
		YouOweCents    int64 `json:"you_owe_cents"`
		OwedToYouCents int64 `json:"owed_to_you_cents"`
		NetCents       int64 `json:"net_cents"`
	}
	b := decodeBody[balance](t,
		doJSON(t, http.MethodGet, ts.URL+"/api/ledger/balance?user_id=u2", nil))
	if b.YouOweCents != 1500 || b.NetCents != -1500 {
		t.Fatalf("unexpected balance %+v", b)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/splits/"+rec.Splits[0].ID+"/settle", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settle: status %d", resp.StatusCode)
	}

	debts = decodeBody[[]debtDTO](t,
		doJSON(t, http.MethodGet, ts.URL+"/api/ledger/you-owe?user_id=u2", nil))
	if len(debts) != 0 {
		t.Fatalf("expected no debts after settle, got %+v", debts)
	}
}

func TestRecordExpenseRejectsBadAmount(t *testing.T) {
	_, ts, _ := newTestServer(t)
	g := createGroup(t, ts, "Home", "u1")

	for _, amount := range []string{"", "abc", "-5", "0"} {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/groups/"+g.ID+"/expenses",
			map[string]string{"description": "x", "amount": amount, "paid_by": "u1"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("amount %q: expected 422, got %d", amount, resp.StatusCode)
		}
	}
}

func TestPaymentSession(t *testing.T) {
	_, ts, _ := newTestServer(t)
	g := createGroup(t, ts, "Home", "u1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/groups/join",
		map[string]string{"invite_code": g.InviteCode, "user_id": "u2"})
	resp.Body.Close()

	type recordResp struct {
		Expense expenseDTO `json:"expense"`
		Splits  []splitDTO `json:"splits"`
	}
	rec := decodeBody[recordResp](t,
		doJSON(t, http.MethodPost, ts.URL+"/api/groups/"+g.ID+"/expenses",
			map[string]string{"description": "Rent", "amount": "800.00", "paid_by": "u1"}))

	type sessionResp struct {
		SessionID    string `json:"session_id"`
		ClientSecret string `json:"client_secret"`
	}
	sess := decodeBody[sessionResp](t,
		doJSON(t, http.MethodPost, ts.URL+"/api/payments/session",
			map[string]string{"split_id": rec.Splits[0].ID, "payer_name": "Bob", "recipient_name": "Alice"}))
	if sess.SessionID != "cs_test" || sess.ClientSecret != "secret" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestPaymentSessionUnconfigured(t *testing.T) {
	st := memory.New()
	defer st.Close()
	srv := NewServer(Options{
		Store:  st,
		Ledger: ledger.NewService(st, ledger.PolicyIndependent, nil, nil),
	})
	ts := httptest.NewServer(srv.Server.Handler)
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/payments/session",
		map[string]string{"split_id": "s1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestSyncStreamDeliversChanges(t *testing.T) {
	_, ts, _ := newTestServer(t)
	g := createGroup(t, ts, "Home", "u1")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") +
		fmt.Sprintf("/sync?view=chat&scope=%s", g.ID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame := func() syncFrame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame syncFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return frame
	}

	first := readFrame()
	if first.View != "chat" || first.Scope != g.ID {
		t.Fatalf("unexpected initial frame %+v", first)
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/groups/"+g.ID+"/messages",
		map[string]string{"user_id": "u1", "content": "ping"})
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		frame := readFrame()
		rows, _ := frame.Rows.([]any)
		if len(rows) == 1 {
			row, _ := rows[0].(map[string]any)
			if row["content"] != "ping" {
				t.Fatalf("unexpected row %+v", row)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never saw the sent message in a frame")
		}
	}
}

func TestSyncRejectsUnknownView(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/sync?view=nope&scope=g1")
	if err != nil {
		t.Fatalf("GET /sync: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
