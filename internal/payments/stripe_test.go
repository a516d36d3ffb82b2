package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"hearth/internal/core"
)

func TestStripeCreateSession(t *testing.T) {
	var captured *http.Request
	var form map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cs_test_123","client_secret":"cs_test_123_secret"}`))
	}))
	defer srv.Close()

	p, err := NewStripeProvider("sk_test_abc", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	session, err := p.CreateSession(context.Background(), SessionRequest{
		Amount:        core.Money{Cents: 2500},
		Description:   "Groceries",
		PayerName:     "Bob",
		RecipientName: "Alice",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ClientSecret != "cs_test_123_secret" {
		t.Fatalf("expected client secret, got %q", session.ClientSecret)
	}
	if session.ID != "cs_test_123" {
		t.Fatalf("expected session id, got %q", session.ID)
	}

	if captured.URL.Path != "/v1/checkout/sessions" {
		t.Fatalf("unexpected path %q", captured.URL.Path)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer sk_test_abc" {
		t.Fatalf("unexpected auth header %q", got)
	}

	checks := map[string]string{
		"ui_mode":                                "embedded",
		"mode":                                   "payment",
		"redirect_on_completion":                 "never",
		"line_items[0][price_data][unit_amount]": "2500",
		"line_items[0][price_data][currency]":    "usd",
		"metadata[payer]":                        "Bob",
		"metadata[recipient]":                    "Alice",
		"line_items[0][price_data][product_data][name]": "Groceries (to Alice)",
	}
	for key, want := range checks {
		if got := first(form[key]); got != want {
			t.Errorf("form[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestStripeCreateSessionErrors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		if _, err := NewStripeProvider(""); err != ErrNotConfigured {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
	})

	t.Run("invalid amount", func(t *testing.T) {
		p, err := NewStripeProvider("sk_test_abc")
		if err != nil {
			t.Fatalf("NewStripeProvider: %v", err)
		}
		if _, err := p.CreateSession(context.Background(), SessionRequest{Amount: core.Money{Cents: 0}}); err == nil {
			t.Fatalf("expected amount validation error")
		}
	})

	t.Run("api error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(`{"error":{"message":"card declined"}}`))
		}))
		defer srv.Close()

		p, err := NewStripeProvider("sk_test_abc", WithBaseURL(srv.URL))
		if err != nil {
			t.Fatalf("NewStripeProvider: %v", err)
		}
		if _, err := p.CreateSession(context.Background(), SessionRequest{
			Amount: core.Money{Cents: 100}, Description: "x"}); err == nil {
			t.Fatalf("expected error for non-200 status")
		}
	})

	t.Run("missing client secret", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"cs_test_123"}`))
		}))
		defer srv.Close()

		p, err := NewStripeProvider("sk_test_abc", WithBaseURL(srv.URL))
		if err != nil {
			t.Fatalf("NewStripeProvider: %v", err)
		}
		if _, err := p.CreateSession(context.Background(), SessionRequest{
			Amount: core.Money{Cents: 100}, Description: "x"}); err == nil {
			t.Fatalf("expected error for missing client secret")
		}
	})
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
