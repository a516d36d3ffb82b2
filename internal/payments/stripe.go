package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultStripeBaseURL = "https://api.stripe.com"

// StripeProvider creates embedded checkout sessions through Stripe's
// form-encoded REST API.
type StripeProvider struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// StripeOption adjusts the provider; used by tests to point at a stub server.
type StripeOption func(*StripeProvider)

func WithBaseURL(u string) StripeOption {
	return func(p *StripeProvider) { p.baseURL = u }
}

func WithHTTPClient(c *http.Client) StripeOption {
	return func(p *StripeProvider) { p.client = c }
}

func NewStripeProvider(secretKey string, opts ...StripeOption) (*StripeProvider, error) {
	if secretKey == "" {
		return nil, ErrNotConfigured
	}
	p := &StripeProvider{
		secretKey: secretKey,
		baseURL:   defaultStripeBaseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// CreateSession opens an embedded-mode checkout session for the settlement
// amount. Only the client secret travels back to the caller; confirmation
// of the payment itself is out of band.
func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if err := req.Amount.Validate(); err != nil {
		return Session{}, err
	}

	form := url.Values{}
	form.Set("ui_mode", "embedded")
	form.Set("mode", "payment")
	form.Set("redirect_on_completion", "never")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount.Cents, 10))
	form.Set("line_items[0][price_data][product_data][name]", productName(req))
	form.Set("metadata[payer]", req.PayerName)
	form.Set("metadata[recipient]", req.RecipientName)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, fmt.Errorf("build session request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("read session response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("create checkout session: status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var decoded struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Session{}, fmt.Errorf("decode session response: %w", err)
	}
	if decoded.ClientSecret == "" {
		return Session{}, fmt.Errorf("session response missing client secret")
	}
	return Session{ID: decoded.ID, ClientSecret: decoded.ClientSecret}, nil
}

func productName(req SessionRequest) string {
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = "Settlement"
	}
	if req.RecipientName != "" {
		return fmt.Sprintf("%s (to %s)", desc, req.RecipientName)
	}
	return desc
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
