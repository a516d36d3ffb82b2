// Package http exposes the household API: JSON endpoints for groups, chat,
// shopping lists, calendar and the expense ledger, plus a websocket change
// stream per synchronized view.
package http

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"hearth/internal/cache"
	"hearth/internal/chat"
	"hearth/internal/ledger"
	applog "hearth/internal/log"
	"hearth/internal/metrics"
	"hearth/internal/payments"
	"hearth/internal/realtime"
	"hearth/internal/store"
)

// Options carries everything the server needs. Payments and Metrics are
// optional; a nil provider turns the payment endpoint into 503.
type Options struct {
	Addr         string
	Store        store.Store
	Ledger       *ledger.Service
	Payments     payments.SessionProvider
	Metrics      *metrics.Metrics
	Logger       *applog.Logger
	PollInterval time.Duration
	ChatLimit    int
}

type Server struct {
	http.Server

	store        store.Store
	ledger       *ledger.Service
	payments     payments.SessionProvider
	metrics      *metrics.Metrics
	logger       *applog.Logger
	pollInterval time.Duration
	chatLimit    int
	names        *cache.LRU[string]

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}

	s := &Server{
		store:        opts.Store,
		ledger:       opts.Ledger,
		payments:     opts.Payments,
		metrics:      opts.Metrics,
		logger:       logger.WithComponent(applog.ComponentHTTP),
		pollInterval: opts.PollInterval,
		chatLimit:    opts.ChatLimit,
		names:        chat.NewNameCache(),
		rateLimiter:  newRateLimiter(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	mux.HandleFunc("PUT /api/profile", s.handleUpsertProfile)
	mux.HandleFunc("GET /api/profiles/{id}", s.handleGetProfile)

	mux.HandleFunc("POST /api/groups", s.handleCreateGroup)
	mux.HandleFunc("POST /api/groups/join", s.handleJoinGroup)
	mux.HandleFunc("GET /api/groups", s.handleListGroups)
	mux.HandleFunc("GET /api/groups/{id}/members", s.handleListMembers)

	mux.HandleFunc("GET /api/groups/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/groups/{id}/messages", s.handleSendMessage)

	mux.HandleFunc("GET /api/groups/{id}/lists", s.handleListShoppingLists)
	mux.HandleFunc("POST /api/groups/{id}/lists", s.handleCreateShoppingList)
	mux.HandleFunc("PUT /api/lists/{id}", s.handleUpdateShoppingList)
	mux.HandleFunc("DELETE /api/lists/{id}", s.handleDeleteShoppingList)
	mux.HandleFunc("GET /api/lists/{id}/items", s.handleListItems)
	mux.HandleFunc("POST /api/lists/{id}/items", s.handleCreateItem)
	mux.HandleFunc("PUT /api/items/{id}", s.handleUpdateItem)
	mux.HandleFunc("POST /api/items/{id}/check", s.handleCheckItem)
	mux.HandleFunc("DELETE /api/items/{id}", s.handleDeleteItem)

	mux.HandleFunc("GET /api/groups/{id}/calendar", s.handleListCalendarEvents)
	mux.HandleFunc("POST /api/groups/{id}/calendar", s.handleCreateCalendarEvent)
	mux.HandleFunc("DELETE /api/calendar/{id}", s.handleDeleteCalendarEvent)

	mux.HandleFunc("POST /api/groups/{id}/expenses", s.handleRecordExpense)
	mux.HandleFunc("GET /api/groups/{id}/expenses", s.handleListExpenses)
	mux.HandleFunc("GET /api/ledger/you-owe", s.handleYouOwe)
	mux.HandleFunc("GET /api/ledger/owed-to-you", s.handleOwedToYou)
	mux.HandleFunc("GET /api/ledger/balance", s.handleBalance)
	mux.HandleFunc("POST /api/splits/{id}/settle", s.handleSettleSplit)
	mux.HandleFunc("POST /api/payments/session", s.handleCreatePaymentSession)

	mux.HandleFunc("GET /sync", s.handleSync)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// withMiddleware wraps the mux with request-scoped logging, rate limiting
// on writes, and API security headers. The logger chain installs a
// request-id logger in the context; handlers retrieve it with reqLog.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		clientIP := extractClientIP(r)

		httpLog := applog.NewHTTPLogger(reqLog(ctx))
		httpLog.LogStart(ctx, r, clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			reqLog(ctx).WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			errorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		httpLog.LogEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})

	withRequestID := applog.RequestIDMiddleware(requestIDFor)(inner)
	return applog.Middleware(s.logger)(withRequestID)
}

// reqLog returns the request-scoped logger installed by the middleware.
func reqLog(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx)
}

// requestIDFor honors an upstream X-Request-ID and mints one otherwise.
func requestIDFor(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return generateRequestID()
}

// responseWriter captures the status code for completion logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets websocket upgrades reach the hijackable connection.
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Hijack forwards to the underlying connection for callers that assert
// http.Hijacker directly instead of unwrapping via http.ResponseController.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

func extractClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if i := strings.IndexByte(ip, ','); i >= 0 {
			return strings.TrimSpace(ip[:i])
		}
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// The store is constructed before the server; if we are serving, the
	// schema is migrated and the hub is up.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the rate limiter cleanup and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// newChatService builds a per-connection transcript session. Sessions share
// one display-name cache, so a profile resolved for one connection serves
// them all.
func (s *Server) newChatService() (*chat.Service, error) {
	return chat.NewService(s.store, chat.Options{
		HistoryLimit: s.chatLimit,
		PollInterval: s.pollInterval,
		Metrics:      s.realtimeMetrics(),
		Names:        s.names,
	})
}

// NameCache exposes the shared display-name cache for registration with a
// cache.Manager cleanup loop.
func (s *Server) NameCache() cache.Cleaner { return s.names }

// realtimeMetrics avoids handing managers a typed nil.
func (s *Server) realtimeMetrics() realtime.Metrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}
