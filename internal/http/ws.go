package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	applog "hearth/internal/log"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is same-origin only in production; the reverse proxy
	// enforces the origin, so the upgrade accepts any.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// syncFrame is one snapshot push: the whole view after a change, never a
// patch. Clients replace their local copy wholesale.
type syncFrame struct {
	View  string `json:"view"`
	Scope string `json:"scope"`
	State string `json:"state"`
	Rows  any    `json:"rows"`
}

// handleSync upgrades to a websocket and streams one view's snapshot. Every
// applied change produces a fresh frame; the client never sees a partial
// merge.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	scope := r.URL.Query().Get("scope")
	if view == "" || scope == "" {
		errorJSON(w, http.StatusBadRequest, "view and scope are required")
		return
	}

	session, err := s.newSyncSession(view)
	if err != nil {
		if errors.Is(err, errUnknownView) {
			errorJSON(w, http.StatusNotFound, "unknown view")
			return
		}
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		reqLog(r.Context()).WarnContext(r.Context(), "Websocket upgrade failed",
			applog.FieldView, view, applog.FieldError, err)
		return
	}
	defer conn.Close()
	defer session.Detach()

	ctx := r.Context()
	if err := session.Attach(ctx, scope); err != nil {
		reqLog(ctx).WarnContext(ctx, "View attach failed",
			applog.FieldView, view, applog.FieldScope, scope, applog.FieldError, err)
		return
	}

	reqLog(ctx).InfoContext(ctx, "Sync stream opened", applog.FieldView, view, applog.FieldScope, scope)

	// Reader: we expect no frames from the client beyond pongs; a read
	// error means the peer went away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	sendSnapshot := func() error {
		frame := syncFrame{
			View:  view,
			Scope: scope,
			State: string(session.State()),
			Rows:  session.Rows(ctx),
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(frame)
	}

	if err := sendSnapshot(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			reqLog(ctx).DebugContext(ctx, "Sync stream closed by peer",
				applog.FieldView, view, applog.FieldScope, scope)
			return
		case <-session.Updates():
			if err := sendSnapshot(); err != nil {
				reqLog(ctx).DebugContext(ctx, "Sync frame write failed",
					applog.FieldView, view, applog.FieldScope, scope, applog.FieldError, err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
