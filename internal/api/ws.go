package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/lumina-labs/internal/identity"
)

// HandleGenerationFeed handles GET /ws/generation. The connection
// receives the current pipeline status immediately, then every progress
// event; it closes after a terminal event is delivered.
func (h *Handler) HandleGenerationFeed(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	slog.Info("generation feed connected", "user_id", userID, "ip", identity.IPFromRequest(r))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads are discarded, but the read loop surfaces client closes.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	sess := h.scoping.Session(ctx, userID)
	events, unsubscribe := sess.Runner().Subscribe()
	defer unsubscribe()

	keepalive := time.NewTicker(h.cfg.SSE.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("generation feed disconnected", "user_id", userID)
			return
		case <-keepalive.C:
			if err := ws.Ping(ctx); err != nil {
				slog.Debug("websocket ping failed", "error", err, "user_id", userID)
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("failed to marshal progress event", "error", err)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("websocket write failed", "error", err, "user_id", userID)
				return
			}
			if ev.Stage.Terminal() {
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDevelopment() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.FrontendURL == "" || origin == h.cfg.FrontendURL {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "allowed", h.cfg.FrontendURL)
	return false
}
