package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/lumina-labs/internal/backend"
	"github.com/ashureev/lumina-labs/internal/domain"
	"github.com/ashureev/lumina-labs/internal/identity"
	"github.com/ashureev/lumina-labs/internal/scoping"
)

type turnRequest struct {
	Message string `json:"message"`
}

// HandleScopingTurn handles POST /api/scoping/turn. The reply streams as
// SSE: one "chunk" event per response fragment, then a "done" event with
// the full assistant message, or an "error" event.
func (h *Handler) HandleScopingTurn(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	sess := h.scoping.Session(r.Context(), userID)
	if sess.Streaming() {
		Error(w, http.StatusConflict, "a turn is already streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", h.cfg.SSE.RetryDelay.Milliseconds())); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err, "user_id", userID)
		return
	}
	flusher.Flush()

	slog.Info("scoping turn", "user_id", userID, "message_length", len(req.Message))

	err := sess.SendTurn(r.Context(), req.Message, func(chunk string) {
		data, marshalErr := json.Marshal(map[string]string{"text": chunk})
		if marshalErr != nil {
			slog.Warn("failed to marshal chunk", "error", marshalErr)
			return
		}
		if writeErr := writeSSE(w, "chunk", string(data)); writeErr != nil {
			slog.Warn("failed to write SSE chunk", "error", writeErr, "user_id", userID)
			return
		}
		flusher.Flush()
	})
	if err != nil {
		writeTurnError(w, flusher, userID, err)
		return
	}

	tr := sess.Transcript()
	reply := tr[len(tr)-1]
	data, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		slog.Warn("failed to marshal reply", "error", marshalErr)
		return
	}
	if writeErr := writeSSE(w, "done", string(data)); writeErr != nil {
		slog.Warn("failed to write SSE done event", "error", writeErr, "user_id", userID)
		return
	}
	flusher.Flush()
}

// writeTurnError reports a turn failure over the already-open SSE stream.
func writeTurnError(w http.ResponseWriter, flusher http.Flusher, userID string, err error) {
	msg := "the assistant could not finish its reply"
	switch {
	case errors.Is(err, scoping.ErrTurnInFlight):
		msg = "a turn is already streaming"
	case errors.Is(err, scoping.ErrTurnSuperseded):
		msg = "the conversation was reset"
	case errors.Is(err, backend.ErrMalformedStream):
		msg = "the model returned an unreadable response"
	}
	slog.Warn("scoping turn failed", "user_id", userID, "error", err)

	data, marshalErr := json.Marshal(map[string]string{"error": msg})
	if marshalErr != nil {
		return
	}
	if writeErr := writeSSE(w, "error", string(data)); writeErr != nil {
		slog.Warn("failed to write SSE error event", "error", writeErr, "user_id", userID)
		return
	}
	flusher.Flush()
}

// HandleScopingReset handles POST /api/scoping/reset.
func (h *Handler) HandleScopingReset(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess := h.scoping.Session(r.Context(), userID)
	sess.Reset()
	slog.Info("scoping session reset", "user_id", userID)

	JSON(w, http.StatusOK, map[string]interface{}{
		"transcript": sess.Transcript(),
	})
}

type variantRequest struct {
	Variant string `json:"variant"`
}

// HandleScopingVariant handles POST /api/scoping/variant.
func (h *Handler) HandleScopingVariant(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req variantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	variant, ok := domain.ParseModelVariant(req.Variant)
	if !ok {
		Error(w, http.StatusBadRequest, "unknown model variant")
		return
	}

	sess := h.scoping.Session(r.Context(), userID)
	sess.SetVariant(variant)

	JSON(w, http.StatusOK, map[string]string{"variant": string(sess.Variant())})
}

// HandleScopingTranscript handles GET /api/scoping/transcript.
func (h *Handler) HandleScopingTranscript(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess := h.scoping.Session(r.Context(), userID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"transcript":   sess.Transcript(),
		"variant":      string(sess.Variant()),
		"can_generate": sess.CanGenerate(),
	})
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
