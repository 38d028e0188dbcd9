package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/lumina-labs/internal/domain"
	"github.com/ashureev/lumina-labs/internal/identity"
	"github.com/ashureev/lumina-labs/internal/profile"
)

// HandleGetProfile handles GET /api/profile.
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	p, err := h.profiles.Load(r.Context(), userID)
	if err != nil {
		slog.Error("profile load failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	JSON(w, http.StatusOK, p)
}

type putProfileRequest struct {
	Scores        domain.Big5Profile `json:"scores"`
	LearningStyle string             `json:"learning_style"`
	Advice        string             `json:"advice"`
}

// HandlePutProfile handles PUT /api/profile.
func (h *Handler) HandlePutProfile(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req putProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.profiles.Save(r.Context(), userID, req.Scores, req.LearningStyle, req.Advice)
	if err != nil {
		if !req.Scores.Valid() {
			Error(w, http.StatusBadRequest, "trait scores must be within [0,100]")
			return
		}
		slog.Error("profile save failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	JSON(w, http.StatusOK, p)
}

// HandleProfilePresets handles GET /api/profile/presets.
func (h *Handler) HandleProfilePresets(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"presets": profile.Presets()})
}
