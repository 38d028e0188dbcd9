package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/lumina-labs/internal/domain"
	"github.com/ashureev/lumina-labs/internal/identity"
	"github.com/ashureev/lumina-labs/internal/pipeline"
	"github.com/ashureev/lumina-labs/internal/scoping"
)

// HandleGenerate handles POST /api/generate. The run executes in the
// background; progress flows through the status endpoint and the
// websocket feed.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	sess := h.scoping.Session(r.Context(), userID)
	err := sess.StartGeneration()
	switch {
	case errors.Is(err, scoping.ErrNotEnoughContext):
		Error(w, http.StatusPreconditionFailed, "tell me a bit more about what you want to learn first")
		return
	case errors.Is(err, pipeline.ErrRunInFlight):
		Error(w, http.StatusConflict, "a course is already being generated")
		return
	case err != nil:
		slog.Error("generation start failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to start generation")
		return
	}

	slog.Info("generation started", "user_id", userID)
	JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// HandleGenerationStatus handles GET /api/generation/status.
func (h *Handler) HandleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess := h.scoping.Session(r.Context(), userID)
	JSON(w, http.StatusOK, sess.Runner().Status())
}

// HandleListCourses handles GET /api/courses.
func (h *Handler) HandleListCourses(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	courses, err := h.repo.ListCoursesByUser(r.Context(), userID)
	if err != nil {
		slog.Error("list courses failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load courses")
		return
	}
	if courses == nil {
		courses = []*domain.GeneratedCourse{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

// HandleGetCourse handles GET /api/courses/{courseID}.
func (h *Handler) HandleGetCourse(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	courseID := chi.URLParam(r, "courseID")
	course, err := h.repo.GetCourse(r.Context(), userID, courseID)
	if err != nil {
		slog.Error("get course failed", "user_id", userID, "course_id", courseID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load course")
		return
	}
	if course == nil {
		Error(w, http.StatusNotFound, "course not found")
		return
	}
	JSON(w, http.StatusOK, course)
}
