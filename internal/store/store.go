// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/lumina-labs/internal/domain"
)

// Repository defines the interface for persisting users, assessment
// profiles, and generated courses.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) when
	// the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetProfile retrieves a user's assessment profile. Returns (nil, nil)
	// when the user has not completed an assessment.
	GetProfile(ctx context.Context, userID string) (*domain.AssessmentProfile, error)

	// UpsertProfile creates or replaces a user's assessment profile.
	UpsertProfile(ctx context.Context, userID string, profile *domain.AssessmentProfile) error

	// InsertCourse stores a generated course. Courses are immutable once
	// written.
	InsertCourse(ctx context.Context, userID string, course *domain.GeneratedCourse) error

	// GetCourse retrieves one of a user's courses. Returns (nil, nil) when
	// not found.
	GetCourse(ctx context.Context, userID, courseID string) (*domain.GeneratedCourse, error)

	// ListCoursesByUser retrieves a user's courses, newest first.
	ListCoursesByUser(ctx context.Context, userID string) ([]*domain.GeneratedCourse, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
