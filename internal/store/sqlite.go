package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/lumina-labs/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		openness INTEGER NOT NULL,
		conscientiousness INTEGER NOT NULL,
		extraversion INTEGER NOT NULL,
		agreeableness INTEGER NOT NULL,
		neuroticism INTEGER NOT NULL,
		personality_type TEXT NOT NULL,
		learning_style TEXT,
		advice TEXT,
		completed_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS courses (
		course_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		duration TEXT,
		model_used TEXT NOT NULL,
		chapters_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_courses_user ON courses(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// GetProfile retrieves a user's assessment profile.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.AssessmentProfile, error) {
	query := `
		SELECT openness, conscientiousness, extraversion, agreeableness, neuroticism,
		       personality_type, learning_style, advice, completed_at
		FROM profiles WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var p domain.AssessmentProfile
	var learningStyle, advice sql.NullString
	var completedAt int64

	err := row.Scan(
		&p.Scores.Openness, &p.Scores.Conscientiousness, &p.Scores.Extraversion,
		&p.Scores.Agreeableness, &p.Scores.Neuroticism,
		&p.PersonalityType, &learningStyle, &advice, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	p.LearningStyle = learningStyle.String
	p.Advice = advice.String
	p.CompletedAt = time.Unix(completedAt, 0)

	return &p, nil
}

// UpsertProfile creates or replaces a user's assessment profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, userID string, profile *domain.AssessmentProfile) error {
	query := `
	INSERT INTO profiles (
		user_id, openness, conscientiousness, extraversion, agreeableness, neuroticism,
		personality_type, learning_style, advice, completed_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		openness = excluded.openness,
		conscientiousness = excluded.conscientiousness,
		extraversion = excluded.extraversion,
		agreeableness = excluded.agreeableness,
		neuroticism = excluded.neuroticism,
		personality_type = excluded.personality_type,
		learning_style = excluded.learning_style,
		advice = excluded.advice,
		completed_at = excluded.completed_at,
		updated_at = excluded.updated_at`

	return s.withBusyRetry(ctx, "upsert profile", func() error {
		_, err := s.db.ExecContext(ctx, query,
			userID,
			profile.Scores.Openness, profile.Scores.Conscientiousness,
			profile.Scores.Extraversion, profile.Scores.Agreeableness,
			profile.Scores.Neuroticism,
			string(profile.PersonalityType), profile.LearningStyle, profile.Advice,
			profile.CompletedAt.Unix(), time.Now().Unix(),
		)
		return err
	})
}

// InsertCourse stores a generated course. Chapters serialize as a JSON
// column; courses are never updated after insert.
func (s *SQLiteStore) InsertCourse(ctx context.Context, userID string, course *domain.GeneratedCourse) error {
	chaptersJSON, err := json.Marshal(course.Chapters)
	if err != nil {
		return fmt.Errorf("marshal chapters: %w", err)
	}

	query := `
	INSERT INTO courses (course_id, user_id, title, description, duration, model_used, chapters_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	return s.withBusyRetry(ctx, "insert course", func() error {
		_, err := s.db.ExecContext(ctx, query,
			course.ID, userID, course.Title, course.Description, course.Duration,
			string(course.ModelUsed), string(chaptersJSON), course.CreatedAt.Unix(),
		)
		return err
	})
}

// GetCourse retrieves one of a user's courses.
func (s *SQLiteStore) GetCourse(ctx context.Context, userID, courseID string) (*domain.GeneratedCourse, error) {
	query := `
		SELECT course_id, title, description, duration, model_used, chapters_json, created_at
		FROM courses WHERE user_id = ? AND course_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID, courseID)
	course, err := scanCourse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan course row: %w", err)
	}
	return course, nil
}

// ListCoursesByUser retrieves a user's courses, newest first.
func (s *SQLiteStore) ListCoursesByUser(ctx context.Context, userID string) ([]*domain.GeneratedCourse, error) {
	query := `
		SELECT course_id, title, description, duration, model_used, chapters_json, created_at
		FROM courses WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close course rows", "error", closeErr)
		}
	}()

	var courses []*domain.GeneratedCourse
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course row: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}

	return courses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*domain.GeneratedCourse, error) {
	var course domain.GeneratedCourse
	var modelUsed, chaptersJSON string
	var createdAt int64

	if err := row.Scan(
		&course.ID, &course.Title, &course.Description, &course.Duration,
		&modelUsed, &chaptersJSON, &createdAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(chaptersJSON), &course.Chapters); err != nil {
		return nil, fmt.Errorf("unmarshal chapters: %w", err)
	}
	course.ModelUsed = domain.ModelVariant(modelUsed)
	course.CreatedAt = time.Unix(createdAt, 0)

	return &course, nil
}

// withBusyRetry retries a write a few times when SQLite reports the
// database locked. Backoff: 100ms, 200ms, 400ms.
func (s *SQLiteStore) withBusyRetry(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isSQLiteConflict(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("sqlite write conflict, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY") ||
		strings.Contains(err.Error(), "database is locked")
}
