package scoping

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/lumina-labs/internal/backend"
	"github.com/ashureev/lumina-labs/internal/config"
	"github.com/ashureev/lumina-labs/internal/domain"
	"github.com/ashureev/lumina-labs/internal/pipeline"
	"github.com/ashureev/lumina-labs/internal/store"
)

// Manager owns the scoping sessions, one per user. Sessions are created
// lazily on first access and live for the process lifetime.
type Manager struct {
	backend backend.Client
	repo    store.Repository
	cfg     config.ScopingConfig
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a session manager.
func NewManager(bc backend.Client, repo store.Repository, cfg config.ScopingConfig, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		backend:  bc,
		repo:     repo,
		cfg:      cfg,
		log:      log.With("component", "scoping"),
		sessions: make(map[string]*Session),
	}
}

// Session returns the user's scoping session, creating it on first use.
// The assessment profile is loaded once at creation; a neutral profile
// stands in when the user has not completed an assessment.
func (m *Manager) Session(ctx context.Context, userID string) *Session {
	m.mu.Lock()
	if sess, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return sess
	}
	m.mu.Unlock()

	profile := domain.NeutralProfile()
	if ap, err := m.repo.GetProfile(ctx, userID); err != nil {
		m.log.Warn("profile load failed, using neutral", "user_id", userID, "error", err)
	} else if ap != nil && ap.Scores.Valid() {
		profile = ap.Scores
	}

	runner := pipeline.NewRunner(m.backend, m.repo, pipeline.AssetComposer{}, pipeline.ScriptNarrator{}, m.log)
	sess := newSession(userID, profile, m.backend, runner, m.cfg.MinUserTurns, m.cfg.TranscriptMaxRunes, m.log)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have created the session in the window above.
	if existing, ok := m.sessions[userID]; ok {
		return existing
	}
	m.sessions[userID] = sess
	m.log.Info("scoping session created", "user_id", userID)
	return sess
}
