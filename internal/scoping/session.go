// Package scoping manages per-user scoping conversations: the chat in
// which a learner and the model narrow down what the generated course
// should cover.
package scoping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/lumina-labs/internal/backend"
	"github.com/ashureev/lumina-labs/internal/domain"
	"github.com/ashureev/lumina-labs/internal/intent"
	"github.com/ashureev/lumina-labs/internal/pipeline"
)

var (
	// ErrTurnInFlight is returned while a previous turn is still streaming.
	ErrTurnInFlight = errors.New("a turn is already streaming")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrNotEnoughContext is returned when generation is requested before
	// the conversation carries enough signal.
	ErrNotEnoughContext = errors.New("not enough scoping context to generate a course")
	// ErrTurnSuperseded is returned when a reset or variant change lands
	// while a turn is streaming.
	ErrTurnSuperseded = errors.New("turn superseded by session reset")
)

const welcomeText = "Hi! I'm Lumina, your learning guide. Tell me what you'd like to learn " +
	"and I'll help you shape it into a course built just for you."

const failedTurnText = "Sorry, something went wrong on my end. Please try sending that again."

// Session is one user's scoping conversation. All transcript access is
// serialized through the session mutex; streaming appends happen chunk
// by chunk so readers always observe a consistent prefix.
type Session struct {
	userID  string
	backend backend.Client
	runner  *pipeline.Runner
	log     *slog.Logger

	minUserTurns       int
	maxTranscriptRunes int

	mu         sync.Mutex
	gen        int
	variant    domain.ModelVariant
	profile    domain.Big5Profile
	handle     *backend.ChatSession
	transcript []*domain.ChatMessage
	streaming  bool
	nextMsgID  int
}

func newSession(userID string, profile domain.Big5Profile, bc backend.Client, runner *pipeline.Runner, minUserTurns, maxTranscriptRunes int, log *slog.Logger) *Session {
	s := &Session{
		userID:             userID,
		backend:            bc,
		runner:             runner,
		log:                log.With("user_id", userID),
		minUserTurns:       minUserTurns,
		maxTranscriptRunes: maxTranscriptRunes,
		variant:            domain.VariantStandard,
		profile:            profile,
	}
	s.handle = bc.CreateChatSession(profile, s.variant)
	s.transcript = []*domain.ChatMessage{s.newMessage(domain.RoleAssistant, welcomeText)}
	return s
}

// newMessage must be called with s.mu held.
func (s *Session) newMessage(role domain.Role, text string) *domain.ChatMessage {
	s.nextMsgID++
	return &domain.ChatMessage{
		ID:        fmt.Sprintf("m%d", s.nextMsgID),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// Transcript returns a snapshot copy of the conversation.
func (s *Session) Transcript() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.transcript))
	for i, m := range s.transcript {
		out[i] = *m
	}
	return out
}

// Variant returns the session's current model variant.
func (s *Session) Variant() domain.ModelVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant
}

// SetVariant switches the model variant. The transcript is preserved but
// the backend conversation starts fresh; an in-flight turn is cut off.
func (s *Session) SetVariant(v domain.ModelVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == s.variant {
		return
	}
	s.gen++
	s.variant = v
	s.handle = s.backend.CreateChatSession(s.profile, v)
}

// Reset discards the conversation and starts over with a fresh welcome
// message. A generation run already in progress is not aborted.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.handle = s.backend.CreateChatSession(s.profile, s.variant)
	s.transcript = []*domain.ChatMessage{s.newMessage(domain.RoleAssistant, welcomeText)}
}

// Streaming reports whether a turn is currently in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Runner exposes the generation pipeline for this session.
func (s *Session) Runner() *pipeline.Runner {
	return s.runner
}

// SendTurn sends one user message and streams the reply. onChunk fires
// for each response fragment in arrival order; the transcript mirrors
// exactly what onChunk has delivered. At most one turn may stream at a
// time.
func (s *Session) SendTurn(ctx context.Context, text string, onChunk func(string)) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	s.streaming = true
	gen := s.gen
	handle := s.handle
	s.transcript = append(s.transcript, s.newMessage(domain.RoleUser, text))
	reply := s.newMessage(domain.RoleAssistant, "")
	reply.IsStreaming = true
	s.transcript = append(s.transcript, reply)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.streaming = false
		s.mu.Unlock()
	}()

	for chunk, err := range s.backend.SendMessageStreamed(ctx, handle, text) {
		if err != nil {
			return s.finishTurnFailed(gen, reply, err)
		}
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return ErrTurnSuperseded
		}
		reply.Text += chunk.Text
		s.mu.Unlock()
		if onChunk != nil {
			onChunk(chunk.Text)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrTurnSuperseded
	}
	reply.IsStreaming = false
	return nil
}

// finishTurnFailed marks the streaming reply failed while keeping any
// text already delivered, so the transcript matches what the user saw.
func (s *Session) finishTurnFailed(gen int, reply *domain.ChatMessage, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrTurnSuperseded
	}
	reply.IsStreaming = false
	reply.Failed = true
	if reply.Text == "" {
		reply.Text = failedTurnText
	}
	s.log.Warn("scoping turn failed", "error", cause)
	return cause
}

// StartGeneration snapshots the conversation and kicks off a pipeline
// run. The snapshot is immutable; resets after this point do not affect
// the run.
func (s *Session) StartGeneration() error {
	s.mu.Lock()
	if !canGenerate(s.transcript, s.minUserTurns) {
		s.mu.Unlock()
		return ErrNotEnoughContext
	}
	userTurns := userTurnTexts(s.transcript)
	inputs := pipeline.Inputs{
		UserID:        s.userID,
		Transcript:    renderTranscript(s.transcript, s.maxTranscriptRunes),
		IntentSummary: intent.Extract(userTurns).String(),
		Profile:       s.profile,
		Variant:       s.variant,
	}
	s.mu.Unlock()

	return s.runner.Start(inputs)
}

func userTurnTexts(transcript []*domain.ChatMessage) []string {
	var out []string
	for _, m := range transcript {
		if m.Role == domain.RoleUser {
			out = append(out, m.Text)
		}
	}
	return out
}

// renderTranscript formats the conversation for the drafting prompt,
// keeping the most recent messages when the rune budget is exceeded.
func renderTranscript(transcript []*domain.ChatMessage, maxRunes int) string {
	lines := make([]string, 0, len(transcript))
	for _, m := range transcript {
		if m.Failed {
			continue
		}
		speaker := "Learner"
		if m.Role == domain.RoleAssistant {
			speaker = "Lumina"
		}
		lines = append(lines, speaker+": "+m.Text)
	}

	total := 0
	keepFrom := 0
	for i := len(lines) - 1; i >= 0; i-- {
		n := len([]rune(lines[i])) + 1
		if total+n > maxRunes && total > 0 {
			keepFrom = i + 1
			break
		}
		total += n
	}
	return strings.Join(lines[keepFrom:], "\n")
}
