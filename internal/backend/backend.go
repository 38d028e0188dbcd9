// Package backend provides the generative AI client used for scoping chat
// and course drafting.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/ashureev/lumina-labs/internal/domain"
)

var (
	// ErrMalformedStream indicates a stream chunk that carries no usable text.
	ErrMalformedStream = errors.New("malformed stream chunk")
	// ErrTransport indicates a network or backend failure mid-stream.
	ErrTransport = errors.New("backend transport error")
)

// TextChunk is one incremental piece of a streamed model response.
type TextChunk struct {
	Text string
}

// DraftRequest carries everything the drafting model needs for one run.
type DraftRequest struct {
	Transcript    string
	IntentSummary string
	Profile       domain.Big5Profile
	Variant       domain.ModelVariant
}

// CourseDraft is the raw course structure returned by the drafting model,
// before enrichment and finalization.
type CourseDraft struct {
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Duration    string                    `json:"duration"`
	Chapters    []domain.GeneratedChapter `json:"chapters"`
}

// Client is the generative AI backend.
type Client interface {
	// CreateChatSession builds a local session handle. It performs no I/O
	// and cannot fail; the first SendMessageStreamed call surfaces any
	// connectivity problems.
	CreateChatSession(profile domain.Big5Profile, variant domain.ModelVariant) *ChatSession

	// SendMessageStreamed sends one user turn and yields response chunks
	// as they arrive. On success the full exchange is appended to the
	// session history so later turns carry context.
	SendMessageStreamed(ctx context.Context, sess *ChatSession, text string) iter.Seq2[TextChunk, error]

	// GenerateCourseDraft produces a course draft from a scoping snapshot.
	GenerateCourseDraft(ctx context.Context, req DraftRequest) (*CourseDraft, error)

	// Close releases resources.
	Close()
}

// ChatSession is a backend-side conversation handle. History accumulates
// across turns; the caller serializes access per session.
type ChatSession struct {
	mu      sync.Mutex
	profile domain.Big5Profile
	variant domain.ModelVariant
	history []historyTurn
}

type historyTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Variant reports the model variant this session was created with.
func (s *ChatSession) Variant() domain.ModelVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant
}

func (s *ChatSession) snapshotHistory() []historyTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]historyTurn, len(s.history))
	copy(out, s.history)
	return out
}

func (s *ChatSession) appendExchange(userText, modelText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		historyTurn{Role: "user", Text: userText},
		historyTurn{Role: "model", Text: modelText},
	)
}

// rawChunk accepts the two chunk shapes the backend emits: a flat
// {"text": ...} object or a nested {"delta": {"text": ...}}.
type rawChunk struct {
	Text  *string `json:"text"`
	Delta *struct {
		Text *string `json:"text"`
	} `json:"delta"`
}

// decodeChunk normalizes one wire chunk into a TextChunk. A chunk that
// carries neither text form is malformed.
func decodeChunk(data []byte) (TextChunk, error) {
	var rc rawChunk
	if err := json.Unmarshal(data, &rc); err != nil {
		return TextChunk{}, fmt.Errorf("%w: %v", ErrMalformedStream, err)
	}
	switch {
	case rc.Text != nil:
		return TextChunk{Text: *rc.Text}, nil
	case rc.Delta != nil && rc.Delta.Text != nil:
		return TextChunk{Text: *rc.Delta.Text}, nil
	default:
		return TextChunk{}, fmt.Errorf("%w: no text field", ErrMalformedStream)
	}
}
