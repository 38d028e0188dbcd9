package backend

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/lumina-labs/internal/domain"
)

// MockClient is an offline backend used when no API key is configured.
// It streams canned replies word by word and returns a fixed course
// draft, so the full flow works in local development.
type MockClient struct {
	log *slog.Logger
	// ChunkDelay paces streamed chunks. Zero means no delay.
	ChunkDelay time.Duration
}

// NewMockClient builds an offline backend.
func NewMockClient(log *slog.Logger) *MockClient {
	if log == nil {
		log = slog.Default()
	}
	return &MockClient{log: log.With("component", "backend_mock")}
}

// CreateChatSession builds a local session handle.
func (c *MockClient) CreateChatSession(profile domain.Big5Profile, variant domain.ModelVariant) *ChatSession {
	return &ChatSession{profile: profile, variant: variant}
}

// SendMessageStreamed yields a canned scoping reply one word at a time.
func (c *MockClient) SendMessageStreamed(ctx context.Context, sess *ChatSession, text string) iter.Seq2[TextChunk, error] {
	return func(yield func(TextChunk, error) bool) {
		turns := len(sess.snapshotHistory()) / 2
		reply := c.replyFor(turns, text)

		var full strings.Builder
		words := strings.SplitAfter(reply, " ")
		for _, w := range words {
			if ctx.Err() != nil {
				yield(TextChunk{}, fmt.Errorf("%w: %v", ErrTransport, ctx.Err()))
				return
			}
			if c.ChunkDelay > 0 {
				time.Sleep(c.ChunkDelay)
			}
			full.WriteString(w)
			if !yield(TextChunk{Text: w}, nil) {
				return
			}
		}

		sess.appendExchange(text, full.String())
	}
}

func (c *MockClient) replyFor(turns int, text string) string {
	switch turns {
	case 0:
		return "Great, I can work with that. What is your current experience level, and is there a particular area you want to start with?"
	case 1:
		return "That helps a lot. Do you prefer hands-on projects or more structured lessons? Once I know that, I can put together a plan for you."
	default:
		return "I think I have a good picture now. You can generate your course whenever you are ready, or keep refining the details."
	}
}

// GenerateCourseDraft returns a fixed demonstration draft.
func (c *MockClient) GenerateCourseDraft(ctx context.Context, req DraftRequest) (*CourseDraft, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c.log.Info("serving mock course draft", "variant", string(req.Variant))
	return &CourseDraft{
		Title:       "Blender 3D: From First Cube to Finished Scene",
		Description: "A hands-on path through Blender fundamentals, paced for a focused beginner.",
		Duration:    "4 weeks",
		Chapters: []domain.GeneratedChapter{
			{
				Title:        "Navigating the Viewport",
				Duration:     "25 min",
				Type:         "lesson",
				Content:      "Orbit, pan, and zoom until moving through 3D space feels as natural as scrolling a page.",
				WhyItMatters: "Every tool in Blender assumes you can get your camera where you need it.",
				KeyConcepts:  []string{"viewport", "orbit", "transform gizmo"},
				ActionStep:   "Open the default scene and frame the cube from three different angles.",
				Analogy:      "The viewport is a film set and you are the camera operator.",
				QuizQuestion: "Which input orbits the view around the selected object?",
			},
			{
				Title:        "Modeling Your First Object",
				Duration:     "40 min",
				Type:         "project",
				Content:      "Use extrude, loop cuts, and proportional editing to turn a cube into a coffee mug.",
				WhyItMatters: "Box modeling is the backbone of most hard-surface work.",
				KeyConcepts:  []string{"extrude", "loop cut", "edit mode"},
				ActionStep:   "Model a mug with a handle using only extrude and loop cuts.",
				Analogy:      "Think of the mesh as digital clay that only bends at its wires.",
				QuizQuestion: "What does a loop cut add to a mesh?",
			},
			{
				Title:        "Materials and Lighting",
				Duration:     "35 min",
				Type:         "lesson",
				Content:      "Give your mug a ceramic surface and light it with a simple three-point setup.",
				WhyItMatters: "Good lighting sells a render more than any amount of modeling detail.",
				KeyConcepts:  []string{"shader nodes", "principled BSDF", "three-point lighting"},
				ActionStep:   "Render your mug twice, once flat-lit and once with three-point lighting, and compare.",
				Analogy:      "Materials are the costume, lighting is the stage direction.",
				QuizQuestion: "Which light in a three-point setup softens shadows?",
			},
		},
	}, nil
}

// Close releases resources.
func (c *MockClient) Close() {}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*MockClient)(nil)
)
