package scoping

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/lumina-labs/internal/backend"
	"github.com/ashureev/lumina-labs/internal/config"
	"github.com/ashureev/lumina-labs/internal/domain"
	"github.com/ashureev/lumina-labs/internal/pipeline"
)

// chunkStep scripts one streamed fragment, or an error ending the stream.
type chunkStep struct {
	text string
	err  error
}

// fakeBackend replays scripted turns. Each call to SendMessageStreamed
// consumes the next script.
type fakeBackend struct {
	mu       sync.Mutex
	scripts  [][]chunkStep
	draft    *backend.CourseDraft
	draftErr error

	// gate, when set, blocks each chunk until a value is received.
	gate chan struct{}
}

func (f *fakeBackend) CreateChatSession(profile domain.Big5Profile, variant domain.ModelVariant) *backend.ChatSession {
	return &backend.ChatSession{}
}

func (f *fakeBackend) SendMessageStreamed(ctx context.Context, sess *backend.ChatSession, text string) iter.Seq2[backend.TextChunk, error] {
	f.mu.Lock()
	var script []chunkStep
	if len(f.scripts) > 0 {
		script = f.scripts[0]
		f.scripts = f.scripts[1:]
	}
	f.mu.Unlock()

	return func(yield func(backend.TextChunk, error) bool) {
		for _, step := range script {
			if f.gate != nil {
				<-f.gate
			}
			if step.err != nil {
				yield(backend.TextChunk{}, step.err)
				return
			}
			if !yield(backend.TextChunk{Text: step.text}, nil) {
				return
			}
		}
	}
}

func (f *fakeBackend) GenerateCourseDraft(ctx context.Context, req backend.DraftRequest) (*backend.CourseDraft, error) {
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	if f.draft != nil {
		return f.draft, nil
	}
	return &backend.CourseDraft{
		Title:    "Test Course",
		Duration: "1 week",
		Chapters: []domain.GeneratedChapter{{Title: "Ch1", Content: "c"}},
	}, nil
}

func (f *fakeBackend) Close() {}

// fakeRepo is an in-memory Repository covering what these tests touch.
type fakeRepo struct {
	mu        sync.Mutex
	profiles  map[string]*domain.AssessmentProfile
	courses   map[string]*domain.GeneratedCourse
	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles: make(map[string]*domain.AssessmentProfile),
		courses:  make(map[string]*domain.GeneratedCourse),
	}
}

func (r *fakeRepo) GetUser(ctx context.Context, userID string) (*domain.User, error) { return nil, nil }
func (r *fakeRepo) UpsertUser(ctx context.Context, user *domain.User) error          { return nil }
func (r *fakeRepo) UpdateLastSeen(ctx context.Context, userID string, t time.Time) error {
	return nil
}

func (r *fakeRepo) GetProfile(ctx context.Context, userID string) (*domain.AssessmentProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[userID], nil
}

func (r *fakeRepo) UpsertProfile(ctx context.Context, userID string, p *domain.AssessmentProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[userID] = p
	return nil
}

func (r *fakeRepo) InsertCourse(ctx context.Context, userID string, c *domain.GeneratedCourse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.courses[c.ID] = c
	return nil
}

func (r *fakeRepo) GetCourse(ctx context.Context, userID, courseID string) (*domain.GeneratedCourse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.courses[courseID], nil
}

func (r *fakeRepo) ListCoursesByUser(ctx context.Context, userID string) ([]*domain.GeneratedCourse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.GeneratedCourse
	for _, c := range r.courses {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

func testManager(t *testing.T, fb *fakeBackend, repo *fakeRepo) *Manager {
	t.Helper()
	if repo == nil {
		repo = newFakeRepo()
	}
	cfg := config.ScopingConfig{MinUserTurns: 2, TranscriptMaxRunes: 8000}
	return NewManager(fb, repo, cfg, nil)
}

func wordScript(reply string) []chunkStep {
	var steps []chunkStep
	for _, w := range strings.SplitAfter(reply, " ") {
		steps = append(steps, chunkStep{text: w})
	}
	return steps
}

func TestSessionStartsWithWelcome(t *testing.T) {
	m := testManager(t, &fakeBackend{}, nil)
	sess := m.Session(context.Background(), "u1")

	tr := sess.Transcript()
	if len(tr) != 1 {
		t.Fatalf("expected 1 message, got %d", len(tr))
	}
	if tr[0].Role != domain.RoleAssistant || tr[0].Text == "" {
		t.Errorf("unexpected welcome message: %+v", tr[0])
	}
}

func TestSendTurnStreamsAndRecords(t *testing.T) {
	fb := &fakeBackend{scripts: [][]chunkStep{wordScript("sure, let's plan that")}}
	m := testManager(t, fb, nil)
	sess := m.Session(context.Background(), "u1")

	var streamed strings.Builder
	err := sess.SendTurn(context.Background(), "I want to learn Blender", func(chunk string) {
		streamed.WriteString(chunk)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr := sess.Transcript()
	if len(tr) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(tr))
	}
	if tr[1].Role != domain.RoleUser || tr[1].Text != "I want to learn Blender" {
		t.Errorf("unexpected user message: %+v", tr[1])
	}
	reply := tr[2]
	if reply.Role != domain.RoleAssistant || reply.IsStreaming || reply.Failed {
		t.Errorf("unexpected reply state: %+v", reply)
	}
	if reply.Text != "sure, let's plan that" {
		t.Errorf("reply text = %q", reply.Text)
	}
	if streamed.String() != reply.Text {
		t.Errorf("streamed %q does not match transcript %q", streamed.String(), reply.Text)
	}
}

func TestSendTurnRejectsBlankInput(t *testing.T) {
	m := testManager(t, &fakeBackend{}, nil)
	sess := m.Session(context.Background(), "u1")

	if err := sess.SendTurn(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if n := len(sess.Transcript()); n != 1 {
		t.Errorf("blank input must not touch the transcript, got %d messages", n)
	}
}

func TestSendTurnKeepsPartialTextOnTransportError(t *testing.T) {
	fb := &fakeBackend{scripts: [][]chunkStep{
		{
			{text: "Here's "},
			{text: "a plan "},
			{err: fmt.Errorf("%w: connection reset", backend.ErrTransport)},
		},
		wordScript("back again, where were we?"),
	}}
	m := testManager(t, fb, nil)
	sess := m.Session(context.Background(), "u1")

	err := sess.SendTurn(context.Background(), "teach me sculpting", nil)
	if !errors.Is(err, backend.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}

	tr := sess.Transcript()
	reply := tr[len(tr)-1]
	if reply.Text != "Here's a plan " {
		t.Errorf("partial text = %q, want %q", reply.Text, "Here's a plan ")
	}
	if reply.IsStreaming {
		t.Error("failed reply must not stay marked streaming")
	}
	if !reply.Failed {
		t.Error("reply should be marked failed")
	}

	// The session must accept new turns after a failure.
	if err := sess.SendTurn(context.Background(), "let's continue", nil); err != nil {
		t.Fatalf("turn after failure: %v", err)
	}
	tr = sess.Transcript()
	if got := tr[len(tr)-1].Text; got != "back again, where were we?" {
		t.Errorf("recovery reply = %q", got)
	}
}

func TestSendTurnMalformedStreamGetsFallbackText(t *testing.T) {
	fb := &fakeBackend{scripts: [][]chunkStep{
		{{err: fmt.Errorf("%w: no text field", backend.ErrMalformedStream)}},
	}}
	m := testManager(t, fb, nil)
	sess := m.Session(context.Background(), "u1")

	err := sess.SendTurn(context.Background(), "hello", nil)
	if !errors.Is(err, backend.ErrMalformedStream) {
		t.Fatalf("expected malformed stream error, got %v", err)
	}
	tr := sess.Transcript()
	reply := tr[len(tr)-1]
	if !reply.Failed || reply.Text == "" {
		t.Errorf("failed reply should carry fallback text: %+v", reply)
	}
}

func TestSendTurnSingleFlight(t *testing.T) {
	fb := &fakeBackend{
		scripts: [][]chunkStep{{{text: "slow"}, {text: " reply"}}},
		gate:    make(chan struct{}),
	}
	m := testManager(t, fb, nil)
	sess := m.Session(context.Background(), "u1")

	done := make(chan error, 1)
	go func() {
		done <- sess.SendTurn(context.Background(), "first", nil)
	}()

	// Let the first turn take the streaming slot.
	deadline := time.After(2 * time.Second)
	for !sessionStreaming(sess) {
		select {
		case <-deadline:
			t.Fatal("first turn never started streaming")
		case <-time.After(time.Millisecond):
		}
	}

	if err := sess.SendTurn(context.Background(), "second", nil); !errors.Is(err, ErrTurnInFlight) {
		t.Errorf("expected ErrTurnInFlight, got %v", err)
	}

	fb.gate <- struct{}{}
	fb.gate <- struct{}{}
	if err := <-done; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
}

func sessionStreaming(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func TestResetRestoresWelcomeOnly(t *testing.T) {
	fb := &fakeBackend{scripts: [][]chunkStep{
		wordScript("reply one"),
		wordScript("reply two"),
		wordScript("reply three"),
	}}
	m := testManager(t, fb, nil)
	sess := m.Session(context.Background(), "u1")

	if err := sess.SendTurn(context.Background(), "turn one", nil); err != nil {
		t.Fatal(err)
	}
	sess.Reset()
	sess.Reset()
	if err := sess.SendTurn(context.Background(), "turn two", nil); err != nil {
		t.Fatal(err)
	}

	tr := sess.Transcript()
	if len(tr) != 3 {
		t.Fatalf("expected welcome + one exchange, got %d messages", len(tr))
	}
	if tr[0].Role != domain.RoleAssistant {
		t.Errorf("first message should be the welcome, got %+v", tr[0])
	}
	if tr[1].Text != "turn two" {
		t.Errorf("user message = %q", tr[1].Text)
	}
}

func TestResetSupersedesInFlightTurn(t *testing.T) {
	fb := &fakeBackend{
		scripts: [][]chunkStep{{{text: "stale "}, {text: "reply"}}},
		gate:    make(chan struct{}),
	}
	m := testManager(t, fb, nil)
	sess := m.Session(context.Background(), "u1")

	done := make(chan error, 1)
	go func() {
		done <- sess.SendTurn(context.Background(), "old turn", nil)
	}()

	// Wait for the turn to hold the stream before pulling the rug.
	deadline := time.After(2 * time.Second)
	for !sessionStreaming(sess) {
		select {
		case <-deadline:
			t.Fatal("turn never started streaming")
		case <-time.After(time.Millisecond):
		}
	}

	sess.Reset()

	// Release the first chunk; it arrives after the reset and must be
	// dropped rather than appended anywhere.
	fb.gate <- struct{}{}
	if err := <-done; !errors.Is(err, ErrTurnSuperseded) {
		t.Fatalf("expected ErrTurnSuperseded, got %v", err)
	}

	tr := sess.Transcript()
	if len(tr) != 1 {
		t.Fatalf("reset transcript should hold only the welcome, got %d messages", len(tr))
	}
	if tr[0].Role != domain.RoleAssistant || tr[0].IsStreaming || tr[0].Failed {
		t.Errorf("unexpected welcome state: %+v", tr[0])
	}
	if strings.Contains(tr[0].Text, "stale") {
		t.Errorf("stale chunk leaked into the fresh transcript: %q", tr[0].Text)
	}
}

func TestGatingBoundary(t *testing.T) {
	fb := &fakeBackend{scripts: [][]chunkStep{
		wordScript("ok"),
		wordScript("got it"),
	}}
	m := testManager(t, fb, nil)
	sess := m.Session(context.Background(), "u1")

	if sess.CanGenerate() {
		t.Error("fresh session must not be generatable")
	}
	if err := sess.StartGeneration(); !errors.Is(err, ErrNotEnoughContext) {
		t.Errorf("expected ErrNotEnoughContext, got %v", err)
	}

	if err := sess.SendTurn(context.Background(), "I want to learn Blender", nil); err != nil {
		t.Fatal(err)
	}
	if sess.CanGenerate() {
		t.Error("one user turn is below the threshold")
	}

	if err := sess.SendTurn(context.Background(), "I'm a beginner", nil); err != nil {
		t.Fatal(err)
	}
	if !sess.CanGenerate() {
		t.Error("two user turns should satisfy the threshold")
	}
}

func TestStartGenerationProducesCourse(t *testing.T) {
	fb := &fakeBackend{scripts: [][]chunkStep{
		wordScript("ok"),
		wordScript("got it"),
	}}
	repo := newFakeRepo()
	m := testManager(t, fb, repo)
	sess := m.Session(context.Background(), "u1")

	if err := sess.SendTurn(context.Background(), "I want to learn Blender", nil); err != nil {
		t.Fatal(err)
	}
	if err := sess.SendTurn(context.Background(), "starting with sculpting, then animation", nil); err != nil {
		t.Fatal(err)
	}

	events, cancel := sess.Runner().Subscribe()
	defer cancel()

	if err := sess.StartGeneration(); err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Stage == pipeline.StageFailed {
				t.Fatalf("run failed: %s", ev.Message)
			}
			if ev.Stage == pipeline.StageDone {
				if ev.CourseID == "" {
					t.Fatal("done event missing course id")
				}
				repo.mu.Lock()
				_, ok := repo.courses[ev.CourseID]
				repo.mu.Unlock()
				if !ok {
					t.Error("course not persisted before done event")
				}
				return
			}
		case <-deadline:
			t.Fatal("generation did not finish")
		}
	}
}

func TestSetVariantPreservesTranscript(t *testing.T) {
	fb := &fakeBackend{scripts: [][]chunkStep{wordScript("hello")}}
	m := testManager(t, fb, nil)
	sess := m.Session(context.Background(), "u1")

	if err := sess.SendTurn(context.Background(), "hi", nil); err != nil {
		t.Fatal(err)
	}
	before := len(sess.Transcript())

	sess.SetVariant(domain.VariantPro)
	if got := sess.Variant(); got != domain.VariantPro {
		t.Errorf("Variant = %q, want pro", got)
	}
	if after := len(sess.Transcript()); after != before {
		t.Errorf("variant change must preserve the transcript: %d != %d", after, before)
	}
}

func TestManagerReturnsSameSession(t *testing.T) {
	m := testManager(t, &fakeBackend{}, nil)
	a := m.Session(context.Background(), "u1")
	b := m.Session(context.Background(), "u1")
	if a != b {
		t.Error("expected the same session for one user")
	}
	c := m.Session(context.Background(), "u2")
	if a == c {
		t.Error("expected distinct sessions per user")
	}
}

func TestRenderTranscriptKeepsMostRecent(t *testing.T) {
	var transcript []*domain.ChatMessage
	for i := 0; i < 10; i++ {
		transcript = append(transcript, &domain.ChatMessage{
			Role: domain.RoleUser,
			Text: fmt.Sprintf("message number %d", i),
		})
	}

	out := renderTranscript(transcript, 60)
	if strings.Contains(out, "message number 0") {
		t.Error("oldest message should have been trimmed")
	}
	if !strings.Contains(out, "message number 9") {
		t.Error("newest message must be kept")
	}
}
