// Package pipeline runs the staged course generation flow: drafting,
// composing, narrating, finalizing. A run executes on its own goroutine
// and reports progress to subscribers; only the drafting and persistence
// stages can fail a run, enrichment stages degrade and continue.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/lumina-labs/internal/backend"
	"github.com/ashureev/lumina-labs/internal/domain"
	"github.com/ashureev/lumina-labs/internal/store"
)

// Stage identifies where a generation run currently is.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageDrafting   Stage = "drafting"
	StageComposing  Stage = "composing"
	StageNarrating  Stage = "narrating"
	StageFinalizing Stage = "finalizing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// ErrRunInFlight is returned by Start while a run is active.
var ErrRunInFlight = errors.New("generation run already in progress")

// Event is one progress update.
type Event struct {
	Stage    Stage     `json:"stage"`
	Message  string    `json:"message"`
	CourseID string    `json:"course_id,omitempty"`
	At       time.Time `json:"at"`
}

// Inputs is the immutable snapshot a run works from. It is captured at
// Start time, so later transcript mutations cannot leak into the run.
type Inputs struct {
	UserID        string
	Transcript    string
	IntentSummary string
	Profile       domain.Big5Profile
	Variant       domain.ModelVariant
}

// Composer attaches visual asset hints to a drafted course.
type Composer interface {
	Compose(ctx context.Context, course *domain.GeneratedCourse) error
}

// Narrator produces a narration script for one chapter.
type Narrator interface {
	Narrate(ctx context.Context, chapter *domain.GeneratedChapter) error
}

// Runner executes at most one generation run at a time.
type Runner struct {
	backend  backend.Client
	repo     store.Repository
	composer Composer
	narrator Narrator
	log      *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	last    Event
	course  *domain.GeneratedCourse
	subs    map[chan Event]struct{}
}

// NewRunner builds a runner. Composer and narrator may be nil to skip
// those stages entirely.
func NewRunner(bc backend.Client, repo store.Repository, composer Composer, narrator Narrator, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		backend:  bc,
		repo:     repo,
		composer: composer,
		narrator: narrator,
		log:      log.With("component", "pipeline"),
		timeout:  10 * time.Minute,
		last:     Event{Stage: StageIdle, At: time.Now()},
		subs:     make(map[chan Event]struct{}),
	}
}

// Start begins a run from the given snapshot. It returns ErrRunInFlight
// if a run is active; a finished run (done or failed) may be restarted.
func (r *Runner) Start(inputs Inputs) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunInFlight
	}
	r.running = true
	r.course = nil
	r.mu.Unlock()

	go r.run(inputs)
	return nil
}

// Status returns the most recent progress event.
func (r *Runner) Status() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Result returns the generated course once a run has completed.
func (r *Runner) Result() (*domain.GeneratedCourse, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.course == nil {
		return nil, false
	}
	return r.course, true
}

// Subscribe registers a progress listener. The current status is
// delivered first, then every subsequent event. The returned cancel
// func must be called to release the subscription.
func (r *Runner) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	r.mu.Lock()
	ch <- r.last
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Runner) publish(ev Event) {
	ev.At = time.Now()
	r.mu.Lock()
	r.last = ev
	if ev.Stage.Terminal() {
		r.running = false
	}
	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop rather than stall the run
		}
	}
	r.mu.Unlock()
}

func (r *Runner) run(inputs Inputs) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	r.publish(Event{Stage: StageDrafting, Message: "Analyzing your goals and drafting the course outline"})

	draft, err := r.backend.GenerateCourseDraft(ctx, backend.DraftRequest{
		Transcript:    inputs.Transcript,
		IntentSummary: inputs.IntentSummary,
		Profile:       inputs.Profile,
		Variant:       inputs.Variant,
	})
	if err != nil {
		r.log.Error("drafting failed", "user_id", inputs.UserID, "error", err)
		r.publish(Event{Stage: StageFailed, Message: "We couldn't draft your course. Please try again in a moment."})
		return
	}

	course := &domain.GeneratedCourse{
		Title:       draft.Title,
		Description: draft.Description,
		Duration:    draft.Duration,
		Chapters:    draft.Chapters,
	}

	if r.composer != nil {
		r.publish(Event{Stage: StageComposing, Message: "Selecting visuals for each chapter"})
		if err := r.composer.Compose(ctx, course); err != nil {
			r.log.Warn("composing degraded", "user_id", inputs.UserID, "error", err)
			r.publish(Event{Stage: StageComposing, Message: "Continuing without visual assets"})
		}
	}

	if r.narrator != nil {
		for i := range course.Chapters {
			r.publish(Event{Stage: StageNarrating, Message: "Narrating chapter " + course.Chapters[i].Title})
			if err := r.narrator.Narrate(ctx, &course.Chapters[i]); err != nil {
				r.log.Warn("narration degraded", "user_id", inputs.UserID, "chapter", course.Chapters[i].Title, "error", err)
			}
		}
	}

	r.publish(Event{Stage: StageFinalizing, Message: "Putting the finishing touches on your course"})

	course.ID = uuid.NewString()
	course.CreatedAt = time.Now().UTC()
	course.ModelUsed = inputs.Variant
	for i := range course.Chapters {
		if course.Chapters[i].ID == "" {
			course.Chapters[i].ID = uuid.NewString()
		}
	}

	if err := r.repo.InsertCourse(ctx, inputs.UserID, course); err != nil {
		r.log.Error("course persist failed", "user_id", inputs.UserID, "course_id", course.ID, "error", err)
		r.publish(Event{Stage: StageFailed, Message: "We couldn't save your course. Please try again in a moment."})
		return
	}

	r.mu.Lock()
	r.course = course
	r.mu.Unlock()

	r.log.Info("course generated", "user_id", inputs.UserID, "course_id", course.ID, "chapters", len(course.Chapters))
	r.publish(Event{Stage: StageDone, Message: "Your course is ready", CourseID: course.ID})
}
