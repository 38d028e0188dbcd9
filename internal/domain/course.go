package domain

import (
	"time"
)

// ModelVariant selects which backend model a session or generation run uses.
type ModelVariant string

const (
	VariantStandard ModelVariant = "standard"
	VariantPro      ModelVariant = "pro"
)

// ParseModelVariant validates a variant string, defaulting to standard.
func ParseModelVariant(s string) (ModelVariant, bool) {
	switch ModelVariant(s) {
	case VariantStandard, "":
		return VariantStandard, true
	case VariantPro:
		return VariantPro, true
	default:
		return VariantStandard, false
	}
}

// GeneratedChapter is one chapter of a generated course.
type GeneratedChapter struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Type     string `json:"type"`
	Content  string `json:"content"`

	// Personalized enrichment, populated by the drafting model.
	WhyItMatters string   `json:"why_it_matters,omitempty"`
	KeyConcepts  []string `json:"key_concepts,omitempty"`
	ActionStep   string   `json:"action_step,omitempty"`
	Analogy      string   `json:"analogy,omitempty"`
	QuizQuestion string   `json:"quiz_question,omitempty"`

	// Presentation enrichment, best-effort (empty when a stage degraded).
	AssetHint       string `json:"asset_hint,omitempty"`
	NarrationScript string `json:"narration_script,omitempty"`
}

// GeneratedCourse is the artifact produced by a successful generation run.
// Immutable once created.
type GeneratedCourse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Duration    string             `json:"duration"`
	Chapters    []GeneratedChapter `json:"chapters"`
	CreatedAt   time.Time          `json:"created_at"`
	ModelUsed   ModelVariant       `json:"model_used"`
}
