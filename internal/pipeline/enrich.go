package pipeline

import (
	"context"
	"strings"

	"github.com/ashureev/lumina-labs/internal/domain"
)

// AssetComposer assigns a deterministic visual asset hint per chapter
// based on its type. Hints are resolved to real assets client-side.
type AssetComposer struct{}

// Compose fills in AssetHint on every chapter that lacks one.
func (AssetComposer) Compose(ctx context.Context, course *domain.GeneratedCourse) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for i := range course.Chapters {
		ch := &course.Chapters[i]
		if ch.AssetHint != "" {
			continue
		}
		switch strings.ToLower(ch.Type) {
		case "project":
			ch.AssetHint = "workbench"
		case "quiz":
			ch.AssetHint = "checklist"
		default:
			ch.AssetHint = "chalkboard"
		}
	}
	return nil
}

// ScriptNarrator builds a spoken-word script for a chapter from its
// drafted fields. No model call; the script is assembled locally.
type ScriptNarrator struct{}

// Narrate fills in NarrationScript for one chapter.
func (ScriptNarrator) Narrate(ctx context.Context, chapter *domain.GeneratedChapter) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if chapter.NarrationScript != "" {
		return nil
	}

	var b strings.Builder
	b.WriteString(chapter.Title)
	b.WriteString(". ")
	if chapter.WhyItMatters != "" {
		b.WriteString(chapter.WhyItMatters)
		b.WriteString(" ")
	}
	b.WriteString(chapter.Content)
	if chapter.ActionStep != "" {
		b.WriteString(" When you're ready, try this: ")
		b.WriteString(chapter.ActionStep)
	}
	chapter.NarrationScript = strings.TrimSpace(b.String())
	return nil
}
