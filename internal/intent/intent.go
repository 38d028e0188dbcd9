// Package intent derives a structured learning-intent summary from the
// user's side of a scoping conversation. Extraction is a deterministic
// keyword scan; no model call is involved, so it is cheap enough to run
// on every generation request.
package intent

import (
	"strings"
)

// Experience levels, in precedence order when a transcript matches more
// than one.
const (
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelAdvanced     = "Advanced"
)

// Summary is the extracted intent. Zero value means nothing was detected.
type Summary struct {
	Level       string
	Goals       []string
	Priority    []string // [start point, follow-on], set only when ordering cues resolve
	Preferences []string
}

// IsEmpty reports whether no signal at all was extracted.
func (s Summary) IsEmpty() bool {
	return s.Level == "" && len(s.Goals) == 0 && len(s.Priority) == 0 && len(s.Preferences) == 0
}

// String renders the summary as prompt-ready lines. Empty categories are
// omitted; a fully empty summary renders as "".
func (s Summary) String() string {
	var b strings.Builder
	if s.Level != "" {
		b.WriteString("Level: ")
		b.WriteString(s.Level)
		b.WriteString("\n")
	}
	if len(s.Goals) > 0 {
		b.WriteString("Goals: ")
		b.WriteString(strings.Join(s.Goals, ", "))
		b.WriteString("\n")
	}
	if len(s.Priority) == 2 {
		b.WriteString("Priority: ")
		b.WriteString(s.Priority[0])
		b.WriteString(" -> ")
		b.WriteString(s.Priority[1])
		b.WriteString("\n")
	}
	if len(s.Preferences) > 0 {
		b.WriteString("Preferences: ")
		b.WriteString(strings.Join(s.Preferences, ", "))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

type vocabEntry struct {
	label string
	terms []string
}

// Scan order is fixed so output ordering is deterministic.
var levelVocab = []vocabEntry{
	{LevelBeginner, []string{"beginner", "new to", "never used", "no experience", "just starting", "from scratch", "first time"}},
	{LevelIntermediate, []string{"intermediate", "some experience", "familiar with", "dabbled", "used it a bit"}},
	{LevelAdvanced, []string{"advanced", "expert", "professional", "years of experience", "proficient"}},
}

var goalVocab = []vocabEntry{
	{"Blender", []string{"blender"}},
	{"Sculpting", []string{"sculpt"}},
	{"Animation", []string{"animat"}},
	{"Modeling", []string{"modeling", "modelling", "3d model"}},
	{"Shading", []string{"shading", "shader", "material", "texturing"}},
	{"Rendering", []string{"render"}},
	{"Rigging", []string{"rigging", "rigs"}},
	{"Scripting", []string{"python", "scripting", "programming"}},
}

var preferenceVocab = []vocabEntry{
	{"hands-on", []string{"hands-on", "hands on", "by doing", "practical"}},
	{"project-based", []string{"project"}},
	{"tutorials", []string{"tutorial", "walkthrough"}},
	{"short lessons", []string{"short lesson", "bite-size", "bite size", "quick lesson"}},
	{"video", []string{"video", "watch"}},
}

var startCues = []string{"starting with", "start with", "first", "initially", "begin with"}
var followCues = []string{"then", "after that", "next", "later", "followed by"}

// Extract scans the user's turns and builds a summary. Assistant turns
// must not be included; their vocabulary would contaminate the scan.
func Extract(userTurns []string) Summary {
	text := strings.ToLower(strings.Join(userTurns, "\n"))
	if strings.TrimSpace(text) == "" {
		return Summary{}
	}

	var s Summary
	for _, entry := range levelVocab {
		if containsAny(text, entry.terms) {
			s.Level = entry.label
			break
		}
	}
	for _, entry := range goalVocab {
		if containsAny(text, entry.terms) {
			s.Goals = append(s.Goals, entry.label)
		}
	}
	for _, entry := range preferenceVocab {
		if containsAny(text, entry.terms) {
			s.Preferences = append(s.Preferences, entry.label)
		}
	}

	s.Priority = resolvePriority(text, s.Goals)
	return s
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// resolvePriority looks for an ordering cue ("start with X, then Y") and
// resolves it against the detected goals. Both ends must resolve to
// distinct goals or no priority is reported.
func resolvePriority(text string, goals []string) []string {
	if len(goals) < 2 {
		return nil
	}

	cueIdx := earliestCue(text, startCues)
	if cueIdx < 0 {
		return nil
	}
	start := nearestGoalAfter(text, cueIdx, goals, "")
	if start == "" {
		return nil
	}

	followIdx := earliestCueAfter(text, followCues, cueIdx)
	if followIdx < 0 {
		return nil
	}
	follow := nearestGoalAfter(text, followIdx, goals, start)
	if follow == "" {
		return nil
	}

	return []string{start, follow}
}

func earliestCue(text string, cues []string) int {
	best := -1
	for _, cue := range cues {
		if i := strings.Index(text, cue); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

func earliestCueAfter(text string, cues []string, after int) int {
	best := -1
	for _, cue := range cues {
		i := strings.Index(text[after:], cue)
		if i < 0 {
			continue
		}
		i += after
		if best < 0 || i < best {
			best = i
		}
	}
	return best
}

// nearestGoalAfter finds the goal whose first term occurrence at or after
// pos is closest, skipping the excluded goal.
func nearestGoalAfter(text string, pos int, goals []string, exclude string) string {
	bestGoal := ""
	bestIdx := -1
	for _, goal := range goals {
		if goal == exclude {
			continue
		}
		terms := termsFor(goal)
		for _, term := range terms {
			i := strings.Index(text[pos:], term)
			if i < 0 {
				continue
			}
			i += pos
			if bestIdx < 0 || i < bestIdx {
				bestIdx = i
				bestGoal = goal
			}
		}
	}
	return bestGoal
}

func termsFor(goal string) []string {
	for _, entry := range goalVocab {
		if entry.label == goal {
			return entry.terms
		}
	}
	return nil
}
