package domain

import (
	"time"
)

// Big5Profile holds the five personality trait scores, each in [0,100].
type Big5Profile struct {
	Openness          int `json:"openness"`
	Conscientiousness int `json:"conscientiousness"`
	Extraversion      int `json:"extraversion"`
	Agreeableness     int `json:"agreeableness"`
	Neuroticism       int `json:"neuroticism"`
}

// NeutralProfile returns the midpoint profile used when no assessment exists.
func NeutralProfile() Big5Profile {
	return Big5Profile{
		Openness:          50,
		Conscientiousness: 50,
		Extraversion:      50,
		Agreeableness:     50,
		Neuroticism:       50,
	}
}

// Valid reports whether every trait score is within [0,100].
func (p Big5Profile) Valid() bool {
	for _, v := range []int{p.Openness, p.Conscientiousness, p.Extraversion, p.Agreeableness, p.Neuroticism} {
		if v < 0 || v > 100 {
			return false
		}
	}
	return true
}

// PersonalityType is the label derived from the dominant trait.
type PersonalityType string

const (
	TypeVisionary PersonalityType = "The Visionary" // openness
	TypeArchitect PersonalityType = "The Architect" // conscientiousness
	TypeCatalyst  PersonalityType = "The Catalyst"  // extraversion
	TypeMediator  PersonalityType = "The Mediator"  // agreeableness
	TypeAnchor    PersonalityType = "The Anchor"    // emotional stability
)

// DominantType returns the personality label for the highest-scoring trait.
// Neuroticism is inverted: a low score means high stability. Ties resolve in
// trait order (openness first) so the result is deterministic.
func (p Big5Profile) DominantType() PersonalityType {
	traits := []struct {
		score int
		label PersonalityType
	}{
		{p.Openness, TypeVisionary},
		{p.Conscientiousness, TypeArchitect},
		{p.Extraversion, TypeCatalyst},
		{p.Agreeableness, TypeMediator},
		{100 - p.Neuroticism, TypeAnchor},
	}
	best := traits[0]
	for _, t := range traits[1:] {
		if t.score > best.score {
			best = t
		}
	}
	return best.label
}

// AssessmentProfile is the stored result of the personality assessment.
// Read-only input to the scoping/generation core.
type AssessmentProfile struct {
	Scores          Big5Profile     `json:"scores"`
	PersonalityType PersonalityType `json:"personality_type"`
	LearningStyle   string          `json:"learning_style"`
	CompletedAt     time.Time       `json:"completed_at"`
	Advice          string          `json:"advice,omitempty"`
}
