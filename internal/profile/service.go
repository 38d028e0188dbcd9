// Package profile manages learner assessment profiles.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/lumina-labs/internal/domain"
	"github.com/ashureev/lumina-labs/internal/store"
)

// Preset is a named starting point for the Big5 sliders.
type Preset struct {
	Name   string             `json:"name"`
	Scores domain.Big5Profile `json:"scores"`
}

// Presets returns the built-in slider presets, in display order.
func Presets() []Preset {
	return []Preset{
		{Name: "balanced", Scores: domain.NeutralProfile()},
		{Name: "artist", Scores: domain.Big5Profile{Openness: 90, Conscientiousness: 40, Extraversion: 60, Agreeableness: 70, Neuroticism: 30}},
		{Name: "scientist", Scores: domain.Big5Profile{Openness: 80, Conscientiousness: 90, Extraversion: 40, Agreeableness: 50, Neuroticism: 60}},
		{Name: "teacher", Scores: domain.Big5Profile{Openness: 70, Conscientiousness: 80, Extraversion: 70, Agreeableness: 85, Neuroticism: 40}},
		{Name: "entrepreneur", Scores: domain.Big5Profile{Openness: 75, Conscientiousness: 85, Extraversion: 80, Agreeableness: 40, Neuroticism: 55}},
	}
}

// Service loads and saves assessment profiles.
type Service struct {
	repo store.Repository
	log  *slog.Logger
}

// NewService builds a profile service.
func NewService(repo store.Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With("component", "profile")}
}

// Load returns the user's profile, or a neutral default when none is
// stored yet. The returned profile always carries a personality type.
func (s *Service) Load(ctx context.Context, userID string) (*domain.AssessmentProfile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if p == nil {
		scores := domain.NeutralProfile()
		return &domain.AssessmentProfile{
			Scores:          scores,
			PersonalityType: scores.DominantType(),
		}, nil
	}
	return p, nil
}

// Save validates and persists a profile. The personality type is always
// recomputed from the scores; clients cannot set it directly.
func (s *Service) Save(ctx context.Context, userID string, scores domain.Big5Profile, learningStyle, advice string) (*domain.AssessmentProfile, error) {
	if !scores.Valid() {
		return nil, fmt.Errorf("trait scores must be within [0,100]")
	}

	p := &domain.AssessmentProfile{
		Scores:          scores,
		PersonalityType: scores.DominantType(),
		LearningStyle:   learningStyle,
		Advice:          advice,
		CompletedAt:     time.Now().UTC(),
	}
	if err := s.repo.UpsertProfile(ctx, userID, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	s.log.Info("profile saved", "user_id", userID, "type", string(p.PersonalityType))
	return p, nil
}
