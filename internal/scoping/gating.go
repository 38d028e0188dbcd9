package scoping

import (
	"github.com/ashureev/lumina-labs/internal/domain"
)

// canGenerate applies the readiness policy: the learner must have sent
// at least minUserTurns messages before a course can be generated.
// Assistant messages, including the welcome, do not count.
func canGenerate(transcript []*domain.ChatMessage, minUserTurns int) bool {
	return countUserTurns(transcript) >= minUserTurns
}

func countUserTurns(transcript []*domain.ChatMessage) int {
	n := 0
	for _, m := range transcript {
		if m.Role == domain.RoleUser {
			n++
		}
	}
	return n
}

// CanGenerate reports whether the session has enough context to start a
// generation run.
func (s *Session) CanGenerate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return canGenerate(s.transcript, s.minUserTurns)
}

// UserTurnCount returns how many messages the learner has sent.
func (s *Session) UserTurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countUserTurns(s.transcript)
}
