// Package domain contains core domain types for the Lumina learning platform.
package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single entry in a scoping-session transcript.
// Text is mutated in place while IsStreaming is true (assistant turns only)
// and becomes immutable once IsStreaming flips to false.
type ChatMessage struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	IsStreaming bool      `json:"is_streaming"`
	Failed      bool      `json:"failed,omitempty"`
}
