package domain

import "time"

// ConversationTurn is one raw exchange line kept in the short-term chat
// buffer (spec.md §4.4 layer 5, "Recent conversation window"). Distinct from
// Episode: a turn is always kept for the sliding window regardless of
// emotional salience, while an Episode is a durable memory the reasoning
// loop writes for every event that carries a body, with a strength that
// later decays during consolidation.
//
// Adapted from the teacher's domain.Message (internal/domain/message.go),
// generalised from "user/clone chat row" to "conversation turn" since the
// organism has no notion of end-user identity (spec.md Non-goals).
type ConversationTurn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // "input" | "organism"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
