package domain

import "time"

// TriggerKind enumerates proactive-candidate kinds (spec.md §4.7).
type TriggerKind string

const (
	TriggerScheduledCheckIn TriggerKind = "scheduled_check_in"
	TriggerContentMatch     TriggerKind = "content_match"
	TriggerMemoryResurface  TriggerKind = "memory_resurface"
	TriggerStateDriven      TriggerKind = "state_driven"
)

// TriggerCandidate is one scored proactive-action candidate.
type TriggerCandidate struct {
	Kind       TriggerKind `json:"kind"`
	Score      float64     `json:"score"`
	Reason     string      `json:"reason"`
	PersonID   string      `json:"person_id,omitempty"`
	EpisodeID  string      `json:"episode_id,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`
}
