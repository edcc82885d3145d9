package domain

import "time"

// Episode is one ordered record of lived experience (spec.md §3 Episode).
// Episodes are append-only except for Strength updates.
type Episode struct {
	ID                string    `json:"id"`
	SourceTag         string    `json:"source_tag"`
	AuthorRef         string    `json:"author_ref"`
	Body              string    `json:"body"`
	MediaRefs         []string  `json:"media_refs,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	InsertionCounter  int64     `json:"insertion_counter"`
	Modality          string    `json:"modality"`
	Embedding         []float32 `json:"embedding"` // 384-d
	Strength          float64   `json:"strength"`  // [0,1]
	Valence           float64   `json:"valence"`   // [-1,1], emotional tone at the moment it was recorded
	CreatedAt         time.Time `json:"created_at"`
}

// Forgotten reports whether the episode has decayed below the configured
// strength floor and is therefore excluded from default recall.
func (e Episode) Forgotten(strengthFloor float64) bool {
	return e.Strength < strengthFloor
}

// SemanticFact is a (subject, predicate, object) triple with a confidence
// that blends on re-ingestion instead of being overwritten (spec.md §4.2
// Fact conflict).
type SemanticFact struct {
	Subject    string    `json:"subject"`
	Predicate  string    `json:"predicate"`
	Object     string    `json:"object"`
	Confidence float64   `json:"confidence"` // [0,1]
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Key identifies the subject+predicate slot a fact occupies; two facts with
// the same Key but different Object are in conflict.
func (f SemanticFact) Key() string {
	return f.Subject + "\x00" + f.Predicate
}

// Person is a node in the SocialGraph.
type Person struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Alias maps a (platform, platform_id) pair to a Person; keys are unique.
type Alias struct {
	Platform   string `json:"platform"`
	PlatformID string `json:"platform_id"`
	PersonID   string `json:"person_id"`
}

// InteractionEdge is a directed, timestamped social-graph edge recording an
// interaction between the organism and a person, carrying relationship
// vectors in the spirit of the teacher's RelationshipVectors.
type InteractionEdge struct {
	PersonID     string       `json:"person_id"`
	Context      string       `json:"context"`
	Timestamp    time.Time    `json:"timestamp"`
	Relationship Relationship `json:"relationship"`
}

// Relationship tracks the continuous bond state with one person: trust,
// intimacy, and respect, each on a [0,100] scale matching the teacher's
// RelationshipVectors.
type Relationship struct {
	Trust    int `json:"trust"`
	Intimacy int `json:"intimacy"`
	Respect  int `json:"respect"`
}

// SelfKnowledgeRow is one row of the organism's self-model (spec.md §3
// SelfKnowledge). Seeded from bootstrap text; subsequently authored only by
// Consolidation.
type SelfKnowledgeRow struct {
	ID             string    `json:"id"`
	Domain         string    `json:"domain"`
	Content        string    `json:"content"`
	Confidence     float64   `json:"confidence"`
	Source         string    `json:"source"`
	SourceEpisodeID string   `json:"source_episode_id,omitempty"`
	Private        bool      `json:"private"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NarrativeChapter is a woven summary of a consolidation period (spec.md §3).
type NarrativeChapter struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	EmotionalTone  float64   `json:"emotional_tone"` // [-1,1]
	Themes         []string  `json:"themes"`
	People         []string  `json:"people"`
	TurningPoints  []string  `json:"turning_points"`
	CreatedAt      time.Time `json:"created_at"`
}

// FeedbackSignal is a staged reinforcement signal awaiting consolidation
// (spec.md §3, §4.6).
type FeedbackSignal struct {
	ID               string    `json:"id"`
	SignalType       string    `json:"signal_type"`
	Content          string    `json:"content"`
	Confidence       float64   `json:"confidence"` // [0,1]
	EmotionalContext string    `json:"emotional_context"`
	Timestamp        time.Time `json:"timestamp"`
	Consolidated     bool      `json:"consolidated"`
}

// RecallResult is the blended output of Memory.Recall (spec.md §4.2): the
// caller never chooses which subsystem to query.
type RecallResult struct {
	Episodes        []ScoredEpisode    `json:"episodes"`
	RelevantFacts   []SemanticFact     `json:"relevant_facts"`
	RecentEpisodes  []Episode          `json:"recent_episodes"`
	SocialContext   []InteractionEdge  `json:"social_context"`
}

// ScoredEpisode pairs a recalled episode with the blended score it was
// ranked by: similarity * strength * (1 + alpha*tone_match(mood_bias)).
type ScoredEpisode struct {
	Episode    Episode `json:"episode"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}
