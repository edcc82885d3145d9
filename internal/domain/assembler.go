package domain

// ContextLayerKind enumerates the priority-stacked layers of spec.md §4.4,
// in descending priority order (index 0 is never dropped).
type ContextLayerKind string

const (
	LayerPersona            ContextLayerKind = "persona"
	LayerUserFacts           ContextLayerKind = "user_facts"
	LayerSocialDigest        ContextLayerKind = "social_digest"
	LayerRecalledEpisodes    ContextLayerKind = "recalled_episodes"
	LayerConversationWindow  ContextLayerKind = "conversation_window"
	LayerTriggeringEvent     ContextLayerKind = "triggering_event"
)

// LayerOrder is the fixed descending-priority ordering spec.md §4.4 names.
// Layers earlier in this slice are compressed/dropped later than layers
// near the end, when the assembled context exceeds its budget.
var LayerOrder = []ContextLayerKind{
	LayerPersona,
	LayerUserFacts,
	LayerSocialDigest,
	LayerRecalledEpisodes,
	LayerConversationWindow,
	LayerTriggeringEvent,
}

// ContextLayer is one stacked slice of the assembled prompt.
type ContextLayer struct {
	Kind       ContextLayerKind `json:"kind"`
	Content    string           `json:"content"`
	Compressed bool             `json:"compressed"`
	Dropped    bool             `json:"dropped"`
	Vetoed     bool             `json:"vetoed"` // high-tension veto kept this layer despite being over budget
}

// AssembledContext is the Context Assembler's deterministic output: the
// final prompt text plus the layer-selection trace spec.md §4.4 requires
// tests to be able to inspect.
type AssembledContext struct {
	Text            string         `json:"text"`
	Layers          []ContextLayer `json:"layers"`
	BudgetChars     int            `json:"budget_chars"`
	UsedChars       int            `json:"used_chars"`
	HighTensionVeto bool           `json:"high_tension_veto"`
}
