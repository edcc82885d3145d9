// Package assembler is the Layer 7 Context Assembler: it stacks the six
// priority layers spec.md §4.4 names into one deterministic prompt, honoring
// a budget derived from the current ModulationVector and exposing the
// layer-selection trace tests need to inspect.
//
// Grounded on the teacher's context_service.go (BasicContextService.GetContext,
// windowing and formatting the chat buffer) and clone_prompt_builder.go's
// section-stacking order, with the high-tension veto ported from
// ReactionEngine.DetectHighTensionFromNarrative/buildRelationshipDirective.
package assembler

import (
	"fmt"
	"strings"

	"mneme/internal/domain"
)

// Config bounds the Assembler's output.
type Config struct {
	BaseBudgetChars      int // spec.md §6 reasoning.context_base_budget
	ConversationWindow   int // max recent turns kept in layer 5
	MaxRecalledEpisodes  int // cap on layer 4 after Memory's own top-k trim
}

// DefaultConfig matches the teacher's ten-message window
// (BasicContextService.GetContext trims to the last 10).
var DefaultConfig = Config{
	BaseBudgetChars:     6000,
	ConversationWindow:  10,
	MaxRecalledEpisodes: 5,
}

// Assembler builds AssembledContext values. It is stateless and safe for
// concurrent use; every dependency it needs is passed into Assemble.
type Assembler struct {
	cfg Config
}

func New(cfg Config) *Assembler {
	return &Assembler{cfg: cfg}
}

// Input bundles everything one turn's assembly needs. The assembler never
// reaches into Memory or the State Store itself — the Reasoning Loop (L8)
// fetches all of this and hands it over, keeping Assemble a pure function of
// its arguments (spec.md §4.4 "deterministic given (state, memory snapshot,
// event)").
type Input struct {
	SelfKnowledge      []domain.SelfKnowledgeRow
	RelevantFacts      []domain.SemanticFact
	SocialContext      []domain.InteractionEdge
	RecalledEpisodes   []domain.ScoredEpisode
	ConversationWindow []domain.ConversationTurn
	Event              domain.Event
	ContextBudgetFactor float64 // from ModulationVector, (0,2]
}

// Assemble stacks the six layers, then compresses/drops from lowest
// priority upward until the total fits budget · ContextBudgetFactor, unless
// the high-tension veto is active, in which case the social-digest and
// recalled-episode layers are exempt from compression/drop.
func (a *Assembler) Assemble(in Input) domain.AssembledContext {
	factor := in.ContextBudgetFactor
	if factor <= 0 {
		factor = 1
	}
	budget := int(float64(a.cfg.BaseBudgetChars) * factor)

	layers := []domain.ContextLayer{
		{Kind: domain.LayerPersona, Content: buildPersonaLayer(in.SelfKnowledge)},
		{Kind: domain.LayerUserFacts, Content: buildUserFactsLayer(in.RelevantFacts)},
		{Kind: domain.LayerSocialDigest, Content: buildSocialDigestLayer(in.SocialContext)},
		{Kind: domain.LayerRecalledEpisodes, Content: buildRecalledEpisodesLayer(in.RecalledEpisodes, a.cfg.MaxRecalledEpisodes)},
		{Kind: domain.LayerConversationWindow, Content: buildConversationWindowLayer(in.ConversationWindow, a.cfg.ConversationWindow)},
		{Kind: domain.LayerTriggeringEvent, Content: buildTriggeringEventLayer(in.Event)},
	}

	highTension := detectHighTension(layers)
	if highTension {
		for i := range layers {
			if layers[i].Kind == domain.LayerSocialDigest || layers[i].Kind == domain.LayerRecalledEpisodes {
				layers[i].Vetoed = true
			}
		}
	}

	used := totalLen(layers)
	if used > budget {
		used = shrinkToFit(layers, used, budget)
	}

	var sb strings.Builder
	for _, l := range layers {
		if l.Content == "" {
			continue
		}
		sb.WriteString(l.Content)
		sb.WriteString("\n\n")
	}

	return domain.AssembledContext{
		Text:            strings.TrimSpace(sb.String()),
		Layers:          layers,
		BudgetChars:     budget,
		UsedChars:       used,
		HighTensionVeto: highTension,
	}
}

// shrinkToFit compresses, then drops, layers from lowest priority (end of
// LayerOrder) toward highest, skipping the persona layer (never dropped,
// spec.md §4.4 item 1) and any layer marked Vetoed. It returns the new
// total length.
func shrinkToFit(layers []domain.ContextLayer, used, budget int) int {
	for i := len(layers) - 1; i >= 0 && used > budget; i-- {
		l := &layers[i]
		if l.Kind == domain.LayerPersona || l.Vetoed || l.Content == "" {
			continue
		}
		if !l.Compressed {
			target := len(l.Content) / 2
			used -= len(l.Content) - target
			l.Content = truncate(l.Content, target)
			l.Compressed = true
			if used <= budget {
				continue
			}
		}
		used -= len(l.Content)
		l.Content = ""
		l.Dropped = true
	}
	return used
}

func totalLen(layers []domain.ContextLayer) int {
	n := 0
	for _, l := range layers {
		n += len(l.Content)
	}
	return n
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + " [...]"
}

func buildPersonaLayer(rows []domain.SelfKnowledgeRow) string {
	if len(rows) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("=== SELF ===\n")
	for _, r := range rows {
		if r.Private {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s\n", strings.TrimSpace(r.Content)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func buildUserFactsLayer(facts []domain.SemanticFact) string {
	if len(facts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("=== KNOWN FACTS ===\n")
	for _, f := range facts {
		sb.WriteString(fmt.Sprintf("- %s %s %s\n", f.Subject, f.Predicate, f.Object))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// buildSocialDigestLayer summarises relationship state rather than dumping
// raw interaction edges (spec.md §4.4 item 3 "summarised, not raw").
func buildSocialDigestLayer(edges []domain.InteractionEdge) string {
	if len(edges) == 0 {
		return ""
	}
	latestByPerson := make(map[string]domain.InteractionEdge)
	for _, e := range edges {
		existing, ok := latestByPerson[e.PersonID]
		if !ok || e.Timestamp.After(existing.Timestamp) {
			latestByPerson[e.PersonID] = e
		}
	}
	var sb strings.Builder
	sb.WriteString("=== RELATIONSHIP DIGEST ===\n")
	for personID, e := range latestByPerson {
		sb.WriteString(fmt.Sprintf("- %s: trust=%d intimacy=%d respect=%d\n",
			personID, e.Relationship.Trust, e.Relationship.Intimacy, e.Relationship.Respect))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func buildRecalledEpisodesLayer(episodes []domain.ScoredEpisode, max int) string {
	if len(episodes) == 0 {
		return ""
	}
	if max > 0 && len(episodes) > max {
		episodes = episodes[:max]
	}
	var sb strings.Builder
	sb.WriteString("=== RECALLED MEMORY ===\n")
	for _, se := range episodes {
		sb.WriteString(fmt.Sprintf("- %s\n", strings.TrimSpace(se.Episode.Body)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func buildConversationWindowLayer(turns []domain.ConversationTurn, window int) string {
	if len(turns) == 0 {
		return ""
	}
	if window > 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	var sb strings.Builder
	sb.WriteString("=== RECENT CONVERSATION ===\n")
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", t.Role, content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func buildTriggeringEventLayer(event domain.Event) string {
	body := strings.TrimSpace(event.Body)
	if body == "" {
		return ""
	}
	return fmt.Sprintf("=== EVENT (%s) ===\n%s", event.Kind, body)
}

// tensionSignals are substrings whose presence in the social-digest or
// recalled-episode layers marks a genuinely tense bond — ported from the
// teacher's DetectHighTensionFromNarrative word list, generalised from
// clone-relationship prose to organism-relationship state.
var tensionSignals = []string{
	"conflict", "tension", "tense", "hostil", "resent", "distrust",
	"jealous", "possessive", "suspicio", "unstable", "toxic",
	"rage", "fury", "insult", "fight", "grudge", "anger", "fear",
}

// detectHighTension is the veto spec.md's SPEC_FULL.md §3 describes: it
// must never let a "trivial input" classification suppress genuine
// relational tension recorded in memory or the social graph.
func detectHighTension(layers []domain.ContextLayer) bool {
	for _, l := range layers {
		if l.Kind != domain.LayerSocialDigest && l.Kind != domain.LayerRecalledEpisodes {
			continue
		}
		lower := strings.ToLower(l.Content)
		for _, signal := range tensionSignals {
			if strings.Contains(lower, signal) {
				return true
			}
		}
	}
	return false
}
