// Package consolidation is the Layer 10 sleep cycle: the ordered,
// independently-restartable sub-phases of spec.md §4.8 that drain the
// Feedback Buffer into durable state and memory while the organism is
// Sleeping. Grounded on the teacher's NarrativeService.GenerateNarrative
// (internal/service/narrative_service.go) for the LLM-driven narrative
// weave, and on other_examples' RedClaus-cortex sleep/types.go for the
// ordered-phases, WakeReport-style shape (ConsolidationResult → Insights →
// Proposals in the original; drain → state → decay → narrative →
// self-knowledge here, reshaped around Mneme's own data model).
package consolidation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"mneme/internal/config"
	"mneme/internal/domain"
	"mneme/internal/feedback"
	"mneme/internal/llm"
	"mneme/internal/memory"
	"mneme/internal/organism"
)

// Report is what one consolidation run produced, one field per sub-phase,
// mirroring the teacher's WakeReport aggregate.
type Report struct {
	SignalsDrained       int
	StateUpdated         bool
	SlowTierPromoted     bool
	NarrativeCollapsed   bool
	EpisodesDecayed      int
	EpisodesReinforced   int
	FactsDecayed         int
	Chapter              *domain.NarrativeChapter
	SelfKnowledgeWritten []domain.SelfKnowledgeRow
}

// Consolidator runs the sleep cycle. Each Run sub-phase only touches the
// store/repository it owns, so a crash between sub-phases leaves the
// system in a state the next Run can resume from cleanly (spec.md §4.8
// "each sub-phase is independently restartable; partial completion is
// safe").
type Consolidator struct {
	Feedback *feedback.Buffer
	Store    *organism.Store
	Memory   *memory.Memory
	LLM      llm.Client
	Config   config.ConsolidationConfig
	Log      *zap.Logger

	now func() time.Time
}

func New(fb *feedback.Buffer, store *organism.Store, mem *memory.Memory, client llm.Client, cfg config.ConsolidationConfig, log *zap.Logger) *Consolidator {
	return &Consolidator{Feedback: fb, Store: store, Memory: mem, LLM: client, Config: cfg, Log: log, now: time.Now}
}

// Run executes all five sub-phases in order. reinforcedEpisodeIDs names
// episodes recalled during the period being consolidated (surfaced by the
// reasoning loop's Recall calls); episode-strength decay in sub-phase 3
// offsets decay for anything in this set. A nil/empty set simply means no
// episode was recalled since the last sleep — every episode decays plainly.
func (c *Consolidator) Run(ctx context.Context, periodStart time.Time, reinforcedEpisodeIDs map[string]bool) (Report, error) {
	var report Report

	signals, err := c.drainFeedback(ctx)
	if err != nil {
		return report, fmt.Errorf("consolidation: drain: %w", err)
	}
	report.SignalsDrained = len(signals)

	promoted, collapsed, err := c.updateState(ctx, signals)
	if err != nil {
		return report, fmt.Errorf("consolidation: update state: %w", err)
	}
	report.StateUpdated = true
	report.SlowTierPromoted = promoted
	report.NarrativeCollapsed = collapsed

	decayed, reinforced, err := c.decayEpisodes(ctx, reinforcedEpisodeIDs)
	if err != nil {
		return report, fmt.Errorf("consolidation: decay episodes: %w", err)
	}
	report.EpisodesDecayed = decayed
	report.EpisodesReinforced = reinforced

	factsDecayed, err := c.decayFacts(ctx)
	if err != nil {
		return report, fmt.Errorf("consolidation: decay facts: %w", err)
	}
	report.FactsDecayed = factsDecayed

	chapter, err := c.weaveNarrative(ctx, signals, periodStart, c.now(), collapsed)
	if err != nil {
		return report, fmt.Errorf("consolidation: weave narrative: %w", err)
	}
	report.Chapter = chapter

	written, err := c.writeSelfKnowledge(ctx, signals)
	if err != nil {
		return report, fmt.Errorf("consolidation: self-knowledge: %w", err)
	}
	report.SelfKnowledgeWritten = written

	return report, nil
}

// drainFeedback is sub-phase 1: pull every staged signal (already
// uncertainty-discounted at Stage time and temporally smoothed by
// feedback.Drain) and drop anything still below the noise floor after
// smoothing — the "uncertainty×temporal filters" spec.md §4.8 names.
func (c *Consolidator) drainFeedback(ctx context.Context) ([]domain.FeedbackSignal, error) {
	signals, err := c.Feedback.Drain(ctx)
	if err != nil {
		return nil, err
	}
	return filterByConfidence(signals, noiseFloor), nil
}

const noiseFloor = 0.25

func filterByConfidence(signals []domain.FeedbackSignal, floor float64) []domain.FeedbackSignal {
	out := make([]domain.FeedbackSignal, 0, len(signals))
	for _, s := range signals {
		if s.Confidence >= floor {
			out = append(out, s)
		}
	}
	return out
}

// updateState is sub-phase 2: fold the drained signals' average valence
// into Medium.MoodBias, reset the sleep-cleared Hunger variable, and, if
// the cumulative shift crosses SlowShiftThreshold, promote the change into
// the slow tier (core_value_weights, modulation_curves).
func (c *Consolidator) updateState(ctx context.Context, signals []domain.FeedbackSignal) (promoted, collapsed bool, err error) {
	shift := averageShift(signals)

	_, err = c.Store.Mutate(ctx, func(state domain.OrganismState) (domain.OrganismState, error) {
		state.Medium.MoodBias = clamp(state.Medium.MoodBias+shift*0.3, -1, 1)
		state.Medium.Hunger = 0

		switch {
		case isNarrativeCollapse(state.Slow, shift, c.Config.CollapseShiftThreshold):
			collapsed = true
			promoted = true
			state.Slow = collapseSlowTier(state.Slow, shift)
		case absf(shift) >= c.Config.SlowShiftThreshold:
			promoted = true
			state.Slow = promoteSlowTier(state.Slow, shift)
		}
		return state, nil
	})
	if err != nil {
		return false, false, err
	}
	return promoted, collapsed, nil
}

// averageShift turns a batch of feedback signals into a single [-1,1]
// directional nudge: positive-reaction/reinforcement signals push toward
// +1, correction/negative signals toward -1, each weighted by confidence.
func averageShift(signals []domain.FeedbackSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var weighted, totalWeight float64
	for _, s := range signals {
		weighted += signalDirection(s) * s.Confidence
		totalWeight += s.Confidence
	}
	if totalWeight == 0 {
		return 0
	}
	return clamp(weighted/totalWeight, -1, 1)
}

func signalDirection(s domain.FeedbackSignal) float64 {
	switch s.SignalType {
	case "positive_reaction", "reinforcement":
		return 1
	case "correction", "negative_reaction":
		return -1
	default:
		return 0
	}
}

// promoteSlowTier nudges the slow tier's core_value_weights and the
// modulation curves' mood-dependent knots by a fraction of shift, scaled
// down by the organism's own rigidity — a more rigid organism's long-term
// disposition moves less per consolidation even when medium-tier drift
// crosses the threshold.
func promoteSlowTier(slow domain.SlowState, shift float64) domain.SlowState {
	delta := shift * slow.Plasticity * (1 - slow.Rigidity) * 0.05
	if slow.CoreValueWeights == nil {
		slow.CoreValueWeights = map[string]float64{}
	}
	for k, v := range slow.CoreValueWeights {
		slow.CoreValueWeights[k] = clamp(v+delta, 0, 1)
	}
	slow.Curves.MoodToTopP = shiftCurve(slow.Curves.MoodToTopP, delta)
	return slow
}

// isNarrativeCollapse is spec.md §7's Narrative Collapse trigger: a period's
// feedback shift overwhelms the bar for ordinary slow-tier promotion while
// directly contradicting the disposition the organism has already settled
// into (narrative_bias pulling one way, this period's feedback pulling hard
// the other). A fresh organism with no settled bias yet (narrative_bias == 0)
// has nothing to contradict, so it cannot collapse.
func isNarrativeCollapse(slow domain.SlowState, shift, threshold float64) bool {
	if slow.NarrativeBias == 0 {
		return false
	}
	return absf(shift) >= threshold && signOf(shift) != signOf(slow.NarrativeBias)
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	if v > 0 {
		return 1
	}
	return 0
}

// collapseSlowTier is the bounded restructure a Narrative Collapse performs:
// larger and more direct than promoteSlowTier's gradual nudge, since the
// organism is reconciling a catastrophic contradiction rather than drifting.
// narrative_bias moves sharply toward the contradicting shift instead of
// inching, and rigidity itself eases — the contradiction has just
// demonstrated that the old disposition didn't hold, so the organism is
// more willing to move again next time.
func collapseSlowTier(slow domain.SlowState, shift float64) domain.SlowState {
	slow.NarrativeBias = clamp(slow.NarrativeBias+shift*0.5, -1, 1)
	slow.Rigidity = clamp(slow.Rigidity*0.6, 0, 1)

	delta := shift * slow.Plasticity * 0.2
	if slow.CoreValueWeights == nil {
		slow.CoreValueWeights = map[string]float64{}
	}
	for k, v := range slow.CoreValueWeights {
		slow.CoreValueWeights[k] = clamp(v+delta, 0, 1)
	}
	slow.Curves.MoodToTopP = shiftCurve(slow.Curves.MoodToTopP, delta)
	return slow
}

func shiftCurve(curve domain.Curve, delta float64) domain.Curve {
	out := make(domain.Curve, len(curve))
	for i, p := range curve {
		out[i] = domain.CurvePoint{X: p.X, Y: clamp(p.Y+delta, 0, 1)}
	}
	return out
}

// decayEpisodes is sub-phase 3: exponential strength decay since each
// episode's CreatedAt, offset by RecallReinforcement for anything recalled
// during the period. Only episodes whose strength actually changes incur a
// write.
func (c *Consolidator) decayEpisodes(ctx context.Context, reinforced map[string]bool) (decayed, reinforcedCount int, err error) {
	episodes, err := c.Memory.Episodes.All(ctx)
	if err != nil {
		return 0, 0, err
	}
	now := c.now()
	for _, ep := range episodes {
		next := decayedStrength(ep, now, c.Config.EpisodeDecayRate)
		if reinforced[ep.ID] {
			next = clamp(next+c.Config.RecallReinforcement, 0, 1)
			reinforcedCount++
		}
		if next == ep.Strength {
			continue
		}
		if err := c.Memory.Episodes.UpdateStrength(ctx, ep.ID, next); err != nil {
			return decayed, reinforcedCount, fmt.Errorf("updating episode %s: %w", ep.ID, err)
		}
		decayed++
	}
	return decayed, reinforcedCount, nil
}

// decayedStrength applies exp(-rate*days) since the episode was recorded,
// a configurable curve per spec.md §4.8's "decay episode strength by a
// configurable curve" — here, the curve is its own decay rate, tunable
// independently of the reinforcement bonus.
func decayedStrength(ep domain.Episode, now time.Time, rate float64) float64 {
	days := now.Sub(ep.CreatedAt).Hours() / 24
	if days <= 0 {
		return ep.Strength
	}
	return clamp(ep.Strength*math.Exp(-rate*days), 0, 1)
}

// decayFacts is spec.md §4.2's decay_fact operation, run once per sleep
// cycle: every semantic fact's confidence decays exponentially since it was
// last reinforced (inserted or re-observed via Ingest), exactly like
// decayEpisodes but over Facts.UpdatedAt instead of Episodes.CreatedAt, and
// with no reinforcement-set counterpart — recall does not touch facts the
// way it reinforces episodes. Upsert is called with the fact's own
// UpdatedAt left untouched, so the staleness clock keeps running across
// repeated decay passes instead of being reset by the decay write itself.
func (c *Consolidator) decayFacts(ctx context.Context) (int, error) {
	facts, err := c.Memory.Facts.All(ctx)
	if err != nil {
		return 0, err
	}
	now := c.now()
	var decayedCount int
	for _, f := range facts {
		next := decayedConfidence(f, now, c.Config.FactDecayRate)
		if next == f.Confidence {
			continue
		}
		f.Confidence = next
		if err := c.Memory.Facts.Upsert(ctx, f); err != nil {
			return decayedCount, fmt.Errorf("decaying fact %s/%s/%s: %w", f.Subject, f.Predicate, f.Object, err)
		}
		decayedCount++
	}
	return decayedCount, nil
}

func decayedConfidence(f domain.SemanticFact, now time.Time, rate float64) float64 {
	days := now.Sub(f.UpdatedAt).Hours() / 24
	if days <= 0 {
		return f.Confidence
	}
	return clamp(f.Confidence*math.Exp(-rate*days), 0, 1)
}

// weaveNarrative is sub-phase 4: compose a NarrativeChapter for the period,
// grounded on the teacher's GenerateNarrative LLM call, but replacing its
// single ad hoc prompt + JSON summary with the organism's declared
// tone/themes/turning-point fields.
func (c *Consolidator) weaveNarrative(ctx context.Context, signals []domain.FeedbackSignal, start, end time.Time, collapsed bool) (*domain.NarrativeChapter, error) {
	if len(signals) == 0 {
		return nil, nil
	}

	tone := meanValence(signals)
	themes := topThemes(signals, 3)
	turningPoints := turningPointContents(signals, c.Config.TurningPointThreshold)
	if collapsed {
		turningPoints = append(turningPoints, "narrative_collapse: this period's feedback overwhelmingly contradicted the organism's settled disposition")
	}

	content, err := c.LLM.Complete(ctx, llm.CompletionRequest{
		System: "Write a brief third-person chapter summarizing this period, in the organism's own voice of self-reflection. Two to four sentences.",
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: narrativePrompt(signals, themes, tone),
		}},
		MaxTokens:   220,
		Temperature: 0.6,
		TopP:        0.9,
	})
	if err != nil {
		return nil, fmt.Errorf("generating narrative chapter: %w", err)
	}

	chapter := domain.NarrativeChapter{
		Title:         narrativeTitle(themes, start),
		Content:       content.Text,
		PeriodStart:   start,
		PeriodEnd:     end,
		EmotionalTone: tone,
		Themes:        themes,
		TurningPoints: turningPoints,
		CreatedAt:     c.now(),
	}
	if c.Memory.Narrative != nil {
		if err := c.Memory.Narrative.Insert(ctx, chapter); err != nil {
			return nil, fmt.Errorf("persisting narrative chapter: %w", err)
		}
	}
	return &chapter, nil
}

func narrativePrompt(signals []domain.FeedbackSignal, themes []string, tone float64) string {
	prompt := fmt.Sprintf("Themes this period: %v. Overall emotional tone: %.2f (-1 negative to 1 positive).\nSignals:\n", themes, tone)
	for _, s := range signals {
		prompt += fmt.Sprintf("- [%s, confidence %.2f] %s\n", s.SignalType, s.Confidence, s.Content)
	}
	return prompt
}

func narrativeTitle(themes []string, start time.Time) string {
	if len(themes) == 0 {
		return fmt.Sprintf("Reflections of %s", start.Format("2006-01-02"))
	}
	return fmt.Sprintf("On %s", themes[0])
}

// meanValence treats signal_type as a rough polarity proxy (positive vs.
// negative vs. neutral) weighted by confidence — the same direction
// function updateState uses, so the chapter's tone matches the state
// change it is describing.
func meanValence(signals []domain.FeedbackSignal) float64 {
	return averageShift(signals)
}

// topThemes clusters signals by signal_type frequency and returns the n
// most common, standing in for spec.md §4.8's "top clustered subjects"
// without a full topic-modeling dependency this organism's signal volume
// doesn't warrant.
func topThemes(signals []domain.FeedbackSignal, n int) []string {
	counts := map[string]int{}
	for _, s := range signals {
		counts[s.SignalType]++
	}
	type kv struct {
		k string
		v int
	}
	var kvs []kv
	for k, v := range counts {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].v != kvs[j].v {
			return kvs[i].v > kvs[j].v
		}
		return kvs[i].k < kvs[j].k
	})
	if n > len(kvs) {
		n = len(kvs)
	}
	themes := make([]string, n)
	for i := 0; i < n; i++ {
		themes[i] = kvs[i].k
	}
	return themes
}

func turningPointContents(signals []domain.FeedbackSignal, threshold float64) []string {
	var out []string
	for _, s := range signals {
		if s.Confidence > threshold {
			out = append(out, s.Content)
		}
	}
	return out
}

// writeSelfKnowledge is sub-phase 5: promote any signal whose confidence
// clears SelfKnowledgeConfidenceThreshold into a durable SelfKnowledgeRow.
func (c *Consolidator) writeSelfKnowledge(ctx context.Context, signals []domain.FeedbackSignal) ([]domain.SelfKnowledgeRow, error) {
	var written []domain.SelfKnowledgeRow
	for _, s := range signals {
		if s.Confidence < c.Config.SelfKnowledgeConfidenceThreshold {
			continue
		}
		row := domain.SelfKnowledgeRow{
			Domain:     "emergent",
			Content:    s.Content,
			Confidence: s.Confidence,
			Source:     "consolidation",
			CreatedAt:  c.now(),
			UpdatedAt:  c.now(),
		}
		if c.Memory.SelfKnowledge != nil {
			if err := c.Memory.SelfKnowledge.Upsert(ctx, row); err != nil {
				return written, fmt.Errorf("upserting self-knowledge row: %w", err)
			}
		}
		written = append(written, row)
	}
	return written, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
