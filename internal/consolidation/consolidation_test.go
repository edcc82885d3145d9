package consolidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

func TestFilterByConfidence_DropsBelowFloor(t *testing.T) {
	signals := []domain.FeedbackSignal{
		{Confidence: 0.1}, {Confidence: 0.3}, {Confidence: 0.9},
	}
	out := filterByConfidence(signals, 0.25)
	require.Len(t, out, 2)
}

func TestAverageShift_WeightsByConfidence(t *testing.T) {
	signals := []domain.FeedbackSignal{
		{SignalType: "positive_reaction", Confidence: 0.9},
		{SignalType: "correction", Confidence: 0.1},
	}
	shift := averageShift(signals)
	require.Greater(t, shift, 0.0, "a high-confidence positive signal should dominate a low-confidence correction")
}

func TestAverageShift_EmptyIsZero(t *testing.T) {
	require.Equal(t, 0.0, averageShift(nil))
}

func TestAverageShift_OpposingSignalsCancel(t *testing.T) {
	signals := []domain.FeedbackSignal{
		{SignalType: "positive_reaction", Confidence: 0.8},
		{SignalType: "correction", Confidence: 0.8},
	}
	require.InDelta(t, 0.0, averageShift(signals), 1e-9)
}

func TestPromoteSlowTier_ScalesByPlasticityAndRigidity(t *testing.T) {
	rigid := domain.SlowState{
		CoreValueWeights: map[string]float64{"honesty": 0.5},
		Plasticity:       0.1,
		Rigidity:         0.9,
		Curves:           domain.DefaultModulationCurves(),
	}
	flexible := domain.SlowState{
		CoreValueWeights: map[string]float64{"honesty": 0.5},
		Plasticity:       0.9,
		Rigidity:         0.1,
		Curves:           domain.DefaultModulationCurves(),
	}

	rigidOut := promoteSlowTier(rigid, 1.0)
	flexibleOut := promoteSlowTier(flexible, 1.0)

	rigidDelta := rigidOut.CoreValueWeights["honesty"] - 0.5
	flexibleDelta := flexibleOut.CoreValueWeights["honesty"] - 0.5
	require.Greater(t, flexibleDelta, rigidDelta)
}

func TestIsNarrativeCollapse_RequiresContradictionAndMagnitude(t *testing.T) {
	settled := domain.SlowState{NarrativeBias: 0.7}

	require.True(t, isNarrativeCollapse(settled, -0.8, 0.6), "large shift opposing a settled bias should collapse")
	require.False(t, isNarrativeCollapse(settled, -0.3, 0.6), "too small a shift should not collapse")
	require.False(t, isNarrativeCollapse(settled, 0.8, 0.6), "a shift agreeing with the settled bias should not collapse")
	require.False(t, isNarrativeCollapse(domain.SlowState{NarrativeBias: 0}, -0.9, 0.6), "no settled bias means nothing to contradict")
}

func TestCollapseSlowTier_MovesBiasSharplyAndEasesRigidity(t *testing.T) {
	slow := domain.SlowState{
		NarrativeBias:    0.7,
		Rigidity:         0.8,
		Plasticity:       0.5,
		CoreValueWeights: map[string]float64{"honesty": 0.6},
		Curves:           domain.DefaultModulationCurves(),
	}

	out := collapseSlowTier(slow, -0.9)

	require.Less(t, out.NarrativeBias, slow.NarrativeBias, "a strongly contradicting shift should pull narrative_bias down")
	require.Less(t, out.Rigidity, slow.Rigidity, "a collapse should ease rigidity, not tighten it")
}

func TestDecayedStrength_ZeroDaysIsUnchanged(t *testing.T) {
	now := time.Now()
	ep := domain.Episode{Strength: 0.8, CreatedAt: now}
	require.Equal(t, 0.8, decayedStrength(ep, now, 0.1))
}

func TestDecayedStrength_DecaysOverTime(t *testing.T) {
	now := time.Now()
	ep := domain.Episode{Strength: 0.8, CreatedAt: now.Add(-30 * 24 * time.Hour)}
	next := decayedStrength(ep, now, 0.02)
	require.Less(t, next, 0.8)
	require.Greater(t, next, 0.0)
}

func TestDecayedConfidence_ZeroDaysIsUnchanged(t *testing.T) {
	now := time.Now()
	f := domain.SemanticFact{Confidence: 0.8, UpdatedAt: now}
	require.Equal(t, 0.8, decayedConfidence(f, now, 0.01))
}

func TestDecayedConfidence_DecaysOverTime(t *testing.T) {
	now := time.Now()
	f := domain.SemanticFact{Confidence: 0.8, UpdatedAt: now.Add(-90 * 24 * time.Hour)}
	next := decayedConfidence(f, now, 0.005)
	require.Less(t, next, 0.8)
	require.Greater(t, next, 0.0)
}

func TestTopThemes_ReturnsMostFrequentFirst(t *testing.T) {
	signals := []domain.FeedbackSignal{
		{SignalType: "a"}, {SignalType: "a"}, {SignalType: "b"},
	}
	themes := topThemes(signals, 2)
	require.Equal(t, []string{"a", "b"}, themes)
}

func TestTopThemes_CapsAtRequestedCount(t *testing.T) {
	signals := []domain.FeedbackSignal{
		{SignalType: "a"}, {SignalType: "b"}, {SignalType: "c"},
	}
	require.Len(t, topThemes(signals, 1), 1)
}

func TestTurningPointContents_OnlyAboveThreshold(t *testing.T) {
	signals := []domain.FeedbackSignal{
		{Confidence: 0.9, Content: "big moment"},
		{Confidence: 0.4, Content: "minor note"},
	}
	out := turningPointContents(signals, 0.75)
	require.Equal(t, []string{"big moment"}, out)
}

func TestSignalDirection_UnknownTypeIsNeutral(t *testing.T) {
	require.Equal(t, 0.0, signalDirection(domain.FeedbackSignal{SignalType: "something_else"}))
}
