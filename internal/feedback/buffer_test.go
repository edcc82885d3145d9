package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

func TestUncertaintyDiscount_PullsTowardHalf(t *testing.T) {
	require.Less(t, uncertaintyDiscount(1.0), 1.0)
	require.Greater(t, uncertaintyDiscount(1.0), 0.5)
	require.Equal(t, 0.5, uncertaintyDiscount(0.5))
	require.Equal(t, 0.5, uncertaintyDiscount(time.Duration(0).Seconds()/0)) // NaN
}

func TestSmooth_ClustersComparableSignalsWithinWindow(t *testing.T) {
	base := time.Now()
	signals := []domain.FeedbackSignal{
		{SignalType: "positive_reaction", Confidence: 0.8, Timestamp: base},
		{SignalType: "positive_reaction", Confidence: 0.6, Timestamp: base.Add(time.Minute)},
		{SignalType: "positive_reaction", Confidence: 0.7, Timestamp: base.Add(2 * time.Minute)},
	}
	out := Smooth(signals)
	require.Len(t, out, 1)
	require.InDelta(t, 0.7, out[0].Confidence, 1e-9)
}

func TestSmooth_DropsUnreinforcedIsolatedSignals(t *testing.T) {
	base := time.Now()
	signals := []domain.FeedbackSignal{
		{SignalType: "surprise", Confidence: 0.8, Timestamp: base},
		{SignalType: "surprise", Confidence: 0.6, Timestamp: base.Add(time.Hour)},
	}
	out := Smooth(signals)
	require.Empty(t, out, "neither signal is reinforced by smoothingK comparable signals, so neither should survive")
}

func TestSmooth_SplitsClusterWhenGapExceedsWindow(t *testing.T) {
	base := time.Now()
	signals := []domain.FeedbackSignal{
		{SignalType: "negative_reaction", Confidence: 0.9, Timestamp: base},
		{SignalType: "negative_reaction", Confidence: 0.9, Timestamp: base.Add(time.Minute)},
		{SignalType: "negative_reaction", Confidence: 0.9, Timestamp: base.Add(time.Minute + 10*time.Second)},
		{SignalType: "negative_reaction", Confidence: 0.9, Timestamp: base.Add(time.Hour)},
	}
	out := Smooth(signals)
	require.Len(t, out, 1) // first cluster of 3 smoothed; the lone trailing signal is unreinforced and dropped
}
