package dynamics

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

var defaultTraits = domain.Big5{Openness: 60, Conscientiousness: 60, Extraversion: 50, Agreeableness: 60, Neuroticism: 30}

func TestStep_StaysWithinBoundsAndFinite(t *testing.T) {
	engine := NewEngine(5*time.Second, time.Hour)
	state := domain.DefaultOrganismState()
	input := &domain.SensoryInput{Intensity: 0.9, Valence: -0.8, Salience: 0.7, Surprise: 0.6}

	for i := 0; i < 100; i++ {
		state = engine.Step(state, input, defaultTraits, 7*time.Second)
		assertFiniteAndBounded(t, state)
	}
}

func TestStep_NoInput_EnergyDriftsTowardTarget(t *testing.T) {
	engine := NewEngine(5*time.Second, time.Hour)
	state := domain.DefaultOrganismState()
	state.Fast.Energy = 0.1
	state.Slow.EnergyTarget = 0.6

	for i := 0; i < 3600; i++ {
		state = engine.Step(state, nil, defaultTraits, 10*time.Second)
	}
	require.InDelta(t, 0.6, state.Fast.Energy, 0.05)
}

func TestStep_NoInput_StressMonotonicallyNonIncreasing(t *testing.T) {
	engine := NewEngine(5*time.Second, time.Hour)
	state := domain.DefaultOrganismState()
	state.Fast.Stress = 0.8

	prev := state.Fast.Stress
	for i := 0; i < 200; i++ {
		state = engine.Step(state, nil, defaultTraits, 10*time.Second)
		require.LessOrEqual(t, state.Fast.Stress, prev+1e-9)
		prev = state.Fast.Stress
	}
}

func TestStep_HeavyStressSpike_CrossesThreshold(t *testing.T) {
	engine := NewEngine(5*time.Second, time.Hour)
	state := domain.DefaultOrganismState()
	// Low resilience traits so the activation threshold is low.
	fragile := domain.Big5{Neuroticism: 90, Conscientiousness: 20, Extraversion: 20}

	for i := 0; i < 10; i++ {
		state = engine.Step(state, &domain.SensoryInput{Intensity: 1.0, Valence: -0.9, Salience: 0.9, Surprise: 0.5}, fragile, 6*time.Second)
	}
	require.Greater(t, state.Fast.Stress, 0.5)
}

func TestStep_SubStepsLargeDelta(t *testing.T) {
	engine := NewEngine(5*time.Second, time.Hour)
	state := domain.DefaultOrganismState()

	oneShot := engine.Step(state, &domain.SensoryInput{Intensity: 0.5, Valence: 0.2, Salience: 0.3, Surprise: 0.1}, defaultTraits, 50*time.Second)
	assertFiniteAndBounded(t, oneShot)
}

func TestStep_CatchUpBeyondHorizon_StaysFiniteAndConvergesToTarget(t *testing.T) {
	engine := NewEngine(5*time.Second, time.Hour)
	state := domain.DefaultOrganismState()
	state.Fast.Energy = 0.1
	state.Slow.EnergyTarget = 0.6
	state.Fast.Stress = 0.9

	// A week of downtime: far beyond CatchUpHorizon, must resolve in one call
	// without the caller waiting on ~100,000 synchronous sub-steps.
	state = engine.Step(state, nil, defaultTraits, 7*24*time.Hour)

	assertFiniteAndBounded(t, state)
	require.InDelta(t, 0.6, state.Fast.Energy, 0.05)
	require.Less(t, state.Fast.Stress, 0.1)
}

func TestStep_CatchUpBeyondHorizon_MatchesPlainSubSteppingApproximately(t *testing.T) {
	longHorizon := NewEngine(5*time.Second, 365*24*time.Hour) // never takes the analytic path
	shortHorizon := NewEngine(5*time.Second, time.Hour)       // takes it for most of the gap

	base := domain.DefaultOrganismState()
	base.Fast.Energy = 0.1
	base.Slow.EnergyTarget = 0.6

	dt := 6 * time.Hour
	viaSubSteps := longHorizon.Step(base, nil, defaultTraits, dt)
	viaAnalytic := shortHorizon.Step(base, nil, defaultTraits, dt)

	require.InDelta(t, viaSubSteps.Fast.Energy, viaAnalytic.Fast.Energy, 0.02)
	require.InDelta(t, viaSubSteps.Medium.MoodBias, viaAnalytic.Medium.MoodBias, 0.02)
}

func TestNormalize_Idempotent(t *testing.T) {
	state := domain.DefaultOrganismState()
	state.Fast.Energy = math.NaN()
	state.Fast.Stress = math.Inf(1)
	state.Medium.MoodBias = 5 // out of range

	once := Normalize(state)
	twice := Normalize(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("Normalize is not idempotent (-once +twice):\n%s", diff)
	}
	assertFiniteAndBounded(t, once)
}

func TestResilienceGatedIntensity_ClampsNegativeAndNaN(t *testing.T) {
	require.Equal(t, 0.0, resilienceGatedIntensity(-10, defaultTraits))
	require.Equal(t, 0.0, resilienceGatedIntensity(math.NaN(), defaultTraits))
}

func assertFiniteAndBounded(t *testing.T, state domain.OrganismState) {
	t.Helper()
	inBounds := func(v, lo, hi float64) {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "value not finite: %v", v)
		require.GreaterOrEqual(t, v, lo)
		require.LessOrEqual(t, v, hi)
	}
	inBounds(state.Fast.Energy, 0, 1)
	inBounds(state.Fast.Stress, 0, 1)
	inBounds(state.Fast.Arousal, 0, 1)
	inBounds(state.Fast.Valence, -1, 1)
	inBounds(state.Fast.Curiosity, 0, 1)
	inBounds(state.Fast.SocialNeed, 0, 1)
	inBounds(state.Medium.MoodBias, -1, 1)
	inBounds(state.Medium.AttachmentAnxiety, 0, 1)
	inBounds(state.Medium.AttachmentAvoidance, 0, 1)
	inBounds(state.Medium.Openness, 0, 1)
	inBounds(state.Medium.Hunger, 0, 1)
}
