package modulation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

func TestEval_InterpolatesBetweenKnots(t *testing.T) {
	curve := domain.Curve{{X: 0, Y: 0}, {X: 1, Y: 10}}
	require.InDelta(t, 5.0, Eval(curve, 0.5), 1e-9)
}

func TestEval_ClampsOutsideDomain(t *testing.T) {
	curve := domain.Curve{{X: 0.2, Y: 1}, {X: 0.8, Y: 2}}
	require.Equal(t, 1.0, Eval(curve, -5))
	require.Equal(t, 2.0, Eval(curve, 5))
}

func TestEval_EmptyCurveReturnsZero(t *testing.T) {
	require.Equal(t, 0.0, Eval(domain.Curve{}, 0.5))
}

func TestModulate_MaxTokensFactorAlwaysPositive(t *testing.T) {
	state := domain.DefaultOrganismState()
	state.Fast.Energy = 0
	vec := Modulate(state)
	require.Greater(t, vec.MaxTokensFactor, 0.0)
}

func TestModulate_IncreasingEnergyNeverDecreasesMaxTokensFactor(t *testing.T) {
	low := domain.DefaultOrganismState()
	low.Fast.Energy = 0.1
	high := low
	high.Fast.Energy = 0.9

	require.GreaterOrEqual(t, Modulate(high).MaxTokensFactor, Modulate(low).MaxTokensFactor)
}

func TestModulate_IncreasingStressNeverDecreasesTemperatureDelta(t *testing.T) {
	low := domain.DefaultOrganismState()
	low.Fast.Stress = 0.1
	high := low
	high.Fast.Stress = 0.9

	require.GreaterOrEqual(t, Modulate(high).TemperatureDelta, Modulate(low).TemperatureDelta)
}

func TestModulate_SomaticDigestReflectsExtremes(t *testing.T) {
	state := domain.DefaultOrganismState()
	state.Fast.Energy = 0.05
	state.Fast.Stress = 0.9
	state.Medium.MoodBias = -0.8

	digest := Modulate(state).SomaticDigest
	require.Contains(t, digest, "depleted")
	require.Contains(t, digest, "overwhelmed")
	require.Contains(t, digest, "negative")
}

func TestModulate_SilenceBiasRequiresBothEnergyAndSocialNeedLow(t *testing.T) {
	highEnergyLowSocialNeed := domain.DefaultOrganismState()
	highEnergyLowSocialNeed.Fast.Energy = 0.9
	highEnergyLowSocialNeed.Fast.SocialNeed = 0.0

	lowEnergyLowSocialNeed := domain.DefaultOrganismState()
	lowEnergyLowSocialNeed.Fast.Energy = 0.1
	lowEnergyLowSocialNeed.Fast.SocialNeed = 0.0

	highBias := Modulate(highEnergyLowSocialNeed).SilenceBias
	lowBias := Modulate(lowEnergyLowSocialNeed).SilenceBias

	require.Less(t, highBias, lowBias, "high energy should damp silence_bias even when social_need is low")
	require.Greater(t, lowBias, 0.0, "low energy and low social_need together should still bias toward silence")
}

func TestFinal_EnforcesSafeEnvelope(t *testing.T) {
	vec := domain.ModulationVector{
		MaxTokensFactor:  0.01,
		TemperatureDelta: -10,
		TopPDelta:        -10,
	}
	final := Final(vec, 256, 0.7, 0.9, DefaultEnvelope)

	require.GreaterOrEqual(t, final.MaxTokens, DefaultEnvelope.MinMaxTokens)
	require.GreaterOrEqual(t, final.Temperature, DefaultEnvelope.MinTemperature)
	require.LessOrEqual(t, final.Temperature, DefaultEnvelope.MaxTemperature)
	require.GreaterOrEqual(t, final.TopP, 0.05)
}

func TestFinal_ClampsHighEnd(t *testing.T) {
	vec := domain.ModulationVector{
		MaxTokensFactor:  10,
		TemperatureDelta: 10,
		TopPDelta:        10,
	}
	final := Final(vec, 256, 0.7, 0.9, DefaultEnvelope)

	require.LessOrEqual(t, final.Temperature, DefaultEnvelope.MaxTemperature)
	require.LessOrEqual(t, final.TopP, 1.0)
}
