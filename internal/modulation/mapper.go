// Package modulation is the Layer 6 Modulation Mapper: a pure function from
// OrganismState to ModulationVector via parameterised piecewise-linear
// curves (spec.md §4.3). It never emits natural-language instructions —
// structural shaping of sampling parameters and recall bias is the only
// channel.
package modulation

import (
	"fmt"
	"math"
	"sort"

	"mneme/internal/domain"
)

// Eval interpolates a Curve at x, clamping outside its domain. Curves need
// not be sorted by X: Eval sorts a copy and does not mutate the caller's.
func Eval(curve domain.Curve, x float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	points := append([]domain.CurvePoint(nil), curve...)
	sort.Slice(points, func(i, j int) bool { return points[i].X < points[j].X })

	if x <= points[0].X {
		return points[0].Y
	}
	last := points[len(points)-1]
	if x >= last.X {
		return last.Y
	}
	for i := 1; i < len(points); i++ {
		if x <= points[i].X {
			lo, hi := points[i-1], points[i]
			if hi.X == lo.X {
				return lo.Y
			}
			t := (x - lo.X) / (hi.X - lo.X)
			return lo.Y + t*(hi.Y-lo.Y)
		}
	}
	return last.Y
}

// Envelope bounds the safe ranges spec.md §8 requires every ModulationVector
// to respect.
type Envelope struct {
	MinTemperature float64
	MaxTemperature float64
	MinMaxTokens   int
}

// DefaultEnvelope matches spec.md §8's quantified invariant:
// final_temperature in [0.1, 1.5], max_tokens >= 64.
var DefaultEnvelope = Envelope{MinTemperature: 0.1, MaxTemperature: 1.5, MinMaxTokens: 64}

// Modulate maps state onto a ModulationVector. It is a pure function of its
// argument: same state in, same vector out, every time.
func Modulate(state domain.OrganismState) domain.ModulationVector {
	curves := state.Slow.Curves

	maxTokensFactor := Eval(curves.EnergyToMaxTokens, state.Fast.Energy)
	if maxTokensFactor <= 0 {
		maxTokensFactor = 0.01 // property test: max_tokens_factor > 0, always
	}

	tempFromStress := Eval(curves.StressToTemperature, state.Fast.Stress)
	tempFromArousal := Eval(curves.ArousalToTemperature, state.Fast.Arousal)
	temperatureDelta := tempFromStress + tempFromArousal

	topPDelta := Eval(curves.MoodToTopP, math.Abs(state.Medium.MoodBias))

	contextBudgetFactor := Eval(curves.EnergyToContextBudget, state.Fast.Energy)
	if contextBudgetFactor <= 0 {
		contextBudgetFactor = 0.01
	}
	if contextBudgetFactor > 2 {
		contextBudgetFactor = 2
	}

	energyLowFactor := Eval(curves.EnergyToSilenceBiasFactor, state.Fast.Energy)
	silenceBias := Eval(curves.SocialNeedToSilenceBias, state.Fast.SocialNeed) * energyLowFactor
	if silenceBias < 0 {
		silenceBias = 0
	}
	if silenceBias > 1 {
		silenceBias = 1
	}

	return domain.ModulationVector{
		MaxTokensFactor:     maxTokensFactor,
		TemperatureDelta:    temperatureDelta,
		TopPDelta:           topPDelta,
		ContextBudgetFactor: contextBudgetFactor,
		RecallMoodBias:      clamp(state.Medium.MoodBias, -1, 1),
		SilenceBias:         silenceBias,
		SomaticDigest:       somaticDigest(state),
	}
}

// somaticDigest is the minimal structural digest spec.md §4.3 allows as the
// one piece of text the modulation layer contributes — a compact label, not
// prose instructions, for any downstream component that logs or displays
// "how the organism currently feels" without leaking internal scalars.
func somaticDigest(state domain.OrganismState) string {
	energyWord := "rested"
	switch {
	case state.Fast.Energy < 0.25:
		energyWord = "depleted"
	case state.Fast.Energy < 0.5:
		energyWord = "tired"
	}
	stressWord := "calm"
	switch {
	case state.Fast.Stress > 0.75:
		stressWord = "overwhelmed"
	case state.Fast.Stress > 0.4:
		stressWord = "tense"
	}
	moodWord := "neutral"
	switch {
	case state.Medium.MoodBias > 0.3:
		moodWord = "positive"
	case state.Medium.MoodBias < -0.3:
		moodWord = "negative"
	}
	return fmt.Sprintf("%s/%s/%s", energyWord, stressWord, moodWord)
}

// Final folds a ModulationVector onto a provider's base sampling parameters
// and clamps to the safe envelope (spec.md §8).
func Final(vec domain.ModulationVector, baseMaxTokens int, baseTemperature, baseTopP float64, env Envelope) domain.FinalSamplingParams {
	maxTokens := int(math.Round(float64(baseMaxTokens) * vec.MaxTokensFactor))
	if maxTokens < env.MinMaxTokens {
		maxTokens = env.MinMaxTokens
	}

	temperature := baseTemperature + vec.TemperatureDelta
	if temperature < env.MinTemperature {
		temperature = env.MinTemperature
	}
	if temperature > env.MaxTemperature {
		temperature = env.MaxTemperature
	}

	topP := baseTopP + vec.TopPDelta
	if topP < 0.05 {
		topP = 0.05
	}
	if topP > 1.0 {
		topP = 1.0
	}

	return domain.FinalSamplingParams{MaxTokens: maxTokens, Temperature: temperature, TopP: topP}
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
