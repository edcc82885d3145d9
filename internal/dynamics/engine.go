// Package dynamics is the Layer 3 Dynamics Engine: the deterministic
// semi-implicit Euler integrator over OrganismState (spec.md §4.1). Given
// the same (state, input, Δt) it always produces the same next state.
package dynamics

import (
	"math"
	"time"

	"mneme/internal/domain"
)

// Engine owns the integration step. It holds no state of its own; every
// call is a pure function of its arguments, matching spec.md §4.1's
// determinism requirement.
type Engine struct {
	// MaxStep bounds a single sub-step; a larger Δt is broken into equal
	// sub-steps, none exceeding this value (spec.md §4.1 "step cap with
	// sub-stepping").
	MaxStep time.Duration
	// CatchUpHorizon bounds how much of a large Δt is ever run through
	// capped sub-stepping. Anything older than this is collapsed with a
	// single closed-form analytic decay first (spec.md §4.1's catch-up
	// clause); only the most recent CatchUpHorizon worth of time is then
	// integrated step by step, which is what restores fast/medium-tier
	// coupling fidelity near "now". Without this, a week of downtime at the
	// default 5s MaxStep would run stepOnce on the order of 100,000 times
	// synchronously on startup.
	CatchUpHorizon time.Duration
}

// defaultCatchUpHorizon matches config.OrganismConfig's own default so a
// zero-value Engine (e.g. in a test) still behaves sensibly.
const defaultCatchUpHorizon = time.Hour

func NewEngine(maxStep, catchUpHorizon time.Duration) *Engine {
	if maxStep <= 0 {
		maxStep = 5 * time.Second
	}
	if catchUpHorizon <= 0 {
		catchUpHorizon = defaultCatchUpHorizon
	}
	return &Engine{MaxStep: maxStep, CatchUpHorizon: catchUpHorizon}
}

// Step advances state by dt given an optional stimulus (nil for a plain
// tick) and the organism's Big5 personality, which gates the fast-tier
// reaction curve. The result is always normalized and finite.
func (e *Engine) Step(state domain.OrganismState, input *domain.SensoryInput, traits domain.Big5, dt time.Duration) domain.OrganismState {
	if dt <= 0 {
		return Normalize(state)
	}

	horizon := e.CatchUpHorizon
	if horizon <= 0 {
		horizon = defaultCatchUpHorizon
	}

	next := state
	remaining := dt
	if dt > horizon {
		next = analyticDecay(next, (dt - horizon).Seconds())
		remaining = horizon
	}

	maxStep := e.MaxStep
	if maxStep <= 0 {
		maxStep = 5 * time.Second
	}
	steps := int(math.Ceil(float64(remaining) / float64(maxStep)))
	if steps < 1 {
		steps = 1
	}
	subDt := remaining / time.Duration(steps)
	subDtSeconds := subDt.Seconds()

	for i := 0; i < steps; i++ {
		// Only the first sub-step carries the stimulus: a single event
		// should not be re-applied once per sub-step of a catch-up Δt.
		var sub *domain.SensoryInput
		if i == 0 {
			sub = input
		}
		next = stepOnce(next, sub, traits, subDtSeconds)
	}
	return Normalize(next)
}

// analyticDecay closes the bulk of an oversized Δt in O(1): each fast-tier
// scalar relaxes toward its homeostatic target on its own exponential time
// constant — exactly what repeated small sub-steps converge to absent a
// stimulus — and social_need/hunger accumulate linearly, then clamp.
// Medium-tier targets (e.g. mood_bias chasing valence) are held at their
// pre-gap value rather than re-solved jointly; the CatchUpHorizon-sized
// tail that Step always runs through stepOnce afterward is what restores
// exact fast/medium coupling near "now".
func analyticDecay(state domain.OrganismState, dtSeconds float64) domain.OrganismState {
	fast := state.Fast
	fast.Energy = relax(fast.Energy, state.Slow.EnergyTarget, energyDecayRate, dtSeconds)
	fast.Stress = relax(fast.Stress, 0, stressDecayRate, dtSeconds)
	fast.Arousal = relax(fast.Arousal, 0, arousalDecayRate, dtSeconds)
	fast.Valence = relax(fast.Valence, state.Medium.MoodBias, valenceDecayRate, dtSeconds)
	fast.Curiosity = relax(fast.Curiosity, 0.4, curiosityDecayRate, dtSeconds)
	fast.SocialNeed = clamp(fast.SocialNeed+socialNeedGrowthRate*dtSeconds, 0, 1)

	medium := state.Medium
	medium.MoodBias = relax(medium.MoodBias, fast.Valence, 0.0005, dtSeconds)
	medium.AttachmentAnxiety = relax(medium.AttachmentAnxiety, 0.2, 0.0002, dtSeconds)
	medium.AttachmentAvoidance = relax(medium.AttachmentAvoidance, 0.2, 0.0001, dtSeconds)
	medium.Openness = relax(medium.Openness, 0.5, 0.0001, dtSeconds)
	medium.Hunger = clamp(medium.Hunger+0.0004*dtSeconds, 0, 1)

	state.Fast = fast
	state.Medium = medium
	return state
}

// relax evaluates the closed-form solution of dx/dt = rate*(target-x): the
// same homeostatic pull stepOnce applies incrementally, solved exactly.
func relax(current, target, rate, dtSeconds float64) float64 {
	return target + (current-target)*math.Exp(-rate*dtSeconds)
}

// stepOnce applies one semi-implicit Euler sub-step: fast-tier derivatives
// are evaluated against the *current* state, then medium-tier derivatives
// are evaluated against the *already-updated* fast tier, which is what
// "semi-implicit" buys over a naive explicit Euler — medium-tier state
// reacts to the same instant's fast-tier change instead of lagging one
// sub-step behind.
func stepOnce(state domain.OrganismState, input *domain.SensoryInput, traits domain.Big5, dtSeconds float64) domain.OrganismState {
	fast := fFast(state, input, traits, dtSeconds)
	medium := fMedium(state, fast, dtSeconds)

	state.Fast = fast
	state.Medium = medium
	return state
}

const (
	// energyDecayRate pulls Energy toward Slow.EnergyTarget.
	energyDecayRate = 0.02
	// stressDecayRate pulls Stress toward 0 absent a stimulus.
	stressDecayRate = 0.05
	// arousalDecayRate pulls Arousal toward 0 absent a stimulus.
	arousalDecayRate = 0.08
	// valenceDecayRate pulls Valence toward Medium.MoodBias.
	valenceDecayRate = 0.03
	// curiosityDecayRate pulls Curiosity toward its default baseline.
	curiosityDecayRate = 0.01
	// socialNeedGrowthRate grows SocialNeed absent interaction.
	socialNeedGrowthRate = 0.015

	// activationCoefficient is the teacher's ReactionEngine constant: the
	// maximum points of raw intensity a fully resilient organism absorbs
	// before any of it reaches stress/arousal (SPEC_FULL.md §3).
	activationCoefficient = 0.30
)

// fFast computes the next fast tier: a resilience-gated reaction to input
// layered on top of homeostatic decay toward baseline/EnergyTarget.
func fFast(state domain.OrganismState, input *domain.SensoryInput, traits domain.Big5, dtSeconds float64) domain.FastState {
	fast := state.Fast

	// Homeostatic decay, independent of any stimulus.
	fast.Energy += (state.Slow.EnergyTarget - fast.Energy) * energyDecayRate * dtSeconds
	fast.Stress += (0 - fast.Stress) * stressDecayRate * dtSeconds
	fast.Arousal += (0 - fast.Arousal) * arousalDecayRate * dtSeconds
	fast.Valence += (state.Medium.MoodBias - fast.Valence) * valenceDecayRate * dtSeconds
	fast.Curiosity += (0.4 - fast.Curiosity) * curiosityDecayRate * dtSeconds
	fast.SocialNeed += socialNeedGrowthRate * dtSeconds

	if input != nil {
		effective := resilienceGatedIntensity(input.Intensity*100, traits) / 100.0

		fast.Stress += effective * negativeWeight(input.Valence) * 0.6
		fast.Arousal += effective * input.Salience * 0.5
		fast.Valence += effective * input.Valence * 0.4
		fast.Curiosity += input.Surprise * 0.3
		fast.SocialNeed -= input.Salience * 0.1 // being attended to partially satisfies social need
	}

	fast.Energy = clamp(fast.Energy, 0, 1)
	fast.Stress = clamp(fast.Stress, 0, 1)
	fast.Arousal = clamp(fast.Arousal, 0, 1)
	fast.Valence = clamp(fast.Valence, -1, 1)
	fast.Curiosity = clamp(fast.Curiosity, 0, 1)
	fast.SocialNeed = clamp(fast.SocialNeed, 0, 1)
	return fast
}

// resilienceGatedIntensity is the teacher's CalculateReaction: a ReLU
// threshold scaled by personality resilience absorbs low-intensity noise
// before it reaches the fast tier at all.
func resilienceGatedIntensity(rawIntensity float64, traits domain.Big5) float64 {
	if math.IsNaN(rawIntensity) || math.IsInf(rawIntensity, 0) || rawIntensity < 0 {
		rawIntensity = 0
	}
	threshold := 100.0 * activationCoefficient * traits.Resilience()
	effective := rawIntensity - threshold
	if effective < 0 {
		return 0
	}
	return effective
}

func negativeWeight(valence float64) float64 {
	// Negative stimuli raise stress more than positive ones of equal
	// magnitude; a purely positive stimulus still contributes a small
	// residual (intense good news is still arousing).
	if valence < 0 {
		return 1.0
	}
	return 0.25
}

// fMedium computes the next medium tier: it reacts to the *already updated*
// fast tier (the semi-implicit coupling), drifting mood_bias and attachment
// parameters on a much slower time constant than the fast tier itself.
func fMedium(state domain.OrganismState, fast domain.FastState, dtSeconds float64) domain.MediumState {
	medium := state.Medium

	moodRate := 0.0005
	medium.MoodBias += (fast.Valence - medium.MoodBias) * moodRate * dtSeconds

	if fast.Stress > 0.7 {
		medium.AttachmentAnxiety += 0.0003 * dtSeconds
	} else {
		medium.AttachmentAnxiety += (0.2 - medium.AttachmentAnxiety) * 0.0002 * dtSeconds
	}

	if fast.SocialNeed > 0.7 && fast.Valence < 0 {
		medium.AttachmentAvoidance += 0.0002 * dtSeconds
	} else {
		medium.AttachmentAvoidance += (0.2 - medium.AttachmentAvoidance) * 0.0001 * dtSeconds
	}

	medium.Openness += (0.5 - medium.Openness) * 0.0001 * dtSeconds
	medium.Hunger += 0.0004 * dtSeconds // grows until Consolidation (sleep) resets it

	medium.MoodBias = clamp(medium.MoodBias, -1, 1)
	medium.AttachmentAnxiety = clamp(medium.AttachmentAnxiety, 0, 1)
	medium.AttachmentAvoidance = clamp(medium.AttachmentAvoidance, 0, 1)
	medium.Openness = clamp(medium.Openness, 0, 1)
	medium.Hunger = clamp(medium.Hunger, 0, 1)
	return medium
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize clamps every scalar to its declared interval and replaces any
// NaN/Inf with the homeostatic default for that field (spec.md §7
// "Numerical anomaly"). Idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(state domain.OrganismState) domain.OrganismState {
	def := domain.DefaultOrganismState()

	state.Fast.Energy = clampOrDefault(state.Fast.Energy, 0, 1, def.Fast.Energy)
	state.Fast.Stress = clampOrDefault(state.Fast.Stress, 0, 1, def.Fast.Stress)
	state.Fast.Arousal = clampOrDefault(state.Fast.Arousal, 0, 1, def.Fast.Arousal)
	state.Fast.Valence = clampOrDefault(state.Fast.Valence, -1, 1, def.Fast.Valence)
	state.Fast.Curiosity = clampOrDefault(state.Fast.Curiosity, 0, 1, def.Fast.Curiosity)
	state.Fast.SocialNeed = clampOrDefault(state.Fast.SocialNeed, 0, 1, def.Fast.SocialNeed)

	state.Medium.MoodBias = clampOrDefault(state.Medium.MoodBias, -1, 1, def.Medium.MoodBias)
	state.Medium.AttachmentAnxiety = clampOrDefault(state.Medium.AttachmentAnxiety, 0, 1, def.Medium.AttachmentAnxiety)
	state.Medium.AttachmentAvoidance = clampOrDefault(state.Medium.AttachmentAvoidance, 0, 1, def.Medium.AttachmentAvoidance)
	state.Medium.Openness = clampOrDefault(state.Medium.Openness, 0, 1, def.Medium.Openness)
	state.Medium.Hunger = clampOrDefault(state.Medium.Hunger, 0, 1, def.Medium.Hunger)

	state.Slow.NarrativeBias = clampOrDefault(state.Slow.NarrativeBias, -1, 1, def.Slow.NarrativeBias)
	state.Slow.Rigidity = clampOrDefault(state.Slow.Rigidity, 0, 1, def.Slow.Rigidity)
	state.Slow.Plasticity = clampOrDefault(state.Slow.Plasticity, 0, 1, def.Slow.Plasticity)
	state.Slow.EnergyTarget = clampOrDefault(state.Slow.EnergyTarget, 0, 1, def.Slow.EnergyTarget)
	if state.Slow.CoreValueWeights == nil {
		state.Slow.CoreValueWeights = def.Slow.CoreValueWeights
	} else {
		for k, v := range state.Slow.CoreValueWeights {
			state.Slow.CoreValueWeights[k] = clampOrDefault(v, 0, 1, 0.5)
		}
	}
	if len(state.Slow.Curves.EnergyToMaxTokens) == 0 {
		state.Slow.Curves = def.Slow.Curves
	}

	return state
}

func clampOrDefault(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
