package domain

import "time"

// FastState holds the seconds-timescale tier of OrganismState. Every scalar
// is clamped to its declared interval by Normalize.
type FastState struct {
	Energy     float64 `json:"energy"`      // [0,1]
	Stress     float64 `json:"stress"`      // [0,1]
	Arousal    float64 `json:"arousal"`     // [0,1]
	Valence    float64 `json:"valence"`     // [-1,1]
	Curiosity  float64 `json:"curiosity"`   // [0,1]
	SocialNeed float64 `json:"social_need"` // [0,1]
}

// MediumState holds the minutes-to-hours tier.
type MediumState struct {
	MoodBias            float64 `json:"mood_bias"`            // [-1,1]
	AttachmentAnxiety   float64 `json:"attachment_anxiety"`    // [0,1]
	AttachmentAvoidance float64 `json:"attachment_avoidance"`  // [0,1]
	Openness            float64 `json:"openness"`              // [0,1]
	Hunger              float64 `json:"hunger"`                // [0,1]
}

// SlowState holds the days-and-beyond tier. Fields here change only through
// Consolidation (internal/consolidation) or a Narrative Collapse restructure;
// the Dynamics Engine never writes them directly at tick time.
type SlowState struct {
	CoreValueWeights map[string]float64 `json:"core_value_weights"`
	NarrativeBias    float64            `json:"narrative_bias"` // [-1,1]
	Rigidity         float64            `json:"rigidity"`       // [0,1]
	Plasticity       float64            `json:"plasticity"`     // [0,1]
	Curves           ModulationCurves   `json:"modulation_curves"`
	EnergyTarget     float64            `json:"energy_target"` // [0,1], homeostatic setpoint for fast.Energy
}

// OrganismState is the complete three-timescale state of a single organism.
type OrganismState struct {
	Fast      FastState   `json:"fast"`
	Medium    MediumState `json:"medium"`
	Slow      SlowState   `json:"slow"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DefaultOrganismState returns the homeostatic default state used both for
// cold start and for resetting any scalar found to be NaN/Inf during
// normalization.
func DefaultOrganismState() OrganismState {
	return OrganismState{
		Fast: FastState{
			Energy:     0.6,
			Stress:     0.1,
			Arousal:    0.2,
			Valence:    0.0,
			Curiosity:  0.4,
			SocialNeed: 0.3,
		},
		Medium: MediumState{
			MoodBias:            0.0,
			AttachmentAnxiety:   0.2,
			AttachmentAvoidance: 0.2,
			Openness:            0.5,
			Hunger:              0.2,
		},
		Slow: SlowState{
			CoreValueWeights: map[string]float64{
				"honesty":    0.7,
				"curiosity":  0.6,
				"connection": 0.6,
			},
			NarrativeBias: 0.0,
			Rigidity:      0.3,
			Plasticity:    0.5,
			Curves:        DefaultModulationCurves(),
			EnergyTarget:  0.6,
		},
	}
}

// SensoryInput is the optional stimulus fed into a Dynamics Engine step.
type SensoryInput struct {
	Intensity float64 `json:"intensity"` // [0,1], magnitude of the stimulus
	Valence   float64 `json:"valence"`   // [-1,1], emotional tone of the stimulus
	Salience  float64 `json:"salience"`  // [0,1], how attention-grabbing it is
	Surprise  float64 `json:"surprise"`  // [0,1], distance between prediction and realized input
}

// OrganismStateSnapshot pairs a state with the tick sequence number it was
// observed at, used for organism_state_history rows and for giving a
// reasoning-loop turn a single consistent snapshot after the Modulate step.
type OrganismStateSnapshot struct {
	State     OrganismState `json:"state"`
	Sequence  int64         `json:"sequence"`
	RecordedAt time.Time    `json:"recorded_at"`
}
