package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// LLMConfig is the `llm` section (spec.md §6): provider selection and the
// base sampling parameters the Modulation Mapper's output is folded onto.
type LLMConfig struct {
	Provider        string  `env:"PROVIDER" envDefault:"openai"`
	Model           string  `env:"MODEL" envDefault:"gpt-5.1"`
	BaseURL         string  `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`
	APIKey          string  `env:"API_KEY,required"`
	EmbeddingModel  string  `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	BaseMaxTokens   int     `env:"BASE_MAX_TOKENS" envDefault:"512"`
	BaseTemperature float64 `env:"BASE_TEMPERATURE" envDefault:"0.7"`
	BaseTopP        float64 `env:"BASE_TOP_P" envDefault:"0.95"`
}

// OrganismConfig is the `organism` section: clock cadence and integration
// limits for the Dynamics Engine (spec.md §4.1, §5).
type OrganismConfig struct {
	DBPath             string        `env:"DB_PATH" envDefault:"./mneme.db"`
	PersonaDir         string        `env:"PERSONA_DIR" envDefault:"./persona"`
	TickInterval       time.Duration `env:"TICK_INTERVAL" envDefault:"10s"`
	TriggerInterval    time.Duration `env:"TRIGGER_INTERVAL" envDefault:"60s"`
	MaxIntegrationStep time.Duration `env:"MAX_INTEGRATION_STEP" envDefault:"5s"`
	// CatchUpHorizon bounds how much of a large Δt (e.g. after downtime) is
	// ever run through capped sub-stepping; anything older than this is
	// collapsed with a closed-form analytic decay instead (spec.md §4.1).
	CatchUpHorizon time.Duration `env:"CATCH_UP_HORIZON" envDefault:"1h"`
}

// MemoryConfig is the `memory` section (spec.md §4.2).
type MemoryConfig struct {
	EmbeddingModel string  `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	VectorBackend  string  `env:"VECTOR_BACKEND" envDefault:"pgvector"` // pgvector | linear_scan
	RecallK        int     `env:"RECALL_K" envDefault:"5"`
	StrengthFloor  float64 `env:"STRENGTH_FLOOR" envDefault:"0.05"`
}

// SafetyTier is the capability ceiling the Tool Registry enforces
// (spec.md §4.9).
type SafetyTier string

const (
	SafetyTierReadOnly   SafetyTier = "read_only"
	SafetyTierRestricted SafetyTier = "restricted"
	SafetyTierFull       SafetyTier = "full"
)

// SafetyConfig is the `safety` section.
type SafetyConfig struct {
	Tier                SafetyTier `env:"TIER" envDefault:"restricted"`
	RequireConfirmation bool       `env:"REQUIRE_CONFIRMATION" envDefault:"true"`
	PathAllowlist       []string   `env:"PATH_ALLOWLIST" envSeparator:","`
	DomainAllowlist     []string   `env:"DOMAIN_ALLOWLIST" envSeparator:","`
}

// TokenBudgetConfig is the `token_budget` section (spec.md §5, §7 budget
// exhaustion).
type TokenBudgetConfig struct {
	DailyLimit         int     `env:"DAILY_LIMIT" envDefault:"200000"`
	MonthlyLimit       int     `env:"MONTHLY_LIMIT" envDefault:"4000000"`
	DowngradeThreshold float64 `env:"DOWNGRADE_THRESHOLD" envDefault:"0.9"`
}

// ExpressionConfig is the `expression` section governing the chat-adapter
// side of pacing (read delay, typing speed, message splitting, presence).
type ExpressionConfig struct {
	ReadDelayMinMs     int      `env:"READ_DELAY_MIN_MS" envDefault:"400"`
	ReadDelayMaxMs     int      `env:"READ_DELAY_MAX_MS" envDefault:"2500"`
	TypingCPSMin       float64  `env:"TYPING_CPS_MIN" envDefault:"8"`
	TypingCPSMax       float64  `env:"TYPING_CPS_MAX" envDefault:"18"`
	SplitThresholdsRaw []int    `env:"SPLIT_THRESHOLDS" envSeparator:","`
	PresenceSchedule   []string `env:"PRESENCE_SCHEDULE" envSeparator:","` // "HH:MM-HH:MM" windows, local time
}

// ReasoningConfig is the `reasoning` section (spec.md §4.5, §4.9).
type ReasoningConfig struct {
	MaxToolDepth      int `env:"MAX_TOOL_DEPTH" envDefault:"4"`
	ContextBaseBudget int `env:"CONTEXT_BASE_BUDGET" envDefault:"6000"`
}

// ConsolidationConfig is the `consolidation` section (spec.md §4.8): decay
// and promotion tunables for the sleep cycle's five sub-phases.
type ConsolidationConfig struct {
	// EpisodeDecayRate is the per-day exponential decay applied to episode
	// strength, reduced for episodes reinforced by recent recall.
	EpisodeDecayRate float64 `env:"EPISODE_DECAY_RATE" envDefault:"0.02"`
	// FactDecayRate is the per-day exponential decay applied to a semantic
	// fact's confidence, measured since it was last reinforced (inserted or
	// re-observed); slower than EpisodeDecayRate since facts are meant to be
	// durable knowledge, not transient recollections.
	FactDecayRate float64 `env:"FACT_DECAY_RATE" envDefault:"0.005"`
	// RecallReinforcement is how much strength a recalled-during-window
	// episode regains, offsetting its own decay.
	RecallReinforcement float64 `env:"RECALL_REINFORCEMENT" envDefault:"0.05"`
	// SlowShiftThreshold is how far accumulated medium-tier drift must move
	// before a slow-tier variable (core_value_weights, modulation_curves)
	// is promoted; below it, only the medium tier updates.
	SlowShiftThreshold float64 `env:"SLOW_SHIFT_THRESHOLD" envDefault:"0.15"`
	// SelfKnowledgeConfidenceThreshold is the bar an emergent insight's
	// confidence must clear before it is written as a SelfKnowledgeRow.
	SelfKnowledgeConfidenceThreshold float64 `env:"SELF_KNOWLEDGE_CONFIDENCE_THRESHOLD" envDefault:"0.7"`
	// TurningPointThreshold is the |magnitude| a feedback signal's
	// confidence must exceed to be listed as a NarrativeChapter turning
	// point.
	TurningPointThreshold float64 `env:"TURNING_POINT_THRESHOLD" envDefault:"0.75"`
	// CollapseShiftThreshold is the |shift| a period's feedback must exceed,
	// while contradicting the organism's existing narrative_bias, to trigger
	// a Narrative Collapse: a bounded one-time slow-tier restructure instead
	// of the ordinary gradual promotion.
	CollapseShiftThreshold float64 `env:"COLLAPSE_SHIFT_THRESHOLD" envDefault:"0.6"`
}

// TriggerConfig is the `triggers` section (spec.md §4.7): scoring
// thresholds and per-kind cooldowns for the proactive-candidate evaluator.
type TriggerConfig struct {
	MinScore                  float64       `env:"MIN_SCORE" envDefault:"0.55"`
	CooldownScheduledCheckIn  time.Duration `env:"COOLDOWN_SCHEDULED_CHECK_IN" envDefault:"12h"`
	CooldownContentMatch      time.Duration `env:"COOLDOWN_CONTENT_MATCH" envDefault:"2h"`
	CooldownMemoryResurface   time.Duration `env:"COOLDOWN_MEMORY_RESURFACE" envDefault:"6h"`
	CooldownStateDriven       time.Duration `env:"COOLDOWN_STATE_DRIVEN" envDefault:"3h"`
	// ScheduledCheckInAfter is how long since the last interaction before a
	// scheduled check-in candidate starts scoring above zero.
	ScheduledCheckInAfter time.Duration `env:"SCHEDULED_CHECK_IN_AFTER" envDefault:"18h"`
	// MemoryResurfaceMinAge is how long an episode must sit untouched before
	// it is eligible as a resurface candidate.
	MemoryResurfaceMinAge time.Duration `env:"MEMORY_RESURFACE_MIN_AGE" envDefault:"72h"`
	// StateDrivenSocialNeedFloor is the social_need level above which a
	// state-driven candidate starts scoring above zero.
	StateDrivenSocialNeedFloor float64 `env:"STATE_DRIVEN_SOCIAL_NEED_FLOOR" envDefault:"0.6"`
}

// Config centralises Mneme's configuration. Secrets never live in a
// committed file: each leaf comes from an environment variable, optionally
// overridden by a value loaded from the file named by SECRETS_FILE.
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	DatabaseURL   string `env:"DATABASE_URL,required"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	TurnTokenSigningKey string `env:"TURN_TOKEN_SIGNING_KEY,required"`

	LLM         LLMConfig         `envPrefix:"LLM_"`
	Organism    OrganismConfig    `envPrefix:"ORGANISM_"`
	Memory      MemoryConfig      `envPrefix:"MEMORY_"`
	Safety      SafetyConfig      `envPrefix:"SAFETY_"`
	TokenBudget TokenBudgetConfig `envPrefix:"TOKEN_BUDGET_"`
	Expression    ExpressionConfig     `envPrefix:"EXPRESSION_"`
	Reasoning     ReasoningConfig      `envPrefix:"REASONING_"`
	Consolidation ConsolidationConfig  `envPrefix:"CONSOLIDATION_"`
	Trigger       TriggerConfig        `envPrefix:"TRIGGER_"`
}

// Load reads a local .env (if present, for development) then parses the
// full Config from the environment. SECRETS_FILE, when set, is read after
// the environment and its KEY=VALUE lines override anything already
// present — the same "env wins unless a secret file says otherwise"
// posture the teacher's deployment uses for SMTP/LLM credentials.
func Load() (*Config, error) {
	_ = godotenv.Load()

	if path := os.Getenv("SECRETS_FILE"); path != "" {
		if err := applySecretsFile(path); err != nil {
			return nil, fmt.Errorf("config: loading secrets file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func applySecretsFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if err := os.Setenv(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Safety.Tier {
	case SafetyTierReadOnly, SafetyTierRestricted, SafetyTierFull:
	default:
		return fmt.Errorf("safety.tier %q is not one of read_only|restricted|full", c.Safety.Tier)
	}
	if c.Organism.MaxIntegrationStep <= 0 {
		return fmt.Errorf("organism.max_integration_step must be positive")
	}
	if c.Reasoning.MaxToolDepth <= 0 {
		return fmt.Errorf("reasoning.max_tool_depth must be positive")
	}
	return nil
}
