// Package triggers is the Layer 11 Trigger Evaluator (spec.md §4.7):
// periodically produces candidate proactive events, scores them, and
// filters the survivors by presence schedule, per-kind cooldown, and a
// token budget gate before admitting the single highest-scoring candidate.
//
// Grounded on the teacher's goal_service.go (DetermineNextGoal): that
// function picks one domain.Goal from an ordered chain of heuristic
// if-checks over profile/analysis state. Evaluate generalises the same
// heuristic-scoring idea from "one ordered fallback chain" to "several
// independently scored candidates, highest admissible wins", since
// spec.md names four distinct candidate kinds that can all fire in the
// same tick rather than a single mutually-exclusive goal. Cooldowns reuse
// feedback.Buffer's Redis SET-with-expiry shape (itself adapted from the
// teacher's otp_rate_limiter_redis.go).
package triggers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mneme/internal/config"
	"mneme/internal/domain"
	"mneme/internal/memory"
)

// BudgetChecker reports whether the token budget has room left for a
// proactive turn (spec.md §5's "budget exhaustion ... skips it"). Kept as
// a narrow interface, satisfied by internal/budget, so this package never
// needs to import budget accounting directly.
type BudgetChecker interface {
	Admit(ctx context.Context) (bool, error)
}

// ContentMatch is one perception item already scored against the
// organism's interest graph by the caller. spec.md §6 models perception
// adapters as an external interface this package does not itself
// implement; Evaluate only ranks and gates whatever the caller supplies.
type ContentMatch struct {
	Score  float64
	Reason string
}

// Input is everything Evaluate needs to produce one cycle's candidates.
type Input struct {
	State             domain.OrganismState
	LastInteractionAt time.Time
	ContentMatches    []ContentMatch
}

const cooldownKeyPrefix = "mneme:trigger:cooldown:"

// Evaluator holds the dependencies the candidate generators and the
// cooldown/presence/budget gates read from.
type Evaluator struct {
	Episodes memory.EpisodicRepository
	Redis    *redis.Client
	Budget   BudgetChecker
	Config   config.TriggerConfig
	Presence []presenceWindow
	Log      *zap.Logger

	now func() time.Time
}

func New(episodes memory.EpisodicRepository, redisClient *redis.Client, budget BudgetChecker, cfg config.TriggerConfig, presenceSchedule []string, log *zap.Logger) *Evaluator {
	windows, bad := parsePresenceSchedule(presenceSchedule)
	for _, b := range bad {
		log.Warn("triggers: ignoring malformed presence window", zap.String("window", b))
	}
	return &Evaluator{
		Episodes: episodes,
		Redis:    redisClient,
		Budget:   budget,
		Config:   cfg,
		Presence: windows,
		Log:      log,
		now:      time.Now,
	}
}

// Evaluate runs every candidate generator, discards anything below the
// presence/cooldown/budget gates, and returns the single highest-scoring
// survivor, or nil if none clears the bar. On success it immediately sets
// the winning kind's cooldown so the same kind of event cannot re-fire
// until it expires.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*domain.TriggerCandidate, error) {
	now := e.now()
	inWindow := e.withinPresence(now)

	candidates, err := e.gather(ctx, now, in)
	if err != nil {
		return nil, fmt.Errorf("triggers: gathering candidates: %w", err)
	}

	admitted, err := e.Budget.Admit(ctx)
	if err != nil {
		return nil, fmt.Errorf("triggers: checking budget: %w", err)
	}
	if !admitted {
		e.Log.Info("triggers: budget exhausted, skipping cycle")
		return nil, nil
	}

	var best *domain.TriggerCandidate
	for i := range candidates {
		c := &candidates[i]
		if c.Score < e.Config.MinScore {
			continue
		}
		if !inWindow && c.Kind != domain.TriggerStateDriven {
			// State-driven candidates (e.g. acute social_need) are allowed
			// to override an otherwise-quiet presence window; every other
			// kind waits for one.
			continue
		}
		onCooldown, err := e.onCooldown(ctx, c.Kind)
		if err != nil {
			return nil, fmt.Errorf("triggers: checking cooldown: %w", err)
		}
		if onCooldown {
			continue
		}
		if best == nil || c.Score > best.Score {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}

	if err := e.setCooldown(ctx, best.Kind); err != nil {
		return nil, fmt.Errorf("triggers: setting cooldown: %w", err)
	}
	return best, nil
}

func (e *Evaluator) gather(ctx context.Context, now time.Time, in Input) ([]domain.TriggerCandidate, error) {
	var out []domain.TriggerCandidate
	if c := scheduledCheckIn(now, in.LastInteractionAt, e.Config.ScheduledCheckInAfter); c != nil {
		out = append(out, *c)
	}
	if c := stateDriven(now, in.State, e.Config.StateDrivenSocialNeedFloor); c != nil {
		out = append(out, *c)
	}
	for _, m := range in.ContentMatches {
		out = append(out, domain.TriggerCandidate{
			Kind:        domain.TriggerContentMatch,
			Score:       m.Score,
			Reason:      m.Reason,
			GeneratedAt: now,
		})
	}
	if e.Episodes != nil {
		episodes, err := e.Episodes.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading episodes: %w", err)
		}
		if c := memoryResurface(now, episodes, e.Config.MemoryResurfaceMinAge); c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

// scheduledCheckIn scores a check-in candidate that rises linearly past
// the configured silence threshold and saturates at 1.0 after twice that
// long — a plain threshold ramp, matching goal_service.go's own style of
// simple threshold checks rather than a continuous decay curve; nothing
// in the corpus models check-in urgency with anything more elaborate.
func scheduledCheckIn(now, lastInteraction time.Time, after time.Duration) *domain.TriggerCandidate {
	if lastInteraction.IsZero() || after <= 0 {
		return nil
	}
	silence := now.Sub(lastInteraction)
	if silence < after {
		return nil
	}
	score := float64(silence-after) / float64(after)
	if score > 1 {
		score = 1
	}
	return &domain.TriggerCandidate{
		Kind:        domain.TriggerScheduledCheckIn,
		Score:       score,
		Reason:      fmt.Sprintf("no interaction for %s", silence.Round(time.Minute)),
		GeneratedAt: now,
	}
}

// stateDriven scores a candidate from acute social_need, the only fast-tier
// scalar spec.md §4.7 names as a direct trigger input.
func stateDriven(now time.Time, state domain.OrganismState, floor float64) *domain.TriggerCandidate {
	need := state.Fast.SocialNeed
	if need <= floor {
		return nil
	}
	score := (need - floor) / (1 - floor)
	if score > 1 {
		score = 1
	}
	return &domain.TriggerCandidate{
		Kind:        domain.TriggerStateDriven,
		Score:       score,
		Reason:      fmt.Sprintf("social_need %.2f above floor %.2f", need, floor),
		GeneratedAt: now,
	}
}

// memoryResurface picks the single highest-scoring episode old enough to
// qualify, scoring it by strength times age/(2*minimum age), the age factor
// capped at 1 (past double the minimum, age no longer adds score — an old
// memory doesn't get more resurfaceable forever).
func memoryResurface(now time.Time, episodes []domain.Episode, minAge time.Duration) *domain.TriggerCandidate {
	var best *domain.Episode
	var bestScore float64
	for i := range episodes {
		ep := &episodes[i]
		age := now.Sub(ep.CreatedAt)
		if age < minAge {
			continue
		}
		ageFactor := float64(age) / float64(2*minAge)
		if ageFactor > 1 {
			ageFactor = 1
		}
		score := ep.Strength * ageFactor
		if best == nil || score > bestScore {
			best = ep
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	return &domain.TriggerCandidate{
		Kind:        domain.TriggerMemoryResurface,
		Score:       bestScore,
		Reason:      "high-strength episode untouched for a long period",
		EpisodeID:   best.ID,
		GeneratedAt: now,
	}
}

type presenceWindow struct {
	start time.Duration // minutes-of-day offset since midnight
	end   time.Duration
}

func parsePresenceSchedule(raw []string) (windows []presenceWindow, malformed []string) {
	for _, w := range raw {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		parts := strings.SplitN(w, "-", 2)
		if len(parts) != 2 {
			malformed = append(malformed, w)
			continue
		}
		start, ok1 := parseClock(parts[0])
		end, ok2 := parseClock(parts[1])
		if !ok1 || !ok2 {
			malformed = append(malformed, w)
			continue
		}
		windows = append(windows, presenceWindow{start: start, end: end})
	}
	return windows, malformed
}

func parseClock(hhmm string) (time.Duration, bool) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, true
}

// withinPresence reports whether now falls inside any configured window.
// An empty schedule means "always present" — no restriction configured.
func (e *Evaluator) withinPresence(now time.Time) bool {
	if len(e.Presence) == 0 {
		return true
	}
	sinceMidnight := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute
	for _, w := range e.Presence {
		if w.start <= w.end {
			if sinceMidnight >= w.start && sinceMidnight < w.end {
				return true
			}
		} else {
			// window wraps midnight, e.g. 22:00-06:00
			if sinceMidnight >= w.start || sinceMidnight < w.end {
				return true
			}
		}
	}
	return false
}

func (e *Evaluator) onCooldown(ctx context.Context, kind domain.TriggerKind) (bool, error) {
	n, err := e.Redis.Exists(ctx, cooldownKeyPrefix+string(kind)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (e *Evaluator) setCooldown(ctx context.Context, kind domain.TriggerKind) error {
	return e.Redis.Set(ctx, cooldownKeyPrefix+string(kind), "1", e.cooldownFor(kind)).Err()
}

func (e *Evaluator) cooldownFor(kind domain.TriggerKind) time.Duration {
	switch kind {
	case domain.TriggerScheduledCheckIn:
		return e.Config.CooldownScheduledCheckIn
	case domain.TriggerContentMatch:
		return e.Config.CooldownContentMatch
	case domain.TriggerMemoryResurface:
		return e.Config.CooldownMemoryResurface
	case domain.TriggerStateDriven:
		return e.Config.CooldownStateDriven
	default:
		return time.Hour
	}
}
