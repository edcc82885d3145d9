// Package feedback is the Layer 5 Feedback Buffer: staged reinforcement
// signals awaiting Consolidation (spec.md §4.6). Signals persist across
// restarts in Redis, reusing the teacher's INCR/EXPIRE Lua-script shape
// (otp_rate_limiter_redis.go) repurposed from rate limiting to a durable
// list with a matching expiry so an abandoned buffer self-cleans.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mneme/internal/domain"
)

const (
	bufferKey = "mneme:feedback:buffer"
	// bufferTTL bounds how long an unconsolidated buffer survives; a crash
	// loop that never reaches Consolidation should not accumulate forever.
	bufferTTL = 7 * 24 * time.Hour
	// smoothingWindow is how close in time two signals of the same type
	// must be to be treated as one smoothed observation (spec.md §4.6
	// "temporal smoothing: k comparable signals within a window").
	smoothingWindow = 5 * time.Minute
	smoothingK      = 3
)

// pushScript appends the encoded signal to the list and (re)sets its expiry
// atomically, mirroring redisOTPAllowScript's INCR-then-EXPIRE shape.
const pushScript = `
redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return redis.call("LLEN", KEYS[1])
`

// Buffer is the Redis-backed staging area for FeedbackSignal values.
type Buffer struct {
	client *redis.Client
}

func NewBuffer(client *redis.Client) *Buffer {
	return &Buffer{client: client}
}

// Stage discounts the signal's confidence with uncertaintyDiscount before
// persisting it (spec.md §4.6 "uncertainty discount"): no staged signal
// keeps an extreme confidence, so a single over-confident observation
// cannot swing Consolidation on its own. Confidences below 0.5 are pulled
// up toward 0.5, not lowered further.
func (b *Buffer) Stage(ctx context.Context, signal domain.FeedbackSignal) error {
	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}
	if signal.Timestamp.IsZero() {
		signal.Timestamp = time.Now()
	}
	signal.Confidence = uncertaintyDiscount(signal.Confidence)

	raw, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("feedback: encoding signal: %w", err)
	}

	seconds := int(bufferTTL.Seconds())
	if err := b.client.Eval(ctx, pushScript, []string{bufferKey}, raw, seconds).Err(); err != nil {
		return fmt.Errorf("feedback: staging signal: %w", err)
	}
	return nil
}

// uncertaintyDiscount shrinks the distance from 0.5 (maximal uncertainty)
// by 15%: a signal at confidence 1.0 becomes 0.925, a signal at 0.5 stays at 0.5,
// and everything between is pulled toward uncertainty rather than trusted
// at face value.
func uncertaintyDiscount(confidence float64) float64 {
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return 0.5
	}
	discounted := 0.5 + (confidence-0.5)*0.85
	if discounted < 0 {
		return 0
	}
	if discounted > 1 {
		return 1
	}
	return discounted
}

// Drain removes and returns every staged signal, smoothed by type: spec.md
// §4.6's "offline-only consolidation" means Drain is only ever called from
// internal/consolidation, never from a live reasoning-loop turn.
func (b *Buffer) Drain(ctx context.Context) ([]domain.FeedbackSignal, error) {
	raws, err := b.client.LRange(ctx, bufferKey, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("feedback: reading buffer: %w", err)
	}
	if len(raws) == 0 {
		return nil, nil
	}

	signals := make([]domain.FeedbackSignal, 0, len(raws))
	for _, raw := range raws {
		var s domain.FeedbackSignal
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue // malformed entries are dropped, not fatal to consolidation
		}
		signals = append(signals, s)
	}

	if err := b.client.Del(ctx, bufferKey).Err(); err != nil {
		return nil, fmt.Errorf("feedback: clearing buffer: %w", err)
	}

	return Smooth(signals), nil
}

// Smooth merges groups of smoothingK or more same-type signals that fall
// within smoothingWindow of one another into a single averaged signal, so a
// burst of near-duplicate reactions counts once rather than K times. A
// cluster that never reaches smoothingK is dropped entirely rather than
// passed through: spec.md §4.6 requires a signal to be reinforced by k
// comparable signals within the window before it contributes to slow-tier
// updates at all, so an unreinforced one-off has no standing to move
// Consolidation on its own.
func Smooth(signals []domain.FeedbackSignal) []domain.FeedbackSignal {
	byType := make(map[string][]domain.FeedbackSignal)
	for _, s := range signals {
		byType[s.SignalType] = append(byType[s.SignalType], s)
	}

	var out []domain.FeedbackSignal
	for _, group := range byType {
		sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })

		var cluster []domain.FeedbackSignal
		flush := func() {
			if len(cluster) == 0 {
				return
			}
			if len(cluster) >= smoothingK {
				out = append(out, averageSignals(cluster))
			}
			cluster = nil
		}

		for _, s := range group {
			if len(cluster) > 0 && s.Timestamp.Sub(cluster[len(cluster)-1].Timestamp) > smoothingWindow {
				flush()
			}
			cluster = append(cluster, s)
		}
		flush()
	}
	return out
}

func averageSignals(group []domain.FeedbackSignal) domain.FeedbackSignal {
	var sumConfidence float64
	for _, s := range group {
		sumConfidence += s.Confidence
	}
	avg := group[len(group)-1]
	avg.Confidence = sumConfidence / float64(len(group))
	avg.Content = fmt.Sprintf("%s (smoothed from %d similar signals)", avg.Content, len(group))
	return avg
}
