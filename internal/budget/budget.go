// Package budget accounts LLM token spend against the daily/monthly caps
// spec.md §5 names ("Token spend is accounted after each LLM call against
// a daily/monthly budget; budget exhaustion downgrades the next candidate
// to a cheaper path ... or skips it").
//
// Grounded on feedback.Buffer's Redis persistence shape, itself adapted
// from the teacher's otp_rate_limiter_redis.go: that file's
// INCR-then-conditionally-EXPIRE Lua script becomes Spend's
// INCRBY-then-EXPIRE script, generalised from "count requests in a fixed
// rolling window" to "accumulate token spend against a calendar day/month,
// re-expiring at the boundary on every write".
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mneme/internal/config"
)

const (
	dailyKeyPrefix   = "mneme:budget:daily:"
	monthlyKeyPrefix = "mneme:budget:monthly:"
)

// spendScript mirrors redisOTPAllowScript's INCR-then-EXPIRE shape, widened
// to INCRBY so a single LLM call's token count is added in one round trip.
const spendScript = `
local current = redis.call("INCRBY", KEYS[1], ARGV[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return current
`

// Status is a snapshot of current spend against both caps.
type Status struct {
	DailyUsed            int
	DailyLimit           int
	MonthlyUsed          int
	MonthlyLimit         int
	DowngradeRecommended bool
	Exhausted            bool
}

// Tracker accounts token spend in Redis, keyed by calendar day and month so
// usage resets naturally without a background sweep.
type Tracker struct {
	client *redis.Client
	config config.TokenBudgetConfig
	now    func() time.Time
}

func New(client *redis.Client, cfg config.TokenBudgetConfig) *Tracker {
	return &Tracker{client: client, config: cfg, now: time.Now}
}

// Spend records tokens spent by a just-completed LLM call against both the
// daily and monthly counters.
func (t *Tracker) Spend(ctx context.Context, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	now := t.now().UTC()

	dailyKey := dailyKeyPrefix + now.Format("2006-01-02")
	dailyTTL := int(secondsUntil(now, endOfDay(now)))
	if err := t.client.Eval(ctx, spendScript, []string{dailyKey}, tokens, dailyTTL).Err(); err != nil {
		return fmt.Errorf("budget: recording daily spend: %w", err)
	}

	monthlyKey := monthlyKeyPrefix + now.Format("2006-01")
	monthlyTTL := int(secondsUntil(now, endOfMonth(now)))
	if err := t.client.Eval(ctx, spendScript, []string{monthlyKey}, tokens, monthlyTTL).Err(); err != nil {
		return fmt.Errorf("budget: recording monthly spend: %w", err)
	}
	return nil
}

// Status reports current usage against both caps and whether usage has
// crossed the downgrade threshold or the hard limit itself.
func (t *Tracker) Status(ctx context.Context) (Status, error) {
	now := t.now().UTC()

	daily, err := t.readCounter(ctx, dailyKeyPrefix+now.Format("2006-01-02"))
	if err != nil {
		return Status{}, fmt.Errorf("budget: reading daily usage: %w", err)
	}
	monthly, err := t.readCounter(ctx, monthlyKeyPrefix+now.Format("2006-01"))
	if err != nil {
		return Status{}, fmt.Errorf("budget: reading monthly usage: %w", err)
	}

	s := Status{
		DailyUsed:    daily,
		DailyLimit:   t.config.DailyLimit,
		MonthlyUsed:  monthly,
		MonthlyLimit: t.config.MonthlyLimit,
	}
	s.Exhausted = overLimit(daily, t.config.DailyLimit) || overLimit(monthly, t.config.MonthlyLimit)
	s.DowngradeRecommended = s.Exhausted ||
		fractionUsed(daily, t.config.DailyLimit) >= t.config.DowngradeThreshold ||
		fractionUsed(monthly, t.config.MonthlyLimit) >= t.config.DowngradeThreshold
	return s, nil
}

// Admit implements triggers.BudgetChecker: a proactive candidate is only
// admitted while the budget is not yet exhausted.
func (t *Tracker) Admit(ctx context.Context) (bool, error) {
	status, err := t.Status(ctx)
	if err != nil {
		return false, err
	}
	return !status.Exhausted, nil
}

func (t *Tracker) readCounter(ctx context.Context, key string) (int, error) {
	v, err := t.client.Get(ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

func overLimit(used, limit int) bool {
	return limit > 0 && used >= limit
}

func fractionUsed(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit)
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

func endOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	firstOfNext := time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.Add(-time.Second)
}

func secondsUntil(now, target time.Time) int64 {
	d := target.Sub(now)
	if d < time.Second {
		return 60 // never let a key expire immediately; the boundary itself rolls to a fresh key next write
	}
	return int64(d.Seconds())
}
