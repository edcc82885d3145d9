// Package clock is the Layer 1 Clock & Dispatcher: it ticks the Dynamics
// Engine at a fixed cadence and runs scheduled trigger evaluation on a
// second, independent cadence. It does not poll perception adapters and does
// not schedule or coordinate consolidation passes.
package clock

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// TickFunc advances the organism by one step. dt is wall-clock elapsed time
// since the previous tick, passed through uncapped; the Dynamics Engine
// sub-steps it against its own integration cap.
type TickFunc func(ctx context.Context, dt time.Duration) error

// TriggerFunc evaluates proactive trigger candidates.
type TriggerFunc func(ctx context.Context) error

// Dispatcher drives the tick and trigger loops on independent cadences. Both
// loops serialise through the same mutex-free ordering contract: Tick always
// acquires the organism's exclusive lock itself (internal/organism), so the
// Dispatcher only needs to guarantee it never calls Tick concurrently with
// itself, which the single ticker goroutine already ensures.
type Dispatcher struct {
	log *zap.Logger

	tickInterval    time.Duration
	triggerInterval time.Duration
	jitterFraction  float64

	onTick    TickFunc
	onTrigger TriggerFunc

	lastTick time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithJitter bounds tick/trigger cadence jitter as a fraction of the
// interval (0 disables jitter), avoiding a thundering-herd across multiple
// organism instances sharing a deployment.
func WithJitter(fraction float64) Option {
	return func(d *Dispatcher) { d.jitterFraction = fraction }
}

func New(log *zap.Logger, tickInterval, triggerInterval time.Duration, onTick TickFunc, onTrigger TriggerFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:             log,
		tickInterval:    tickInterval,
		triggerInterval: triggerInterval,
		onTick:          onTick,
		onTrigger:       onTrigger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) jittered(base time.Duration) time.Duration {
	if d.jitterFraction <= 0 {
		return base
	}
	spread := float64(base) * d.jitterFraction
	delta := (rand.Float64()*2 - 1) * spread
	return base + time.Duration(delta)
}

// Run blocks until ctx is cancelled, driving both loops. It is the daemon's
// main event source (cmd/organismd).
func (d *Dispatcher) Run(ctx context.Context) {
	go d.runTicks(ctx)
	go d.runTriggers(ctx)
	<-ctx.Done()
}

func (d *Dispatcher) runTicks(ctx context.Context) {
	d.lastTick = time.Now()
	timer := time.NewTimer(d.jittered(d.tickInterval))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			dt := now.Sub(d.lastTick)
			d.lastTick = now
			if err := d.onTick(ctx, dt); err != nil {
				d.log.Error("clock: tick failed", zap.Error(err))
			}
			timer.Reset(d.jittered(d.tickInterval))
		}
	}
}

func (d *Dispatcher) runTriggers(ctx context.Context) {
	timer := time.NewTimer(d.jittered(d.triggerInterval))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := d.onTrigger(ctx); err != nil {
				d.log.Error("clock: trigger evaluation failed", zap.Error(err))
			}
			timer.Reset(d.jittered(d.triggerInterval))
		}
	}
}

// SinceLastTick returns the wall-clock gap since lastSeen (0 if now is
// earlier). The reasoning loop uses it before each event's stimulus to hand
// the Dynamics Engine the time since the last recorded state update, a
// single large Δt after downtime (spec.md §4.1 "analytic catch-up for large
// Δt after downtime");
// the engine itself sub-steps this internally against its integration cap,
// the Dispatcher never replays individual missed ticks.
func SinceLastTick(lastSeen, now time.Time) time.Duration {
	if now.Before(lastSeen) {
		return 0
	}
	return now.Sub(lastSeen)
}
