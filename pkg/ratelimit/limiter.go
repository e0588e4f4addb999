// Package ratelimit implements adaptive request pacing for batch acquisition.
// The delay between attempts shrinks on sustained success and grows on
// failures, with rate-limit pushback from the remote host punished hardest.
// Pacing is a soft constraint: limiter state is never persisted and is
// cold-started on resume.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for pacing.
var (
	pacingDelaySeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidbatch_pacing_delay_seconds",
		Help: "Current adaptive pacing delay in seconds",
	})

	pacingWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbatch_pacing_waits_total",
		Help: "Total number of pacing waits before acquisition attempts",
	})

	pacingDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbatch_pacing_degraded_total",
		Help: "Total number of pacing degradation notices (failure streaks)",
	})
)

// Tuning defaults, matching the behavior the remote hosts tolerate.
const (
	// DefaultInitialDelay is the starting delay between attempts.
	DefaultInitialDelay = 3 * time.Second

	// DefaultMinDelay is the floor the delay can shrink to.
	DefaultMinDelay = 1 * time.Second

	// DefaultMaxDelay is the ceiling the delay can grow to.
	DefaultMaxDelay = 60 * time.Second

	// SuccessStreakThreshold is how many consecutive successes are needed
	// before the delay starts shrinking.
	SuccessStreakThreshold = 10

	// FailureStreakThreshold is the consecutive-failure count at which a
	// degradation notice is emitted, once per streak.
	FailureStreakThreshold = 3

	shrinkFactor          = 0.8
	growthFactorRateLimit = 2.0
	growthFactorGeneric   = 1.5
)

// Config holds limiter configuration.
type Config struct {
	InitialDelay time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration

	// OnDegraded, if set, is invoked when a failure streak reaches the
	// threshold. Called at most once per streak, outside the limiter lock.
	OnDegraded func(streak int, delay time.Duration)
}

// DefaultConfig returns a safe default limiter configuration.
func DefaultConfig() Config {
	return Config{
		InitialDelay: DefaultInitialDelay,
		MinDelay:     DefaultMinDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// State is a point-in-time snapshot of the limiter, for observability.
type State struct {
	Delay         time.Duration `json:"delay"`
	MinDelay      time.Duration `json:"min_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	SuccessStreak int           `json:"success_streak"`
	FailureStreak int           `json:"failure_streak"`
}

// Limiter is the adaptive pacing controller shared by all workers of one
// batch run. All mutations happen under an internal mutex; Wait never holds
// the lock while sleeping.
type Limiter struct {
	mu            sync.Mutex
	delay         time.Duration
	minDelay      time.Duration
	maxDelay      time.Duration
	successStreak int
	failureStreak int

	onDegraded func(streak int, delay time.Duration)
	logger     zerolog.Logger
}

// New creates a limiter scoped to one batch run.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	delay := clamp(cfg.InitialDelay, cfg.MinDelay, cfg.MaxDelay)
	pacingDelaySeconds.Set(delay.Seconds())

	return &Limiter{
		delay:      delay,
		minDelay:   cfg.MinDelay,
		maxDelay:   cfg.MaxDelay,
		onDegraded: cfg.OnDegraded,
		logger:     logger,
	}
}

// Wait blocks the calling worker for the current delay before an attempt
// proceeds. Returns early with the context error if the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	delay := l.delay
	l.mu.Unlock()

	pacingWaitsTotal.Inc()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RecordSuccess registers a successful attempt. After a sustained success
// streak the delay shrinks toward the floor.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.successStreak++
	l.failureStreak = 0

	if l.successStreak > SuccessStreakThreshold && l.delay > l.minDelay {
		l.delay = clamp(time.Duration(float64(l.delay)*shrinkFactor), l.minDelay, l.maxDelay)
		pacingDelaySeconds.Set(l.delay.Seconds())

		l.logger.Debug().
			Dur("delay", l.delay).
			Int("success_streak", l.successStreak).
			Msg("Pacing delay reduced after success streak")
	}
}

// RecordFailure registers a failed attempt. Rate-limit pushback grows the
// delay faster than a generic failure. When the failure streak reaches the
// threshold a degradation notice is emitted exactly once for that streak.
func (l *Limiter) RecordFailure(isRateLimitSignal bool) {
	l.mu.Lock()

	l.failureStreak++
	l.successStreak = 0

	factor := growthFactorGeneric
	if isRateLimitSignal {
		factor = growthFactorRateLimit
	}
	l.delay = clamp(time.Duration(float64(l.delay)*factor), l.minDelay, l.maxDelay)
	pacingDelaySeconds.Set(l.delay.Seconds())

	degraded := l.failureStreak == FailureStreakThreshold
	streak := l.failureStreak
	delay := l.delay

	l.mu.Unlock()

	if degraded {
		pacingDegradedTotal.Inc()
		l.logger.Warn().
			Int("failure_streak", streak).
			Dur("delay", delay).
			Bool("rate_limit_signal", isRateLimitSignal).
			Msg("Pacing degraded - consecutive failures, request interval increased")

		if l.onDegraded != nil {
			l.onDegraded(streak, delay)
		}
	}
}

// Delay returns the current pacing delay.
func (l *Limiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delay
}

// Snapshot returns a copy of the current limiter state.
func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Delay:         l.delay,
		MinDelay:      l.minDelay,
		MaxDelay:      l.maxDelay,
		SuccessStreak: l.successStreak,
		FailureStreak: l.failureStreak,
	}
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
