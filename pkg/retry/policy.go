// Package retry classifies acquisition failures and computes per-item backoff.
// It is pure policy: no I/O, no shared state, safe for concurrent use.
package retry

import (
	"strings"
	"time"
)

// Classification is the verdict for a single failed attempt.
type Classification string

const (
	// Retryable marks transient failures worth another attempt.
	Retryable Classification = "retryable"

	// Terminal marks failures that retrying cannot fix.
	Terminal Classification = "terminal"
)

// retryableSignals are matched case-insensitively against the error text.
// Anything that matches none of them is terminal.
var retryableSignals = []string{
	"timeout",
	"network",
	"503",
	"rate limit",
	"rate-limit",
	"429",
}

// rateLimitSignals identify the subset of retryable failures that mean the
// remote host is pushing back on request pace specifically.
var rateLimitSignals = []string{
	"rate limit",
	"rate-limit",
	"429",
}

// Policy holds the retry configuration for one batch run.
type Policy struct {
	// MaxAttempts is the attempt budget per item, including the first attempt.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff clamps the computed backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential growth factor between retries.
	BackoffMultiplier float64
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Classify decides whether a failed attempt may be retried based on the
// error text. A nil error classifies as retryable by convention but callers
// only consult Classify for failures.
func (p Policy) Classify(err error) Classification {
	if err == nil {
		return Retryable
	}
	text := strings.ToLower(err.Error())
	for _, signal := range retryableSignals {
		if strings.Contains(text, signal) {
			return Retryable
		}
	}
	return Terminal
}

// IsRateLimitSignal reports whether the failure looks like remote pacing
// pushback, which the rate limiter punishes harder than a generic failure.
func (p Policy) IsRateLimitSignal(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, signal := range rateLimitSignals {
		if strings.Contains(text, signal) {
			return true
		}
	}
	return false
}

// Backoff returns the delay before retry number attemptIndex (0-based: the
// delay between the first failure and the second attempt is Backoff(0)).
// This spacing is per item and composes with the batch-wide pacing delay.
func (p Policy) Backoff(attemptIndex int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attemptIndex; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}
