// Package retry computes backoff delays for redelivery attempts
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// jitterFraction bounds the random perturbation to +/-10% of the computed delay
const jitterFraction = 0.1

// Policy describes how delays grow between attempts
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultPolicy is the backoff used by the delivery queue when nothing else is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Minute,
		Multiplier:  2,
		Jitter:      true,
	}
}

// Strategy evaluates a Policy with a pluggable random source
type Strategy struct {
	policy Policy
	random func() float64
}

// NewStrategy builds a Strategy; a nil random falls back to math/rand/v2
func NewStrategy(policy Policy, random func() float64) *Strategy {
	if random == nil {
		random = rand.Float64
	}
	return &Strategy{policy: policy, random: random}
}

func (s *Strategy) Policy() Policy { return s.policy }

// Delay returns the wait before the given attempt (1-based)
func (s *Strategy) Delay(attempt int) time.Duration {
	return calculate(attempt, s.policy, s.random)
}

// ShouldRetry reports whether another attempt is allowed after attempt
func (s *Strategy) ShouldRetry(attempt int) bool {
	return attempt < s.policy.MaxAttempts
}

// CalculateDelay is base * multiplier^(attempt-1) capped at MaxDelay, optionally jittered.
// The result is never above MaxDelay and never below one millisecond.
func CalculateDelay(attempt int, policy Policy) time.Duration {
	return calculate(attempt, policy, rand.Float64)
}

func calculate(attempt int, p Policy, random func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	raw := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && (raw > float64(p.MaxDelay) || math.IsInf(raw, 1)) {
		raw = float64(p.MaxDelay)
	}

	if p.Jitter {
		raw *= 1 - jitterFraction + 2*jitterFraction*random()
		if p.MaxDelay > 0 && raw > float64(p.MaxDelay) {
			raw = float64(p.MaxDelay)
		}
	}

	delay := time.Duration(raw).Truncate(time.Millisecond)
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	return delay
}
