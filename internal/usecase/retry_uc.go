package usecase

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines retry behavior for failed processing attempts
type RetryConfig struct {
	MaxAttempts       int           // Attempts before the transaction is marked FAILED
	InitialDelay      time.Duration // Delay before the second attempt
	MaxDelay          time.Duration // Upper bound for a single backoff
	BackoffMultiplier float64       // Multiplier for exponential backoff
	EnableJitter      bool          // Add up to 10% random jitter to prevent thundering herd
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      2 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// RetryPolicy decides whether a failed attempt is retried and how long the
// item stays invisible before the next delivery.
type RetryPolicy struct {
	cfg    RetryConfig
	random func() float64
}

// NewRetryPolicy fills zero fields from DefaultRetryConfig.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	return &RetryPolicy{cfg: cfg, random: rand.Float64}
}

// MaxAttempts returns the configured attempt bound.
func (p *RetryPolicy) MaxAttempts() int {
	return p.cfg.MaxAttempts
}

// ShouldRetry reports whether another attempt is allowed after attempts have run.
func (p *RetryPolicy) ShouldRetry(attempts int) bool {
	return attempts < p.cfg.MaxAttempts
}

// Backoff returns the delay after the given (1-based) failed attempt:
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay, plus jitter.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	raw := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.BackoffMultiplier, float64(attempt-1))
	delay := p.cfg.MaxDelay
	if raw < float64(p.cfg.MaxDelay) {
		delay = time.Duration(raw)
	}

	if p.cfg.EnableJitter {
		delay += time.Duration(float64(delay) * 0.1 * p.random())
	}

	return delay
}
