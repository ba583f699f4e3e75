package ratelimit

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limiter paces outbound probes at a fixed rate. A Limiter built with a
// non-positive rate never blocks.
type Limiter struct {
	limiter *rate.Limiter
	waits   atomic.Int64
}

// Config contains rate limiting configuration
type Config struct {
	// RequestsPerSecond of 0 or less disables pacing.
	RequestsPerSecond float64

	// BurstSize allows brief bursts above the rate limit
	BurstSize int
}

// NewLimiter creates a new rate limiter with the given configuration
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerSecond <= 0 {
		return &Limiter{}
	}
	burst := config.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst),
	}
}

// Enabled reports whether Wait can block.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// Wait blocks until the rate limiter allows the request
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	l.waits.Add(1)
	return l.limiter.Wait(ctx)
}

// GetStats returns current rate limiter statistics
func (l *Limiter) GetStats() Stats {
	if !l.Enabled() {
		return Stats{}
	}
	return Stats{
		RequestsPerSecond: float64(l.limiter.Limit()),
		BurstSize:         l.limiter.Burst(),
		Waits:             l.waits.Load(),
	}
}

// Stats contains rate limiter statistics
type Stats struct {
	RequestsPerSecond float64
	BurstSize         int
	Waits             int64
}
