package crawler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterSettings configures an optional token bucket on top of the fixed delay.
type RateLimiterSettings struct {
	Requests int
	Window   time.Duration
}

// Pacer throttles fetches against the remote API. Every Wait sleeps the full
// delay, whatever happened before, and then takes a token when rate limiting
// is enabled.
type Pacer struct {
	delay   time.Duration
	limiter *rate.Limiter
}

// NewPacer creates a pacer with a fixed per-fetch delay and optional rate limiting.
func NewPacer(delay time.Duration, rateCfg RateLimiterSettings) *Pacer {
	p := &Pacer{delay: delay}
	if rateCfg.Requests > 0 && rateCfg.Window > 0 {
		interval := rateCfg.Window / time.Duration(rateCfg.Requests)
		if interval <= 0 {
			interval = time.Millisecond
		}
		p.limiter = rate.NewLimiter(rate.Every(interval), rateCfg.Requests)
	}
	return p
}

// Delay returns the fixed delay applied before each fetch.
func (p *Pacer) Delay() time.Duration {
	if p == nil {
		return 0
	}
	return p.delay
}

// Wait blocks until the next fetch may start.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
