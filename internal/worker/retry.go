package worker

import (
	"math/rand/v2"
	"time"

	"urbanharvest/internal/config"
)

// RetryPolicy schedules sheet task retries. The delay doubles from BaseDelay
// on each attempt up to MaxDelay, then moves by up to ±Jitter of itself so
// tasks failed by the same outage do not come back in lockstep.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64

	// random returns a value in [0, 1); nil means math/rand/v2.
	random func() float64
}

// RetryPolicyFromConfig reads the google.sync section.
func RetryPolicyFromConfig(cfg config.GoogleSyncConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
		Jitter:     cfg.Jitter,
	}.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 5
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(time.Minute, p.BaseDelay)
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Exhausted reports whether a task that just failed its attempt-th run goes
// to the dead letter instead of being rescheduled.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.withDefaults().MaxRetries
}

// Delay is the wait before rerunning a task that failed attempt times.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()

	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	d = min(d, p.MaxDelay)

	if p.Jitter > 0 {
		r := rand.Float64
		if p.random != nil {
			r = p.random
		}
		spread := float64(d) * p.Jitter
		d += time.Duration(spread * (2*r() - 1))
	}
	if d <= 0 {
		return p.BaseDelay
	}
	return d
}
