package fetch

import (
	"context"
	"time"
)

// Pacer enforces a minimum delay before every provider call in a run —
// room-list and history calls alike. The delay can be raised when the
// server signals throttling, but never lowered within a run.
type Pacer struct {
	delay time.Duration
}

// NewPacer creates a Pacer with the configured baseline delay.
func NewPacer(delay time.Duration) *Pacer {
	if delay < 0 {
		delay = 0
	}
	return &Pacer{delay: delay}
}

// Wait blocks for the current pacing delay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return waitWithContext(ctx, p.delay)
}

// Raise bumps the pacing delay to d if it is larger than the current one.
func (p *Pacer) Raise(d time.Duration) {
	if d > p.delay {
		p.delay = d
	}
}

// Delay reports the current pacing delay.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
