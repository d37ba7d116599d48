// Package pacing spaces out successive page fetches. Pages are walked
// strictly in sequence, so a simple delay with jitter between fetches is
// enough; there is no concurrent rate to shape.
package pacing

import (
	"context"
	"math/rand"
	"time"
)

// Pacer sleeps a base delay plus random jitter between operations.
// The zero delay Pacer never blocks.
type Pacer struct {
	delay  time.Duration
	jitter float64 // 0.0 to 1.0, fraction of delay
}

// New creates a Pacer. jitter is clamped to [0, 1].
func New(delay time.Duration, jitter float64) *Pacer {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Pacer{delay: delay, jitter: jitter}
}

// Wait blocks for the configured delay, randomized by +/- jitter, or until
// the context is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.delay <= 0 {
		return nil
	}

	d := p.delay
	if p.jitter > 0 {
		// random factor in [-1, 1]
		f := rand.Float64()*2 - 1
		d += time.Duration(float64(p.delay) * p.jitter * f)
	}
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
