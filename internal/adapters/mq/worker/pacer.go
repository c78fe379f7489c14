package worker

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer imposes the politeness delay between units.
type Pacer interface {
	// Wait blocks for the next delay or until ctx is done, returning the
	// delay chosen.
	Wait(ctx context.Context) (time.Duration, error)
}

// RandomPacer waits a uniformly random whole number of milliseconds in the
// inclusive range [min, max].
type RandomPacer struct {
	minMS int64
	maxMS int64
	draw  func(n int64) int64
}

// NewRandomPacer returns a pacer over [minMS, maxMS] milliseconds. Bounds are
// swapped when inverted and clamped at zero.
func NewRandomPacer(minMS, maxMS int) *RandomPacer {
	lo, hi := int64(max(minMS, 0)), int64(max(maxMS, 0))
	if hi < lo {
		lo, hi = hi, lo
	}
	return &RandomPacer{minMS: lo, maxMS: hi, draw: rand.Int64N}
}

// Next returns the next delay without waiting.
func (p *RandomPacer) Next() time.Duration {
	ms := p.minMS
	if span := p.maxMS - p.minMS; span > 0 {
		ms += p.draw(span + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

// Wait implements Pacer.
func (p *RandomPacer) Wait(ctx context.Context) (time.Duration, error) {
	d := p.Next()
	if d <= 0 {
		return 0, ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return d, ctx.Err()
	case <-t.C:
		return d, nil
	}
}

// NoPacer never waits.
type NoPacer struct{}

// Wait implements Pacer.
func (NoPacer) Wait(ctx context.Context) (time.Duration, error) { return 0, ctx.Err() }
