// Package worker runs the work units of a collection run one at a time, pacing
// between units and isolating unit failures from the rest of the run.
package worker

import (
	"github.com/okian/keiba/pkg/logger"
)

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithPacer sets the delay policy between successful units.
func WithPacer(p Pacer) Option {
	return func(r *Runner) {
		if p != nil {
			r.pacer = p
		}
	}
}

// WithCapacity bounds the number of units accepted from one work set.
func WithCapacity(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRunIDs sets the generator of run ids.
func WithRunIDs(next func() string) Option {
	return func(r *Runner) {
		if next != nil {
			r.newID = next
		}
	}
}
