package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/keiba/internal/adapters/mq/queue"
	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/pkg/logger"
	"github.com/okian/keiba/pkg/metrics"
)

// Default runner configuration constants.
const (
	defaultCapacity = 4096
)

// Source yields the work set of a run.
type Source interface {
	Units(ctx context.Context) ([]queue.Unit, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]queue.Unit, error)

// Units implements Source.
func (f SourceFunc) Units(ctx context.Context) ([]queue.Unit, error) { return f(ctx) }

// Processor turns one unit into an upserted record.
type Processor interface {
	Process(ctx context.Context, u queue.Unit) (race.Record, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, u queue.Unit) (race.Record, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, u queue.Unit) (race.Record, error) {
	return f(ctx, u)
}

// Runner drives one run strictly sequentially.
type Runner struct {
	pacer    Pacer
	capacity int
	logger   logger.Logger
	newID    func() string
}

// NewRunner creates a runner. Without WithPacer it does not wait between units.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		pacer:    NoPacer{},
		capacity: defaultCapacity,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("runner")
	}
	return r
}

// Run acquires the work set from src and hands each unit to proc in order.
//
// A failure of src aborts the run with ErrAcquisition. A failing or panicking
// unit becomes a Skipped result and the run moves on. After every Ok unit that
// is followed by another unit the pacer is consulted. Cancelling ctx stops the
// run after the current unit and returns the context error with the partial
// summary.
func (r *Runner) Run(ctx context.Context, kind string, src Source, proc Processor) (Summary, error) {
	sum := Summary{RunID: r.newID(), Kind: kind}
	ctx = logger.WithFields(ctx, logger.String("run_id", sum.RunID), logger.String("kind", kind))
	start := time.Now()

	units, err := src.Units(ctx)
	if err != nil {
		metrics.RecordRun(kind, "fatal")
		metrics.RecordErrorByComponent("runner", "acquisition")
		r.logger.Error(ctx, "work set acquisition failed", logger.Error(err))
		return sum, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	r.logger.Info(ctx, "run started", logger.Int("units", len(units)))

	q := queue.NewInMemoryQueue(queue.WithCapacity(r.capacity))
	var overflow []Result
	for _, u := range units {
		if u.Kind == "" {
			u.Kind = kind
		}
		if err := q.Enqueue(ctx, u); err != nil {
			if errors.Is(err, queue.ErrDuplicate) {
				r.logger.Warn(ctx, "duplicate unit dropped", logger.String("unit", u.ID))
				continue
			}
			overflow = append(overflow, r.skip(ctx, u, ReasonQueueFull, err))
		}
	}
	_ = q.Close()

	paceNext := false
	for u := range q.Dequeue(ctx) {
		if ctx.Err() != nil {
			break
		}
		if paceNext {
			d, err := r.pacer.Wait(ctx)
			metrics.RecordPacingDelay(float64(d.Milliseconds()))
			if err != nil {
				break
			}
		}
		res := r.runUnit(ctx, proc, u)
		sum.Results = append(sum.Results, res)
		_, paceNext = res.(Ok)
	}
	// Overflow units trail the work set, so they follow every queued unit.
	sum.Results = append(sum.Results, overflow...)

	outcome := "ok"
	runErr := ctx.Err()
	if runErr != nil {
		outcome = "cancelled"
	}
	metrics.RecordRun(kind, outcome)
	r.logger.Info(ctx, "run finished",
		logger.Int("ok", sum.OK()),
		logger.Int("skipped", sum.Skipped()),
		logger.Duration("elapsed", time.Since(start)),
		logger.String("outcome", outcome),
	)
	return sum, runErr
}

// runUnit processes u, converting errors and panics into a Skipped result.
func (r *Runner) runUnit(ctx context.Context, proc Processor, u queue.Unit) (res Result) {
	start := time.Now()
	defer func() {
		metrics.RecordUnitLatency(u.Kind, float64(time.Since(start).Milliseconds()))
	}()
	defer func() {
		if p := recover(); p != nil {
			res = r.skip(ctx, u, ReasonPanic, fmt.Errorf("panic: %v", p))
		}
	}()

	rec, err := proc.Process(ctx, u)
	if err != nil {
		return r.skip(ctx, u, reasonOf(err), err)
	}
	metrics.RecordUnitProcessed(u.Kind)
	r.logger.Debug(ctx, "unit done", logger.String("unit", u.ID), logger.String("race_key", rec.Key.String()))
	return Ok{U: u, Record: rec}
}

func (r *Runner) skip(ctx context.Context, u queue.Unit, reason string, err error) Skipped {
	metrics.RecordUnitSkipped(u.Kind, reason)
	fields := []logger.Field{logger.String("unit", u.ID), logger.String("reason", reason), logger.Error(err)}
	if u.Key != (race.Key{}) {
		fields = append(fields, logger.String("race_key", u.Key.String()))
	}
	r.logger.Error(ctx, "unit skipped", fields...)
	return Skipped{U: u, Reason: reason, Err: err}
}
