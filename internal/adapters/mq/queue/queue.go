// Package queue holds the work units of one collection run in FIFO order.
//
// A unit id may be queued once per queue, so a work set listing the same race
// twice is processed once.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 4096
)

// Unit is one item of a work set: a race to collect or an image to read.
type Unit struct {
	// ID is unique within a run, e.g. the race key or the image path.
	ID string
	// Kind names the run the unit belongs to.
	Kind string
	// Key is set for race keyed units.
	Key race.Key
	// Path is set for file backed units.
	Path string
}

// RaceUnit returns a unit identified by key.
func RaceUnit(kind string, key race.Key) Unit {
	return Unit{ID: key.String(), Kind: kind, Key: key}
}

// FileUnit returns a unit identified by path.
func FileUnit(kind, path string) Unit {
	return Unit{ID: path, Kind: kind, Path: path}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a unit to the queue. It fails with ErrDuplicate when the
	// unit id was queued before, ErrFull at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, u Unit) error

	// Dequeue returns a channel that yields units in FIFO order.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Unit

	// Len returns the current number of queued units.
	Len(ctx context.Context) int

	// Close stops accepting units. Queued units remain readable.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	units    chan Unit
	capacity int
	mu       sync.Mutex
	seen     map[string]struct{}
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		seen:     make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.units = make(chan Unit, q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a unit to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, u Unit) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return err
	}
	if _, dup := q.seen[u.ID]; dup {
		metrics.RecordQueueRejected("duplicate")
		return fmt.Errorf("%w: %s", ErrDuplicate, u.ID)
	}

	select {
	case q.units <- u:
		q.seen[u.ID] = struct{}{}
		metrics.UpdateQueueSize(len(q.units))
		return nil
	default:
		metrics.RecordQueueRejected("queue_full")
		return fmt.Errorf("%w: capacity %d", ErrFull, q.capacity)
	}
}

// Dequeue returns a channel that will receive units as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Unit {
	out := make(chan Unit)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-q.units:
				if !ok {
					return
				}
				metrics.UpdateQueueSize(len(q.units))
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued units.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.units)
}

// Close stops accepting units.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.units)
	q.closed = true
	return nil
}
