package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/pkg/logger"
	"github.com/okian/keiba/pkg/metrics"
)

// MemoryStore is the in-memory, authoritative Store for a run.
//
// Writers are serialised by a single mutex held across merge and persist, so
// the persisted copy of a key never lags a newer in-memory version. Persist
// failures are logged and never fail the upsert.
type MemoryStore struct {
	mu         sync.RWMutex
	byKey      map[race.Key]race.Record
	persister  Persister
	priorities race.Priorities
	logger     logger.Logger
}

// NewMemoryStore constructs an empty store with configuration options.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byKey: make(map[race.Key]race.Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("store")
	}
	return s
}

// Seed loads previously persisted records without re-persisting them.
// Invalid keys are skipped.
func (s *MemoryStore) Seed(ctx context.Context, l Loader) (int, error) {
	recs, err := l.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed store: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range recs {
		if err := rec.Key.Validate(); err != nil {
			s.logger.Warn(ctx, "skipping persisted record with invalid key", logger.String("race_key", rec.Key.String()), logger.Error(err))
			continue
		}
		s.byKey[rec.Key] = rec.Clone()
		n++
	}
	metrics.UpdateStoreRecords(len(s.byKey))
	return n, nil
}

// Upsert implements Store.Upsert.
func (s *MemoryStore) Upsert(ctx context.Context, key race.Key, patch race.Patch) (race.Record, error) {
	start := time.Now()
	defer func() {
		metrics.RecordUpsertLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := key.Validate(); err != nil {
		metrics.RecordErrorByComponent("repository", "orphan")
		return race.Record{}, fmt.Errorf("%w: %w", ErrOrphanRecord, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byKey[key]
	if !ok {
		cur = race.Record{Key: key}
	}
	next, written := race.Merge(cur, patch, s.priorities)
	s.byKey[key] = next
	metrics.RecordUpsert(string(patch.Source), written)
	if !ok {
		metrics.UpdateStoreRecords(len(s.byKey))
	}

	if s.persister != nil {
		if err := s.persister.Persist(ctx, next); err != nil {
			metrics.RecordPersistError()
			s.logger.Warn(ctx, "persist failed; keeping in-memory record",
				logger.String("race_key", key.String()),
				logger.Error(err),
			)
		}
	}
	return next.Clone(), nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, key race.Key) (race.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byKey[key]
	if !ok {
		return race.Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return rec.Clone(), nil
}

// All implements Store.All.
func (s *MemoryStore) All(ctx context.Context) []race.Record {
	return s.collect(func(race.Key) bool { return true })
}

// ByDate implements Store.ByDate.
func (s *MemoryStore) ByDate(ctx context.Context, date string) []race.Record {
	return s.collect(func(k race.Key) bool { return k.Date == date })
}

// Dates implements Store.Dates.
func (s *MemoryStore) Dates(ctx context.Context) []string {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for k := range s.byKey {
		seen[k.Date] = struct{}{}
	}
	s.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Count implements Store.Count.
func (s *MemoryStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

func (s *MemoryStore) collect(match func(race.Key) bool) []race.Record {
	s.mu.RLock()
	out := make([]race.Record, 0, len(s.byKey))
	for k, rec := range s.byKey {
		if match(k) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}
