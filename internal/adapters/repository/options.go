package repository

import (
	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/pkg/logger"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithPersister sets the durable sink written on every upsert.
func WithPersister(p Persister) Option {
	return func(s *MemoryStore) {
		if p != nil {
			s.persister = p
		}
	}
}

// WithPriorities sets per-source merge priorities. Without it every source
// ranks equally and the last writer wins.
func WithPriorities(prio race.Priorities) Option {
	return func(s *MemoryStore) {
		s.priorities = make(race.Priorities, len(prio))
		for src, p := range prio {
			s.priorities[src] = p
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}
