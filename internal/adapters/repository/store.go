// Package repository holds the entity store that merges collector output into
// one canonical record per race.
package repository

import (
	"context"

	"github.com/okian/keiba/internal/domain/race"
)

// Store provides read/write access to the per-race records of one run.
type Store interface {
	// Upsert merges patch into the record for key, creating it when absent,
	// and persists the affected record. Only an invalid key is an error.
	Upsert(ctx context.Context, key race.Key, patch race.Patch) (race.Record, error)

	// Get returns the record for key.
	// Returns ErrNotFound if no collector has written the key.
	Get(ctx context.Context, key race.Key) (race.Record, error)

	// All returns every record ordered by key.
	All(ctx context.Context) []race.Record

	// ByDate returns the records of one race day ordered by key.
	ByDate(ctx context.Context, date string) []race.Record

	// Dates returns the race days held, ascending.
	Dates(ctx context.Context) []string

	// Count returns the number of records held.
	Count(ctx context.Context) int
}

// Persister writes one record to durable storage.
type Persister interface {
	Persist(ctx context.Context, rec race.Record) error
}

// Loader reads previously persisted records.
type Loader interface {
	LoadAll(ctx context.Context) ([]race.Record, error)
}
