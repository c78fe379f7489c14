package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("race record not found")
	ErrOrphanRecord = errors.New("orphan record: race key incomplete")
)
