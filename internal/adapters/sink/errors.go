package sink

import "errors"

// Sentinel error kinds for this package.
var (
	ErrWrite = errors.New("sink write failed")
	ErrRead  = errors.New("sink read failed")
)
