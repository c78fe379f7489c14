package collector

import "errors"

// Sentinel error kinds shared by collectors.
var (
	ErrDecode      = errors.New("collector output malformed")
	ErrNoData      = errors.New("no data for unit")
	ErrKeyMismatch = errors.New("collector returned another race")
)
