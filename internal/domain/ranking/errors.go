package ranking

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrUnknownField = errors.New("no policy for rank field")
	ErrBadPolicy    = errors.New("invalid sort policy")
)
