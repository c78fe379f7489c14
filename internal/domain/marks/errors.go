package marks

import "errors"

// Sentinel kinds for mark reconciliation errors.
var (
	ErrMalformedExtraction = errors.New("malformed mark extraction")
	ErrMalformedMetadata   = errors.New("malformed race metadata")
)
