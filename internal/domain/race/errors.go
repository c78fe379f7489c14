package race

import "errors"

// Sentinel kinds for race model errors.
var (
	ErrInvalidKey   = errors.New("invalid race key")
	ErrUnknownTrack = errors.New("unknown track")
	ErrInvalidRank  = errors.New("invalid rank array")
)
