// Package vision reads race metadata and prediction marks from images. Each
// image takes two independent calls; both return JSON text that the marks
// package parses.
package vision

import (
	"context"
	"errors"
)

// Sentinel error kinds for vision calls.
var (
	ErrNoAPIKey = errors.New("vision api key is required")
	ErrEmpty    = errors.New("vision call returned no text")
)

// Image is one prediction image.
type Image struct {
	Path string
	Data []byte
	MIME string
}

// Extractor performs the two vision calls for an image.
type Extractor interface {
	// Metadata returns {"date","venue","race_number"} for the race shown.
	Metadata(ctx context.Context, img Image) ([]byte, error)

	// Marks returns {"marks":[{"mark","horse_number","confidence","candidates"}]}.
	Marks(ctx context.Context, img Image) ([]byte, error)
}
