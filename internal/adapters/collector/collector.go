// Package collector defines the boundary shapes that race collectors return
// and decoders for their JSON form.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/internal/domain/ranking"
)

// Sheet is the output of one upstream site for one race: metadata plus the
// raw per-horse tables rank fields are derived from.
type Sheet struct {
	Source   race.Source    `json:"source,omitempty"`
	Key      race.Key       `json:"key"`
	RaceName *string        `json:"race_name,omitempty"`
	Surface  *string        `json:"surface,omitempty"`
	Distance *int           `json:"distance,omitempty"`
	Tables   ranking.Tables `json:"tables,omitempty"`
	Result   *race.Result   `json:"result,omitempty"` // settled finishing order
}

// Collector acquires work sets and per-race data from upstream sources.
type Collector interface {
	// Races lists the races held on date. A failure is run-fatal.
	Races(ctx context.Context, date string) ([]race.Key, error)

	// Sheets returns one sheet per upstream site for key.
	Sheets(ctx context.Context, key race.Key) ([]Sheet, error)

	// Prediction returns the third-party engine prediction for key.
	Prediction(ctx context.Context, key race.Key) (race.EnginePrediction, error)
}

// wireKey accepts {"date","track","race"} with the track given either as a
// venue code or a venue name.
type wireKey struct {
	Date  string `json:"date"`
	Track string `json:"track"`
	Venue string `json:"venue"`
	Race  int    `json:"race"`
}

func (w wireKey) key() (race.Key, error) {
	name := w.Track
	if name == "" {
		name = w.Venue
	}
	track, err := race.LookupVenue(name)
	if err != nil {
		return race.Key{}, err
	}
	return race.NewKey(w.Date, track, w.Race)
}

// DecodeKeys parses a race list: an array whose items are key strings
// ("20240526-05-11") or key objects.
func DecodeKeys(b []byte) ([]race.Key, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("%w: race list: %w", ErrDecode, err)
	}
	keys := make([]race.Key, 0, len(items))
	for i, item := range items {
		k, err := decodeKey(item)
		if err != nil {
			return nil, fmt.Errorf("%w: race list item %d: %w", ErrDecode, i, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func decodeKey(b json.RawMessage) (race.Key, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return race.Key{}, err
		}
		return race.ParseKey(s)
	}
	var w wireKey
	if err := json.Unmarshal(b, &w); err != nil {
		return race.Key{}, err
	}
	return w.key()
}

// DecodeSheets parses one sheet object or an array of sheets for key. Sheets
// without a key take key; sheets without a source take def. A sheet naming
// another race fails with ErrKeyMismatch.
func DecodeSheets(b []byte, key race.Key, def race.Source) ([]Sheet, error) {
	b = bytes.TrimSpace(b)
	var sheets []Sheet
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &sheets); err != nil {
			return nil, fmt.Errorf("%w: sheets: %w", ErrDecode, err)
		}
	} else {
		var s Sheet
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, fmt.Errorf("%w: sheet: %w", ErrDecode, err)
		}
		sheets = []Sheet{s}
	}
	for i := range sheets {
		if sheets[i].Key == (race.Key{}) {
			sheets[i].Key = key
		}
		if sheets[i].Key != key {
			return nil, fmt.Errorf("%w: asked %s, got %s", ErrKeyMismatch, key, sheets[i].Key)
		}
		if sheets[i].Source == "" {
			sheets[i].Source = def
		}
	}
	return sheets, nil
}

// DecodePrediction parses an engine prediction. Picks are padded to the
// engine's fixed length.
func DecodePrediction(b []byte) (race.EnginePrediction, error) {
	var p race.EnginePrediction
	if err := json.Unmarshal(b, &p); err != nil {
		return race.EnginePrediction{}, fmt.Errorf("%w: prediction: %w", ErrDecode, err)
	}
	if len(p.Picks) > race.EnginePicks {
		return race.EnginePrediction{}, fmt.Errorf("%w: %d engine picks", ErrDecode, len(p.Picks))
	}
	for len(p.Picks) < race.EnginePicks {
		p.Picks = append(p.Picks, race.Absent)
	}
	if err := p.Picks.Validate(race.EnginePicks); err != nil {
		return race.EnginePrediction{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return p, nil
}
