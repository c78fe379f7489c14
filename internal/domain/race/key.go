// Package race holds the canonical per-race data model shared by collectors,
// derivation, reconciliation and the entity store.
package race

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key validation bounds.
const (
	dateLayout    = "20060102"
	dateLength    = 8
	minRaceNumber = 1
	maxRaceNumber = 12
)

// TrackCode is the two digit JRA venue code.
type TrackCode string

// Venue describes one racecourse.
type Venue struct {
	Code   TrackCode
	Kanji  string
	Romaji string
}

// venues is the fixed JRA venue table ordered by code.
var venues = []Venue{
	{Code: "01", Kanji: "札幌", Romaji: "sapporo"},
	{Code: "02", Kanji: "函館", Romaji: "hakodate"},
	{Code: "03", Kanji: "福島", Romaji: "fukushima"},
	{Code: "04", Kanji: "新潟", Romaji: "niigata"},
	{Code: "05", Kanji: "東京", Romaji: "tokyo"},
	{Code: "06", Kanji: "中山", Romaji: "nakayama"},
	{Code: "07", Kanji: "中京", Romaji: "chukyo"},
	{Code: "08", Kanji: "京都", Romaji: "kyoto"},
	{Code: "09", Kanji: "阪神", Romaji: "hanshin"},
	{Code: "10", Kanji: "小倉", Romaji: "kokura"},
}

// Venues returns a copy of the venue table.
func Venues() []Venue {
	out := make([]Venue, len(venues))
	copy(out, venues)
	return out
}

// Valid reports whether c is a known venue code.
func (c TrackCode) Valid() bool {
	_, ok := venueByCode(c)
	return ok
}

// Name returns the kanji venue name, or the raw code when unknown.
func (c TrackCode) Name() string {
	if v, ok := venueByCode(c); ok {
		return v.Kanji
	}
	return string(c)
}

func venueByCode(c TrackCode) (Venue, bool) {
	for _, v := range venues {
		if v.Code == c {
			return v, true
		}
	}
	return Venue{}, false
}

// LookupVenue resolves a venue by code, kanji name or romaji name. A trailing
// "競馬場" is ignored so OCR output such as "東京競馬場" resolves.
func LookupVenue(name string) (TrackCode, error) {
	n := strings.TrimSpace(name)
	n = strings.TrimSuffix(n, "競馬場")
	n = strings.TrimSpace(n)
	if len(n) == 1 && n[0] >= '1' && n[0] <= '9' {
		n = "0" + n
	}
	for _, v := range venues {
		if n == string(v.Code) || n == v.Kanji || strings.EqualFold(n, v.Romaji) {
			return v.Code, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTrack, name)
}

// Key identifies one race across all sources.
type Key struct {
	Date   string    `json:"date"`
	Track  TrackCode `json:"track"`
	Number int       `json:"race"`
}

// NewKey builds and validates a key.
func NewKey(date string, track TrackCode, number int) (Key, error) {
	k := Key{Date: date, Track: track, Number: number}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// ValidateDate checks that d is a YYYYMMDD calendar day.
func ValidateDate(d string) error {
	if len(d) != dateLength {
		return fmt.Errorf("%w: date %q must have 8 digits", ErrInvalidKey, d)
	}
	if _, err := time.Parse(dateLayout, d); err != nil {
		return fmt.Errorf("%w: date %q is not a calendar day", ErrInvalidKey, d)
	}
	return nil
}

// Validate checks that every component is present and well formed.
func (k Key) Validate() error {
	if err := ValidateDate(k.Date); err != nil {
		return err
	}
	if !k.Track.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidKey, ErrUnknownTrack, k.Track)
	}
	if k.Number < minRaceNumber || k.Number > maxRaceNumber {
		return fmt.Errorf("%w: race number %d out of range", ErrInvalidKey, k.Number)
	}
	return nil
}

// String renders the key as date-track-number, e.g. "20240526-05-11".
func (k Key) String() string {
	return fmt.Sprintf("%s-%s-%02d", k.Date, k.Track, k.Number)
}

// Less orders keys by date, track and race number.
func (k Key) Less(o Key) bool {
	if k.Date != o.Date {
		return k.Date < o.Date
	}
	if k.Track != o.Track {
		return k.Track < o.Track
	}
	return k.Number < o.Number
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("%w: race number %q", ErrInvalidKey, parts[2])
	}
	return NewKey(parts[0], TrackCode(parts[1]), n)
}
