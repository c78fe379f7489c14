package marks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/okian/keiba/internal/domain/race"
)

// RawMark is one item returned by the marks vision call.
type RawMark struct {
	Mark       string   `json:"mark"`
	Horse      *int     `json:"horse_number"`
	Confidence *float64 `json:"confidence"`
	Candidates []int    `json:"candidates"`
}

// UnmarshalJSON accepts a horse number given as a number, a numeric string,
// "?" for the unknown sentinel, or null.
func (m *RawMark) UnmarshalJSON(b []byte) error {
	var aux struct {
		Mark       string          `json:"mark"`
		Horse      json.RawMessage `json:"horse_number"`
		Confidence *float64        `json:"confidence"`
		Candidates []int           `json:"candidates"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	horse, err := parseHorse(aux.Horse)
	if err != nil {
		return err
	}
	*m = RawMark{Mark: aux.Mark, Horse: horse, Confidence: aux.Confidence, Candidates: aux.Candidates}
	return nil
}

func parseHorse(raw json.RawMessage) (*int, error) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(t, &n); err == nil {
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(t, &s); err != nil {
		return nil, fmt.Errorf("horse_number %s", t)
	}
	s = strings.TrimSpace(normalizeDigits(s))
	if s == "" {
		return nil, nil
	}
	if s == "?" || s == "？" {
		u := UnknownHorse
		return &u, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("horse_number %q", s)
	}
	return &n, nil
}

// Extraction is the parsed output of the marks vision call.
type Extraction struct {
	Marks []RawMark `json:"marks"`
}

// ParseExtraction decodes the marks call output. It accepts an object with a
// "marks" array or a bare array, optionally wrapped in a markdown code fence.
func ParseExtraction(b []byte) (Extraction, error) {
	body := trimFence(b)
	var ex Extraction
	switch {
	case len(body) == 0:
		return Extraction{}, fmt.Errorf("%w: empty response", ErrMalformedExtraction)
	case body[0] == '[':
		if err := json.Unmarshal(body, &ex.Marks); err != nil {
			return Extraction{}, fmt.Errorf("%w: %w", ErrMalformedExtraction, err)
		}
	default:
		if err := json.Unmarshal(body, &ex); err != nil {
			return Extraction{}, fmt.Errorf("%w: %w", ErrMalformedExtraction, err)
		}
	}
	for i, m := range ex.Marks {
		if m.Confidence != nil && (*m.Confidence < 0 || *m.Confidence > 1) {
			return Extraction{}, fmt.Errorf("%w: item %d confidence %v outside [0,1]", ErrMalformedExtraction, i, *m.Confidence)
		}
	}
	return ex, nil
}

// RawMetadata is the output of the race metadata vision call.
type RawMetadata struct {
	Date       string          `json:"date"`
	Venue      string          `json:"venue"`
	RaceNumber json.RawMessage `json:"race_number"`
}

var (
	dateExpr   = regexp.MustCompile(`^(\d{4})\D{0,1}(\d{1,2})\D{0,1}(\d{1,2})\D{0,1}$`)
	numberExpr = regexp.MustCompile(`\d+`)
)

// ParseMetadata decodes the metadata call output into a race key.
func ParseMetadata(b []byte) (race.Key, error) {
	var md RawMetadata
	if err := json.Unmarshal(trimFence(b), &md); err != nil {
		return race.Key{}, fmt.Errorf("%w: %w", ErrMalformedMetadata, err)
	}
	date, err := NormalizeDate(md.Date)
	if err != nil {
		return race.Key{}, err
	}
	track, err := race.LookupVenue(md.Venue)
	if err != nil {
		return race.Key{}, fmt.Errorf("%w: %w", ErrMalformedMetadata, err)
	}
	n, err := parseRaceNumber(md.RaceNumber)
	if err != nil {
		return race.Key{}, err
	}
	k, err := race.NewKey(date, track, n)
	if err != nil {
		return race.Key{}, fmt.Errorf("%w: %w", ErrMalformedMetadata, err)
	}
	return k, nil
}

// NormalizeDate converts YYYYMMDD, YYYY-MM-DD, YYYY/MM/DD and YYYY年M月D日
// (including full-width digits) into YYYYMMDD.
func NormalizeDate(s string) (string, error) {
	m := dateExpr.FindStringSubmatch(strings.TrimSpace(normalizeDigits(s)))
	if m == nil {
		return "", fmt.Errorf("%w: date %q", ErrMalformedMetadata, s)
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return fmt.Sprintf("%s%02d%02d", m[1], month, day), nil
}

func parseRaceNumber(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: race_number %s", ErrMalformedMetadata, raw)
	}
	d := numberExpr.FindString(normalizeDigits(s))
	if d == "" {
		return 0, fmt.Errorf("%w: race_number %q", ErrMalformedMetadata, s)
	}
	n, _ = strconv.Atoi(d)
	return n, nil
}

// normalizeDigits maps full-width digits onto ASCII.
func normalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return '0' + (r - '０')
		}
		return r
	}, s)
}

// trimFence strips surrounding whitespace and a markdown code fence.
func trimFence(b []byte) []byte {
	t := bytes.TrimSpace(b)
	if !bytes.HasPrefix(t, []byte("```")) {
		return t
	}
	t = t[3:]
	if i := bytes.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	}
	t = bytes.TrimSuffix(bytes.TrimSpace(t), []byte("```"))
	return bytes.TrimSpace(t)
}
