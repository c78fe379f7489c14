// Package marks reconciles machine-read prediction marks into the ai_mark
// rank field, tracking uncertainty for manual review.
package marks

import (
	"strings"
)

// UnknownHorse is the value a vision call reports when a mark is present but
// its horse number could not be read.
const UnknownHorse = -1

// DefaultReviewConfidence is the confidence below which a reading is flagged.
const DefaultReviewConfidence = 0.8

// Review reasons attached to observations.
const (
	ReasonUnknown        = "unknown_sentinel"
	ReasonLowConfidence  = "low_confidence"
	ReasonInvalidNumber  = "invalid_number"
	ReasonDuplicateHorse = "duplicate_horse"
)

// Mark is one canonical prediction mark with its fixed priority.
type Mark struct {
	Symbol   string
	Name     string
	Priority int
}

// canonical is the fixed mark table, priority 1 first.
var canonical = []Mark{
	{Symbol: "◎", Name: "honmei", Priority: 1},
	{Symbol: "○", Name: "taikou", Priority: 2},
	{Symbol: "▲", Name: "tanana", Priority: 3},
	{Symbol: "△", Name: "renka", Priority: 4},
	{Symbol: "☆", Name: "hoshi", Priority: 5},
}

// aliases maps look-alike glyphs OCR tends to return onto canonical symbols.
var aliases = map[string]string{
	"◯": "○",
	"〇": "○",
	"▵": "△",
	"★": "☆",
	"◉": "◎",
}

// Count is the number of canonical marks.
func Count() int { return len(canonical) }

// Canonical returns the mark table in priority order.
func Canonical() []Mark {
	out := make([]Mark, len(canonical))
	copy(out, canonical)
	return out
}

// Lookup resolves a symbol or mark name to its canonical mark.
func Lookup(symbol string) (Mark, bool) {
	s := strings.TrimSpace(symbol)
	if a, ok := aliases[s]; ok {
		s = a
	}
	for _, m := range canonical {
		if s == m.Symbol || strings.EqualFold(s, m.Name) {
			return m, true
		}
	}
	return Mark{}, false
}
