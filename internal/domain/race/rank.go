package race

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Slot is one position of a RankArray. An absent slot is distinct from horse 0.
type Slot struct {
	Horse int
	Valid bool
}

// Horse returns a present slot for horse number n.
func Horse(n int) Slot { return Slot{Horse: n, Valid: true} }

// Absent is the empty slot.
var Absent = Slot{}

// MarshalJSON encodes an absent slot as null.
func (s Slot) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Horse)
}

// UnmarshalJSON decodes a horse number or null.
func (s *Slot) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*s = Absent
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: slot %s", ErrInvalidRank, b)
	}
	*s = Horse(n)
	return nil
}

// RankArray is an order significant sequence of horse numbers, most favoured
// first, right padded with absent slots up to the field's fixed length.
type RankArray []Slot

// Pad builds a RankArray of exactly size slots from horses. Extra horses are
// dropped; missing positions are absent.
func Pad(size int, horses ...int) RankArray {
	out := make(RankArray, size)
	for i := 0; i < size && i < len(horses); i++ {
		out[i] = Horse(horses[i])
	}
	return out
}

// Horses returns the present horse numbers in order.
func (a RankArray) Horses() []int {
	out := make([]int, 0, len(a))
	for _, s := range a {
		if s.Valid {
			out = append(out, s.Horse)
		}
	}
	return out
}

// Filled returns the number of present slots.
func (a RankArray) Filled() int {
	n := 0
	for _, s := range a {
		if s.Valid {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (a RankArray) Clone() RankArray {
	if a == nil {
		return nil
	}
	out := make(RankArray, len(a))
	copy(out, a)
	return out
}

// Validate checks that present slots hold positive, distinct horse numbers and
// that the array is exactly size slots long.
func (a RankArray) Validate(size int) error {
	if len(a) != size {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidRank, len(a), size)
	}
	seen := make(map[int]struct{}, len(a))
	for i, s := range a {
		if !s.Valid {
			continue
		}
		if s.Horse < 1 {
			return fmt.Errorf("%w: slot %d holds %d", ErrInvalidRank, i, s.Horse)
		}
		if _, dup := seen[s.Horse]; dup {
			return fmt.Errorf("%w: horse %d repeated", ErrInvalidRank, s.Horse)
		}
		seen[s.Horse] = struct{}{}
	}
	return nil
}

// RankField names one rank array of a Record.
type RankField string

// Rank fields carried by a Record.
const (
	ConsensusMark RankField = "consensus_mark"
	BestTime      RankField = "best_time"
	ClosingSpeed  RankField = "closing_speed"
	CourseBias    RankField = "course_bias"
	Popularity    RankField = "popularity"
	TimeIndex     RankField = "time_index"
	Training      RankField = "training"
	AIMark        RankField = "ai_mark"
)

// EnginePicks is the length of the third-party engine's pick array.
const EnginePicks = 5

// fieldSizes holds the fixed slot count of every rank field.
var fieldSizes = map[RankField]int{
	ConsensusMark: 8,
	BestTime:      3,
	ClosingSpeed:  3,
	CourseBias:    3,
	Popularity:    5,
	TimeIndex:     5,
	Training:      3,
	AIMark:        5,
}

// Size returns the fixed length of f, or 0 when f is unknown.
func (f RankField) Size() int { return fieldSizes[f] }

// Valid reports whether f is a known rank field.
func (f RankField) Valid() bool { return fieldSizes[f] > 0 }

// RankFields lists every rank field in a stable order.
func RankFields() []RankField {
	return []RankField{ConsensusMark, BestTime, ClosingSpeed, CourseBias, Popularity, TimeIndex, Training, AIMark}
}
