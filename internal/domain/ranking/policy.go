// Package ranking derives fixed-shape rank arrays from per-horse signal tables
// using declarative cascading sort policies.
package ranking

import (
	"fmt"

	"github.com/okian/keiba/internal/domain/race"
)

// Direction orders one sort key.
type Direction int

// Sort directions.
const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SortKey is one step of a cascade.
type SortKey struct {
	Signal string
	Dir    Direction
}

// Asc and Desc build sort keys.
func Asc(signal string) SortKey  { return SortKey{Signal: signal, Dir: Ascending} }
func Desc(signal string) SortKey { return SortKey{Signal: signal, Dir: Descending} }

// Policy declares how one rank field is derived. Tables lists the raw tables
// in preference order; the first non-empty one is used. Results shorter than
// MinLen are discarded, the rest are truncated and padded to MaxLen.
type Policy struct {
	Field  race.RankField
	Tables []string
	Keys   []SortKey
	MaxLen int
	MinLen int
}

// Validate checks the policy is self consistent.
func (p Policy) Validate() error {
	switch {
	case len(p.Tables) == 0:
		return fmt.Errorf("%w: %s has no tables", ErrBadPolicy, p.Field)
	case len(p.Keys) == 0:
		return fmt.Errorf("%w: %s has no keys", ErrBadPolicy, p.Field)
	case p.MaxLen < 1:
		return fmt.Errorf("%w: %s max length %d", ErrBadPolicy, p.Field, p.MaxLen)
	case p.MinLen < 1 || p.MinLen > p.MaxLen:
		return fmt.Errorf("%w: %s min length %d", ErrBadPolicy, p.Field, p.MinLen)
	}
	return nil
}

// Raw table names produced by the race sheet collectors.
const (
	TableConsensus  = "consensus"
	TableBestTime   = "best_time"
	TableClosing    = "closing_speed"
	TableBiasRight  = "course_bias_right"
	TableBiasLeft   = "course_bias_left"
	TablePopularity = "popularity"
	TableTimeIndex  = "time_index"
	TableTraining   = "training"
)

// Signal names carried by rows.
const (
	SignalOrder       = "order"
	SignalHonmeiRank  = "honmei_rank"
	SignalTaikouRank  = "taikou_rank"
	SignalTananaRank  = "tanana_rank"
	SignalRenkaRank   = "renka_rank"
	SignalHonmeiCount = "honmei_count"
	SignalTaikouCount = "taikou_count"
	SignalTananaCount = "tanana_count"
	SignalRenkaCount  = "renka_count"
	SignalPopularity  = "popularity"
	SignalIndex       = "index"
	SignalGrade       = "grade"
)

// policies is the per-category tie-break table.
var policies = []Policy{
	{
		Field:  race.ConsensusMark,
		Tables: []string{TableConsensus},
		Keys: []SortKey{
			Asc(SignalHonmeiRank), Asc(SignalTaikouRank), Asc(SignalTananaRank), Asc(SignalRenkaRank),
			Desc(SignalHonmeiCount), Desc(SignalTaikouCount), Desc(SignalTananaCount), Desc(SignalRenkaCount),
		},
		MaxLen: 8,
		MinLen: 3,
	},
	{Field: race.BestTime, Tables: []string{TableBestTime}, Keys: []SortKey{Asc(SignalOrder)}, MaxLen: 3, MinLen: 1},
	{Field: race.ClosingSpeed, Tables: []string{TableClosing}, Keys: []SortKey{Asc(SignalOrder)}, MaxLen: 3, MinLen: 1},
	{Field: race.CourseBias, Tables: []string{TableBiasRight, TableBiasLeft}, Keys: []SortKey{Asc(SignalOrder)}, MaxLen: 3, MinLen: 3},
	{Field: race.Popularity, Tables: []string{TablePopularity}, Keys: []SortKey{Asc(SignalPopularity)}, MaxLen: 5, MinLen: 1},
	{Field: race.TimeIndex, Tables: []string{TableTimeIndex}, Keys: []SortKey{Desc(SignalIndex), Asc(SignalOrder)}, MaxLen: 5, MinLen: 3},
	{Field: race.Training, Tables: []string{TableTraining}, Keys: []SortKey{Asc(SignalGrade), Asc(SignalOrder)}, MaxLen: 3, MinLen: 1},
}

// Policies returns the derivation policies in declaration order.
func Policies() []Policy {
	out := make([]Policy, len(policies))
	copy(out, policies)
	return out
}

// Lookup returns the policy for f.
func Lookup(f race.RankField) (Policy, error) {
	for _, p := range policies {
		if p.Field == f {
			return p, nil
		}
	}
	return Policy{}, fmt.Errorf("%w: %s", ErrUnknownField, f)
}
