package ranking

import (
	"sort"

	"github.com/okian/keiba/internal/domain/race"
)

// Row is one horse's signals within one raw table.
type Row struct {
	Horse   int            `json:"horse"`
	Signals map[string]int `json:"signals"`
}

// Tables maps raw table names to their rows.
type Tables map[string][]Row

// SelectTable returns the rows of the first non-empty table in prefs.
func SelectTable(tables Tables, prefs []string) []Row {
	for _, name := range prefs {
		if rows := tables[name]; len(rows) > 0 {
			return rows
		}
	}
	return nil
}

// compare orders a before b under keys. A missing signal sorts after any
// present value regardless of direction.
func compare(a, b Row, keys []SortKey) int {
	for _, k := range keys {
		av, aok := a.Signals[k.Signal]
		bv, bok := b.Signals[k.Signal]
		switch {
		case !aok && !bok:
			continue
		case !aok:
			return 1
		case !bok:
			return -1
		case av == bv:
			continue
		}
		if (av < bv) == (k.Dir == Ascending) {
			return -1
		}
		return 1
	}
	return 0
}

// resolve drops rows without a positive horse number and repeated horses,
// keeping the first occurrence.
func resolve(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	seen := make(map[int]struct{}, len(rows))
	for _, r := range rows {
		if r.Horse < 1 {
			continue
		}
		if _, dup := seen[r.Horse]; dup {
			continue
		}
		seen[r.Horse] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Order applies the cascade to rows and returns horse numbers, most favoured
// first. Final ties keep input order.
func Order(rows []Row, keys []SortKey) []int {
	rs := resolve(rows)
	sort.SliceStable(rs, func(i, j int) bool {
		return compare(rs[i], rs[j], keys) < 0
	})
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Horse
	}
	return out
}

// Derive turns rows into the policy's rank array. ok is false when fewer than
// MinLen horses resolve; the field should then be omitted.
func Derive(rows []Row, p Policy) (race.RankArray, bool) {
	horses := Order(rows, p.Keys)
	if len(horses) > p.MaxLen {
		horses = horses[:p.MaxLen]
	}
	if len(horses) < p.MinLen {
		return nil, false
	}
	return race.Pad(p.MaxLen, horses...), true
}

// DeriveFrom selects the policy's preferred table and derives from it.
func DeriveFrom(tables Tables, p Policy) (race.RankArray, bool) {
	return Derive(SelectTable(tables, p.Tables), p)
}

// DeriveAll applies every policy to tables. Fields below their minimum are
// returned in omitted.
func DeriveAll(tables Tables) (ranks map[race.RankField]race.RankArray, omitted []race.RankField) {
	ranks = make(map[race.RankField]race.RankArray)
	for _, p := range policies {
		if a, ok := DeriveFrom(tables, p); ok {
			ranks[p.Field] = a
			continue
		}
		omitted = append(omitted, p.Field)
	}
	return ranks, omitted
}
