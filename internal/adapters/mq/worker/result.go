package worker

import (
	"github.com/okian/keiba/internal/adapters/mq/queue"
	"github.com/okian/keiba/internal/domain/race"
)

// Result is the outcome of one unit: either Ok or Skipped.
type Result interface {
	Unit() queue.Unit
	isResult()
}

// Ok is a unit that produced a record.
type Ok struct {
	U      queue.Unit
	Record race.Record
}

// Skipped is a unit that failed locally and was passed over.
type Skipped struct {
	U      queue.Unit
	Reason string
	Err    error
}

func (r Ok) Unit() queue.Unit      { return r.U }
func (r Skipped) Unit() queue.Unit { return r.U }
func (Ok) isResult()               {}
func (Skipped) isResult()          {}

// Summary describes a finished run. Results follow work-set order; duplicate
// units are absent.
type Summary struct {
	RunID   string
	Kind    string
	Results []Result
}

// OK returns the number of units that produced a record.
func (s Summary) OK() int {
	n := 0
	for _, r := range s.Results {
		if _, ok := r.(Ok); ok {
			n++
		}
	}
	return n
}

// Skipped returns the number of units passed over.
func (s Summary) Skipped() int { return len(s.Results) - s.OK() }

// Records returns the records of the Ok units in processing order.
func (s Summary) Records() []race.Record {
	var out []race.Record
	for _, r := range s.Results {
		if ok, isOk := r.(Ok); isOk {
			out = append(out, ok.Record)
		}
	}
	return out
}

// Dates returns the distinct race days touched by Ok units, in first-seen order.
func (s Summary) Dates() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range s.Records() {
		if rec.Key.Date == "" {
			continue
		}
		if !seen[rec.Key.Date] {
			seen[rec.Key.Date] = true
			out = append(out, rec.Key.Date)
		}
	}
	return out
}
