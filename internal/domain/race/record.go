package race

import "slices"

// Source names the collector that wrote a field.
type Source string

// Known sources.
const (
	SourceAnalytics Source = "analytics"
	SourceMarks     Source = "marks"
	SourceEngine    Source = "engine"
	SourceOCR       Source = "ocr"
	SourceStore     Source = "store"
)

// Field names recorded in Record.Provenance. Rank fields use "ranks.<field>".
const (
	FieldRaceName = "race_name"
	FieldSurface  = "surface"
	FieldDistance = "distance"
	FieldEngine   = "engine"
	FieldOCR      = "ocr"
	FieldResult   = "result"
)

// RankFieldName returns the provenance name of a rank field.
func RankFieldName(f RankField) string { return "ranks." + string(f) }

// EnginePrediction is the third-party prediction object, merged wholesale.
type EnginePrediction struct {
	Picks   RankArray `json:"picks"`
	Grade   string    `json:"grade,omitempty"`
	Comment string    `json:"comment,omitempty"`
}

// Observation is the reconciled reading of one OCR mark category.
type Observation struct {
	Mark       string   `json:"mark"`
	Priority   int      `json:"priority"`
	Horse      Slot     `json:"horse"`
	Raw        *int     `json:"raw,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Candidates []int    `json:"candidates,omitempty"`
	Review     []string `json:"review,omitempty"`
}

// OCRAnnotation records how the ai_mark field was read from an image.
type OCRAnnotation struct {
	Image         string        `json:"image"`
	Observations  []Observation `json:"observations"`
	NeedsReview   bool          `json:"needs_review"`
	MinConfidence *float64      `json:"min_confidence,omitempty"`
}

// Clone returns a copy sharing no pointers or slices with o.
func (o Observation) Clone() Observation {
	out := o
	if o.Raw != nil {
		v := *o.Raw
		out.Raw = &v
	}
	if o.Confidence != nil {
		v := *o.Confidence
		out.Confidence = &v
	}
	out.Candidates = slices.Clone(o.Candidates)
	out.Review = slices.Clone(o.Review)
	return out
}

// Clone returns a deep copy of a.
func (a *OCRAnnotation) Clone() *OCRAnnotation {
	if a == nil {
		return nil
	}
	out := *a
	if a.Observations != nil {
		out.Observations = make([]Observation, len(a.Observations))
		for i, o := range a.Observations {
			out.Observations[i] = o.Clone()
		}
	}
	if a.MinConfidence != nil {
		v := *a.MinConfidence
		out.MinConfidence = &v
	}
	return &out
}

// Result is the settled finishing order.
type Result struct {
	Finish RankArray `json:"finish"`
}

// Record is the canonical merged entity for one race.
type Record struct {
	Key        Key                     `json:"key"`
	RaceName   *string                 `json:"race_name,omitempty"`
	Surface    *string                 `json:"surface,omitempty"`
	Distance   *int                    `json:"distance,omitempty"`
	Ranks      map[RankField]RankArray `json:"ranks,omitempty"`
	Engine     *EnginePrediction       `json:"engine,omitempty"`
	OCR        *OCRAnnotation          `json:"ocr,omitempty"`
	Result     *Result                 `json:"result,omitempty"`
	Provenance map[string]Source       `json:"provenance,omitempty"`
}

// Patch is a partial Record written by one collector. Nil fields and rank
// fields missing from Ranks are left untouched by a merge.
type Patch struct {
	Source   Source
	RaceName *string
	Surface  *string
	Distance *int
	Ranks    map[RankField]RankArray
	Engine   *EnginePrediction
	OCR      *OCRAnnotation
	Result   *Result
}

// Empty reports whether the patch carries no fields.
func (p Patch) Empty() bool {
	return p.RaceName == nil && p.Surface == nil && p.Distance == nil &&
		len(p.Ranks) == 0 && p.Engine == nil && p.OCR == nil && p.Result == nil
}

// SetRank adds a rank field to the patch.
func (p *Patch) SetRank(f RankField, a RankArray) {
	if p.Ranks == nil {
		p.Ranks = make(map[RankField]RankArray)
	}
	p.Ranks[f] = a
}

// Priorities ranks sources for merge conflicts. Missing sources rank 0.
type Priorities map[Source]int

// Clone returns a copy whose maps and rank arrays are not shared with r.
func (r Record) Clone() Record {
	out := r
	if r.Ranks != nil {
		out.Ranks = make(map[RankField]RankArray, len(r.Ranks))
		for f, a := range r.Ranks {
			out.Ranks[f] = a.Clone()
		}
	}
	if r.Provenance != nil {
		out.Provenance = make(map[string]Source, len(r.Provenance))
		for k, v := range r.Provenance {
			out.Provenance[k] = v
		}
	}
	if r.Engine != nil {
		e := *r.Engine
		e.Picks = r.Engine.Picks.Clone()
		out.Engine = &e
	}
	out.OCR = r.OCR.Clone()
	if r.Result != nil {
		res := Result{Finish: r.Result.Finish.Clone()}
		out.Result = &res
	}
	return out
}

// Merge overlays p onto cur and returns the new record with the number of
// fields written. A field is written when no writer is recorded for it, or
// when p.Source ranks at least as high as the recorded writer. Arrays are
// replaced wholesale.
func Merge(cur Record, p Patch, prio Priorities) (Record, int) {
	out := cur.Clone()
	if out.Provenance == nil {
		out.Provenance = make(map[string]Source)
	}
	written := 0
	wins := func(field string) bool {
		prev, ok := out.Provenance[field]
		if ok && prio[p.Source] < prio[prev] {
			return false
		}
		out.Provenance[field] = p.Source
		written++
		return true
	}

	if p.RaceName != nil && wins(FieldRaceName) {
		v := *p.RaceName
		out.RaceName = &v
	}
	if p.Surface != nil && wins(FieldSurface) {
		v := *p.Surface
		out.Surface = &v
	}
	if p.Distance != nil && wins(FieldDistance) {
		v := *p.Distance
		out.Distance = &v
	}
	for f, a := range p.Ranks {
		if !wins(RankFieldName(f)) {
			continue
		}
		if out.Ranks == nil {
			out.Ranks = make(map[RankField]RankArray)
		}
		out.Ranks[f] = a.Clone()
	}
	if p.Engine != nil && wins(FieldEngine) {
		e := *p.Engine
		e.Picks = p.Engine.Picks.Clone()
		out.Engine = &e
	}
	if p.OCR != nil && wins(FieldOCR) {
		out.OCR = p.OCR.Clone()
	}
	if p.Result != nil && wins(FieldResult) {
		res := Result{Finish: p.Result.Finish.Clone()}
		out.Result = &res
	}
	if len(out.Provenance) == 0 {
		out.Provenance = nil
	}
	return out, written
}
