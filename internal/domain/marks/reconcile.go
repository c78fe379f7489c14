package marks

import (
	"github.com/okian/keiba/internal/domain/race"
)

// Reconciliation is the outcome of reconciling one image's marks.
type Reconciliation struct {
	// Observations holds exactly one entry per canonical mark, by priority.
	Observations []race.Observation
	// Ranks projects the observations onto the ai_mark shape.
	Ranks race.RankArray
	// NeedsReview is set when any observation carries a review reason.
	NeedsReview bool
	// Ignored lists raw mark symbols outside the canonical table.
	Ignored []string
}

// Reconciler turns raw extractions into reconciled observations.
type Reconciler struct {
	threshold float64
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithReviewConfidence sets the confidence below which a reading is flagged.
func WithReviewConfidence(threshold float64) Option {
	return func(r *Reconciler) {
		if threshold >= 0 && threshold <= 1 {
			r.threshold = threshold
		}
	}
}

// NewReconciler builds a Reconciler.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{threshold: DefaultReviewConfidence}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile maps the raw items onto the canonical mark table. Categories not
// present in ex are synthesised fully absent; review flags never change the
// mechanical output apart from dropping a horse repeated under a lower mark.
func (r *Reconciler) Reconcile(ex Extraction) Reconciliation {
	var out Reconciliation
	picked := make(map[int]RawMark, len(canonical))
	for _, raw := range ex.Marks {
		m, ok := Lookup(raw.Mark)
		if !ok {
			out.Ignored = append(out.Ignored, raw.Mark)
			continue
		}
		if prev, seen := picked[m.Priority]; seen && confidence(prev) >= confidence(raw) {
			continue
		}
		picked[m.Priority] = raw
	}

	out.Observations = make([]race.Observation, 0, len(canonical))
	used := make(map[int]struct{}, len(canonical))
	for _, m := range canonical {
		obs := race.Observation{Mark: m.Symbol, Priority: m.Priority}
		if raw, ok := picked[m.Priority]; ok {
			obs = r.observe(m, raw)
		}
		if obs.Horse.Valid {
			if _, dup := used[obs.Horse.Horse]; dup {
				obs.Horse = race.Absent
				obs.Review = append(obs.Review, ReasonDuplicateHorse)
			} else {
				used[obs.Horse.Horse] = struct{}{}
			}
		}
		if len(obs.Review) > 0 {
			out.NeedsReview = true
		}
		out.Observations = append(out.Observations, obs)
	}

	out.Ranks = make(race.RankArray, len(out.Observations))
	for i, obs := range out.Observations {
		out.Ranks[i] = obs.Horse
	}
	return out
}

func (r *Reconciler) observe(m Mark, raw RawMark) race.Observation {
	obs := race.Observation{Mark: m.Symbol, Priority: m.Priority}
	if raw.Horse != nil {
		v := *raw.Horse
		obs.Raw = &v
		switch {
		case v == UnknownHorse:
			obs.Review = append(obs.Review, ReasonUnknown)
		case v < 1:
			obs.Review = append(obs.Review, ReasonInvalidNumber)
		default:
			obs.Horse = race.Horse(v)
		}
	}
	if raw.Confidence != nil {
		c := *raw.Confidence
		obs.Confidence = &c
		if c < r.threshold {
			obs.Review = append(obs.Review, ReasonLowConfidence)
		}
	}
	seen := make(map[int]struct{}, len(raw.Candidates))
	for _, h := range raw.Candidates {
		if h < 1 {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		obs.Candidates = append(obs.Candidates, h)
	}
	return obs
}

// confidence orders duplicate readings; a missing confidence ranks lowest.
func confidence(m RawMark) float64 {
	if m.Confidence == nil {
		return -1
	}
	return *m.Confidence
}

// Annotate builds the record annotation for image from a reconciliation.
func Annotate(image string, rc Reconciliation) race.OCRAnnotation {
	a := race.OCRAnnotation{
		Image:        image,
		Observations: rc.Observations,
		NeedsReview:  rc.NeedsReview,
	}
	for _, obs := range rc.Observations {
		if obs.Confidence == nil {
			continue
		}
		if a.MinConfidence == nil || *obs.Confidence < *a.MinConfidence {
			c := *obs.Confidence
			a.MinConfidence = &c
		}
	}
	return a
}

// Flagged returns the observations carrying a review reason.
func Flagged(obs []race.Observation) []race.Observation {
	var out []race.Observation
	for _, o := range obs {
		if len(o.Review) > 0 {
			out = append(out, o)
		}
	}
	return out
}

// Alternatives enumerates alternative ai_mark readings for manual review.
// Flagged observations with candidates contribute each candidate; all others
// keep their reconciled slot. Readings that repeat a horse are skipped and at
// most limit readings are returned.
func Alternatives(obs []race.Observation, limit int) []race.RankArray {
	if limit < 1 {
		return nil
	}
	options := make([][]race.Slot, len(obs))
	for i, o := range obs {
		if len(o.Review) > 0 && len(o.Candidates) > 0 {
			for _, h := range o.Candidates {
				options[i] = append(options[i], race.Horse(h))
			}
			continue
		}
		options[i] = []race.Slot{o.Horse}
	}

	var out []race.RankArray
	cur := make(race.RankArray, len(obs))
	var walk func(i int) bool
	walk = func(i int) bool {
		if i == len(obs) {
			if cur.Validate(len(cur)) == nil {
				out = append(out, cur.Clone())
			}
			return len(out) < limit
		}
		for _, s := range options[i] {
			cur[i] = s
			if !walk(i + 1) {
				return false
			}
		}
		return true
	}
	walk(0)
	return out
}
