package marks_test

import (
	"errors"
	"testing"

	"github.com/okian/keiba/internal/domain/marks"
	"github.com/okian/keiba/internal/domain/race"
	. "github.com/smartystreets/goconvey/convey"
)

func TestReconcile(t *testing.T) {
	Convey("Given an extraction with three of five marks", t, func() {
		ex, err := marks.ParseExtraction([]byte(`{"marks":[
			{"mark":"◎","horse_number":7,"confidence":0.97,"candidates":[]},
			{"mark":"▲","horse_number":-1,"confidence":0.4,"candidates":[3,8]},
			{"mark":"☆","horse_number":12,"confidence":null}
		]}`))
		So(err, ShouldBeNil)
		rc := marks.NewReconciler().Reconcile(ex)

		Convey("Then there are exactly five observations in priority order", func() {
			So(len(rc.Observations), ShouldEqual, 5)
			for i, obs := range rc.Observations {
				So(obs.Priority, ShouldEqual, i+1)
			}
		})

		Convey("And missing categories are fully absent", func() {
			taikou := rc.Observations[1]
			So(taikou.Mark, ShouldEqual, "○")
			So(taikou.Horse.Valid, ShouldBeFalse)
			So(taikou.Raw, ShouldBeNil)
			So(taikou.Confidence, ShouldBeNil)
			So(taikou.Candidates, ShouldBeEmpty)
			So(taikou.Review, ShouldBeEmpty)
		})

		Convey("And the unknown sentinel keeps its raw value but no horse", func() {
			tanana := rc.Observations[2]
			So(tanana.Horse.Valid, ShouldBeFalse)
			So(*tanana.Raw, ShouldEqual, marks.UnknownHorse)
			So(tanana.Candidates, ShouldResemble, []int{3, 8})
			So(tanana.Review, ShouldContain, marks.ReasonUnknown)
			So(tanana.Review, ShouldContain, marks.ReasonLowConfidence)
		})

		Convey("And the rank array keeps the five slot shape", func() {
			So(rc.Ranks, ShouldResemble, race.RankArray{race.Horse(7), race.Absent, race.Absent, race.Absent, race.Horse(12)})
			So(rc.NeedsReview, ShouldBeTrue)
		})

		Convey("And a missing confidence is not flagged", func() {
			So(rc.Observations[4].Review, ShouldBeEmpty)
		})
	})

	Convey("Given a confident complete extraction", t, func() {
		ex, _ := marks.ParseExtraction([]byte(`[
			{"mark":"△","horse_number":"４","confidence":0.9},
			{"mark":"◎","horse_number":1,"confidence":0.99},
			{"mark":"〇","horse_number":2,"confidence":0.95},
			{"mark":"▲","horse_number":3,"confidence":0.85},
			{"mark":"☆","horse_number":5,"confidence":0.8}
		]`))
		rc := marks.NewReconciler().Reconcile(ex)

		Convey("Then the output is ordered by mark priority, not input order", func() {
			So(rc.Ranks.Horses(), ShouldResemble, []int{1, 2, 3, 4, 5})
		})

		Convey("And a reading at exactly the threshold is not flagged", func() {
			So(rc.NeedsReview, ShouldBeFalse)
		})
	})

	Convey("Given duplicate categories and a horse read under two marks", t, func() {
		ex, _ := marks.ParseExtraction([]byte(`{"marks":[
			{"mark":"◎","horse_number":6,"confidence":0.7},
			{"mark":"◎","horse_number":9,"confidence":0.95},
			{"mark":"○","horse_number":9,"confidence":0.9},
			{"mark":"×","horse_number":4,"confidence":0.9}
		]}`))
		rc := marks.NewReconciler().Reconcile(ex)

		Convey("Then the more confident reading of a category wins", func() {
			So(rc.Ranks[0], ShouldResemble, race.Horse(9))
		})

		Convey("And the lower mark loses the repeated horse", func() {
			So(rc.Ranks[1].Valid, ShouldBeFalse)
			So(rc.Observations[1].Review, ShouldContain, marks.ReasonDuplicateHorse)
			So(rc.Ranks.Validate(5), ShouldBeNil)
		})

		Convey("And unknown symbols are reported", func() {
			So(rc.Ignored, ShouldResemble, []string{"×"})
		})
	})

	Convey("Given a custom review threshold", t, func() {
		ex, _ := marks.ParseExtraction([]byte(`[{"mark":"◎","horse_number":1,"confidence":0.85}]`))
		rc := marks.NewReconciler(marks.WithReviewConfidence(0.9)).Reconcile(ex)

		Convey("Then readings below it are flagged", func() {
			So(rc.Observations[0].Review, ShouldResemble, []string{marks.ReasonLowConfidence})
		})
	})
}

func TestParseExtraction_Malformed(t *testing.T) {
	bad := []string{
		``,
		`not json`,
		`{"marks":"nope"}`,
		`[{"mark":"◎","horse_number":"abc"}]`,
		`[{"mark":"◎","horse_number":1,"confidence":85}]`,
	}
	for _, b := range bad {
		if _, err := marks.ParseExtraction([]byte(b)); !errors.Is(err, marks.ErrMalformedExtraction) {
			t.Errorf("ParseExtraction(%q): expected ErrMalformedExtraction, got %v", b, err)
		}
	}

	ex, err := marks.ParseExtraction([]byte("```json\n{\"marks\":[{\"mark\":\"◎\",\"horse_number\":\"?\"}]}\n```"))
	if err != nil {
		t.Fatalf("fenced output should parse: %v", err)
	}
	if ex.Marks[0].Horse == nil || *ex.Marks[0].Horse != marks.UnknownHorse {
		t.Errorf("expected \"?\" to decode as the unknown sentinel")
	}
}

func TestAnnotate(t *testing.T) {
	ex, _ := marks.ParseExtraction([]byte(`[
		{"mark":"◎","horse_number":1,"confidence":0.9},
		{"mark":"○","horse_number":2,"confidence":0.6}
	]`))
	a := marks.Annotate("day1/11R.png", marks.NewReconciler().Reconcile(ex))
	if a.MinConfidence == nil || *a.MinConfidence != 0.6 {
		t.Errorf("expected min confidence 0.6, got %v", a.MinConfidence)
	}
	if !a.NeedsReview || len(marks.Flagged(a.Observations)) != 1 {
		t.Errorf("expected exactly one flagged observation")
	}
}

func TestAlternatives(t *testing.T) {
	Convey("Given an uncertain observation with candidates", t, func() {
		ex, _ := marks.ParseExtraction([]byte(`[
			{"mark":"◎","horse_number":1,"confidence":0.99},
			{"mark":"○","horse_number":-1,"candidates":[1,3,8]}
		]`))
		rc := marks.NewReconciler().Reconcile(ex)

		Convey("When enumerating alternatives", func() {
			alts := marks.Alternatives(rc.Observations, 10)

			Convey("Then readings that repeat a horse are skipped", func() {
				So(len(alts), ShouldEqual, 2)
				So(alts[0][1], ShouldResemble, race.Horse(3))
				So(alts[1][1], ShouldResemble, race.Horse(8))
			})
		})

		Convey("When the limit is smaller than the product", func() {
			So(len(marks.Alternatives(rc.Observations, 1)), ShouldEqual, 1)
			So(marks.Alternatives(rc.Observations, 0), ShouldBeNil)
		})
	})
}
