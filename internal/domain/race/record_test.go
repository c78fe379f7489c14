package race_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/keiba/internal/domain/race"
	. "github.com/smartystreets/goconvey/convey"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

var testKey = race.Key{Date: "20240526", Track: "05", Number: 11}

func TestMerge(t *testing.T) {
	Convey("Given an empty record and two patches", t, func() {
		base := race.Record{Key: testKey}
		a := race.Patch{Source: race.SourceAnalytics, RaceName: strPtr("東京優駿"), Distance: intPtr(2400)}
		a.SetRank(race.BestTime, race.Pad(3, 4, 7))
		b := race.Patch{Source: race.SourceMarks, Surface: strPtr("芝")}
		b.SetRank(race.ConsensusMark, race.Pad(8, 1, 2, 3))

		Convey("When the patches touch disjoint fields", func() {
			ab, _ := race.Merge(base, a, nil)
			ab, _ = race.Merge(ab, b, nil)
			ba, _ := race.Merge(base, b, nil)
			ba, _ = race.Merge(ba, a, nil)

			Convey("Then the order of application does not matter", func() {
				So(cmp.Diff(ab, ba), ShouldBeEmpty)
			})
		})

		Convey("When the patches overlap", func() {
			b.RaceName = strPtr("日本ダービー")
			b.SetRank(race.BestTime, race.Pad(3, 9))
			got, _ := race.Merge(base, a, nil)
			got, _ = race.Merge(got, b, nil)

			Convey("Then the last writer wins and the array is replaced wholesale", func() {
				So(*got.RaceName, ShouldEqual, "日本ダービー")
				So(got.Ranks[race.BestTime].Horses(), ShouldResemble, []int{9})
				So(got.Provenance[race.FieldRaceName], ShouldEqual, race.SourceMarks)
			})

			Convey("And fields only the first patch set are preserved", func() {
				So(*got.Distance, ShouldEqual, 2400)
			})
		})

		Convey("When priorities rank the earlier writer higher", func() {
			prio := race.Priorities{race.SourceAnalytics: 2, race.SourceMarks: 1}
			b.RaceName = strPtr("日本ダービー")
			got, _ := race.Merge(base, a, prio)
			got, n := race.Merge(got, b, prio)

			Convey("Then the lower ranked source cannot overwrite", func() {
				So(*got.RaceName, ShouldEqual, "東京優駿")
				So(n, ShouldEqual, 2) // surface and consensus_mark only
			})
		})

		Convey("When the merged record does not alias the patch", func() {
			got, _ := race.Merge(base, a, nil)
			a.Ranks[race.BestTime][0] = race.Horse(99)

			Convey("Then later patch mutation is not visible", func() {
				So(got.Ranks[race.BestTime][0], ShouldResemble, race.Horse(4))
			})
		})

		Convey("When an OCR annotation is merged and then cloned", func() {
			raw, conf := 42, 0.4
			ann := &race.OCRAnnotation{
				Image: "a.png",
				Observations: []race.Observation{{
					Mark: "○", Priority: 1, Horse: race.Horse(3), Raw: &raw, Confidence: &conf,
					Candidates: []int{3, 8}, Review: []string{"ambiguous"},
				}},
				NeedsReview:   true,
				MinConfidence: &conf,
			}
			got, _ := race.Merge(base, race.Patch{Source: race.SourceOCR, OCR: ann}, nil)
			read := got.Clone()

			ann.Observations[0].Horse = race.Horse(99)
			ann.Observations[0].Candidates[0] = 42
			ann.Observations[0].Review[0] = "edited"
			*ann.Observations[0].Confidence = 0.1
			read.OCR.Observations[0].Candidates[1] = 7
			*read.OCR.MinConfidence = 0.2

			Convey("Then neither the patch nor the copy reaches the merged record", func() {
				o := got.OCR.Observations[0]
				So(o.Horse, ShouldResemble, race.Horse(3))
				So(o.Candidates, ShouldResemble, []int{3, 8})
				So(o.Review, ShouldResemble, []string{"ambiguous"})
				So(*o.Confidence, ShouldEqual, 0.4)
				So(*o.Raw, ShouldEqual, 42)
				So(*got.OCR.MinConfidence, ShouldEqual, 0.4)
			})
		})
	})
}

func TestRecord_RoundTrip(t *testing.T) {
	Convey("Given a populated record", t, func() {
		p := race.Patch{Source: race.SourceOCR, RaceName: strPtr("安田記念")}
		p.SetRank(race.AIMark, race.RankArray{race.Horse(3), race.Absent, race.Horse(8), race.Absent, race.Horse(1)})
		p.Engine = &race.EnginePrediction{Picks: race.Pad(race.EnginePicks, 5, 2), Grade: "A"}
		rec, _ := race.Merge(race.Record{Key: testKey}, p, nil)

		Convey("When it is encoded, decoded and merged with an empty patch", func() {
			b, err := json.Marshal(rec)
			So(err, ShouldBeNil)
			var back race.Record
			So(json.Unmarshal(b, &back), ShouldBeNil)
			again, n := race.Merge(back, race.Patch{Source: race.SourceStore}, nil)

			Convey("Then the record is unchanged", func() {
				So(n, ShouldEqual, 0)
				So(cmp.Diff(rec, again), ShouldBeEmpty)
			})

			Convey("And absent slots survive as null", func() {
				So(string(b), ShouldContainSubstring, `"ai_mark":[3,null,8,null,1]`)
			})
		})
	})
}

func TestRankArray_Validate(t *testing.T) {
	if err := race.Pad(3, 1, 2).Validate(3); err != nil {
		t.Errorf("padded array should validate: %v", err)
	}
	if err := race.Pad(3, 1, 1).Validate(3); err == nil {
		t.Error("expected duplicate horse to fail validation")
	}
	if err := race.Pad(2, 1).Validate(3); err == nil {
		t.Error("expected wrong length to fail validation")
	}
	if err := (race.RankArray{race.Horse(0)}).Validate(1); err == nil {
		t.Error("expected horse 0 to fail validation")
	}
}

func TestRankArray_Filled(t *testing.T) {
	a := race.Pad(6, 7, 3)
	if got := a.Filled(); got != 2 {
		t.Errorf("Filled() = %d, want 2", got)
	}
	if got := (race.RankArray{race.Horse(4), {}, race.Horse(1)}).Filled(); got != 2 {
		t.Errorf("Filled() with a gap = %d, want 2", got)
	}
	if got := race.Pad(3).Filled(); got != 0 {
		t.Errorf("Filled() of an empty array = %d, want 0", got)
	}
}
