package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/keiba/internal/adapters/collector"
	"github.com/okian/keiba/internal/adapters/collector/dump"
	"github.com/okian/keiba/internal/adapters/imagesrc"
	"github.com/okian/keiba/internal/adapters/mq/worker"
	"github.com/okian/keiba/internal/adapters/repository"
	"github.com/okian/keiba/internal/adapters/sink"
	"github.com/okian/keiba/internal/adapters/vision"
	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/internal/domain/ranking"
	"github.com/okian/keiba/pkg/logger"
)

func init() {
	_ = logger.Init()
}

const testDate = "20240526"

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newDump lays out two races: 11 with both sheets and a prediction, 12 with a
// corrupt analytics sheet.
func newDump(t *testing.T) string {
	dir := t.TempDir()
	day := filepath.Join(dir, testDate)
	write(t, filepath.Join(day, "races.json"), `["20240526-05-11", {"date":"20240526","venue":"東京","race":12}]`)
	write(t, filepath.Join(day, "20240526-05-11.analytics.json"), `{
		"race_name": "日本ダービー",
		"distance": 2400,
		"tables": {
			"best_time": [{"horse": 3, "signals": {"order": 2}}, {"horse": 7, "signals": {"order": 1}}],
			"time_index": [{"horse": 1, "signals": {"index": 90}}]
		}
	}`)
	write(t, filepath.Join(day, "20240526-05-11.marks.json"), `{
		"surface": "芝",
		"tables": {"popularity": [{"horse": 5, "signals": {"popularity": 1}}, {"horse": 2, "signals": {"popularity": 2}}]}
	}`)
	write(t, filepath.Join(day, "20240526-05-11.engine.json"), `{"picks": [7, 3, 1], "grade": "A"}`)
	write(t, filepath.Join(day, "20240526-05-12.analytics.json"), `{not json`)
	return dir
}

func newImages(t *testing.T) string {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.png"), "png")
	write(t, filepath.Join(dir, "a.meta.json"), `{"date": "2024年5月26日", "venue": "東京競馬場", "race_number": "11R"}`)
	write(t, filepath.Join(dir, "a.marks.json"), "```json\n"+`{"marks": [
		{"mark": "◎", "horse_number": 7, "confidence": 0.97},
		{"mark": "○", "horse_number": "?", "confidence": 0.4, "candidates": [4, 9]},
		{"mark": "▲", "horse_number": 3, "confidence": 0.9},
		{"mark": "注", "horse_number": 8}
	]}`+"\n```")
	write(t, filepath.Join(dir, "b.png"), "png")
	write(t, filepath.Join(dir, "b.meta.json"), `{"date": "2024-05-26", "venue": "東京", "race_number": 12}`)
	write(t, filepath.Join(dir, "b.marks.json"), `this is not json`)
	return dir
}

func keyOf(t *testing.T, s string) race.Key {
	t.Helper()
	k, err := race.ParseKey(s)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

// emptySheets lists races from its dump but decodes every race page as an
// empty sheet array.
type emptySheets struct {
	*dump.Collector
}

func (emptySheets) Sheets(_ context.Context, key race.Key) ([]collector.Sheet, error) {
	return collector.DecodeSheets([]byte("[]"), key, race.SourceAnalytics)
}

func TestCollectRaces(t *testing.T) {
	Convey("Given a dump of one race day", t, func() {
		out := t.TempDir()
		files := sink.NewFile(out)
		store := repository.NewMemoryStore(repository.WithPersister(files))
		svc := New(
			WithStore(store),
			WithCollector(dump.New(newDump(t))),
			WithRunner(worker.NewRunner(worker.WithPacer(worker.NoPacer{}))),
			WithDaily(files),
		)
		ctx := context.Background()

		sum, err := svc.CollectRaces(ctx, testDate)
		So(err, ShouldBeNil)

		Convey("The good race is derived and the corrupt one is skipped", func() {
			So(sum.OK(), ShouldEqual, 1)
			So(sum.Skipped(), ShouldEqual, 1)
			skipped, ok := sum.Results[1].(worker.Skipped)
			So(ok, ShouldBeTrue)
			So(skipped.Reason, ShouldEqual, ReasonParse)
		})

		Convey("Both sheets are merged into one record", func() {
			rec, err := store.Get(ctx, keyOf(t, "20240526-05-11"))
			So(err, ShouldBeNil)
			So(*rec.RaceName, ShouldEqual, "日本ダービー")
			So(*rec.Surface, ShouldEqual, "芝")
			So(*rec.Distance, ShouldEqual, 2400)
			So(rec.Ranks[race.BestTime], ShouldResemble, race.Pad(3, 7, 3))
			So(rec.Ranks[race.Popularity], ShouldResemble, race.Pad(5, 5, 2))
			So(rec.Provenance[race.RankFieldName(race.Popularity)], ShouldEqual, race.SourceMarks)
		})

		Convey("A field below its minimum is omitted", func() {
			rec, err := store.Get(ctx, keyOf(t, "20240526-05-11"))
			So(err, ShouldBeNil)
			_, present := rec.Ranks[race.TimeIndex]
			So(present, ShouldBeFalse)
		})

		Convey("The record and the daily aggregate are on disk", func() {
			_, err := os.Stat(files.RacePath(keyOf(t, "20240526-05-11")))
			So(err, ShouldBeNil)
			_, err = os.Stat(files.DailyPath(testDate, "json"))
			So(err, ShouldBeNil)
			_, err = os.Stat(files.DailyPath(testDate, "csv"))
			So(err, ShouldBeNil)
		})

		Convey("Predictions overlay the same record", func() {
			sum, err := svc.CollectPredictions(ctx, testDate)
			So(err, ShouldBeNil)
			So(sum.OK(), ShouldEqual, 1)
			skipped := sum.Results[1].(worker.Skipped)
			So(skipped.Reason, ShouldEqual, ReasonNoData)

			rec, err := store.Get(ctx, keyOf(t, "20240526-05-11"))
			So(err, ShouldBeNil)
			So(rec.Engine.Picks, ShouldResemble, race.Pad(race.EnginePicks, 7, 3, 1))
			So(rec.Engine.Grade, ShouldEqual, "A")
			So(rec.Ranks[race.BestTime], ShouldResemble, race.Pad(3, 7, 3))
		})

		Convey("A resumed store sees the earlier run", func() {
			fresh := New(WithStore(repository.NewMemoryStore()))
			n, err := fresh.Resume(ctx, files)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(fresh.Store().Count(ctx), ShouldEqual, 1)
		})
	})

	Convey("Given a missing race list", t, func() {
		svc := New(
			WithCollector(dump.New(t.TempDir())),
			WithRunner(worker.NewRunner(worker.WithPacer(worker.NoPacer{}))),
		)
		_, err := svc.CollectRaces(context.Background(), testDate)
		So(errors.Is(err, worker.ErrAcquisition), ShouldBeTrue)
	})

	Convey("Given a collector whose race page holds no sheets", t, func() {
		out := t.TempDir()
		files := sink.NewFile(out)
		store := repository.NewMemoryStore(repository.WithPersister(files))
		svc := New(
			WithStore(store),
			WithCollector(emptySheets{dump.New(newDump(t))}),
			WithRunner(worker.NewRunner(worker.WithPacer(worker.NoPacer{}))),
			WithDaily(files),
		)
		sum, err := svc.CollectRaces(context.Background(), testDate)
		So(err, ShouldBeNil)

		Convey("Every unit is skipped as no_data and nothing is written", func() {
			So(sum.OK(), ShouldEqual, 0)
			So(sum.Skipped(), ShouldEqual, 2)
			for _, r := range sum.Results {
				skipped, ok := r.(worker.Skipped)
				So(ok, ShouldBeTrue)
				So(skipped.Reason, ShouldEqual, ReasonNoData)
			}
			So(sum.Dates(), ShouldBeEmpty)
			So(store.Count(context.Background()), ShouldEqual, 0)
			_, err := os.Stat(files.DailyPath("", "json"))
			So(os.IsNotExist(err), ShouldBeTrue)
		})
	})

	Convey("Given no collector", t, func() {
		svc := New()
		_, err := svc.CollectRaces(context.Background(), testDate)
		So(errors.Is(err, ErrNotConfigured), ShouldBeTrue)
		_, err = svc.CollectPredictions(context.Background(), testDate)
		So(errors.Is(err, ErrNotConfigured), ShouldBeTrue)
	})
}

func TestReadImages(t *testing.T) {
	Convey("Given two images with saved vision output", t, func() {
		store := repository.NewMemoryStore()
		svc := New(
			WithStore(store),
			WithImages(imagesrc.NewDirectory(newImages(t))),
			WithVision(vision.Sidecar{}),
			WithRunner(worker.NewRunner(worker.WithPacer(worker.NoPacer{}))),
		)
		ctx := context.Background()

		sum, err := svc.ReadImages(ctx)
		So(err, ShouldBeNil)

		Convey("The readable image writes ai_mark and the broken one abstains", func() {
			So(sum.OK(), ShouldEqual, 1)
			skipped := sum.Results[1].(worker.Skipped)
			So(skipped.Reason, ShouldEqual, ReasonParse)
			So(store.Count(ctx), ShouldEqual, 1)
		})

		Convey("Unknown and low confidence readings are flagged", func() {
			rec, err := store.Get(ctx, keyOf(t, "20240526-05-11"))
			So(err, ShouldBeNil)
			So(rec.Ranks[race.AIMark], ShouldResemble, race.RankArray{race.Horse(7), race.Absent, race.Horse(3), race.Absent, race.Absent})
			So(rec.OCR.NeedsReview, ShouldBeTrue)
			So(*rec.OCR.MinConfidence, ShouldEqual, 0.4)
			So(rec.OCR.Observations[1].Review, ShouldContain, "unknown_sentinel")
			So(rec.OCR.Observations[1].Review, ShouldContain, "low_confidence")
			So(rec.Provenance[race.RankFieldName(race.AIMark)], ShouldEqual, race.SourceOCR)
		})
	})

	Convey("Given no vision extractor", t, func() {
		svc := New(WithImages(imagesrc.NewDirectory(t.TempDir())))
		_, err := svc.ReadImages(context.Background())
		So(errors.Is(err, ErrNotConfigured), ShouldBeTrue)
	})
}

func TestSheetPatch(t *testing.T) {
	Convey("A sheet without tables carries only its metadata", t, func() {
		name := "皐月賞"
		p := SheetPatch(collector.Sheet{Source: race.SourceAnalytics, RaceName: &name})
		So(p.Source, ShouldEqual, race.SourceAnalytics)
		So(*p.RaceName, ShouldEqual, name)
		So(p.Ranks, ShouldBeEmpty)
		So(p.Result, ShouldBeNil)
	})

	Convey("A settled result is carried only when well formed", t, func() {
		good := &race.Result{Finish: race.Pad(3, 5, 1, 8)}
		p := SheetPatch(collector.Sheet{Result: good})
		So(p.Result, ShouldResemble, good)

		bad := &race.Result{Finish: race.Pad(3, 5, 5, 8)}
		p = SheetPatch(collector.Sheet{Result: bad})
		So(p.Result, ShouldBeNil)
	})

	Convey("Course bias prefers the right-handed table", t, func() {
		rows := func(hs ...int) []ranking.Row {
			out := make([]ranking.Row, len(hs))
			for i, h := range hs {
				out[i] = ranking.Row{Horse: h, Signals: map[string]int{ranking.SignalOrder: i + 1}}
			}
			return out
		}
		p := SheetPatch(collector.Sheet{Tables: ranking.Tables{
			ranking.TableBiasRight: rows(4, 5, 6),
			ranking.TableBiasLeft:  rows(1, 2, 3),
		}})
		So(p.Ranks[race.CourseBias], ShouldResemble, race.Pad(3, 4, 5, 6))
	})
}

func TestCollectorSkip(t *testing.T) {
	Convey("Collector errors map onto skip reasons", t, func() {
		cases := map[error]string{
			collector.ErrDecode:      ReasonParse,
			collector.ErrKeyMismatch: ReasonParse,
			collector.ErrNoData:      ReasonNoData,
			os.ErrNotExist:           ReasonFetch,
		}
		for in, want := range cases {
			err := collectorSkip(in)
			So(errors.Is(err, worker.ErrUnitSkipped), ShouldBeTrue)
			So(errors.Is(err, in), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, want)
		}
	})
}
