package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/keiba/internal/adapters/repository"
	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type memSink struct {
	fail    bool
	written map[race.Key]race.Record
	calls   int
}

func (m *memSink) Persist(_ context.Context, rec race.Record) error {
	m.calls++
	if m.fail {
		return errors.New("disk full")
	}
	if m.written == nil {
		m.written = make(map[race.Key]race.Record)
	}
	m.written[rec.Key] = rec
	return nil
}

func (m *memSink) LoadAll(_ context.Context) ([]race.Record, error) {
	out := make([]race.Record, 0, len(m.written))
	for _, rec := range m.written {
		out = append(out, rec)
	}
	return out, nil
}

func name(s string) *string { return &s }

var (
	k1 = race.Key{Date: "20240526", Track: "05", Number: 11}
	k2 = race.Key{Date: "20240526", Track: "08", Number: 3}
	k3 = race.Key{Date: "20240525", Track: "05", Number: 1}
)

func TestMemoryStore_Upsert(t *testing.T) {
	Convey("Given a store with a working sink", t, func() {
		ctx := context.Background()
		sink := &memSink{}
		store := repository.NewMemoryStore(repository.WithPersister(sink))

		Convey("When upserting a new key", func() {
			p := race.Patch{Source: race.SourceAnalytics, RaceName: name("日本ダービー")}
			rec, err := store.Upsert(ctx, k1, p)

			Convey("Then a record is created and persisted", func() {
				So(err, ShouldBeNil)
				So(rec.Key, ShouldResemble, k1)
				So(*rec.RaceName, ShouldEqual, "日本ダービー")
				So(store.Count(ctx), ShouldEqual, 1)
				So(sink.calls, ShouldEqual, 1)
				So(cmp.Diff(sink.written[k1], rec), ShouldBeEmpty)
			})
		})

		Convey("When two collectors write overlapping fields", func() {
			a := race.Patch{Source: race.SourceAnalytics, RaceName: name("A"), Surface: name("芝")}
			b := race.Patch{Source: race.SourceMarks, RaceName: name("B")}
			_, _ = store.Upsert(ctx, k1, a)
			_, _ = store.Upsert(ctx, k1, b)
			got, err := store.Get(ctx, k1)

			Convey("Then the last writer wins and other fields survive", func() {
				So(err, ShouldBeNil)
				So(*got.RaceName, ShouldEqual, "B")
				So(*got.Surface, ShouldEqual, "芝")
			})
		})

		Convey("When the key is incomplete", func() {
			_, err := store.Upsert(ctx, race.Key{Date: "20240526", Number: 1}, race.Patch{Source: race.SourceOCR})

			Convey("Then the orphan is rejected and nothing is stored", func() {
				So(errors.Is(err, repository.ErrOrphanRecord), ShouldBeTrue)
				So(errors.Is(err, race.ErrInvalidKey), ShouldBeTrue)
				So(store.Count(ctx), ShouldEqual, 0)
				So(sink.calls, ShouldEqual, 0)
			})
		})

		Convey("When reading an unknown key", func() {
			_, err := store.Get(ctx, k2)

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When callers mutate an OCR patch and a read record", func() {
			conf := 0.9
			ann := &race.OCRAnnotation{Image: "a.png", Observations: []race.Observation{
				{Mark: "◎", Horse: race.Horse(7), Confidence: &conf, Candidates: []int{7, 1}},
			}}
			_, err := store.Upsert(ctx, k1, race.Patch{Source: race.SourceOCR, OCR: ann})
			So(err, ShouldBeNil)

			ann.Observations[0].Horse = race.Horse(99)
			read, _ := store.Get(ctx, k1)
			read.OCR.Observations[0].Candidates[0] = 42
			*read.OCR.Observations[0].Confidence = 0.1

			Convey("Then the stored annotation is unchanged", func() {
				got, _ := store.Get(ctx, k1)
				o := got.OCR.Observations[0]
				So(o.Horse, ShouldResemble, race.Horse(7))
				So(o.Candidates, ShouldResemble, []int{7, 1})
				So(*o.Confidence, ShouldEqual, 0.9)
			})
		})
	})

	Convey("Given a store whose sink fails", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(repository.WithPersister(&memSink{fail: true}))

		Convey("When upserting", func() {
			rec, err := store.Upsert(ctx, k1, race.Patch{Source: race.SourceEngine, Distance: new(int)})

			Convey("Then the upsert still succeeds in memory", func() {
				So(err, ShouldBeNil)
				So(rec.Distance, ShouldNotBeNil)
				So(store.Count(ctx), ShouldEqual, 1)
			})
		})
	})

	Convey("Given merge priorities favouring analytics over ocr", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(repository.WithPriorities(race.Priorities{race.SourceAnalytics: 10}))
		_, _ = store.Upsert(ctx, k1, race.Patch{Source: race.SourceAnalytics, RaceName: name("A")})
		rec, _ := store.Upsert(ctx, k1, race.Patch{Source: race.SourceOCR, RaceName: name("O")})

		Convey("Then the ocr write does not replace the analytics field", func() {
			So(*rec.RaceName, ShouldEqual, "A")
			So(rec.Provenance[race.FieldRaceName], ShouldEqual, race.SourceAnalytics)
		})
	})
}

func TestMemoryStore_Queries(t *testing.T) {
	Convey("Given records across two days", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		for _, k := range []race.Key{k2, k1, k3} {
			_, err := store.Upsert(ctx, k, race.Patch{Source: race.SourceAnalytics})
			So(err, ShouldBeNil)
		}

		Convey("Then All is ordered by key", func() {
			all := store.All(ctx)
			So(len(all), ShouldEqual, 3)
			So(all[0].Key, ShouldResemble, k3)
			So(all[1].Key, ShouldResemble, k1)
			So(all[2].Key, ShouldResemble, k2)
		})

		Convey("And ByDate and Dates partition by day", func() {
			So(len(store.ByDate(ctx, "20240526")), ShouldEqual, 2)
			So(store.Dates(ctx), ShouldResemble, []string{"20240525", "20240526"})
		})
	})
}

func TestMemoryStore_SeedRoundTrip(t *testing.T) {
	Convey("Given a store persisted to a sink", t, func() {
		ctx := context.Background()
		sink := &memSink{}
		first := repository.NewMemoryStore(repository.WithPersister(sink))
		p := race.Patch{Source: race.SourceMarks}
		p.SetRank(race.ConsensusMark, race.Pad(8, 3, 1, 4))
		want, _ := first.Upsert(ctx, k1, p)

		Convey("When a new store is seeded and an empty patch is applied", func() {
			second := repository.NewMemoryStore(repository.WithPersister(sink))
			n, err := second.Seed(ctx, sink)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			got, err := second.Upsert(ctx, k1, race.Patch{Source: race.SourceStore})

			Convey("Then the record is unchanged", func() {
				So(err, ShouldBeNil)
				So(cmp.Diff(want, got), ShouldBeEmpty)
			})
		})
	})
}
