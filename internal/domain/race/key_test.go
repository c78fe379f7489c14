package race_test

import (
	"errors"
	"testing"

	"github.com/okian/keiba/internal/domain/race"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKey_Validate(t *testing.T) {
	Convey("Given race keys", t, func() {
		Convey("When every component is well formed", func() {
			k, err := race.NewKey("20240526", "05", 11)

			Convey("Then the key is accepted and renders stably", func() {
				So(err, ShouldBeNil)
				So(k.String(), ShouldEqual, "20240526-05-11")
			})

			Convey("And ParseKey inverts String", func() {
				parsed, err := race.ParseKey(k.String())
				So(err, ShouldBeNil)
				So(parsed, ShouldResemble, k)
			})
		})

		Convey("When a component is missing or malformed", func() {
			cases := []race.Key{
				{Date: "", Track: "05", Number: 1},
				{Date: "2024052", Track: "05", Number: 1},
				{Date: "20240230", Track: "05", Number: 1},
				{Date: "20240526", Track: "", Number: 1},
				{Date: "20240526", Track: "11", Number: 1},
				{Date: "20240526", Track: "05", Number: 0},
				{Date: "20240526", Track: "05", Number: 13},
			}

			Convey("Then each key is rejected as invalid", func() {
				for _, k := range cases {
					So(errors.Is(k.Validate(), race.ErrInvalidKey), ShouldBeTrue)
				}
			})
		})

		Convey("When ordering keys", func() {
			a := race.Key{Date: "20240525", Track: "09", Number: 12}
			b := race.Key{Date: "20240526", Track: "05", Number: 1}
			c := race.Key{Date: "20240526", Track: "05", Number: 2}

			Convey("Then date, track and number decide in turn", func() {
				So(a.Less(b), ShouldBeTrue)
				So(b.Less(c), ShouldBeTrue)
				So(c.Less(a), ShouldBeFalse)
			})
		})
	})
}

func TestLookupVenue(t *testing.T) {
	tests := []struct {
		in   string
		want race.TrackCode
	}{
		{"東京", "05"},
		{"東京競馬場", "05"},
		{" Hanshin ", "09"},
		{"KOKURA", "10"},
		{"06", "06"},
		{"1", "01"},
	}
	for _, tt := range tests {
		got, err := race.LookupVenue(tt.in)
		if err != nil {
			t.Fatalf("LookupVenue(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("LookupVenue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	for _, v := range race.Venues() {
		for _, name := range []string{v.Kanji, v.Romaji, string(v.Code)} {
			if got, err := race.LookupVenue(name); err != nil || got != v.Code {
				t.Errorf("LookupVenue(%q) = %q, %v; want %q", name, got, err, v.Code)
			}
		}
		if v.Code.Name() != v.Kanji {
			t.Errorf("%s.Name() = %q, want %q", v.Code, v.Code.Name(), v.Kanji)
		}
	}

	if _, err := race.LookupVenue("大井"); !errors.Is(err, race.ErrUnknownTrack) {
		t.Errorf("expected ErrUnknownTrack for a non-JRA venue, got %v", err)
	}
}
