package sink

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/okian/keiba/internal/domain/race"
)

// Header returns the column names of the tabular export: key and metadata
// columns, one column per rank slot, engine and OCR summary columns.
func Header() []string {
	h := []string{"date", "track", "venue", "race", "race_name", "surface", "distance"}
	for _, f := range race.RankFields() {
		for i := 1; i <= f.Size(); i++ {
			h = append(h, fmt.Sprintf("%s_%d", f, i))
		}
	}
	for i := 1; i <= race.EnginePicks; i++ {
		h = append(h, fmt.Sprintf("engine_%d", i))
	}
	return append(h, "engine_grade", "ocr_needs_review", "ocr_min_confidence", "result")
}

// Row flattens rec into the columns of Header. Absent values are empty cells.
func Row(rec race.Record) []string {
	row := []string{
		rec.Key.Date,
		string(rec.Key.Track),
		rec.Key.Track.Name(),
		strconv.Itoa(rec.Key.Number),
		deref(rec.RaceName),
		deref(rec.Surface),
		"",
	}
	if rec.Distance != nil {
		row[6] = strconv.Itoa(*rec.Distance)
	}
	for _, f := range race.RankFields() {
		row = appendSlots(row, rec.Ranks[f], f.Size())
	}

	var picks race.RankArray
	grade := ""
	if rec.Engine != nil {
		picks, grade = rec.Engine.Picks, rec.Engine.Grade
	}
	row = appendSlots(row, picks, race.EnginePicks)
	row = append(row, grade)

	review, minConf := "", ""
	if rec.OCR != nil {
		review = strconv.FormatBool(rec.OCR.NeedsReview)
		if rec.OCR.MinConfidence != nil {
			minConf = strconv.FormatFloat(*rec.OCR.MinConfidence, 'f', 2, 64)
		}
	}
	result := ""
	if rec.Result != nil {
		result = joinHorses(rec.Result.Finish)
	}
	return append(row, review, minConf, result)
}

// EncodeCSV renders recs as a CSV table with a header row.
func EncodeCSV(recs []race.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header()); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := w.Write(Row(rec)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendSlots(row []string, a race.RankArray, size int) []string {
	for i := 0; i < size; i++ {
		cell := ""
		if i < len(a) && a[i].Valid {
			cell = strconv.Itoa(a[i].Horse)
		}
		row = append(row, cell)
	}
	return row
}

func joinHorses(a race.RankArray) string {
	var b bytes.Buffer
	for i, s := range a {
		if i > 0 {
			b.WriteByte('-')
		}
		if s.Valid {
			b.WriteString(strconv.Itoa(s.Horse))
		}
	}
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
