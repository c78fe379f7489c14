// Package dump is an offline collector that reads already extracted JSON from
// a directory tree:
//
//	<dir>/<date>/races.json             race list (key strings or key objects)
//	<dir>/<date>/<key>.analytics.json   analytics site sheet(s)
//	<dir>/<date>/<key>.marks.json       marks/odds site sheet(s)
//	<dir>/<date>/<key>.engine.json      third-party engine prediction
package dump

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okian/keiba/internal/adapters/collector"
	"github.com/okian/keiba/internal/domain/race"
)

// sheetSources are read in this order, so a later site overlays an earlier one.
var sheetSources = []race.Source{race.SourceAnalytics, race.SourceMarks}

// Collector reads a dump directory.
type Collector struct {
	dir string
}

// New returns a collector over dir.
func New(dir string) *Collector {
	return &Collector{dir: dir}
}

// Races implements collector.Collector.
func (c *Collector) Races(ctx context.Context, date string) ([]race.Key, error) {
	b, err := c.read(ctx, filepath.Join(date, "races.json"))
	if err != nil {
		return nil, err
	}
	keys, err := collector.DecodeKeys(b)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.Date != date {
			return nil, fmt.Errorf("%w: race list of %s names %s", collector.ErrDecode, date, k)
		}
	}
	return keys, nil
}

// Sheets implements collector.Collector. Races with no sheet file fail with
// collector.ErrNoData.
func (c *Collector) Sheets(ctx context.Context, key race.Key) ([]collector.Sheet, error) {
	var out []collector.Sheet
	for _, src := range sheetSources {
		b, err := c.read(ctx, c.unitFile(key, string(src)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sheets, err := collector.DecodeSheets(b, key, src)
		if err != nil {
			return nil, err
		}
		out = append(out, sheets...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no sheet for %s", collector.ErrNoData, key)
	}
	return out, nil
}

// Prediction implements collector.Collector.
func (c *Collector) Prediction(ctx context.Context, key race.Key) (race.EnginePrediction, error) {
	b, err := c.read(ctx, c.unitFile(key, "engine"))
	if errors.Is(err, fs.ErrNotExist) {
		return race.EnginePrediction{}, fmt.Errorf("%w: no prediction for %s", collector.ErrNoData, key)
	}
	if err != nil {
		return race.EnginePrediction{}, err
	}
	return collector.DecodePrediction(b)
}

func (c *Collector) unitFile(key race.Key, kind string) string {
	return filepath.Join(key.Date, key.String()+"."+kind+".json")
}

func (c *Collector) read(ctx context.Context, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(c.dir, rel))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return b, nil
}
