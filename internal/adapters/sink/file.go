// Package sink writes race records to durable storage: one JSON file per race,
// a JSON and CSV aggregate per race day, or a SQLite table.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/keiba/internal/domain/race"
)

const (
	racesDir = "races"
	dailyDir = "daily"
	dirPerm  = 0o755
	filePerm = 0o644
)

// File stores records under a root directory:
//
//	<root>/races/<date>/<key>.json   one record
//	<root>/daily/<date>.json         every record of the day
//	<root>/daily/<date>.csv          the same day as a table
type File struct {
	root string
}

// NewFile returns a file sink rooted at dir.
func NewFile(dir string) *File {
	return &File{root: dir}
}

// Root returns the output directory.
func (f *File) Root() string { return f.root }

// RacePath returns the file holding the record for key.
func (f *File) RacePath(key race.Key) string {
	return filepath.Join(f.root, racesDir, key.Date, key.String()+".json")
}

// DailyPath returns the aggregate file of date with the given extension.
func (f *File) DailyPath(date, ext string) string {
	return filepath.Join(f.root, dailyDir, date+"."+ext)
}

// Persist writes rec to its race file, replacing any previous version.
func (f *File) Persist(ctx context.Context, rec race.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrWrite, rec.Key, err)
	}
	return writeAtomic(f.RacePath(rec.Key), b)
}

// LoadAll reads every race file. Unreadable files fail the load.
func (f *File) LoadAll(ctx context.Context) ([]race.Record, error) {
	base := filepath.Join(f.root, racesDir)
	var out []race.Record
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == base {
				return filepath.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var rec race.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

// WriteDaily writes the JSON and CSV aggregates for one race day.
func (f *File) WriteDaily(ctx context.Context, date string, recs []race.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if recs == nil {
		recs = []race.Record{}
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode day %s: %w", ErrWrite, date, err)
	}
	if err := writeAtomic(f.DailyPath(date, "json"), b); err != nil {
		return err
	}

	table, err := EncodeCSV(recs)
	if err != nil {
		return fmt.Errorf("%w: day %s: %w", ErrWrite, date, err)
	}
	return writeAtomic(f.DailyPath(date, "csv"), table)
}

// writeAtomic replaces path with b through a temp file and rename, so readers
// never see a partial record.
func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	name := tmp.Name()
	_, werr := tmp.Write(b)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	if err := os.Chmod(name, filePerm); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	return nil
}
