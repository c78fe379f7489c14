package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/keiba/internal/domain/race"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS races (
	date       TEXT    NOT NULL,
	track      TEXT    NOT NULL,
	race       INTEGER NOT NULL,
	body       TEXT    NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (date, track, race)
);
CREATE INDEX IF NOT EXISTS idx_races_date ON races(date);
`

// SQLite stores one row per race keyed by (date, track, race), holding the
// record as JSON.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("%w: create directory: %w", ErrWrite, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrWrite, err)
	}
	// One connection keeps writes serialised inside SQLite as well.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create schema: %w", ErrWrite, err)
	}
	return &SQLite{db: db}, nil
}

// Persist upserts the row of rec.Key.
func (s *SQLite) Persist(ctx context.Context, rec race.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrWrite, rec.Key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO races (date, track, race, body, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(date, track, race) DO UPDATE SET
		 body = excluded.body,
		 updated_at = CURRENT_TIMESTAMP`,
		rec.Key.Date, string(rec.Key.Track), rec.Key.Number, string(body),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, rec.Key, err)
	}
	return nil
}

// LoadAll returns every stored record ordered by key.
func (s *SQLite) LoadAll(ctx context.Context) ([]race.Record, error) {
	return s.query(ctx, "SELECT body FROM races ORDER BY date, track, race")
}

func (s *SQLite) query(ctx context.Context, q string) ([]race.Record, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer rows.Close()

	var out []race.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}
		var rec race.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("%w: decode row: %w", ErrRead, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return out, nil
}

// Close releases the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
