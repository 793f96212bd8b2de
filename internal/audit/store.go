// Package audit persists the per-batch checksum trail a peer produces while
// replaying relay batches. Two peers' trails can be compared offline to find
// the exact frame where their simulations diverged.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS batch_audit (
	frame       INTEGER PRIMARY KEY,
	clock       INTEGER NOT NULL,
	events      INTEGER NOT NULL,
	checksum    TEXT    NOT NULL,
	recorded_at TEXT    NOT NULL
);`

// Record is one batch application: the frame it produced, the simulated
// clock after it, the number of events it carried, and the state checksum.
type Record struct {
	Frame    uint64
	Clock    uint64
	Events   int
	Checksum string
}

// Store wraps the sqlite file holding a peer's audit trail.
type Store struct {
	db *sql.DB
}

// Open creates or reopens the audit database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record upserts one batch record. Re-recording a frame overwrites it, which
// keeps a crashed-and-replayed peer from tripping over its own trail.
func (s *Store) Record(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO batch_audit (frame, clock, events, checksum, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Frame, rec.Clock, rec.Events, rec.Checksum,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("audit: record frame %d: %w", rec.Frame, err)
	}
	return nil
}

// Checksum returns the recorded checksum for a frame, if present.
func (s *Store) Checksum(ctx context.Context, frame uint64) (string, bool, error) {
	var checksum string
	err := s.db.QueryRowContext(ctx,
		`SELECT checksum FROM batch_audit WHERE frame = ?`, frame,
	).Scan(&checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("audit: read frame %d: %w", frame, err)
	}
	return checksum, true, nil
}

// Records returns the full trail in frame order.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, clock, events, checksum FROM batch_audit ORDER BY frame ASC`)
	if err != nil {
		return nil, fmt.Errorf("audit: read trail: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Frame, &rec.Clock, &rec.Events, &rec.Checksum); err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: read trail: %w", err)
	}
	return records, nil
}

// Tail returns the most recent limit records in frame order.
func (s *Store) Tail(ctx context.Context, limit int) ([]Record, error) {
	if limit < 1 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, clock, events, checksum FROM batch_audit ORDER BY frame DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: read tail: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Frame, &rec.Clock, &rec.Events, &rec.Checksum); err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: read tail: %w", err)
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// FirstDivergence walks two trails and returns the first frame both recorded
// with different checksums. Frames present in only one trail are skipped; a
// missing frame means a missed batch, not a divergence.
func FirstDivergence(ctx context.Context, a, b *Store) (uint64, bool, error) {
	left, err := a.Records(ctx)
	if err != nil {
		return 0, false, err
	}
	right, err := b.Records(ctx)
	if err != nil {
		return 0, false, err
	}

	i, j := 0, 0
	for i < len(left) && j < len(right) {
		switch {
		case left[i].Frame < right[j].Frame:
			i++
		case left[i].Frame > right[j].Frame:
			j++
		default:
			if left[i].Checksum != right[j].Checksum {
				return left[i].Frame, true, nil
			}
			i++
			j++
		}
	}
	return 0, false, nil
}
