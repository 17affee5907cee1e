// Package history persists snapshot results in a local SQLite database so
// past captures can be listed after the on-screen result has cleared.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
	"github.com/MeKo-Tech/titlecam/internal/pipeline"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for unknown capture IDs.
var ErrNotFound = errors.New("history: capture not found")

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// Entry is one persisted snapshot result.
type Entry struct {
	ID          int64                `json:"id"`
	CaptureID   uuid.UUID            `json:"capture_id"`
	Seq         uint64               `json:"seq"`
	Orientation geometry.Orientation `json:"orientation"`
	CapturedAt  time.Time            `json:"captured_at"`
	Text        string               `json:"text"`
	Words       []string             `json:"words"`
	Found       bool                 `json:"found"`
	Box         *geometry.Rect       `json:"box,omitempty"`
	CropWidth   int                  `json:"crop_width"`
	CropHeight  int                  `json:"crop_height"`
	Duration    time.Duration        `json:"duration"`
	Error       string               `json:"error,omitempty"`
	RecordedAt  time.Time            `json:"recorded_at"`
}

// Store is a SQLite backed history of snapshot results.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// Open opens (or creates) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// One connection: SQLite has a single writer and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure history database: %w", err)
	}

	version, err := migrateUp(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger := slog.Default().With("component", "history")
	logger.Info("history database ready", "path", path, "schema_version", version)
	return &Store{db: db, now: time.Now, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record implements pipeline.Recorder.
func (s *Store) Record(ctx context.Context, r pipeline.SnapshotResult) error {
	if r.Words == nil {
		r.Words = []string{}
	}
	words, err := json.Marshal(r.Words)
	if err != nil {
		return fmt.Errorf("encode words: %w", err)
	}
	var bx, by, bw, bh sql.NullFloat64
	if r.Box != nil {
		bx = sql.NullFloat64{Float64: r.Box.X, Valid: true}
		by = sql.NullFloat64{Float64: r.Box.Y, Valid: true}
		bw = sql.NullFloat64{Float64: r.Box.Width, Valid: true}
		bh = sql.NullFloat64{Float64: r.Box.Height, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			capture_id, seq, orientation, captured_at, text, words, found,
			box_x, box_y, box_width, box_height, crop_width, crop_height,
			duration_ms, error, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CaptureID.String(), int64(r.Seq), r.Orientation.String(), r.CapturedAt.UnixNano(),
		r.Text, string(words), r.Found,
		bx, by, bw, bh, r.CropSize.X, r.CropSize.Y,
		r.Duration.Milliseconds(), r.Error, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", r.CaptureID, err)
	}
	s.logger.Debug("snapshot recorded", "capture_id", r.CaptureID.String(), "found", r.Found)
	return nil
}

const selectColumns = `
	SELECT id, capture_id, seq, orientation, captured_at, text, words, found,
	       box_x, box_y, box_width, box_height, crop_width, crop_height,
	       duration_ms, error, recorded_at
	FROM snapshots`

// List returns the most recent entries first. limit <= 0 uses DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return entries, nil
}

// Get returns the entry for a capture ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE capture_id = ?`, id.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                        Entry
		captureID, orient, words string
		seq, capturedAt          int64
		recordedAt, durationMs   int64
		bx, by, bw, bh           sql.NullFloat64
	)
	err := sc.Scan(&e.ID, &captureID, &seq, &orient, &capturedAt, &e.Text, &words, &e.Found,
		&bx, &by, &bw, &bh, &e.CropWidth, &e.CropHeight, &durationMs, &e.Error, &recordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan snapshot: %w", err)
	}

	if e.CaptureID, err = uuid.Parse(captureID); err != nil {
		return Entry{}, fmt.Errorf("scan snapshot %d: %w", e.ID, err)
	}
	if e.Orientation, err = geometry.ParseOrientation(orient); err != nil {
		return Entry{}, fmt.Errorf("scan snapshot %d: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(words), &e.Words); err != nil {
		return Entry{}, fmt.Errorf("scan snapshot %d words: %w", e.ID, err)
	}
	if bx.Valid && by.Valid && bw.Valid && bh.Valid {
		box := geometry.NewRect(bx.Float64, by.Float64, bw.Float64, bh.Float64)
		e.Box = &box
	}
	e.Seq = uint64(seq) //nolint:gosec // G115: stored from a uint64
	e.CapturedAt = time.Unix(0, capturedAt).UTC()
	e.RecordedAt = time.Unix(0, recordedAt).UTC()
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return e, nil
}
