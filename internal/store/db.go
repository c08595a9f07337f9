// Package store archives finished walks in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/pedestrian_tracker/internal/geo"
	"github.com/relabs-tech/pedestrian_tracker/internal/monitoring"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
)

// ErrWalkNotFound is returned by GetWalk for unknown ids.
var ErrWalkNotFound = errors.New("walk not found")

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the archive at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; the archive is written at most once per reset
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS walks (
			walk_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			steps INTEGER NOT NULL,
			step_length DOUBLE NOT NULL,
			distance_m DOUBLE NOT NULL,
			origin TEXT,
			destination TEXT,
			walked_path TEXT NOT NULL,
			planned_route TEXT NOT NULL,
			archived_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS walks_finished_at ON walks (finished_at);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// WalkSummary is a list row: everything except the paths.
type WalkSummary struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Steps       int        `json:"steps"`
	DistanceM   float64    `json:"distance_m"`
	Destination *nav.Place `json:"destination,omitempty"`
}

func encodePlace(p *nav.Place) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodePlace(s sql.NullString) (*nav.Place, error) {
	if !s.Valid {
		return nil, nil
	}
	var p nav.Place
	if err := json.Unmarshal([]byte(s.String), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func encodePath(p []geo.Coordinate) (string, error) {
	if p == nil {
		p = []geo.Coordinate{}
	}
	b, err := json.Marshal(p)
	return string(b), err
}

// SaveWalk stores w. A walk without an id gets a fresh one; saving the same
// id twice replaces the earlier row.
func (db *DB) SaveWalk(ctx context.Context, w nav.Walk) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	origin, err := encodePlace(w.Origin)
	if err != nil {
		return fmt.Errorf("encode origin: %w", err)
	}
	dest, err := encodePlace(w.Destination)
	if err != nil {
		return fmt.Errorf("encode destination: %w", err)
	}
	walked, err := encodePath(w.WalkedPath)
	if err != nil {
		return fmt.Errorf("encode walked path: %w", err)
	}
	planned, err := encodePath(w.PlannedRoute)
	if err != nil {
		return fmt.Errorf("encode planned route: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO walks
			(walk_id, started_at, finished_at, steps, step_length, distance_m, origin, destination, walked_path, planned_route)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID,
		w.StartedAt.UTC().Format(timeLayout),
		w.FinishedAt.UTC().Format(timeLayout),
		w.Steps,
		w.StepLength,
		float64(w.Steps)*w.StepLength,
		origin, dest, walked, planned,
	)
	if err != nil {
		return fmt.Errorf("insert walk %s: %w", w.ID, err)
	}
	monitoring.Logf("store: saved walk %s", w.ID)
	return nil
}

// timeLayout is fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// ListWalks returns the most recently finished walks first. limit <= 0
// returns all of them.
func (db *DB) ListWalks(ctx context.Context, limit int) ([]WalkSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT walk_id, started_at, finished_at, steps, distance_m, destination
		FROM walks ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []WalkSummary{}
	for rows.Next() {
		var (
			s                 WalkSummary
			started, finished string
			dest              sql.NullString
		)
		if err := rows.Scan(&s.ID, &started, &finished, &s.Steps, &s.DistanceM, &dest); err != nil {
			return nil, err
		}
		if s.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("walk %s started_at: %w", s.ID, err)
		}
		if s.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("walk %s finished_at: %w", s.ID, err)
		}
		if s.Destination, err = decodePlace(dest); err != nil {
			return nil, fmt.Errorf("walk %s destination: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetWalk loads a full walk including both paths.
func (db *DB) GetWalk(ctx context.Context, id string) (nav.Walk, error) {
	var (
		w                 nav.Walk
		started, finished string
		origin, dest      sql.NullString
		walked, planned   string
	)
	err := db.QueryRowContext(ctx, `
		SELECT walk_id, started_at, finished_at, steps, step_length, origin, destination, walked_path, planned_route
		FROM walks WHERE walk_id = ?`, id).
		Scan(&w.ID, &started, &finished, &w.Steps, &w.StepLength, &origin, &dest, &walked, &planned)
	if errors.Is(err, sql.ErrNoRows) {
		return nav.Walk{}, fmt.Errorf("%s: %w", id, ErrWalkNotFound)
	}
	if err != nil {
		return nav.Walk{}, err
	}

	if w.StartedAt, err = parseTime(started); err != nil {
		return nav.Walk{}, err
	}
	if w.FinishedAt, err = parseTime(finished); err != nil {
		return nav.Walk{}, err
	}
	if w.Origin, err = decodePlace(origin); err != nil {
		return nav.Walk{}, err
	}
	if w.Destination, err = decodePlace(dest); err != nil {
		return nav.Walk{}, err
	}
	if err := json.Unmarshal([]byte(walked), &w.WalkedPath); err != nil {
		return nav.Walk{}, fmt.Errorf("walk %s walked path: %w", id, err)
	}
	if err := json.Unmarshal([]byte(planned), &w.PlannedRoute); err != nil {
		return nav.Walk{}, fmt.Errorf("walk %s planned route: %w", id, err)
	}
	return w, nil
}
