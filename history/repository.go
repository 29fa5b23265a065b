package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/elijahnyp/stairway_controller/stairway"
	"github.com/elijahnyp/stairway_controller/state"
)

var ErrNoWaves = errors.New("no waves recorded")

// WaveRecord is a stored wave.
type WaveRecord struct {
	ID         int64     `json:"id"`
	Direction  string    `json:"direction"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	DurationMs int64     `json:"duration_ms"`
	Lights     int       `json:"lights"`
}

// WaveRepository keeps completed waves in SQLite.
type WaveRepository struct {
	db *sql.DB
}

func NewWaveRepository(dbPath string) (*WaveRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS waves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		direction TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		lights INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_waves_finished ON waves(finished_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &WaveRepository{db: db}, nil
}

// SaveWave stores a completed wave and returns its id.
func (r *WaveRepository) SaveWave(ctx context.Context, wave stairway.Wave) (int64, error) {
	query := `INSERT INTO waves (direction, started_at, finished_at, lights) VALUES (?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		wave.Direction.String(), wave.Started.UnixMilli(), wave.Finished.UnixMilli(), wave.Lights)
	if err != nil {
		return 0, fmt.Errorf("failed to insert wave: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}
	return id, nil
}

func scanWave(scan func(dest ...any) error) (WaveRecord, error) {
	var rec WaveRecord
	var started, finished int64
	if err := scan(&rec.ID, &rec.Direction, &started, &finished, &rec.Lights); err != nil {
		return rec, err
	}
	rec.Started = time.UnixMilli(started)
	rec.Finished = time.UnixMilli(finished)
	rec.DurationMs = finished - started
	return rec, nil
}

// RecentWaves returns up to limit waves, most recent first.
func (r *WaveRepository) RecentWaves(ctx context.Context, limit int) ([]WaveRecord, error) {
	query := `
		SELECT id, direction, started_at, finished_at, lights
		FROM waves
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query waves: %w", err)
	}
	defer rows.Close()

	waves := []WaveRecord{}
	for rows.Next() {
		rec, err := scanWave(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wave: %w", err)
		}
		waves = append(waves, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waves: %w", err)
	}
	return waves, nil
}

// LatestWave returns the most recent wave or ErrNoWaves.
func (r *WaveRepository) LatestWave(ctx context.Context) (WaveRecord, error) {
	query := `
		SELECT id, direction, started_at, finished_at, lights
		FROM waves
		ORDER BY finished_at DESC, id DESC
		LIMIT 1
	`

	rec, err := scanWave(r.db.QueryRowContext(ctx, query).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNoWaves
	}
	if err != nil {
		return rec, fmt.Errorf("failed to query latest wave: %w", err)
	}
	return rec, nil
}

// CountByDirection returns how many stored waves ran in each direction.
func (r *WaveRepository) CountByDirection(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT direction, COUNT(*) FROM waves GROUP BY direction`)
	if err != nil {
		return nil, fmt.Errorf("failed to count waves: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		state.GoingDown.String(): 0,
		state.GoingUp.String():   0,
	}
	for rows.Next() {
		var direction string
		var n int
		if err := rows.Scan(&direction, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[direction] = n
	}
	return counts, rows.Err()
}

// DeleteOlderThan removes waves that finished more than olderThan ago and
// reports how many went.
func (r *WaveRepository) DeleteOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := r.db.ExecContext(ctx, `DELETE FROM waves WHERE finished_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old waves: %w", err)
	}
	return result.RowsAffected()
}

func (r *WaveRepository) Close() error {
	return r.db.Close()
}
