package publish

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mklimuk/sen44/air"
)

const createSamples = `
	CREATE TABLE IF NOT EXISTS samples (
		id    INTEGER PRIMARY KEY AUTOINCREMENT,
		time  INTEGER NOT NULL,
		field TEXT NOT NULL,
		value REAL
	);
	CREATE INDEX IF NOT EXISTS samples_field_time ON samples(field, time);
`

var nan = float32(math.NaN())

// SQLiteRecorder stores samples in a local SQLite database.
// Missing values are stored as NULL.
type SQLiteRecorder struct {
	db *sql.DB
}

func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if _, err := db.Exec(createSamples); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

func (r *SQLiteRecorder) PublishState(ctx context.Context, sample air.Sample) error {
	var value sql.NullFloat64
	if !air.IsMissing(sample.Value) {
		value = sql.NullFloat64{Float64: float64(sample.Value), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO samples (time, field, value) VALUES (?, ?, ?)`,
		sample.Time.UnixNano(), sample.Field.String(), value)
	if err != nil {
		return fmt.Errorf("sqlite: insert %s: %w", sample.Field, err)
	}
	return nil
}

// Recent returns up to limit most recent samples of field, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, field air.Field, limit int) ([]air.Sample, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT time, value FROM samples WHERE field = ? ORDER BY time DESC, id DESC LIMIT ?`,
		field.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", field, err)
	}
	defer rows.Close()

	var samples []air.Sample
	for rows.Next() {
		var (
			ts    int64
			value sql.NullFloat64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", field, err)
		}
		sample := air.Sample{Field: field, Time: time.Unix(0, ts).UTC(), Value: nan}
		if value.Valid {
			sample.Value = float32(value.Float64)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
