// Package publish holds the sinks measurements are published to:
// structured log, InfluxDB, SQLite and a WebSocket hub.
package publish

import (
	"context"
	"log/slog"

	"github.com/mklimuk/sen44/air"
)

// LogSink writes every sample to logger at info level.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{log: logger}
}

func (s *LogSink) PublishState(ctx context.Context, sample air.Sample) error {
	if air.IsMissing(sample.Value) {
		s.log.InfoContext(ctx, "measurement", "field", sample.Field.String(), "value", "no data")
		return nil
	}
	s.log.InfoContext(ctx, "measurement", "field", sample.Field.String(), "value", sample.Value, "unit", sample.Field.Unit())
	return nil
}

// Event is the JSON form of a sample. Value is null when the sensor reported no data.
type Event struct {
	Field string   `json:"field"`
	Value *float32 `json:"value"`
	Unit  string   `json:"unit"`
	Time  string   `json:"time"`
}

func NewEvent(sample air.Sample) Event {
	e := Event{
		Field: sample.Field.String(),
		Unit:  sample.Field.Unit(),
		Time:  sample.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if !air.IsMissing(sample.Value) {
		v := sample.Value
		e.Value = &v
	}
	return e
}
