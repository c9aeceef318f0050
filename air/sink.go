package air

import (
	"context"
	"log/slog"
	"time"
)

// Sample is one published value. Value is NaN when the sensor reported no data.
type Sample struct {
	Field Field     `json:"field"`
	Value float32   `json:"value"`
	Time  time.Time `json:"time"`
}

// Sink receives converted values after every successful update.
type Sink interface {
	PublishState(ctx context.Context, sample Sample) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, sample Sample) error

func (f SinkFunc) PublishState(ctx context.Context, sample Sample) error {
	return f(ctx, sample)
}

// SinkBinding binds a sink to one field.
type SinkBinding struct {
	Field Field
	Sink  Sink
}

// publish sends every bound field of m in field order.
// Sink errors are logged and do not stop the remaining sinks.
func publish(ctx context.Context, log *slog.Logger, bindings []SinkBinding, m Measurement) {
	for _, f := range Fields {
		for _, b := range bindings {
			if b.Field != f || b.Sink == nil {
				continue
			}
			sample := Sample{Field: f, Value: m.Value(f), Time: m.Time}
			if err := b.Sink.PublishState(ctx, sample); err != nil {
				log.Warn("publish failed", "field", f.String(), "error", err)
			}
		}
	}
}

func boundFields(bindings []SinkBinding) []string {
	var names []string
	for _, f := range Fields {
		for _, b := range bindings {
			if b.Field == f && b.Sink != nil {
				names = append(names, f.String())
				break
			}
		}
	}
	return names
}
