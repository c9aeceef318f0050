package publish

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/mklimuk/sen44/air"
)

const influxMeasurement = "sen44"

type InfluxOpts struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// Tags are added to every point, e.g. location=kitchen.
	Tags map[string]string
}

// InfluxSink writes every sample as one point of the "sen44" measurement.
// Missing values are skipped since line protocol has no NaN.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	tags   map[string]string
}

func NewInfluxSink(opts InfluxOpts) (*InfluxSink, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("influx: url is required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("influx: bucket is required")
	}
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(opts.Org, opts.Bucket),
		tags:   opts.Tags,
	}, nil
}

func (s *InfluxSink) PublishState(ctx context.Context, sample air.Sample) error {
	if air.IsMissing(sample.Value) {
		return nil
	}
	p := influxdb2.NewPointWithMeasurement(influxMeasurement).
		AddField(sample.Field.String(), float64(sample.Value)).
		SetTime(sample.Time)
	for k, v := range s.tags {
		p.AddTag(k, v)
	}
	if err := s.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx: write %s: %w", sample.Field, err)
	}
	return nil
}

func (s *InfluxSink) Close() {
	s.client.Close()
}
