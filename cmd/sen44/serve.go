package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sen44/air"
	"github.com/mklimuk/sen44/cmd/sen44/console"
	"github.com/mklimuk/sen44/config"
	"github.com/mklimuk/sen44/publish"
	"github.com/mklimuk/sen44/sensirion"
	"github.com/mklimuk/sen44/server"
	"github.com/mklimuk/sen44/snsctx"
)

type sensor interface {
	air.Updater
	server.Sensor
}

var serveCmd = cli.Command{
	Name:  "serve",
	Usage: "poll the sensor, publish measurements and serve the HTTP API",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "mock", Usage: "use a simulated sensor instead of the bus"},
	},
	Action: func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = snsctx.SetVerbose(ctx, c.Bool("verbose"))

		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		opts, hub, cleanup, err := sinkOptions(cfg)
		defer cleanup()
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		opts = append(cfg.Sensor.Options(), opts...)

		var s sensor
		if c.Bool("mock") {
			s = air.NewMockSEN44(simulate, opts...)
		} else {
			bus, closer, err := openBus(ctx, cfg.Bus)
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			defer closeBus(closer)
			driver := air.NewSEN44(sensirion.NewDevice(bus, cfg.Bus.Address), opts...)
			if err := driver.Setup(ctx); err != nil {
				slog.Error("sensor setup failed", "error", err)
				console.Print(driver.Status().String())
				return console.Exit(1, "sensor setup error: %s", console.Red(err))
			}
			s = driver
		}

		var ws http.Handler
		if hub != nil {
			ws = hub
		}
		srvErr := make(chan error, 1)
		go func() {
			srvErr <- server.New(s, ws, slog.Default()).ListenAndServe(ctx, cfg.HTTP.Listen)
		}()

		err = air.Poll(ctx, s, cfg.Sensor.UpdateInterval, slog.Default())
		stop()
		if serr := <-srvErr; serr != nil {
			slog.Error("http server stopped", "error", serr)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return console.Exit(1, "polling stopped: %s", console.Red(err))
		}
		return nil
	},
}

// sinkOptions builds the sinks enabled in the publish section.
func sinkOptions(cfg *config.Config) ([]air.SEN44Opt, *publish.Hub, func(), error) {
	var (
		opts    []air.SEN44Opt
		hub     *publish.Hub
		closers []func()
	)
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	fields, err := cfg.Sensor.ParsedFields()
	if err != nil {
		return nil, nil, cleanup, err
	}
	if cfg.Publish.Log {
		opts = append(opts, air.WithSink(publish.NewLogSink(slog.Default()), fields...))
	}
	if in := cfg.Publish.Influx; in != nil {
		sink, err := publish.NewInfluxSink(publish.InfluxOpts{
			URL:    in.URL,
			Token:  in.Token,
			Org:    in.Org,
			Bucket: in.Bucket,
			Tags:   in.Tags,
		})
		if err != nil {
			return nil, nil, cleanup, err
		}
		closers = append(closers, sink.Close)
		opts = append(opts, air.WithSink(sink, fields...))
	}
	if sq := cfg.Publish.SQLite; sq != nil {
		rec, err := publish.NewSQLiteRecorder(sq.Path)
		if err != nil {
			return nil, nil, cleanup, err
		}
		closers = append(closers, func() { _ = rec.Close() })
		opts = append(opts, air.WithSink(rec, fields...))
	}
	if cfg.Publish.WebSocket {
		hub = publish.NewHub(slog.Default())
		opts = append(opts, air.WithSink(hub, fields...))
	}
	return opts, hub, cleanup, nil
}

// simulate produces plausible indoor readings for --mock.
func simulate(ctx context.Context) (air.Measurement, error) {
	pm := 2 + rand.Float32()*10
	return air.Measurement{
		PM1_0:       pm * 0.6,
		PM2_5:       pm,
		PM4_0:       pm * 1.2,
		PM10_0:      pm * 1.4,
		VOC:         float32(90 + rand.IntN(40)),
		Humidity:    40 + rand.Float32()*15,
		Temperature: 20 + rand.Float32()*3,
	}, nil
}
