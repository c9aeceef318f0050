package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/sen44"
	"github.com/mklimuk/sen44/adapter"
	"github.com/mklimuk/sen44/air"
	"github.com/mklimuk/sen44/config"
	"github.com/mklimuk/sen44/i2c"
	"github.com/mklimuk/sen44/sensirion"
	"github.com/mklimuk/sen44/snsctx"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// loadConfig reads the configuration and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if a := c.String("adapter"); a != "" {
		cfg.Bus.Adapter = a
	}
	if d := c.String("device"); d != "" {
		cfg.Bus.Device = d
	}
	return cfg, cfg.Validate()
}

// openBus opens the transport selected in the bus section.
func openBus(ctx context.Context, cfg config.Bus) (sen44.I2CBus, io.Closer, error) {
	switch cfg.Adapter {
	case config.AdapterMCP2221:
		ad := adapter.NewMCP2221()
		if err := ad.Init(); err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		if cfg.SpeedHz > 0 {
			if err := ad.SetSpeed(ctx, int(cfg.SpeedHz)); err != nil {
				return nil, nil, err
			}
		}
		return ad, closerFunc(func() error { return ad.Release(context.Background()) }), nil
	case config.AdapterGobot:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, cfg.GobotBus)
		return bus, closerFunc(func() error {
			err := bus.Close()
			if ferr := npi.I2cBusAdaptor.Finalize(); ferr != nil && err == nil {
				err = ferr
			}
			return err
		}), nil
	default:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		if cfg.SpeedHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(cfg.SpeedHz) * physic.Hertz); err != nil {
				_ = bus.Close()
				return nil, nil, err
			}
		}
		return bus, bus, nil
	}
}

// openSensor opens the bus and builds the driver; the closer releases the bus.
func openSensor(c *cli.Context, opts ...air.SEN44Opt) (context.Context, *air.SEN44, *config.Config, io.Closer, error) {
	ctx := snsctx.SetVerbose(c.Context, c.Bool("verbose"))
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	bus, closer, err := openBus(ctx, cfg.Bus)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	opts = append(cfg.Sensor.Options(), opts...)
	s := air.NewSEN44(sensirion.NewDevice(bus, cfg.Bus.Address), opts...)
	return ctx, s, cfg, closer, nil
}
