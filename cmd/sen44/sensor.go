package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/sen44/air"
	"github.com/mklimuk/sen44/cmd/sen44/console"
)

// WHO 24h guidelines used to color the readout (µg/m³).
const (
	guidelinePM2_5 = 15
	guidelinePM10  = 45
)

// The sensor needs about a second in measurement mode before the first values are valid.
const firstMeasurementDelay = 1100 * time.Millisecond

func closeBus(closer io.Closer) {
	if err := closer.Close(); err != nil {
		console.Errorf("error closing bus: %s", console.Red(err))
	}
}

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "initialize the sensor and take one measurement",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "pm", Usage: "also read number concentrations and typical particle size"},
		&cli.BoolFlag{Name: "yaml", Usage: "print the measurement as YAML"},
	},
	Action: func(c *cli.Context) error {
		ctx, s, _, closer, err := openSensor(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer closeBus(closer)

		if err := s.Setup(ctx); err != nil {
			return console.Exit(1, "sensor setup error: %s", console.Red(err))
		}
		if err := sleepContext(ctx, firstMeasurementDelay); err != nil {
			return err
		}
		if err := s.Update(ctx); err != nil {
			return console.Exit(1, "error reading measurement: %s", console.Red(err))
		}
		m, _ := s.LastMeasurement()
		if c.Bool("yaml") {
			return encodeYAML(m)
		}
		printMeasurement(m)
		if c.Bool("pm") {
			pm, err := s.ReadPMValues(ctx)
			if err != nil {
				return console.Exit(1, "error reading pm values: %s", console.Red(err))
			}
			return encodeYAML(pm)
		}
		return nil
	},
}

func printMeasurement(m air.Measurement) {
	value := func(v float32, unit string) string {
		if air.IsMissing(v) {
			return console.Yellow("no data")
		}
		return fmt.Sprintf("%s %s", console.White(v), unit)
	}
	level := func(v float32, guideline float32) string {
		if air.IsMissing(v) {
			return console.Yellow("no data")
		}
		return fmt.Sprintf("%s %s", console.Level(v, guideline), air.FieldPM2_5.Unit())
	}
	console.PInfof(console.PictoDust, "PM1.0: %s", value(m.PM1_0, air.FieldPM1_0.Unit()))
	console.PInfof(console.PictoDust, "PM2.5: %s", level(m.PM2_5, guidelinePM2_5))
	console.PInfof(console.PictoDust, "PM4.0: %s", value(m.PM4_0, air.FieldPM4_0.Unit()))
	console.PInfof(console.PictoDust, "PM10:  %s", level(m.PM10_0, guidelinePM10))
	console.PInfof(console.PictoLeaf, "VOC index: %s", value(m.VOC, ""))
	console.PInfof(console.PictoHumidity, "humidity: %s", value(m.Humidity, air.FieldHumidity.Unit()))
	console.PInfof(console.PictoThermometer, "temperature: %s", value(m.Temperature, air.FieldTemperature.Unit()))
}

var infoCmd = cli.Command{
	Name:  "info",
	Usage: "print product name, serial number, firmware and device status",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "clear-status", Usage: "clear the latched device status flags after reading them"},
	},
	Action: func(c *cli.Context) error {
		ctx, s, _, closer, err := openSensor(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer closeBus(closer)

		setupErr := s.Setup(ctx)
		if setupErr == nil {
			if _, err := s.ReadProductName(ctx); err != nil {
				console.Warnf("could not read product name: %s", err)
			}
			readStatus := s.ReadDeviceStatus
			if c.Bool("clear-status") {
				readStatus = s.ClearDeviceStatus
			}
			if st, err := readStatus(ctx); err != nil {
				console.Warnf("could not read device status: %s", err)
			} else {
				console.PInfof(console.PictoChip, "device status: %s", st)
			}
		}
		console.Print(s.Status().String())
		if setupErr != nil {
			return console.Exit(1, "sensor setup error: %s", console.Red(setupErr))
		}
		return nil
	},
}

var cleanCmd = cli.Command{
	Name:  "clean",
	Usage: "start a fan cleaning cycle",
	Action: func(c *cli.Context) error {
		ctx, s, _, closer, err := openSensor(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer closeBus(closer)

		if err := s.StartFanCleaning(ctx); err != nil {
			return console.Exit(1, "error starting fan cleaning: %s", console.Red(err))
		}
		console.PInfof(console.PictoFan, "fan cleaning started")
		return nil
	},
}

var resetCmd = cli.Command{
	Name:  "reset",
	Usage: "reset the sensor",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			res, err := console.NoOrYes("reset the sensor?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if res != console.Yes {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		ctx, s, _, closer, err := openSensor(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer closeBus(closer)

		if err := s.Reset(ctx); err != nil {
			return console.Exit(1, "error resetting sensor: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "sensor reset")
		return nil
	},
}

func encodeYAML(v any) error {
	enc := yaml.NewEncoder(console.Writer())
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
