// Package config loads the YAML configuration of the sen44 service.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/sen44/air"
)

// Set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Environment overrides.
const (
	EnvInfluxToken = "SEN44_INFLUX_TOKEN"
	EnvInfluxURL   = "SEN44_INFLUX_URL"
	EnvHTTPListen  = "SEN44_HTTP_LISTEN"
)

const (
	AdapterPeriph  = "periph"
	AdapterGobot   = "gobot"
	AdapterMCP2221 = "mcp2221"
)

type Config struct {
	Bus     Bus     `yaml:"bus"`
	Sensor  Sensor  `yaml:"sensor"`
	Publish Publish `yaml:"publish"`
	HTTP    HTTP    `yaml:"http"`
}

type Bus struct {
	// Adapter is one of periph, gobot or mcp2221.
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name, empty for the first available bus.
	Device  string `yaml:"device"`
	Address uint8  `yaml:"address"`
	SpeedHz int64  `yaml:"speed_hz"`
	// GobotBus is the bus number used by the gobot adaptor.
	GobotBus int `yaml:"gobot_bus"`
}

type Sensor struct {
	UpdateInterval          time.Duration `yaml:"update_interval"`
	AutoCleaningInterval    *uint32       `yaml:"auto_cleaning_interval"`
	TemperatureCompensation *float32      `yaml:"temperature_compensation"`
	Fields                  []string      `yaml:"fields"`
}

type Publish struct {
	Log       bool    `yaml:"log"`
	Influx    *Influx `yaml:"influx"`
	SQLite    *SQLite `yaml:"sqlite"`
	WebSocket bool    `yaml:"websocket"`
}

type Influx struct {
	URL    string            `yaml:"url"`
	Token  string            `yaml:"token"`
	Org    string            `yaml:"org"`
	Bucket string            `yaml:"bucket"`
	Tags   map[string]string `yaml:"tags"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

type HTTP struct {
	Listen string `yaml:"listen"`
}

func Default() *Config {
	return &Config{
		Bus: Bus{
			Adapter: AdapterPeriph,
			Address: 0x69,
			SpeedHz: 100_000,
		},
		Sensor: Sensor{
			UpdateInterval: 10 * time.Second,
		},
		Publish: Publish{Log: true},
		HTTP:    HTTP{Listen: ":8080"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides (optionally loaded from env files) and validates the result.
// An empty path yields the defaults.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvHTTPListen); v != "" {
		c.HTTP.Listen = v
	}
	url, token := os.Getenv(EnvInfluxURL), os.Getenv(EnvInfluxToken)
	if url == "" && token == "" {
		return
	}
	if c.Publish.Influx == nil {
		c.Publish.Influx = &Influx{}
	}
	if url != "" {
		c.Publish.Influx.URL = url
	}
	if token != "" {
		c.Publish.Influx.Token = token
	}
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.Bus.Adapter {
	case AdapterPeriph, AdapterGobot, AdapterMCP2221:
	default:
		errs = append(errs, fmt.Errorf("bus.adapter: unknown adapter %q", c.Bus.Adapter))
	}
	if c.Bus.Address < 0x08 || c.Bus.Address > 0x77 {
		errs = append(errs, fmt.Errorf("bus.address: %#x is not a valid 7-bit address", c.Bus.Address))
	}
	if c.Bus.SpeedHz < 0 {
		errs = append(errs, fmt.Errorf("bus.speed_hz: must not be negative"))
	}
	if c.Sensor.UpdateInterval < time.Second {
		errs = append(errs, fmt.Errorf("sensor.update_interval: %s is shorter than 1s", c.Sensor.UpdateInterval))
	}
	if comp := c.Sensor.TemperatureCompensation; comp != nil {
		scaled := math.Round(float64(*comp) * 200)
		if scaled < math.MinInt16 || scaled > math.MaxInt16 {
			errs = append(errs, fmt.Errorf("sensor.temperature_compensation: %v°C out of range", *comp))
		}
	}
	if _, err := c.Sensor.ParsedFields(); err != nil {
		errs = append(errs, err)
	}
	if in := c.Publish.Influx; in != nil {
		if in.URL == "" {
			errs = append(errs, fmt.Errorf("publish.influx.url: required"))
		}
		if in.Bucket == "" {
			errs = append(errs, fmt.Errorf("publish.influx.bucket: required"))
		}
	}
	if s := c.Publish.SQLite; s != nil && s.Path == "" {
		errs = append(errs, fmt.Errorf("publish.sqlite.path: required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// ParsedFields returns the configured fields, or every field when none are listed.
func (s Sensor) ParsedFields() ([]air.Field, error) {
	if len(s.Fields) == 0 {
		return air.Fields, nil
	}
	fields := make([]air.Field, 0, len(s.Fields))
	for _, name := range s.Fields {
		f, ok := air.ParseField(name)
		if !ok {
			return nil, fmt.Errorf("sensor.fields: unknown field %q", name)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Options translates the sensor section into driver options.
func (s Sensor) Options() []air.SEN44Opt {
	opts := []air.SEN44Opt{air.WithUpdateInterval(s.UpdateInterval)}
	if s.AutoCleaningInterval != nil {
		opts = append(opts, air.WithAutoCleaningInterval(*s.AutoCleaningInterval))
	}
	if s.TemperatureCompensation != nil {
		opts = append(opts, air.WithTemperatureCompensation(*s.TemperatureCompensation))
	}
	return opts
}
