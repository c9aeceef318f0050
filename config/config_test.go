package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sen44/air"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "sen44.yaml", `
bus:
  adapter: mcp2221
  address: 0x69
  speed_hz: 50000
sensor:
  update_interval: 30s
  auto_cleaning_interval: 86400
  temperature_compensation: -1.5
  fields: [pm_2_5, temperature]
publish:
  log: false
  influx:
    url: http://influx:8086
    org: home
    bucket: air
    tags:
      room: kitchen
  sqlite:
    path: /var/lib/sen44/samples.db
  websocket: true
http:
  listen: 127.0.0.1:9000
`)
	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, AdapterMCP2221, cfg.Bus.Adapter)
	assert.Equal(t, uint8(0x69), cfg.Bus.Address)
	assert.Equal(t, int64(50000), cfg.Bus.SpeedHz)
	assert.Equal(t, 30*time.Second, cfg.Sensor.UpdateInterval)
	require.NotNil(t, cfg.Sensor.AutoCleaningInterval)
	assert.Equal(t, uint32(86400), *cfg.Sensor.AutoCleaningInterval)
	require.NotNil(t, cfg.Sensor.TemperatureCompensation)
	assert.Equal(t, float32(-1.5), *cfg.Sensor.TemperatureCompensation)
	assert.False(t, cfg.Publish.Log)
	assert.True(t, cfg.Publish.WebSocket)
	require.NotNil(t, cfg.Publish.Influx)
	assert.Equal(t, "kitchen", cfg.Publish.Influx.Tags["room"])
	assert.Equal(t, "/var/lib/sen44/samples.db", cfg.Publish.SQLite.Path)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Listen)

	fields, err := cfg.Sensor.ParsedFields()
	require.NoError(t, err)
	assert.Equal(t, []air.Field{air.FieldPM2_5, air.FieldTemperature}, fields)
	assert.Len(t, cfg.Sensor.Options(), 3)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	fields, err := cfg.Sensor.ParsedFields()
	require.NoError(t, err)
	assert.Equal(t, air.Fields, fields)
	assert.Len(t, cfg.Sensor.Options(), 1)
}

func TestLoad_EnvOverrides(t *testing.T) {
	env := writeFile(t, ".env", "SEN44_INFLUX_TOKEN=secret\nSEN44_INFLUX_URL=http://env:8086\n")
	path := writeFile(t, "sen44.yaml", "publish:\n  influx:\n    bucket: air\n")
	t.Setenv(EnvHTTPListen, ":7070")
	t.Cleanup(func() {
		os.Unsetenv(EnvInfluxToken)
		os.Unsetenv(EnvInfluxURL)
	})

	cfg, err := Load(path, env)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Listen)
	assert.Equal(t, "secret", cfg.Publish.Influx.Token)
	assert.Equal(t, "http://env:8086", cfg.Publish.Influx.URL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config: read")

	path := writeFile(t, "bad.yaml", "bus:\n  adaptr: periph\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "config: parse")
}

func TestValidate(t *testing.T) {
	comp := float32(200)
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"adapter", func(c *Config) { c.Bus.Adapter = "spi" }, "bus.adapter"},
		{"address", func(c *Config) { c.Bus.Address = 0x7F }, "bus.address"},
		{"interval", func(c *Config) { c.Sensor.UpdateInterval = 100 * time.Millisecond }, "sensor.update_interval"},
		{"compensation", func(c *Config) { c.Sensor.TemperatureCompensation = &comp }, "sensor.temperature_compensation"},
		{"fields", func(c *Config) { c.Sensor.Fields = []string{"co2"} }, `unknown field "co2"`},
		{"influx", func(c *Config) { c.Publish.Influx = &Influx{} }, "publish.influx.url"},
		{"sqlite", func(c *Config) { c.Publish.SQLite = &SQLite{} }, "publish.sqlite.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())
}
