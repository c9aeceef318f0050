package air

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotInitialized is returned by Update until Setup has completed.
	ErrNotInitialized = errors.New("sen44: sensor not initialized")
	// ErrFailed is returned by every operation once a fatal setup step failed.
	ErrFailed = errors.New("sen44: sensor marked failed")
)

// State is the position of the driver in its startup sequence.
type State int

const (
	StateIdle State = iota
	StateAwaitIdle
	StateAwaitStopSettle
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitIdle:
		return "await-idle"
	case StateAwaitStopSettle:
		return "await-stop-settle"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrorCode is the reason the sensor was marked failed.
type ErrorCode int

const (
	CommunicationFailed ErrorCode = iota
	SerialNumberIdentificationFailed
	MeasurementInitFailed
	FirmwareFailed
	Unknown
)

func (c ErrorCode) String() string {
	switch c {
	case CommunicationFailed:
		return "communication failed"
	case SerialNumberIdentificationFailed:
		return "serial number identification failed"
	case MeasurementInitFailed:
		return "measurement initialization failed"
	case FirmwareFailed:
		return "firmware version read failed"
	default:
		return "unknown setup error"
	}
}

func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// SetupError is returned by Setup when a fatal step fails.
type SetupError struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sen44: %s: %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("sen44: %s: %s", e.Code, e.Op)
}

func (e *SetupError) Unwrap() error { return e.Err }

// SerialNumber holds the raw serial number words and the three parts shown in diagnostics.
type SerialNumber struct {
	Raw   [3]uint16 `json:"raw" yaml:"raw"`
	Parts [3]uint8  `json:"parts" yaml:"parts"`
}

func decodeSerialNumber(raw [3]uint16) SerialNumber {
	return SerialNumber{
		Raw: raw,
		Parts: [3]uint8{
			uint8(raw[0] >> 8),
			uint8(raw[0] & 0xFF),
			uint8(raw[1] >> 8),
		},
	}
}

func (s SerialNumber) String() string {
	return fmt.Sprintf("%02d.%02d.%02d", s.Parts[0], s.Parts[1], s.Parts[2])
}

// DeviceStatus is the device status register.
type DeviceStatus uint32

const (
	statusFanSpeedWarning DeviceStatus = 1 << 21
	statusFanCleaning     DeviceStatus = 1 << 19
	statusGasSensorError  DeviceStatus = 1 << 7
	statusRHTError        DeviceStatus = 1 << 6
	statusLaserFailure    DeviceStatus = 1 << 5
	statusFanFailure      DeviceStatus = 1 << 4
)

func (s DeviceStatus) FanSpeedWarning() bool { return s&statusFanSpeedWarning != 0 }
func (s DeviceStatus) FanCleaning() bool     { return s&statusFanCleaning != 0 }
func (s DeviceStatus) GasSensorError() bool  { return s&statusGasSensorError != 0 }
func (s DeviceStatus) RHTError() bool        { return s&statusRHTError != 0 }
func (s DeviceStatus) LaserFailure() bool    { return s&statusLaserFailure != 0 }
func (s DeviceStatus) FanFailure() bool      { return s&statusFanFailure != 0 }

func (s DeviceStatus) String() string {
	var flags []string
	if s.FanSpeedWarning() {
		flags = append(flags, "fan speed warning")
	}
	if s.FanCleaning() {
		flags = append(flags, "fan cleaning")
	}
	if s.GasSensorError() {
		flags = append(flags, "gas sensor error")
	}
	if s.RHTError() {
		flags = append(flags, "RHT error")
	}
	if s.LaserFailure() {
		flags = append(flags, "laser failure")
	}
	if s.FanFailure() {
		flags = append(flags, "fan failure")
	}
	if len(flags) == 0 {
		return "ok"
	}
	return strings.Join(flags, ", ")
}

// Status is a snapshot of the driver diagnostics.
type Status struct {
	State             State         `json:"state" yaml:"state"`
	Initialized       bool          `json:"initialized" yaml:"initialized"`
	Failed            bool          `json:"failed" yaml:"failed"`
	ErrorCode         *ErrorCode    `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Warning           bool          `json:"warning" yaml:"warning"`
	ProductName       string        `json:"product_name,omitempty" yaml:"product_name,omitempty"`
	SerialNumber      SerialNumber  `json:"serial_number" yaml:"serial_number"`
	FirmwareVersion   uint16        `json:"firmware_version" yaml:"firmware_version"`
	AutoCleanInterval uint32        `json:"auto_cleaning_interval" yaml:"auto_cleaning_interval"`
	TemperatureOffset float32       `json:"temperature_offset" yaml:"temperature_offset"`
	UpdateInterval    time.Duration `json:"update_interval" yaml:"update_interval"`
	Fields            []string      `json:"fields" yaml:"fields"`
	LastMeasurement   *Measurement  `json:"last_measurement,omitempty" yaml:"last_measurement,omitempty"`
}

// String renders the status the way it is shown in logs and the CLI.
func (s Status) String() string {
	var b strings.Builder
	b.WriteString("sen44:\n")
	if s.Failed {
		code := Unknown
		if s.ErrorCode != nil {
			code = *s.ErrorCode
		}
		fmt.Fprintf(&b, "  Setup failed: %s\n", code)
	}
	fmt.Fprintf(&b, "  State: %s\n", s.State)
	fmt.Fprintf(&b, "  Product name: %s\n", s.ProductName)
	fmt.Fprintf(&b, "  Firmware version: %d\n", s.FirmwareVersion)
	fmt.Fprintf(&b, "  Serial number: %s\n", s.SerialNumber)
	fmt.Fprintf(&b, "  Auto cleaning interval: %d seconds\n", s.AutoCleanInterval)
	fmt.Fprintf(&b, "  Temperature offset: %f\n", s.TemperatureOffset)
	if s.UpdateInterval > 0 {
		fmt.Fprintf(&b, "  Update interval: %s\n", s.UpdateInterval)
	}
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "  Sensor: %s\n", f)
	}
	return b.String()
}
