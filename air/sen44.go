package air

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// Command words of the SEN44 I2C interface.
const (
	cmdAutoCleaningInterval uint16 = 0x8004
	cmdDataReady            uint16 = 0x0202
	cmdFirmwareVersion      uint16 = 0xD100
	cmdSerialNumber         uint16 = 0xD033
	cmdArticleCode          uint16 = 0xD025
	cmdStartFanCleaning     uint16 = 0x5607
	cmdStartMeasurement     uint16 = 0x0021
	cmdStopMeasurement      uint16 = 0x0104
	cmdReadMeasurementTicks uint16 = 0x0374
	cmdReadPMValues         uint16 = 0x0353
	cmdTemperatureOffset    uint16 = 0x6014
	cmdReadDeviceStatus     uint16 = 0xD206
	cmdClearDeviceStatus    uint16 = 0xD210
	cmdReset                uint16 = 0xD304
)

// Device timing.
const (
	idleDelay          = 1000 * time.Millisecond
	stopSettleDelay    = 200 * time.Millisecond
	commandDelay       = 20 * time.Millisecond
	resetDelay         = 100 * time.Millisecond
	registerMaxLatency = 20 * time.Millisecond
)

// DefaultAutoCleaningInterval is written to the sensor when no interval is configured (seconds).
const DefaultAutoCleaningInterval uint32 = 14400

const temperatureScale = 200

// Transport is the Sensirion command layer the driver talks through.
// All words are big endian; CRC framing is handled by the transport.
type Transport interface {
	WriteCommand(ctx context.Context, cmd uint16, params ...uint16) error
	ReadWords(ctx context.Context, words []uint16) error
	GetRegister(ctx context.Context, cmd uint16, words []uint16, maxWait time.Duration) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type SEN44Opts struct {
	AutoCleaningInterval    *uint32
	TemperatureCompensation *int16
	UpdateInterval          time.Duration
	Sinks                   []SinkBinding
	Logger                  *slog.Logger
	Sleeper                 Sleeper
	Clock                   func() time.Time
}

type SEN44Opt func(*SEN44Opts)

// WithAutoCleaningInterval overrides the fan auto cleaning interval (seconds).
func WithAutoCleaningInterval(seconds uint32) SEN44Opt {
	return func(o *SEN44Opts) {
		o.AutoCleaningInterval = &seconds
	}
}

// WithTemperatureCompensation sets the temperature offset (°C) written at startup.
// Offsets outside the register range (about ±163.8 °C) are clamped.
func WithTemperatureCompensation(celsius float32) SEN44Opt {
	return func(o *SEN44Opts) {
		raw := math.Round(float64(celsius) * temperatureScale)
		raw = math.Max(math.MinInt16, math.Min(math.MaxInt16, raw))
		offset := int16(raw)
		o.TemperatureCompensation = &offset
	}
}

// WithUpdateInterval records the polling interval shown in diagnostics.
func WithUpdateInterval(interval time.Duration) SEN44Opt {
	return func(o *SEN44Opts) {
		o.UpdateInterval = interval
	}
}

// WithSink binds sink to the given fields, or to every field when none are given.
func WithSink(sink Sink, fields ...Field) SEN44Opt {
	return func(o *SEN44Opts) {
		if len(fields) == 0 {
			fields = Fields
		}
		for _, f := range fields {
			o.Sinks = append(o.Sinks, SinkBinding{Field: f, Sink: sink})
		}
	}
}

func WithLogger(logger *slog.Logger) SEN44Opt {
	return func(o *SEN44Opts) {
		o.Logger = logger
	}
}

func WithSleeper(sleeper Sleeper) SEN44Opt {
	return func(o *SEN44Opts) {
		o.Sleeper = sleeper
	}
}

func WithClock(clock func() time.Time) SEN44Opt {
	return func(o *SEN44Opts) {
		o.Clock = clock
	}
}

func newOpts(opts []SEN44Opt) SEN44Opts {
	config := SEN44Opts{
		Logger:  slog.Default(),
		Sleeper: sleep,
		Clock:   time.Now,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// SEN44 drives a Sensirion SEN44 particulate matter and VOC sensor.
// Typical usage:
//
//	s := NewSEN44(sensirion.NewDevice(bus, sensirion.DefaultAddress))
//	if err := s.Setup(ctx); err != nil { ... }
//	err := s.Update(ctx)
//
// Setup must complete before Update reads anything. Once a fatal setup step
// fails the driver stays failed and performs no further bus traffic.
type SEN44 struct {
	opMx sync.Mutex // serialises command/response exchanges
	mx   sync.Mutex // protects the fields below

	config    SEN44Opts
	transport Transport
	log       *slog.Logger

	state             State
	initialized       bool
	failed            bool
	errorCode         *ErrorCode
	warning           bool
	serial            SerialNumber
	firmware          uint16
	productName       string
	autoCleanInterval uint32
	temperatureOffset float32
	last              *Measurement
}

func NewSEN44(transport Transport, opts ...SEN44Opt) *SEN44 {
	config := newOpts(opts)
	return &SEN44{
		config:    config,
		transport: transport,
		log:       config.Logger.With("sensor", "sen44"),
		state:     StateIdle,
	}
}

// Setup runs the startup sequence: idle the sensor, read its identity,
// configure auto cleaning and temperature compensation and start measuring.
// A fatal failure returns a *SetupError and marks the driver failed.
// Cancelling ctx aborts the sequence without marking the driver failed.
func (s *SEN44) Setup(ctx context.Context) error {
	s.opMx.Lock()
	defer s.opMx.Unlock()
	if s.isFailed() {
		return ErrFailed
	}
	s.mx.Lock()
	s.initialized = false
	s.mx.Unlock()

	err := s.setup(ctx)
	if err != nil && ctx.Err() != nil {
		s.setState(StateIdle)
		return ctx.Err()
	}
	return err
}

func (s *SEN44) setup(ctx context.Context) error {
	if err := s.startFanCleaning(ctx); err != nil {
		s.log.Warn("fan cleaning at startup failed", "error", err)
	}

	s.setState(StateAwaitIdle)
	if err := s.config.Sleeper(ctx, idleDelay); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.transport.WriteCommand(ctx, cmdDataReady); err != nil {
		return s.fail(ctx, CommunicationFailed, "write data ready status", err)
	}
	ready := make([]uint16, 1)
	if err := s.transport.ReadWords(ctx, ready); err != nil {
		return s.fail(ctx, CommunicationFailed, "read data ready status", err)
	}

	var settle time.Duration
	if ready[0] != 0 {
		s.log.Debug("sensor has data available, stopping periodic measurement")
		if err := s.transport.WriteCommand(ctx, cmdStopMeasurement); err != nil {
			return s.fail(ctx, CommunicationFailed, "stop measurement", err)
		}
		settle = stopSettleDelay
	}
	s.setState(StateAwaitStopSettle)
	if err := s.config.Sleeper(ctx, settle); err != nil {
		return err
	}

	var raw [3]uint16
	if err := s.transport.GetRegister(ctx, cmdSerialNumber, raw[:], registerMaxLatency); err != nil {
		return s.fail(ctx, SerialNumberIdentificationFailed, "read serial number", err)
	}
	serial := decodeSerialNumber(raw)
	s.log.Debug("serial number", "serial", serial.String())

	firmware := make([]uint16, 1)
	if err := s.transport.GetRegister(ctx, cmdFirmwareVersion, firmware, registerMaxLatency); err != nil {
		return s.fail(ctx, FirmwareFailed, "read firmware version", err)
	}
	s.log.Debug("firmware version", "version", firmware[0]>>8)

	s.mx.Lock()
	s.serial = serial
	s.firmware = firmware[0] >> 8
	s.mx.Unlock()

	interval, err := s.configureAutoCleaning(ctx)
	if err != nil {
		return err
	}
	s.mx.Lock()
	s.autoCleanInterval = interval
	s.mx.Unlock()

	if comp := s.config.TemperatureCompensation; comp != nil {
		if err := s.transport.WriteCommand(ctx, cmdTemperatureOffset, uint16(*comp)); err != nil {
			s.log.Error("set temperature compensation failed", "error", err)
		}
		if err := s.config.Sleeper(ctx, commandDelay); err != nil {
			return err
		}
	}

	if err := s.readTemperatureOffset(ctx); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.transport.WriteCommand(ctx, cmdStartMeasurement); err != nil {
		return s.fail(ctx, MeasurementInitFailed, "start measurement", err)
	}
	s.mx.Lock()
	s.initialized = true
	s.state = StateReady
	s.mx.Unlock()
	s.log.Info("sensor initialized")
	return nil
}

// configureAutoCleaning writes the interval and returns the value the sensor confirmed.
// A write or read failure keeps the requested interval.
func (s *SEN44) configureAutoCleaning(ctx context.Context) (uint32, error) {
	interval := DefaultAutoCleaningInterval
	if s.config.AutoCleaningInterval != nil {
		interval = *s.config.AutoCleaningInterval
	}
	err := s.transport.WriteCommand(ctx, cmdAutoCleaningInterval, uint16(interval>>16), uint16(interval))
	if err != nil {
		s.setWarning(true)
		s.log.Warn("write auto cleaning interval failed", "error", err)
		return interval, nil
	}
	if err := s.config.Sleeper(ctx, commandDelay); err != nil {
		return 0, err
	}
	secs := make([]uint16, 2)
	if err := s.transport.ReadWords(ctx, secs); err != nil {
		s.log.Debug("read back auto cleaning interval failed", "error", err)
		return interval, nil
	}
	return uint32(secs[0])<<16 | uint32(secs[1]), nil
}

// readTemperatureOffset only fails when ctx is done; device errors raise the warning.
func (s *SEN44) readTemperatureOffset(ctx context.Context) error {
	if err := s.transport.WriteCommand(ctx, cmdTemperatureOffset); err != nil {
		s.setWarning(true)
		s.log.Error("write get temperature offset failed", "error", err)
		return ctx.Err()
	}
	offset := make([]uint16, 1)
	if err := s.transport.ReadWords(ctx, offset); err != nil {
		s.setWarning(true)
		s.log.Debug("read temperature offset failed", "error", err)
		return ctx.Err()
	}
	s.mx.Lock()
	s.temperatureOffset = float32(int16(offset[0])) / temperatureScale
	s.mx.Unlock()
	return s.config.Sleeper(ctx, commandDelay)
}

// fail marks the driver failed unless the error comes from a cancelled context.
func (s *SEN44) fail(ctx context.Context, code ErrorCode, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mx.Lock()
	s.failed = true
	s.initialized = false
	s.state = StateFailed
	if s.errorCode == nil {
		s.errorCode = &code
	}
	s.mx.Unlock()
	s.log.Error("setup failed", "code", code.String(), "op", op, "error", err)
	return &SetupError{Code: code, Op: op, Err: err}
}

// Update reads one measurement block, stores it and publishes every bound field.
// Sinks run after the bus is released.
func (s *SEN44) Update(ctx context.Context) error {
	m, err := s.readMeasurement(ctx)
	if err != nil {
		return err
	}
	publish(ctx, s.log, s.config.Sinks, m)
	return nil
}

func (s *SEN44) readMeasurement(ctx context.Context) (Measurement, error) {
	s.opMx.Lock()
	defer s.opMx.Unlock()

	s.mx.Lock()
	failed, initialized := s.failed, s.initialized
	s.mx.Unlock()
	if failed {
		return Measurement{}, ErrFailed
	}
	if !initialized {
		return Measurement{}, ErrNotInitialized
	}

	if err := s.transport.WriteCommand(ctx, cmdReadMeasurementTicks); err != nil {
		s.setWarning(true)
		s.log.Debug("write read measurement failed", "error", err)
		return Measurement{}, fmt.Errorf("sen44: read measurement: %w", err)
	}
	if err := s.config.Sleeper(ctx, commandDelay); err != nil {
		return Measurement{}, err
	}
	var raw [7]uint16
	if err := s.transport.ReadWords(ctx, raw[:]); err != nil {
		s.setWarning(true)
		s.log.Debug("read measurement data failed", "error", err)
		return Measurement{}, fmt.Errorf("sen44: read measurement data: %w", err)
	}

	m := decodeMeasurement(raw)
	m.Time = s.config.Clock()
	s.mx.Lock()
	s.last = &m
	s.warning = false
	s.mx.Unlock()
	return m, nil
}

// StartFanCleaning starts a manual fan cleaning cycle.
func (s *SEN44) StartFanCleaning(ctx context.Context) error {
	s.opMx.Lock()
	defer s.opMx.Unlock()
	if s.isFailed() {
		return ErrFailed
	}
	return s.startFanCleaning(ctx)
}

func (s *SEN44) startFanCleaning(ctx context.Context) error {
	if err := s.transport.WriteCommand(ctx, cmdStartFanCleaning); err != nil {
		s.setWarning(true)
		s.log.Error("write start fan cleaning failed", "error", err)
		return fmt.Errorf("sen44: start fan cleaning: %w", err)
	}
	s.setWarning(false)
	s.log.Debug("fan cleaning started")
	return nil
}

// ReadProductName reads the article code, e.g. "SEN44".
func (s *SEN44) ReadProductName(ctx context.Context) (string, error) {
	s.opMx.Lock()
	defer s.opMx.Unlock()
	if s.isFailed() {
		return "", ErrFailed
	}
	words := make([]uint16, 16)
	if err := s.transport.GetRegister(ctx, cmdArticleCode, words, registerMaxLatency); err != nil {
		s.setWarning(true)
		return "", fmt.Errorf("sen44: read product name: %w", err)
	}
	name := decodeString(words)
	s.mx.Lock()
	s.productName = name
	s.mx.Unlock()
	return name, nil
}

func decodeString(words []uint16) string {
	buf := make([]byte, 0, len(words)*2)
	for _, w := range words {
		buf = append(buf, byte(w>>8), byte(w))
	}
	if i := strings.IndexByte(string(buf), 0); i >= 0 {
		buf = buf[:i]
	}
	return strings.TrimSpace(string(buf))
}

// ReadDeviceStatus reads the device status register.
func (s *SEN44) ReadDeviceStatus(ctx context.Context) (DeviceStatus, error) {
	s.opMx.Lock()
	defer s.opMx.Unlock()
	if s.isFailed() {
		return 0, ErrFailed
	}
	words := make([]uint16, 2)
	if err := s.transport.GetRegister(ctx, cmdReadDeviceStatus, words, registerMaxLatency); err != nil {
		s.setWarning(true)
		return 0, fmt.Errorf("sen44: read device status: %w", err)
	}
	return DeviceStatus(uint32(words[0])<<16 | uint32(words[1])), nil
}

// ClearDeviceStatus reads the device status register and clears its latched flags.
// The returned status holds the flags as they were before clearing.
func (s *SEN44) ClearDeviceStatus(ctx context.Context) (DeviceStatus, error) {
	s.opMx.Lock()
	defer s.opMx.Unlock()
	if s.isFailed() {
		return 0, ErrFailed
	}
	words := make([]uint16, 2)
	if err := s.transport.GetRegister(ctx, cmdClearDeviceStatus, words, registerMaxLatency); err != nil {
		s.setWarning(true)
		return 0, fmt.Errorf("sen44: clear device status: %w", err)
	}
	return DeviceStatus(uint32(words[0])<<16 | uint32(words[1])), nil
}

// Reset issues a device reset. The driver returns to idle and Setup has to run again.
func (s *SEN44) Reset(ctx context.Context) error {
	s.opMx.Lock()
	defer s.opMx.Unlock()
	if s.isFailed() {
		return ErrFailed
	}
	if err := s.transport.WriteCommand(ctx, cmdReset); err != nil {
		s.setWarning(true)
		return fmt.Errorf("sen44: reset: %w", err)
	}
	s.mx.Lock()
	s.initialized = false
	s.state = StateIdle
	s.mx.Unlock()
	return s.config.Sleeper(ctx, resetDelay)
}

// ReadPMValues reads mass and number concentrations and the typical particle size.
func (s *SEN44) ReadPMValues(ctx context.Context) (PMValues, error) {
	s.opMx.Lock()
	defer s.opMx.Unlock()
	s.mx.Lock()
	failed, initialized := s.failed, s.initialized
	s.mx.Unlock()
	if failed {
		return PMValues{}, ErrFailed
	}
	if !initialized {
		return PMValues{}, ErrNotInitialized
	}
	var raw [10]uint16
	if err := s.transport.GetRegister(ctx, cmdReadPMValues, raw[:], registerMaxLatency); err != nil {
		s.setWarning(true)
		return PMValues{}, fmt.Errorf("sen44: read pm values: %w", err)
	}
	return decodePMValues(raw), nil
}

// LastMeasurement returns the most recent successful reading.
func (s *SEN44) LastMeasurement() (Measurement, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.last == nil {
		return Measurement{}, false
	}
	return *s.last, true
}

// Status returns a snapshot of the driver diagnostics.
func (s *SEN44) Status() Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	st := Status{
		State:             s.state,
		Initialized:       s.initialized,
		Failed:            s.failed,
		Warning:           s.warning,
		ProductName:       s.productName,
		SerialNumber:      s.serial,
		FirmwareVersion:   s.firmware,
		AutoCleanInterval: s.autoCleanInterval,
		TemperatureOffset: s.temperatureOffset,
		UpdateInterval:    s.config.UpdateInterval,
		Fields:            boundFields(s.config.Sinks),
	}
	if s.errorCode != nil {
		code := *s.errorCode
		st.ErrorCode = &code
	}
	if s.last != nil {
		m := *s.last
		st.LastMeasurement = &m
	}
	return st
}

func (s *SEN44) isFailed() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.failed
}

func (s *SEN44) setState(state State) {
	s.mx.Lock()
	s.state = state
	s.mx.Unlock()
}

func (s *SEN44) setWarning(v bool) {
	s.mx.Lock()
	s.warning = v
	s.mx.Unlock()
}
