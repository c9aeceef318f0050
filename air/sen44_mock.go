package air

import (
	"context"
	"sync"
)

// MeasurementBehaviorFunc produces a measurement for the mock sensor.
type MeasurementBehaviorFunc func(ctx context.Context) (Measurement, error)

// MockSEN44 is a SEN44 stand-in driven by a behavior function. It keeps the
// driver's bookkeeping (last measurement, warning flag, sinks) so it can back
// the HTTP server and the CLI without hardware.
type MockSEN44 struct {
	mx       sync.Mutex
	behavior MeasurementBehaviorFunc
	config   SEN44Opts

	cleanings int
	warning   bool
	last      *Measurement
}

// NewMockSEN44 creates a mock sensor. Sinks, logger and clock options are honored.
//
// Example usage:
//
//	sensor := NewMockSEN44(func(ctx context.Context) (Measurement, error) {
//		return Measurement{PM2_5: 3.5, Temperature: 21}, nil
//	})
func NewMockSEN44(behavior MeasurementBehaviorFunc, opts ...SEN44Opt) *MockSEN44 {
	return &MockSEN44{behavior: behavior, config: newOpts(opts)}
}

func (m *MockSEN44) Update(ctx context.Context) error {
	measurement, err := m.behavior(ctx)
	if err != nil {
		m.mx.Lock()
		m.warning = true
		m.mx.Unlock()
		return err
	}
	if measurement.Time.IsZero() {
		measurement.Time = m.config.Clock()
	}
	m.mx.Lock()
	m.last = &measurement
	m.warning = false
	m.mx.Unlock()
	publish(ctx, m.config.Logger, m.config.Sinks, measurement)
	return nil
}

func (m *MockSEN44) StartFanCleaning(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mx.Lock()
	m.cleanings++
	m.mx.Unlock()
	return nil
}

// Cleanings returns how many times fan cleaning was requested.
func (m *MockSEN44) Cleanings() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.cleanings
}

func (m *MockSEN44) LastMeasurement() (Measurement, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.last == nil {
		return Measurement{}, false
	}
	return *m.last, true
}

func (m *MockSEN44) Status() Status {
	m.mx.Lock()
	defer m.mx.Unlock()
	st := Status{
		State:             StateReady,
		Initialized:       true,
		Warning:           m.warning,
		ProductName:       "SEN44 (mock)",
		AutoCleanInterval: DefaultAutoCleaningInterval,
		UpdateInterval:    m.config.UpdateInterval,
		Fields:            boundFields(m.config.Sinks),
	}
	if m.last != nil {
		last := *m.last
		st.LastMeasurement = &last
	}
	return st
}
