package sensirion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockI2CBus is a mock implementation of sen44.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestCRC(t *testing.T) {
	tests := []struct {
		name     string
		given    []byte
		expected byte
	}{
		{"datasheet example", []byte{0xBE, 0xEF}, 0x92},
		{"zero", []byte{0x00, 0x00}, 0x81},
		{"one", []byte{0x00, 0x01}, 0xB0},
		{"400", []byte{0x01, 0x90}, 0x4C},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CRC(tt.given))
		})
	}
}

func TestDevice_WriteCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      uint16
		params   []uint16
		expected []byte
	}{
		{
			name:     "bare command",
			cmd:      0x0021,
			expected: []byte{0x00, 0x21},
		},
		{
			name:     "single parameter",
			cmd:      0x6014,
			params:   []uint16{0xBEEF},
			expected: []byte{0x60, 0x14, 0xBE, 0xEF, 0x92},
		},
		{
			name:     "two parameters",
			cmd:      0x8004,
			params:   []uint16{0x0000, 0x0190},
			expected: []byte{0x80, 0x04, 0x00, 0x00, 0x81, 0x01, 0x90, 0x4C},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), tt.expected).Return(nil).Once()
			dev := NewDevice(bus, DefaultAddress)
			require.NoError(t, dev.WriteCommand(context.Background(), tt.cmd, tt.params...))
			bus.AssertExpectations(t)
		})
	}
}

func TestDevice_WriteCommand_Error(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(errors.New("nack")).Once()
	dev := NewDevice(bus, DefaultAddress)
	err := dev.WriteCommand(context.Background(), 0x0104)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensirion: write command 0x0104 failed: nack")
}

func TestDevice_ReadWords(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("ReadFromAddr", mock.Anything, byte(DefaultAddress), mock.Anything).
		Return([]byte{0xBE, 0xEF, 0x92, 0x01, 0x90, 0x4C}, nil).Once()
	dev := NewDevice(bus, DefaultAddress)

	words := make([]uint16, 2)
	require.NoError(t, dev.ReadWords(context.Background(), words))
	assert.Equal(t, []uint16{0xBEEF, 0x0190}, words)
	bus.AssertExpectations(t)
}

func TestDevice_ReadWords_Errors(t *testing.T) {
	tests := []struct {
		name          string
		reply         []byte
		readErr       error
		expectedError string
		isCRC         bool
	}{
		{
			name:          "bus error",
			readErr:       errors.New("i2c read failed"),
			expectedError: "sensirion: read failed: i2c read failed",
		},
		{
			name:          "corrupted second word",
			reply:         []byte{0xBE, 0xEF, 0x92, 0x01, 0x90, 0x00},
			expectedError: "word 1 expected 0x0, got 0x4c",
			isCRC:         true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			bus.On("ReadFromAddr", mock.Anything, byte(DefaultAddress), mock.Anything).
				Return(tt.reply, tt.readErr).Once()
			dev := NewDevice(bus, DefaultAddress)
			err := dev.ReadWords(context.Background(), make([]uint16, 2))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
			assert.Equal(t, tt.isCRC, errors.Is(err, ErrCRCMismatch))
		})
	}
}

func TestDevice_GetRegister(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{0xD1, 0x00}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(DefaultAddress), mock.Anything).
		Return([]byte{0x02, 0x00, CRC([]byte{0x02, 0x00})}, nil).Once()
	dev := NewDevice(bus, DefaultAddress)

	words := make([]uint16, 1)
	start := time.Now()
	require.NoError(t, dev.GetRegister(context.Background(), 0xD100, words, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, uint16(0x0200), words[0])
	bus.AssertExpectations(t)
}

func TestDevice_GetRegister_Cancelled(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{0xD0, 0x33}).Return(nil).Once()
	dev := NewDevice(bus, DefaultAddress)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := dev.GetRegister(ctx, 0xD033, make([]uint16, 3), time.Second)
	assert.Equal(t, context.Canceled, err)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}
