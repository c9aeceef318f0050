// Package sen44 holds the bus contracts shared by the SEN44 driver and the
// transports it runs on.
package sen44

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// AddressableReader reads a raw reply from the device at the 7-bit address.
type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

// AddressableWriter writes a raw frame to the device at the 7-bit address.
// Release frees the bus when the transport holds it between transactions.
type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is implemented by every transport the driver can run on:
// periph and gobot buses in package i2c and the MCP2221 USB bridge in package adapter.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
