package i2c

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gobot "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/sen44"
)

var _ sen44.I2CBus = &GobotBus{}

// GobotBus talks through a gobot I2C connector, e.g. the NanoPi NEO adaptor.
// A generic driver is started lazily for every address in use.
type GobotBus struct {
	connector gobot.Connector
	bus       int

	mx      sync.Mutex
	drivers map[byte]*gobot.GenericDriver
}

func NewGobotBus(connector gobot.Connector, bus int) *GobotBus {
	return &GobotBus{
		connector: connector,
		bus:       bus,
		drivers:   make(map[byte]*gobot.GenericDriver),
	}
}

func (b *GobotBus) driver(address byte) (*gobot.GenericDriver, error) {
	if d, ok := b.drivers[address]; ok {
		return d, nil
	}
	d := gobot.NewGenericDriver(b.connector, fmt.Sprintf("sen44-%#x", address), int(address), func(c gobot.Config) {
		c.SetBus(b.bus)
	})
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("could not start i2c driver %#x on bus %d: %w", address, b.bus, err)
	}
	b.drivers[address] = d
	return d, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	d, err := b.driver(address)
	if err != nil {
		return err
	}
	if err := d.Read(buffer); err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	d, err := b.driver(address)
	if err != nil {
		return err
	}
	if err := d.Write(buffer); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close halts every started driver.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for addr, d := range b.drivers {
		if err := d.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %#x: %w", addr, err))
		}
		delete(b.drivers, addr)
	}
	return errors.Join(errs...)
}
