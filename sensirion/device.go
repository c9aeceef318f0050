// Package sensirion implements the I2C framing shared by Sensirion sensors:
// 16-bit command words followed by 16-bit data words, every data word
// protected by a CRC-8 (polynomial 0x31, initial value 0xFF).
package sensirion

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sigurn/crc8"

	"github.com/mklimuk/sen44"
	"github.com/mklimuk/sen44/snsctx"
)

// DefaultAddress is the SEN44/SEN5x 7-bit I2C address.
const DefaultAddress = 0x69

const (
	wordLength = 2
	crcLength  = 1
)

var ErrCRCMismatch = errors.New("sensirion: crc mismatch")

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/SENSIRION",
})

// CRC returns the Sensirion checksum of a data word.
func CRC(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}

// Device talks to one Sensirion sensor on a shared bus.
type Device struct {
	transport sen44.I2CBus
	addr      byte
}

func NewDevice(transport sen44.I2CBus, addr byte) *Device {
	return &Device{transport: transport, addr: addr}
}

// Address returns the 7-bit address of the device.
func (d *Device) Address() byte {
	return d.addr
}

// WriteCommand sends the command word followed by optional parameter words,
// each one framed as hi, lo, crc.
func (d *Device) WriteCommand(ctx context.Context, cmd uint16, params ...uint16) error {
	frame := make([]byte, 0, wordLength+len(params)*(wordLength+crcLength))
	frame = append(frame, byte(cmd>>8), byte(cmd))
	for _, p := range params {
		word := []byte{byte(p >> 8), byte(p)}
		frame = append(frame, word[0], word[1], CRC(word))
	}
	if snsctx.IsVerbose(ctx) {
		slog.Debug("sensirion write", "addr", fmt.Sprintf("%#x", d.addr), "frame", hex.EncodeToString(frame))
	}
	if err := d.transport.WriteToAddr(ctx, d.addr, frame); err != nil {
		return fmt.Errorf("sensirion: write command %#04x failed: %w", cmd, err)
	}
	return nil
}

// ReadWords reads len(words) CRC-protected words from the device.
func (d *Device) ReadWords(ctx context.Context, words []uint16) error {
	buf := make([]byte, len(words)*(wordLength+crcLength))
	if err := d.transport.ReadFromAddr(ctx, d.addr, buf); err != nil {
		return fmt.Errorf("sensirion: read failed: %w", err)
	}
	if snsctx.IsVerbose(ctx) {
		slog.Debug("sensirion read", "addr", fmt.Sprintf("%#x", d.addr), "frame", hex.EncodeToString(buf))
	}
	return decodeWords(buf, words)
}

// GetRegister issues cmd, waits up to maxWait for the device to prepare the
// reply and reads len(words) words.
func (d *Device) GetRegister(ctx context.Context, cmd uint16, words []uint16, maxWait time.Duration) error {
	if err := d.WriteCommand(ctx, cmd); err != nil {
		return err
	}
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := d.ReadWords(ctx, words); err != nil {
		return fmt.Errorf("sensirion: get register %#04x: %w", cmd, err)
	}
	return nil
}

func decodeWords(buf []byte, words []uint16) error {
	for i := range words {
		off := i * (wordLength + crcLength)
		word := buf[off : off+wordLength]
		expected := buf[off+wordLength]
		if crc := CRC(word); crc != expected {
			return fmt.Errorf("%w: word %d expected %#x, got %#x", ErrCRCMismatch, i, expected, crc)
		}
		words[i] = uint16(word[0])<<8 | uint16(word[1])
	}
	return nil
}
