package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sen44"
)

// fakeHID answers every report with a response built by reply.
type fakeHID struct {
	requests [][]byte
	reply    func(req []byte) []byte
	last     []byte
	closed   int
}

func (f *fakeHID) Write(b []byte) (int, error) {
	req := append([]byte(nil), b...)
	f.requests = append(f.requests, req)
	f.last = f.reply(req)
	return len(b), nil
}

func (f *fakeHID) Read(b []byte) (int, error) {
	copy(b, f.last)
	return reportSize, nil
}

func (f *fakeHID) Close() error {
	f.closed++
	return nil
}

func newFake(reply func(req []byte) []byte) (*MCP2221, *fakeHID) {
	f := &fakeHID{reply: reply}
	d := NewMCP2221(
		WithResponseWait(0),
		WithOpener(func(id ...int) (HIDDevice, error) { return f, nil }),
	)
	return d, f
}

func response(cmd byte, bytes ...byte) []byte {
	res := make([]byte, reportSize)
	res[0] = cmd
	copy(res[1:], bytes)
	return res
}

func TestMCP2221_WriteToAddr(t *testing.T) {
	d, f := newFake(func(req []byte) []byte { return response(req[0], 0x00) })

	require.NoError(t, d.WriteToAddr(context.Background(), 0x69, []byte{0xD1, 0x00}))
	require.Len(t, f.requests, 1)
	assert.Equal(t, []byte{cmdI2CWrite, 0x02, 0x00, 0xD2, 0xD1, 0x00}, f.requests[0][:6])
	assert.Equal(t, 1, f.closed)
}

func TestMCP2221_WriteBusy(t *testing.T) {
	d, _ := newFake(func(req []byte) []byte { return response(req[0], 0x01) })
	assert.ErrorIs(t, d.WriteToAddr(context.Background(), 0x69, []byte{0x00, 0x21}), sen44.ErrBusBusy)
}

func TestMCP2221_ReadFromAddr(t *testing.T) {
	d, f := newFake(func(req []byte) []byte {
		if req[0] == cmdI2CGet {
			return response(cmdI2CGet, 0x00, 0x00, 3, 0x02, 0x00, 0x5B)
		}
		return response(req[0], 0x00)
	})

	buf := make([]byte, 3)
	require.NoError(t, d.ReadFromAddr(context.Background(), 0x69, buf))
	assert.Equal(t, []byte{0x02, 0x00, 0x5B}, buf)
	require.Len(t, f.requests, 2)
	assert.Equal(t, []byte{cmdI2CRead, 0x03, 0x00, 0xD3}, f.requests[0][:4])
	assert.Equal(t, byte(cmdI2CGet), f.requests[1][0])
}

func TestMCP2221_ReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		want  string
	}{
		{"engine error", response(cmdI2CGet, 0x41), "I2C engine"},
		{"size mismatch", response(cmdI2CGet, 0x00, 0x00, 2), "expected 3, got 2"},
		{"size invalid", response(cmdI2CGet, 0x00, 0x00, 127), "expected 3, got 127"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newFake(func(req []byte) []byte {
				if req[0] == cmdI2CGet {
					return tt.reply
				}
				return response(req[0], 0x00)
			})
			err := d.ReadFromAddr(context.Background(), 0x69, make([]byte, 3))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestMCP2221_Oversized(t *testing.T) {
	d, f := newFake(func(req []byte) []byte { return response(req[0]) })
	assert.Error(t, d.WriteToAddr(context.Background(), 0x69, make([]byte, 61)))
	assert.Error(t, d.ReadFromAddr(context.Background(), 0x69, make([]byte, 61)))
	assert.Empty(t, f.requests)
}

func TestMCP2221_SetSpeed(t *testing.T) {
	d, f := newFake(func(req []byte) []byte { return response(req[0], 0x00, 0x00, setSpeed) })

	require.NoError(t, d.SetSpeed(context.Background(), 100_000))
	assert.Equal(t, []byte{cmdStatusSet, 0x00, 0x00, setSpeed, 117}, f.requests[0][:5])
	assert.Error(t, d.SetSpeed(context.Background(), 0))
	assert.Error(t, d.SetSpeed(context.Background(), 10_000_000))

	d, _ = newFake(func(req []byte) []byte { return response(req[0], 0x00, 0x00, 0x21) })
	assert.ErrorIs(t, d.SetSpeed(context.Background(), 100_000), ErrCommandFailed)
}

func TestMCP2221_Status(t *testing.T) {
	res := response(cmdStatusSet)
	res[9], res[10] = 0x06, 0x00
	res[11], res[12] = 0x04, 0x00
	res[13], res[14], res[15] = 2, 117, 5
	res[16], res[17] = 0xD2, 0x00
	res[25] = 1
	d, f := newFake(func(req []byte) []byte { return res })

	st, err := d.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &MCP2221Status{
		I2CDataBufferCounter:   2,
		I2CSpeedDivider:        117,
		I2CTimeout:             5,
		CurrentAddress:         "d200",
		LastWriteRequestedSize: 6,
		LastWriteSentSize:      4,
		ReadPending:            1,
	}, st)

	_, err = d.ReleaseBus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(cancelI2C), f.requests[1][2])
	require.NoError(t, d.Init())
	require.NoError(t, d.Release(context.Background()))
}

func TestMCP2221_DeviceMissing(t *testing.T) {
	d := NewMCP2221(WithOpener(func(id ...int) (HIDDevice, error) { return nil, ErrDeviceNotFound }))
	assert.ErrorIs(t, d.Init(), ErrDeviceNotFound)
	assert.ErrorIs(t, d.WriteToAddr(context.Background(), 0x69, nil), ErrDeviceNotFound)
}

func TestMCP2221_Cancelled(t *testing.T) {
	d, f := newFake(func(req []byte) []byte { return response(req[0]) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.WriteToAddr(ctx, 0x69, []byte{1})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, f.requests)
}
