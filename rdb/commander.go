package rdb

import (
	"context"
	"encoding/binary"

	"golang.org/x/time/rate"

	"github.com/Jhynjhiruu/bbrdb/bberr"
	"github.com/Jhynjhiruu/bbrdb/usbbulk"
)

// readyPollRate bounds how often Commander polls for DeviceReadyForData.
// The original client (player_comms.rs's is_ready/wait_ready) busy-waits
// with no pacing at all; we cap it instead of spinning the USB link.
const readyPollRate = 200 // polls per second

// Commander is the request/response command layer (spec §4.3): it sends an
// 8-byte command payload over HostData and reads back a complemented-echo
// status followed by the response words, having first confirmed the device
// is ready to receive.
type Commander struct {
	link    *Link
	limiter *rate.Limiter
}

// NewCommander wraps dev in the RDB packet and command layers.
func NewCommander(dev *usbbulk.Device) *Commander {
	return &Commander{
		link:    NewLink(dev),
		limiter: rate.NewLimiter(rate.Limit(readyPollRate), 1),
	}
}

// awaitReady blocks until the device reports DeviceReadyForData, paced by
// the Commander's limiter so the poll loop doesn't saturate the bus.
func (c *Commander) awaitReady(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		tag, _, err := c.link.Receive()
		if err != nil {
			return err
		}
		if tag == DeviceReadyForData {
			return nil
		}
	}
}

// SendCommand waits for the device to signal readiness, then sends id/arg as
// an 8-byte big-endian HostData payload (spec §4.3).
func (c *Commander) SendCommand(ctx context.Context, id CommandID, arg uint32) error {
	if err := c.awaitReady(ctx); err != nil {
		return err
	}
	var payload [8]byte
	binary.BigEndian.PutUint32(payload[0:4], uint32(id))
	binary.BigEndian.PutUint32(payload[4:8], arg)
	return c.link.WriteData(HostData, payload[:])
}

// SendData transmits data tagged HostData, for commands (like
// WriteBlockAndSpare) that follow their command payload with a raw data
// block rather than waiting for a reply first.
func (c *Commander) SendData(data ...[]byte) error {
	for _, d := range data {
		if err := c.link.WriteData(HostData, d); err != nil {
			return err
		}
	}
	return nil
}

// Response reads a command's status word plus n further big-endian u32
// response words (spec §4.3), verifying the status word is the bitwise
// complement of id.
func (c *Commander) Response(id CommandID, n int) ([]uint32, error) {
	raw, err := c.link.ReadBulk((n + 1) * 4)
	if err != nil {
		return nil, err
	}
	if len(raw) < (n+1)*4 {
		return nil, bberr.ErrInvalidReplyLength
	}
	status := binary.BigEndian.Uint32(raw[0:4])
	want := ^uint32(id)
	if status != want {
		return nil, &bberr.IncorrectCmdResponseError{Got: status, Expected: want}
	}
	words := make([]uint32, n)
	for i := 0; i < n; i++ {
		words[i] = binary.BigEndian.Uint32(raw[(i+1)*4 : (i+2)*4])
	}
	return words, nil
}

// ReadBytes reads n further raw bytes following an already-verified
// Response, for commands whose reply is a fixed status followed by a
// separate bulk payload (block body, spare area, file contents) rather
// than more u32 words.
func (c *Commander) ReadBytes(n int) ([]byte, error) {
	return c.link.ReadBulk(n)
}

// ResponseBytes reads a command's status word followed by n raw response
// bytes, used by commands whose entire reply (status plus payload) is a
// single bulk transfer.
func (c *Commander) ResponseBytes(id CommandID, n int) ([]byte, error) {
	raw, err := c.link.ReadBulk(4 + n)
	if err != nil {
		return nil, err
	}
	if len(raw) < 4+n {
		return nil, bberr.ErrInvalidReplyLength
	}
	status := binary.BigEndian.Uint32(raw[0:4])
	want := ^uint32(id)
	if status != want {
		return nil, &bberr.IncorrectCmdResponseError{Got: status, Expected: want}
	}
	return raw[4 : 4+n], nil
}
