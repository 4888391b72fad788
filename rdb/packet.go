// Package rdb implements the RDB packet framing (§4.2) and the
// request/response command layer built on top of it (§4.3). It knows
// nothing about block geometry or BBFS; it only moves tagged packets and
// 8-byte commands across a usbbulk.Device.
package rdb

import (
	"time"

	"github.com/Jhynjhiruu/bbrdb/bberr"
	"github.com/Jhynjhiruu/bbrdb/usbbulk"
)

// Wire constants, per spec §4.2.
const (
	// PacketsPerChunk is the device's frame buffer depth: at most this many
	// short or block packets are sent in a single bulk transfer.
	PacketsPerChunk = 80

	// BlockChunkSize is the largest payload a single block packet can carry
	// (one explicit length byte, max 254).
	BlockChunkSize = 254

	// shortChunkSize is the payload size of a single short packet.
	shortChunkSize = 3
)

func encodeHeader(t Tag, length byte) byte {
	return (byte(t) << 2) | (length & 0b11)
}

// EncodeShort encodes a single short packet: one header byte followed by up
// to 3 payload bytes. The result is always 4 bytes long, with unused
// trailing bytes zero, matching the original encode_rdb_packet's fixed
// 4-byte slot.
func EncodeShort(t Tag, data []byte) []byte {
	out := make([]byte, 4)
	out[0] = encodeHeader(t, byte(len(data)))
	copy(out[1:], data)
	return out
}

// EncodeBlock encodes a single block packet: header (len field zero),
// explicit 1-byte length, then the payload (spec §4.2).
func EncodeBlock(t Tag, data []byte) []byte {
	out := make([]byte, 0, 2+len(data))
	out = append(out, encodeHeader(t, 0), byte(len(data)))
	out = append(out, data...)
	return out
}

// DecodeHeader splits a header byte into its tag and short-packet length,
// failing with an *bberr.RDBUnknownError for a tag this client doesn't
// recognise.
func DecodeHeader(b byte) (Tag, byte, error) {
	tag, ok := tagFromByte(b >> 2)
	if !ok {
		return 0, 0, &bberr.RDBUnknownError{Tag: b >> 2}
	}
	return tag, b & 0b11, nil
}

// Link is the RDB packet layer over a usbbulk.Device.
type Link struct {
	dev *usbbulk.Device

	// Timeout bounds each individual packet read. Defaults to the
	// usbbulk.Device's own Timeout when zero.
	Timeout time.Duration
}

// NewLink wraps dev in the RDB packet layer.
func NewLink(dev *usbbulk.Device) *Link {
	return &Link{dev: dev, Timeout: dev.Timeout}
}

// sendShortData sends data as a run of short packets, 3 bytes of payload
// each, batched PacketsPerChunk per bulk transfer (spec §4.2, grounded on
// the original send_rdb_data).
func (l *Link) sendShortData(t Tag, data []byte) error {
	if len(data) == 0 {
		packet := EncodeShort(t, nil)
		n, err := l.dev.Send(packet)
		if err != nil {
			return err
		}
		if n != len(packet) {
			return bberr.ErrWrongDataLength
		}
		return nil
	}
	for i := 0; i < len(data); i += shortChunkSize * PacketsPerChunk {
		end := i + shortChunkSize*PacketsPerChunk
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i:end]
		buf := make([]byte, 0, ((len(chunk)+shortChunkSize-1)/shortChunkSize)*4)
		for j := 0; j < len(chunk); j += shortChunkSize {
			k := j + shortChunkSize
			if k > len(chunk) {
				k = len(chunk)
			}
			buf = append(buf, EncodeShort(t, chunk[j:k])...)
		}
		n, err := l.dev.Send(buf)
		if err != nil {
			return err
		}
		if n != len(buf) {
			return bberr.ErrWrongDataLength
		}
	}
	return nil
}

// sendBlockData sends data as block packets of up to BlockChunkSize bytes,
// batched PacketsPerChunk per bulk transfer (spec §4.2, grounded on the
// original send_rdb_block_data). Used only for HostData payloads > 16
// bytes.
func (l *Link) sendBlockData(t Tag, data []byte) error {
	chunkBytes := BlockChunkSize * PacketsPerChunk
	for i := 0; i < len(data); i += chunkBytes {
		end := i + chunkBytes
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i:end]
		buf := make([]byte, 0, len(chunk)+2*PacketsPerChunk)
		for j := 0; j < len(chunk); j += BlockChunkSize {
			k := j + BlockChunkSize
			if k > len(chunk) {
				k = len(chunk)
			}
			buf = append(buf, EncodeBlock(t, chunk[j:k])...)
		}
		n, err := l.dev.Send(buf)
		if err != nil {
			return err
		}
		if n != len(buf) {
			return bberr.ErrWrongDataLength
		}
	}
	return nil
}

// WriteData sends data tagged with t, choosing block packets when t is
// HostData and the payload exceeds 16 bytes, short packets otherwise (spec
// §4.2's transmission policy).
func (l *Link) WriteData(t Tag, data []byte) error {
	if len(data) > 16 && t == HostData {
		return l.sendBlockData(t, data)
	}
	return l.sendShortData(t, data)
}

// Receive reads a single RDB packet: one header byte, then either a block
// packet's length+payload (DeviceDataB) or a short packet's 3-byte padded
// payload truncated to the declared length (spec §4.2).
func (l *Link) Receive() (Tag, []byte, error) {
	hdr, err := l.dev.Receive(1)
	if err != nil {
		return 0, nil, err
	}
	tag, length, err := DecodeHeader(hdr[0])
	if err != nil {
		return 0, nil, err
	}
	if tag == DeviceDataB {
		lb, err := l.dev.Receive(1)
		if err != nil {
			return 0, nil, err
		}
		data, err := l.dev.Receive(int(lb[0]))
		if err != nil {
			return 0, nil, err
		}
		return tag, data, nil
	}
	data, err := l.dev.Receive(3)
	if err != nil {
		return 0, nil, err
	}
	if int(length) > len(data) {
		length = byte(len(data))
	}
	return tag, data[:length], nil
}

// ReadBulk reads n logical bytes as a single bulk transfer of
// ((n+2)/3)*4 bytes in integer division (ceil(n/3) packets), each 4-byte
// group being a short DeviceData packet (spec §4.2's bulk read helper).
func (l *Link) ReadBulk(n int) ([]byte, error) {
	amount := ((n + 2) / 3) * 4
	data, err := l.dev.Receive(amount)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, n)
	for i := 0; i+4 <= len(data); i += 4 {
		tag, length, err := DecodeHeader(data[i])
		if err != nil {
			return nil, err
		}
		if tag != DeviceData {
			return nil, &bberr.RDBUnexpectedError{Got: tag.String(), Expected: []string{DeviceData.String()}}
		}
		out = append(out, data[i+1:i+1+int(length)]...)
	}
	return out, nil
}
