// Package block implements raw block/spare NAND access on top of the RDB
// command layer: ReadBlockAndSpare, WriteBlockAndSpare, ScanBadBlocks, and
// the bad-block detection and bounded retry that sit in front of them (spec
// §4.4).
package block

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/Jhynjhiruu/bbrdb/bberr"
	"github.com/Jhynjhiruu/bbrdb/rdb"
	"github.com/Jhynjhiruu/bbrdb/util"
)

// Geometry constants, per spec §4.
const (
	Size      = 0x4000 // NAND block payload size
	SpareSize = 0x10   // spare area size
	NumFATs   = 16     // redundant FAT copies occupy the final 16 blocks
)

// maxAttempts bounds the retry loop a single block op is allowed, per spec
// §4.4's "retry up to 5 times on transport errors".
const maxAttempts = 5

// Device is the block-level NAND interface, built on an rdb.Commander.
type Device struct {
	cmd *rdb.Commander
}

// NewDevice wraps cmd in the block-level NAND interface.
func NewDevice(cmd *rdb.Commander) *Device {
	return &Device{cmd: cmd}
}

// retry runs op up to maxAttempts times, continuing only while the returned
// error is a transport error (spec §7: "only the Transport subclass is
// retried"). Grounded on comm.RemoteDevice.Open's backoff.Retry usage,
// adapted to a fixed attempt count rather than a wall-clock budget since
// the device side has no notion of elapsed time to race against.
func retry(op func() error) error {
	attempts := 0
	wrapped := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if attempts >= maxAttempts || !bberr.IsTransport(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, backoff.WithMaxRetries(backoff.NewConstantBackOff(0), maxAttempts-1))
}

func statusToErr(status uint32) error {
	s := int32(status)
	if s == 0 {
		return nil
	}
	return bberr.CardErrorFromStatus(s)
}

// ReadBlockAndSpare reads the Size-byte block body and SpareSize-byte spare
// area for block blk, retrying transport failures (spec §4.4). A spare
// whose byte 5 has more than one zero bit fails with *bberr.BadBlockError.
func (d *Device) ReadBlockAndSpare(ctx context.Context, blk uint32) (nand, spare []byte, err error) {
	err = retry(func() error {
		if e := d.cmd.SendCommand(ctx, rdb.CmdReadBlockAndSpare, blk); e != nil {
			return e
		}
		words, e := d.cmd.Response(rdb.CmdReadBlockAndSpare, 1)
		if e != nil {
			return e
		}
		if e := statusToErr(words[0]); e != nil {
			return e
		}
		n, e := d.cmd.ReadBytes(Size)
		if e != nil {
			return e
		}
		s, e := d.cmd.ReadBytes(SpareSize)
		if e != nil {
			return e
		}
		if util.CountZeroBits(s[5]) > 1 {
			return &bberr.BadBlockError{Block: n, Spare: s}
		}
		nand, spare = n, s
		return nil
	})
	return nand, spare, err
}

// WriteBlockAndSpare writes nand (Size bytes) and spare (SpareSize bytes)
// to block blk (spec §4.4). A block whose spare byte 5 is not 0xFF is
// treated as already known-bad and is silently skipped.
func (d *Device) WriteBlockAndSpare(ctx context.Context, blk uint32, nand, spare []byte) error {
	if len(spare) >= 6 && spare[5] != 0xFF {
		return nil
	}
	return retry(func() error {
		if e := d.cmd.SendCommand(ctx, rdb.CmdWriteBlockAndSpare, blk); e != nil {
			return e
		}
		if e := d.cmd.SendData(nand, spare); e != nil {
			return e
		}
		words, e := d.cmd.Response(rdb.CmdWriteBlockAndSpare, 1)
		if e != nil {
			return e
		}
		return statusToErr(words[0])
	})
}

// ScanBadBlocks issues ScanBlocks and waits for the device to finish
// scanning before reading back a per-block bad/good table (spec §4.4).
func (d *Device) ScanBadBlocks(ctx context.Context, numBlocks int) ([]bool, error) {
	if err := d.cmd.SendCommand(ctx, rdb.CmdScanBlocks, 0); err != nil {
		return nil, err
	}
	select {
	case <-time.After(10 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	words, err := d.cmd.Response(rdb.CmdScanBlocks, 1)
	if err != nil {
		return nil, err
	}
	n := int(words[0])
	raw, err := d.cmd.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	bad := make([]bool, numBlocks)
	for i := 0; i < n && i < numBlocks; i++ {
		bad[i] = raw[i] != 0
	}
	return bad, nil
}
