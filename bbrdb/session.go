// Package bbrdb is the root of the client: it wires usbbulk, rdb, block,
// and bbfs into the public Handle used by callers (spec.md component #7,
// SPEC_FULL.md §4.7).
package bbrdb

import (
	"context"
	"log"
	"time"

	"github.com/google/gousb"

	"github.com/Jhynjhiruu/bbrdb/bberr"
	"github.com/Jhynjhiruu/bbrdb/bbfs"
	"github.com/Jhynjhiruu/bbrdb/block"
	"github.com/Jhynjhiruu/bbrdb/progress"
	"github.com/Jhynjhiruu/bbrdb/rdb"
	"github.com/Jhynjhiruu/bbrdb/usbbulk"
)

// Verbose gates the package's diagnostic logging, mirroring the corpus's ad
// hoc print-then-continue style rather than pulling in a structured logger
// (see DESIGN.md).
var Verbose bool

func logf(format string, args ...any) {
	if Verbose {
		log.Printf(format, args...)
	}
}

// ScanDevices enumerates every attached device matching the console's
// vendor IDs (retail or dev) and its debug product ID, grounded on original
// usb.rs's scan_devices_in/bbp_type. The caller owns the returned
// *gousb.Context and must Close it once done with any device obtained
// from it.
func ScanDevices() (*gousb.Context, []*gousb.Device, error) {
	return usbbulk.Scan()
}

// Handle is a session against one console's debug USB interface. It is
// Closed until Init succeeds, at which point it is Ready, optionally with a
// loaded filesystem (fat != nil) or without one (a blank or corrupt card) —
// spec.md §4.6's session state machine.
type Handle struct {
	link *usbbulk.Device
	cmd  *rdb.Commander
	dev  *block.Device

	cardSize uint32
	fat      *bbfs.Fat
}

// NewHandle claims device's debug interface and returns a Handle in the
// Closed state; call Init before using any other method.
func NewHandle(device *gousb.Device) (*Handle, error) {
	link, err := usbbulk.Open(device)
	if err != nil {
		return nil, err
	}
	cmd := rdb.NewCommander(link)
	return &Handle{
		link: link,
		cmd:  cmd,
		dev:  block.NewDevice(cmd),
	}, nil
}

// checkSeqNoPresent interprets the SetSeqNo handshake's status word per
// spec.md §4.6: zero means no card in the reader, and Init must leave the
// Handle Closed rather than proceeding to the card-size handshake.
func checkSeqNoPresent(status uint32) error {
	if status == 0 {
		return bberr.ErrCardNotPresent
	}
	return nil
}

func (h *Handle) initialised() bool {
	return h.cardSize != 0
}

func (h *Handle) checkInitialised() error {
	if !h.initialised() {
		return bberr.ErrNotInitialised
	}
	return nil
}

// requireFAT returns the loaded FAT, or ErrNoFAT if the card has no valid
// filesystem, or ErrNotInitialised if Init hasn't succeeded yet (original
// lib.rs's require_fat!/require_init! macros, expressed as Go guard
// clauses).
func (h *Handle) requireFAT() (*bbfs.Fat, error) {
	if !h.initialised() {
		return nil, bberr.ErrNotInitialised
	}
	if h.fat == nil {
		return nil, bberr.ErrNoFAT
	}
	return h.fat, nil
}

// Init performs the seqno handshake, the card-size handshake, and
// transitions the Handle from Closed to Ready: it first sends SetSeqNo and
// requires a non-zero result (card present in the reader; spec.md §4.6's
// "Ready requires the SetSeqNo handshake to have returned non-zero"), reads
// back GetSeqNo to complete the round trip, reads the card's block count,
// then scans the final block.NumFATs blocks for the highest-seqno FAT
// (FindBestFAT). A card with no valid FAT still leaves the Handle Ready,
// but every FS method returns ErrNoFAT until a WriteFile/InitFS-equivalent
// establishes one. Calling Init again on an already-initialised Handle
// closes it first, as original lib.rs's Init does.
func (h *Handle) Init(ctx context.Context) error {
	if h.initialised() {
		if err := h.Close(); err != nil {
			return err
		}
	}

	if err := h.cmd.SendCommand(ctx, rdb.CmdSetSeqNo, 0); err != nil {
		return err
	}
	seqWords, err := h.cmd.Response(rdb.CmdSetSeqNo, 1)
	if err != nil {
		return err
	}
	if err := checkSeqNoPresent(seqWords[0]); err != nil {
		return err
	}

	if err := h.cmd.SendCommand(ctx, rdb.CmdGetSeqNo, 0); err != nil {
		return err
	}
	if _, err := h.cmd.Response(rdb.CmdGetSeqNo, 1); err != nil {
		return err
	}

	if err := h.cmd.SendCommand(ctx, rdb.CmdGetNumBlocks, 0); err != nil {
		return err
	}
	words, err := h.cmd.Response(rdb.CmdGetNumBlocks, 1)
	if err != nil {
		return err
	}
	cardSize := words[0]
	if cardSize == 0 || cardSize%0x1000 != 0 {
		return bberr.ErrUnhandledCardSize
	}

	fat, err := bbfs.FindBestFAT(ctx, h.dev, cardSize)
	if err != nil && err != bberr.ErrNoFAT {
		return err
	}

	h.cardSize = cardSize
	h.fat = fat
	return nil
}

// Close releases the USB interface (kernel-driver reattach is paired via
// usbbulk.Device's SetAutoDetach) and returns the Handle to the Closed
// state.
func (h *Handle) Close() error {
	if err := h.checkInitialised(); err != nil {
		return err
	}
	h.cardSize = 0
	h.fat = nil
	return h.link.Close()
}

// GetBBID returns the console's unique ID.
func (h *Handle) GetBBID(ctx context.Context) (uint32, error) {
	if err := h.cmd.SendCommand(ctx, rdb.CmdGetBBID, 0); err != nil {
		return 0, err
	}
	words, err := h.cmd.Response(rdb.CmdGetBBID, 1)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

// SetLED sets the console's debug LED state.
func (h *Handle) SetLED(ctx context.Context, val uint32) error {
	if err := h.cmd.SendCommand(ctx, rdb.CmdSetLED, val); err != nil {
		return err
	}
	_, err := h.cmd.Response(rdb.CmdSetLED, 0)
	return err
}

// SetTime sets the console's real-time clock. Packed per spec §4.6: year%100,
// month, day, weekday, a zero pad byte, hour, minute, second; the first 4
// bytes travel as the command argument, the remaining 4 as a HostData
// follow-on (matching original lib.rs's SetTime, which only sends the tail
// once the status word confirms the head was accepted).
func (h *Handle) SetTime(ctx context.Context, when time.Time) error {
	timedata := packTime(when)
	arg := uint32(timedata[0])<<24 | uint32(timedata[1])<<16 | uint32(timedata[2])<<8 | uint32(timedata[3])
	if err := h.cmd.SendCommand(ctx, rdb.CmdSetTime, arg); err != nil {
		return err
	}
	words, err := h.cmd.Response(rdb.CmdSetTime, 1)
	if err != nil {
		return err
	}
	if status := int32(words[0]); status < 0 {
		return &bberr.SetTimeError{Status: status}
	}
	return h.cmd.SendData(timedata[4:])
}

// ScanBadBlocks asks the console to scan its NAND for bad blocks, blocking
// until the scan completes, and returns one bool per block (true = bad).
func (h *Handle) ScanBadBlocks(ctx context.Context) ([]bool, error) {
	return h.dev.ScanBadBlocks(ctx, int(h.cardSize))
}

// ReadSingleBlock reads one block's NAND data and spare bytes.
func (h *Handle) ReadSingleBlock(ctx context.Context, blk uint32) (nand, spare []byte, err error) {
	return h.dev.ReadBlockAndSpare(ctx, blk)
}

// WriteSingleBlock writes one block's NAND data and spare bytes. A no-op if
// the block is already marked bad in spare.
func (h *Handle) WriteSingleBlock(ctx context.Context, blk uint32, nand, spare []byte) error {
	return h.dev.WriteBlockAndSpare(ctx, blk, nand, spare)
}

// DumpNAND reads the whole card's NAND data (no spare bytes), substituting
// a zeroed block for any that fails to read, with a log line, matching
// original lib.rs's DumpNAND.
func (h *Handle) DumpNAND(ctx context.Context, r progress.Reporter) ([]byte, error) {
	if err := h.checkInitialised(); err != nil {
		return nil, err
	}
	if r == nil {
		r = progress.Noop{}
	}
	defer r.Done()

	out := make([]byte, 0, int(h.cardSize)*block.Size)
	for i := uint32(0); i < h.cardSize; i++ {
		nand, _, err := h.dev.ReadBlockAndSpare(ctx, i)
		if err != nil {
			logf("bbrdb: block %d: %v", i, err)
			nand = make([]byte, block.Size)
		}
		out = append(out, nand...)
		r.Inc(1)
	}
	return out, nil
}

// DumpNANDSpare reads the whole card's NAND data and spare bytes. A bad
// block still contributes its (valid) data and spare bytes with a log line;
// any other error substitutes zeroed data for that block.
func (h *Handle) DumpNANDSpare(ctx context.Context, r progress.Reporter) (nand, spare []byte, err error) {
	if err := h.checkInitialised(); err != nil {
		return nil, nil, err
	}
	if r == nil {
		r = progress.Noop{}
	}
	defer r.Done()

	nand = make([]byte, 0, int(h.cardSize)*block.Size)
	spare = make([]byte, 0, int(h.cardSize)*block.SpareSize)
	for i := uint32(0); i < h.cardSize; i++ {
		n, s, err := h.dev.ReadBlockAndSpare(ctx, i)
		var bad *bberr.BadBlockError
		switch {
		case err == nil:
			nand = append(nand, n...)
			spare = append(spare, s...)
		case isBadBlock(err, &bad):
			nand = append(nand, bad.Block...)
			spare = append(spare, bad.Spare...)
			logf("bbrdb: bad block: %d", i)
		default:
			nand = append(nand, make([]byte, block.Size)...)
			spare = append(spare, make([]byte, block.SpareSize)...)
			logf("bbrdb: block %d: %v", i, err)
		}
		r.Inc(1)
	}
	return nand, spare, nil
}

// packTime packs when into the 8-byte layout the device's SetTime command
// expects (spec §4.6): year%100, month, day, weekday, a zero pad byte,
// hour, minute, second.
func packTime(when time.Time) [8]byte {
	return [8]byte{
		byte(when.Year() % 100),
		byte(when.Month()),
		byte(when.Day()),
		byte(when.Weekday()),
		0,
		byte(when.Hour()),
		byte(when.Minute()),
		byte(when.Second()),
	}
}

func isBadBlock(err error, target **bberr.BadBlockError) bool {
	if bb, ok := err.(*bberr.BadBlockError); ok {
		*target = bb
		return true
	}
	return false
}

// WriteNAND writes nand (a whole card's worth of block data) and a matching
// all-good spare table back to the device, block by block.
func (h *Handle) WriteNAND(ctx context.Context, nand []byte, r progress.Reporter) error {
	if err := h.checkInitialised(); err != nil {
		return err
	}
	if uint32(len(nand)) != h.cardSize*block.Size {
		return &bberr.InvalidNANDSizeError{Got: len(nand), Want: int(h.cardSize) * block.Size}
	}
	if r == nil {
		r = progress.Noop{}
	}
	defer r.Done()

	spare := make([]byte, block.SpareSize)
	for i := range spare {
		spare[i] = 0xFF
	}
	for i := uint32(0); i < h.cardSize; i++ {
		chunk := nand[i*block.Size : (i+1)*block.Size]
		if err := h.dev.WriteBlockAndSpare(ctx, i, chunk, spare); err != nil {
			return err
		}
		r.Inc(1)
	}
	return nil
}

// WriteNANDSpare writes matching nand and spare tables for a whole card
// back to the device, block by block.
func (h *Handle) WriteNANDSpare(ctx context.Context, nand, spare []byte, r progress.Reporter) error {
	if err := h.checkInitialised(); err != nil {
		return err
	}
	if uint32(len(nand)) != h.cardSize*block.Size {
		return &bberr.InvalidNANDSizeError{Got: len(nand), Want: int(h.cardSize) * block.Size}
	}
	if uint32(len(spare)) != h.cardSize*block.SpareSize {
		return &bberr.InvalidSpareSizeError{Got: len(spare), Want: int(h.cardSize) * block.SpareSize}
	}
	if r == nil {
		r = progress.Noop{}
	}
	defer r.Done()

	for i := uint32(0); i < h.cardSize; i++ {
		n := nand[i*block.Size : (i+1)*block.Size]
		s := spare[i*block.SpareSize : (i+1)*block.SpareSize]
		if err := h.dev.WriteBlockAndSpare(ctx, i, n, s); err != nil {
			return err
		}
		r.Inc(1)
	}
	return nil
}

// ListFiles returns every valid file's name and logical size.
func (h *Handle) ListFiles() ([]bbfs.DirEntry, error) {
	fat, err := h.requireFAT()
	if err != nil {
		return nil, err
	}
	return (&bbfs.FS{Dev: h.dev, Fat: fat}).ListFiles(), nil
}

// StatFile returns the directory entry for name without reading its data.
func (h *Handle) StatFile(name string) (*bbfs.FileEntry, error) {
	fat, err := h.requireFAT()
	if err != nil {
		return nil, err
	}
	return (&bbfs.FS{Dev: h.dev, Fat: fat}).StatFile(name)
}

// ListFileBlocks returns the ordered NAND block indices backing name.
func (h *Handle) ListFileBlocks(name string) ([]uint32, error) {
	fat, err := h.requireFAT()
	if err != nil {
		return nil, err
	}
	return (&bbfs.FS{Dev: h.dev, Fat: fat}).ListFileBlocks(name)
}

// ReadFile reads name's full (pad-stripped) contents, or (nil, nil) if it
// doesn't exist.
func (h *Handle) ReadFile(ctx context.Context, name string) ([]byte, error) {
	fat, err := h.requireFAT()
	if err != nil {
		return nil, err
	}
	return (&bbfs.FS{Dev: h.dev, Fat: fat}).ReadFile(ctx, name)
}

// WriteFile stores data under name via the temp-swap-and-verify sequence
// (spec §4.6), establishing a fresh FAT generation if the card had none.
func (h *Handle) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := h.checkInitialised(); err != nil {
		return err
	}
	if h.fat == nil {
		h.fat = &bbfs.Fat{
			Entries:  make([]uint16, h.cardSize),
			Files:    make([]bbfs.FileEntry, bbfs.NumDirEntries),
			CardSize: h.cardSize,
			Blkno:    h.cardSize - block.NumFATs,
		}
	}
	fs := &bbfs.FS{Dev: h.dev, Fat: h.fat}
	return fs.WriteFile(ctx, h.cmd, name, data)
}

// DeleteFile removes name, if it exists.
func (h *Handle) DeleteFile(ctx context.Context, name string) error {
	fat, err := h.requireFAT()
	if err != nil {
		return err
	}
	return (&bbfs.FS{Dev: h.dev, Fat: fat}).DeleteFile(ctx, name)
}

// RenameFile renames from to to.
func (h *Handle) RenameFile(ctx context.Context, from, to string) error {
	fat, err := h.requireFAT()
	if err != nil {
		return err
	}
	return (&bbfs.FS{Dev: h.dev, Fat: fat}).RenameFile(ctx, from, to)
}

// CardStats summarises the loaded FAT's free/used/bad block counts and
// current seqno.
func (h *Handle) CardStats() (bbfs.Stats, error) {
	fat, err := h.requireFAT()
	if err != nil {
		return bbfs.Stats{}, err
	}
	return fat.Stats(), nil
}

// DumpCurrentFS re-serialises the loaded FAT's first fragment, with its
// checksum fixed, for diagnostic inspection. The fragment carries seqno+1
// and a link_block of 0; on a card with more than one FAT fragment, the
// block a commit writes differs from it in link_block and checksum.
func (h *Handle) DumpCurrentFS() ([]byte, error) {
	fat, err := h.requireFAT()
	if err != nil {
		return nil, err
	}
	frags := fat.Serialize()
	if len(frags) == 0 {
		return nil, bberr.ErrNoFAT
	}
	bbfs.FixChecksum(frags[0])
	return frags[0], nil
}

// ReadSKSA reads the console's secure kernel and secondary application
// regions (spec §4.4a).
func (h *Handle) ReadSKSA(ctx context.Context) ([]byte, error) {
	if err := h.checkInitialised(); err != nil {
		return nil, err
	}
	return bbfs.ReadSKSA(ctx, h.dev)
}
