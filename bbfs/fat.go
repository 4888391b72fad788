// Package bbfs implements the on-host model of BBFS: the whole-card FAT
// plus directory that is stored redundantly across the final 16 NAND
// blocks of the card, and the filesystem operations (read, write, rename,
// delete, atomic commit) built on top of it.
package bbfs

import (
	"context"
	"encoding/binary"

	"github.com/Jhynjhiruu/bbrdb/bberr"
	"github.com/Jhynjhiruu/bbrdb/block"
)

// FAT entry sentinel values, encoded as a big-endian u16 on disk (spec §3).
const (
	EntryFree       = 0x0000
	EntryEndOfChain = 0xFFFF
	EntryBadBlock   = 0xFFFE
	EntryReserved   = 0xFFFD
)

// ChecksumTarget is the value the big-endian u16 words of a valid FS block
// must sum to, modulo 2^16 (spec §4.5, §6).
const ChecksumTarget = 0xCAD7

// Layout of one 0x4000-byte FS block: a 0x1000-entry FAT region, a
// directory of NumDirEntries 20-byte entries, and a 12-byte footer
// (4-byte type magic + u32 seqno + u16 link_block + u16 checksum). The
// entry width (name[8]+ext[3]+valid[1]+start[2]+pad[2]+size[4]) and the
// footer layout are taken from the original on-disk struct, since they
// account for the block exactly: 0x2000 + 409*20 + 12 == 0x4000.
const (
	fatRegionSize = 0x2000
	numFATEntries = fatRegionSize / 2 // 0x1000

	NumDirEntries = 409
	direntSize    = 20

	footerOffset    = fatRegionSize + NumDirEntries*direntSize // 0x3FF4
	seqnoOffset     = footerOffset + 4
	linkBlockOffset = seqnoOffset + 4
	checksumOffset  = block.Size - 2
)

var (
	magicBBFS = [4]byte{'B', 'B', 'F', 'S'}
	magicBBFL = [4]byte{'B', 'B', 'F', 'L'}
)

// CheckChecksum verifies that the big-endian u16 words of buf sum to
// ChecksumTarget (mod 2^16), per spec §4.5's check_fat_checksum.
func CheckChecksum(buf []byte) error {
	var sum uint16
	for i := 0; i+1 < len(buf); i += 2 {
		sum += binary.BigEndian.Uint16(buf[i : i+2])
	}
	if sum != ChecksumTarget {
		return &bberr.InvalidFATChecksumError{Got: sum}
	}
	return nil
}

// DebugChecksum reports buf's actual checksum and whether it matches
// ChecksumTarget, for forensic inspection of a block that CheckChecksum has
// already rejected (spec §9: both the strict check and the raw value
// should stay available to tooling).
func DebugChecksum(buf []byte) (sum uint16, ok bool) {
	for i := 0; i+1 < len(buf); i += 2 {
		sum += binary.BigEndian.Uint16(buf[i : i+2])
	}
	return sum, sum == ChecksumTarget
}

// FixChecksum overwrites the final 2 bytes of buf so the block as a whole
// sums to ChecksumTarget (spec §4.5's fix_fat_checksum).
func FixChecksum(buf []byte) {
	var sum uint16
	for i := 0; i+1 < len(buf)-2; i += 2 {
		sum += binary.BigEndian.Uint16(buf[i : i+2])
	}
	binary.BigEndian.PutUint16(buf[checksumOffset:], ChecksumTarget-sum)
}

// FileEntry is one directory entry (spec §3): name[8]+ext[3]+valid+start+
// pad+size.
type FileEntry struct {
	Name  string // lowercase base name, ≤ 8 chars
	Ext   string // lowercase extension, ≤ 3 chars
	Valid bool
	Start uint16 // a FAT entry value: Chain(n) when Valid
	Pad   uint16 // NUL bytes appended to the last block
	Size  uint32 // block-aligned size; logical length is Size-Pad
}

func decodeFileEntry(buf []byte) FileEntry {
	return FileEntry{
		Name:  trimNulASCII(buf[0:8]),
		Ext:   trimNulASCII(buf[8:11]),
		Valid: buf[11] != 0,
		Start: binary.BigEndian.Uint16(buf[12:14]),
		Pad:   binary.BigEndian.Uint16(buf[14:16]),
		Size:  binary.BigEndian.Uint32(buf[16:20]),
	}
}

func encodeFileEntry(e FileEntry) []byte {
	buf := make([]byte, direntSize)
	copy(buf[0:8], padName(e.Name, 8))
	copy(buf[8:11], padName(e.Ext, 3))
	if e.Valid {
		buf[11] = 1
	}
	binary.BigEndian.PutUint16(buf[12:14], e.Start)
	binary.BigEndian.PutUint16(buf[14:16], e.Pad)
	binary.BigEndian.PutUint32(buf[16:20], e.Size)
	return buf
}

func trimNulASCII(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

func padName(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}

// Fat is the in-memory whole-card FAT plus directory (spec §3's "Whole-card
// FAT").
type Fat struct {
	Entries  []uint16 // one per NAND block, length == CardSize
	Files    []FileEntry
	Seqno    uint32
	Blkno    uint32 // NAND block holding the first ("BBFS") fragment
	CardSize uint32
}

// fsBlock is one decoded FS block fragment, prior to being folded into a
// Fat by FindBestFAT.
type fsBlock struct {
	entries   []uint16
	files     []FileEntry // only populated for the first fragment
	seqno     uint32
	linkBlock uint16
	isFirst   bool
}

func decodeFSBlock(buf []byte) (*fsBlock, error) {
	if len(buf) != block.Size {
		return nil, &bberr.InvalidNANDSizeError{Got: len(buf), Want: block.Size}
	}
	if err := CheckChecksum(buf); err != nil {
		return nil, err
	}
	magic := buf[footerOffset : footerOffset+4]
	var isFirst bool
	switch {
	case equalBytes(magic, magicBBFS[:]):
		isFirst = true
	case equalBytes(magic, magicBBFL[:]):
		isFirst = false
	default:
		return nil, bberr.ErrNoFAT
	}

	entries := make([]uint16, numFATEntries)
	for i := range entries {
		entries[i] = binary.BigEndian.Uint16(buf[i*2 : i*2+2])
	}

	var files []FileEntry
	if isFirst {
		files = make([]FileEntry, NumDirEntries)
		for i := range files {
			off := fatRegionSize + i*direntSize
			files[i] = decodeFileEntry(buf[off : off+direntSize])
		}
	}

	return &fsBlock{
		entries:   entries,
		files:     files,
		seqno:     binary.BigEndian.Uint32(buf[seqnoOffset : seqnoOffset+4]),
		linkBlock: binary.BigEndian.Uint16(buf[linkBlockOffset : linkBlockOffset+2]),
		isFirst:   isFirst,
	}, nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FindBestFAT scans the last block.NumFATs blocks of the card (spec §4.5):
// it reads each candidate, keeps only those whose footer magic is "BBFS" (a
// first fragment), and selects the one with the largest seqno. It then
// follows linkBlock pointers to assemble the complete FAT.
func FindBestFAT(ctx context.Context, dev *block.Device, cardSize uint32) (*Fat, error) {
	type candidate struct {
		blkno uint32
		first *fsBlock
	}
	var best *candidate
	for f := uint32(0); f < block.NumFATs; f++ {
		blkno := cardSize - f - 1
		nand, _, err := dev.ReadBlockAndSpare(ctx, blkno)
		if err != nil {
			continue
		}
		fb, err := decodeFSBlock(nand)
		if err != nil || !fb.isFirst {
			continue
		}
		if best == nil || fb.seqno > best.first.seqno {
			best = &candidate{blkno: blkno, first: fb}
		}
	}
	if best == nil {
		return nil, bberr.ErrNoFAT
	}

	entries := append([]uint16(nil), best.first.entries...)
	files := best.first.files
	link := best.first.linkBlock
	seqno := best.first.seqno
	for link != 0 {
		nand, _, err := dev.ReadBlockAndSpare(ctx, uint32(link))
		if err != nil {
			return nil, err
		}
		fb, err := decodeFSBlock(nand)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fb.entries...)
		link = fb.linkBlock
	}
	if uint32(len(entries)) > cardSize {
		entries = entries[:cardSize]
	}

	return &Fat{
		Entries:  entries,
		Files:    files,
		Seqno:    seqno,
		Blkno:    best.blkno,
		CardSize: cardSize,
	}, nil
}

// Check verifies every valid file's chain reaches EndOfChain through Chain
// links only, terminating within len(Entries) steps (spec §4.5, invariant 2
// of §8).
func (f *Fat) Check() error {
	for _, file := range f.Files {
		if !file.Valid {
			continue
		}
		cur := file.Start
		steps := 0
		for {
			if cur == EntryEndOfChain {
				break
			}
			if int(cur) >= len(f.Entries) {
				return &bberr.IncorrectNumBlocksError{Counted: steps, Expected: len(f.Entries)}
			}
			if cur == EntryFree || cur == EntryBadBlock || cur == EntryReserved {
				return &bberr.IncorrectNumBlocksError{Counted: steps, Expected: len(f.Entries)}
			}
			steps++
			if steps > len(f.Entries) {
				return &bberr.IncorrectNumBlocksError{Counted: steps, Expected: len(f.Entries)}
			}
			cur = f.Entries[cur]
		}
	}
	return nil
}

// ChainBlocks walks a file's chain starting at start, returning the ordered
// list of NAND block indices it occupies.
func (f *Fat) ChainBlocks(start uint16) []uint32 {
	var out []uint32
	cur := start
	seen := make(map[uint16]bool)
	for cur != EntryEndOfChain && !seen[cur] {
		seen[cur] = true
		out = append(out, uint32(cur))
		if int(cur) >= len(f.Entries) {
			break
		}
		cur = f.Entries[cur]
	}
	return out
}

// Stats folds the FAT into free/used/bad block counts (spec §4.6's
// ScanStats).
type Stats struct {
	Free, Used, Bad uint32
	Seqno           uint32
}

func (f *Fat) Stats() Stats {
	s := Stats{Seqno: f.Seqno}
	for _, e := range f.Entries {
		switch e {
		case EntryFree:
			s.Free++
		case EntryBadBlock:
			s.Bad++
		default:
			s.Used++
		}
	}
	return s
}
