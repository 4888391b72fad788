package bbfs

import (
	"context"
	"encoding/binary"

	"github.com/Jhynjhiruu/bbrdb/block"
)

// Serialize splits the FAT's entries into consecutive numFATEntries-sized
// fragments, attaches the (padded-to-NumDirEntries) directory to the first
// fragment only, and stamps every fragment with its footer magic and
// seqno+1 (spec §4.5's blocks()). link_block is left 0 and the checksum is
// not fixed: linkAndCommit sets both once the target slots are known. The
// returned slice is in on-disk fragment order; the caller chooses which
// NAND blocks to write them to.
func (f *Fat) Serialize() [][]byte {
	nextSeqno := f.Seqno + 1

	var fragments [][]byte
	for i := 0; i < len(f.Entries); i += numFATEntries {
		end := i + numFATEntries
		if end > len(f.Entries) {
			end = len(f.Entries)
		}
		fragments = append(fragments, encodeFragment(f.Entries[i:end]))
	}
	if len(fragments) == 0 {
		fragments = append(fragments, encodeFragment(nil))
	}

	files := append([]FileEntry(nil), f.Files...)
	for len(files) < NumDirEntries {
		files = append(files, FileEntry{})
	}
	if len(files) > NumDirEntries {
		files = files[:NumDirEntries]
	}
	for i, file := range files {
		off := fatRegionSize + i*direntSize
		copy(fragments[0][off:off+direntSize], encodeFileEntry(file))
	}

	for i, frag := range fragments {
		var magic [4]byte
		if i == 0 {
			magic = magicBBFS
		} else {
			magic = magicBBFL
		}
		copy(frag[footerOffset:footerOffset+4], magic[:])
		binary.BigEndian.PutUint32(frag[seqnoOffset:seqnoOffset+4], nextSeqno)
	}

	return fragments
}

func encodeFragment(entries []uint16) []byte {
	buf := make([]byte, block.Size)
	for i, e := range entries {
		binary.BigEndian.PutUint16(buf[i*2:i*2+2], e)
	}
	for i := len(entries); i < numFATEntries; i++ {
		binary.BigEndian.PutUint16(buf[i*2:i*2+2], EntryFree)
	}
	return buf
}

// Commit serialises the FAT and writes it to the device, rotating to the
// next FAT slot(s) after the current generation's first fragment (spec
// §4.5/§4.6's update_fs, §9's chosen rotation direction). On success f.Seqno
// and f.Blkno reflect the newly committed generation.
func (f *Fat) Commit(ctx context.Context, dev *block.Device) error {
	fragments := f.Serialize()
	slots := commitSlots(f.CardSize, f.Blkno, len(fragments))
	return f.linkAndCommit(ctx, dev, fragments, slots)
}

// commitSlots computes the n FAT slots (mod block.NumFATs, within the
// card's final block.NumFATs blocks) for the generation that follows the
// one currently occupying blkno's n-fragment window. It rotates by a full
// n-slot window per generation — not by 1 per fragment — so the new
// generation's window never shares a slot with the window the current
// generation occupies (mirroring the original update_fs's
// (current_fs_index - 1) mod 16 single-fragment rotation, generalised to
// n fragments: the previous generation occupies [rel, rel-(n-1)], so the
// next must start at rel-n to stay disjoint from it). Per spec §4.5/§4.6,
// the only invariant that matters is that the newly written fragments
// never overwrite the currently-current fragments, so a crash partway
// through the write loop always leaves the prior generation intact and
// reachable by FindBestFAT.
func commitSlots(cardSize, blkno uint32, n int) []uint32 {
	base := cardSize - block.NumFATs
	rel := blkno - base
	slots := make([]uint32, n)
	for i := range slots {
		slots[i] = base + (rel-uint32(n)-uint32(i)+block.NumFATs*uint32(n+1))%block.NumFATs
	}
	return slots
}

// linkAndCommit assigns each fragment's link_block to the NAND address of
// the next fragment in slots (0 for the last), fixes each fragment's
// checksum, and writes them all to slots in order (spec §4.5/§4.6's
// update_fs). On success, f.Seqno and f.Blkno are updated to reflect the
// newly committed generation.
func (f *Fat) linkAndCommit(ctx context.Context, dev *block.Device, fragments [][]byte, slots []uint32) error {
	for i, frag := range fragments {
		var link uint16
		if i+1 < len(slots) {
			link = uint16(slots[i+1])
		}
		binary.BigEndian.PutUint16(frag[linkBlockOffset:linkBlockOffset+2], link)
		FixChecksum(frag)
	}
	for i, frag := range fragments {
		spare := make([]byte, block.SpareSize)
		for j := range spare {
			spare[j] = 0xFF
		}
		if err := dev.WriteBlockAndSpare(ctx, slots[i], frag, spare); err != nil {
			return err
		}
	}
	f.Seqno++
	f.Blkno = slots[0]
	return nil
}
