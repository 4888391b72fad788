package bbfs

import (
	"testing"

	"github.com/Jhynjhiruu/bbrdb/block"
)

func freshFragment() []byte {
	buf := make([]byte, block.Size)
	copy(buf[footerOffset:footerOffset+4], magicBBFS[:])
	FixChecksum(buf)
	return buf
}

func TestCheckChecksumRoundTrip(t *testing.T) {
	buf := freshFragment()
	if err := CheckChecksum(buf); err != nil {
		t.Fatalf("CheckChecksum on a freshly-fixed block: %v", err)
	}
}

func TestCheckChecksumDetectsCorruption(t *testing.T) {
	buf := freshFragment()
	buf[0] ^= 0xFF
	if err := CheckChecksum(buf); err == nil {
		t.Fatal("expected CheckChecksum to reject a corrupted block")
	}
}

func TestDebugChecksumReportsValueOnCorruption(t *testing.T) {
	buf := freshFragment()
	buf[0] ^= 0xFF
	sum, ok := DebugChecksum(buf)
	if ok {
		t.Fatal("DebugChecksum reported ok on a corrupted block")
	}
	if sum == ChecksumTarget {
		t.Error("DebugChecksum's sum should differ from ChecksumTarget when ok is false")
	}
}

func TestFatCheckAcceptsValidChain(t *testing.T) {
	f := &Fat{
		Entries: []uint16{EntryFree, EntryEndOfChain, 3, EntryEndOfChain},
		Files: []FileEntry{
			{Name: "a", Valid: true, Start: 1},
			{Name: "b", Valid: true, Start: 2},
		},
	}
	if err := f.Check(); err != nil {
		t.Errorf("Check() on a valid chain = %v, want nil", err)
	}
}

func TestFatCheckRejectsChainIntoFree(t *testing.T) {
	f := &Fat{
		Entries: []uint16{EntryFree, EntryFree},
		Files: []FileEntry{
			{Name: "a", Valid: true, Start: 1},
		},
	}
	if err := f.Check(); err == nil {
		t.Error("expected Check() to reject a chain that lands on a Free entry")
	}
}

func TestChainBlocksWalksToEndOfChain(t *testing.T) {
	f := &Fat{Entries: []uint16{5, 2, EntryEndOfChain, 0, 0, 1}}
	got := f.ChainBlocks(0)
	want := []uint32{0, 5, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("ChainBlocks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ChainBlocks[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStatsCounts(t *testing.T) {
	f := &Fat{Entries: []uint16{EntryFree, EntryBadBlock, EntryEndOfChain, EntryFree}}
	s := f.Stats()
	if s.Free != 2 || s.Bad != 1 || s.Used != 1 {
		t.Errorf("Stats() = %+v, want Free=2 Bad=1 Used=1", s)
	}
}

// TestCommitSlotsFirstTwoGenerationsMatchReviewedTrace replays the
// cardSize=8192 (n=2) case that exposed the original overlap bug: commit #1
// starting from Blkno=base must not hand commit #2 a window that shares a
// slot with commit #1's window. It checks only that the two windows are
// disjoint, not their exact slot numbers.
func TestCommitSlotsFirstTwoGenerationsMatchReviewedTrace(t *testing.T) {
	const cardSize = 8192
	base := cardSize - block.NumFATs

	gen1 := commitSlots(cardSize, base, 2)
	gen2 := commitSlots(cardSize, gen1[0], 2)

	gen1Set := map[uint32]bool{gen1[0]: true, gen1[1]: true}
	for _, s := range gen2 {
		if gen1Set[s] {
			t.Fatalf("gen2 slots %v overlap gen1 slots %v", gen2, gen1)
		}
	}
}

// TestCommitSlotsNeverOverlapsCurrentGeneration walks many generations and
// checks, at every step, that the next generation's n-slot window shares no
// slot with the window the current generation occupies (spec §4.5/§4.6's
// invariant that a commit failure must never clobber the still-current
// generation).
func TestCommitSlotsNeverOverlapsCurrentGeneration(t *testing.T) {
	const cardSize = 8192
	const n = 2
	base := cardSize - block.NumFATs

	blkno := uint32(base)
	for gen := 0; gen < 20; gen++ {
		rel := blkno - uint32(base)
		current := map[uint32]bool{}
		for i := 0; i < n; i++ {
			current[uint32(base)+(rel-uint32(i)+block.NumFATs)%block.NumFATs] = true
		}

		next := commitSlots(cardSize, blkno, n)
		for _, s := range next {
			if current[s] {
				t.Fatalf("gen %d: next slots %v overlap current window %v", gen, next, current)
			}
		}
		blkno = next[0]
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	f := &Fat{
		Entries:  make([]uint16, numFATEntries),
		Files:    []FileEntry{{Name: "foo", Ext: "bin", Valid: true, Start: 1, Size: block.Size}},
		Seqno:    5,
		CardSize: numFATEntries,
	}
	f.Entries[1] = EntryEndOfChain

	fragments := f.Serialize()
	if len(fragments) != 1 {
		t.Fatalf("Serialize() produced %d fragments, want 1", len(fragments))
	}
	FixChecksum(fragments[0])
	if err := CheckChecksum(fragments[0]); err != nil {
		t.Fatalf("serialized fragment fails checksum: %v", err)
	}

	decoded, err := decodeFSBlock(fragments[0])
	if err != nil {
		t.Fatalf("decodeFSBlock: %v", err)
	}
	if decoded.seqno != f.Seqno+1 {
		t.Errorf("seqno = %d, want %d", decoded.seqno, f.Seqno+1)
	}
	if !decoded.isFirst {
		t.Error("first fragment should carry the BBFS magic")
	}
	if decoded.files[0].Name != "foo" || decoded.files[0].Ext != "bin" {
		t.Errorf("files[0] = %+v, want name=foo ext=bin", decoded.files[0])
	}
}
