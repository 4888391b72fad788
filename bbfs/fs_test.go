package bbfs

import (
	"testing"

	"github.com/Jhynjhiruu/bbrdb/block"
)

func TestParseName(t *testing.T) {
	cases := []struct {
		in       string
		base     string
		ext      string
		wantFail bool
	}{
		{"TEST.BIN", "test", "bin", false},
		{"noext", "noext", "", false},
		{"toolongbase.bin", "", "", true},
		{"a.toolongext", "", "", true},
		{".bin", "", "", true},
	}
	for _, c := range cases {
		base, ext, err := ParseName(c.in)
		if c.wantFail {
			if err == nil {
				t.Errorf("ParseName(%q): expected error, got base=%q ext=%q", c.in, base, ext)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseName(%q): unexpected error %v", c.in, err)
			continue
		}
		if base != c.base || ext != c.ext {
			t.Errorf("ParseName(%q) = (%q, %q), want (%q, %q)", c.in, base, ext, c.base, c.ext)
		}
	}
}

func TestFullName(t *testing.T) {
	if got := FullName("test", "bin"); got != "test.bin" {
		t.Errorf("FullName = %q, want test.bin", got)
	}
	if got := FullName("test", ""); got != "test" {
		t.Errorf("FullName with empty ext = %q, want test", got)
	}
}

func TestBytesToBlocks(t *testing.T) {
	cases := []struct {
		n    uint32
		want uint32
	}{
		{0, 0},
		{1, 1},
		{block.Size, 1},
		{block.Size + 1, 2},
	}
	for _, c := range cases {
		if got := BytesToBlocks(c.n); got != c.want {
			t.Errorf("BytesToBlocks(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestChecksumSumsBytes(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = 0xFF
	}
	got := checksum(data)
	want := uint32(0xFF) * 300
	if got != want {
		t.Errorf("checksum = %d, want %d", got, want)
	}
}

func TestAllocateChainHonorsLowerBound(t *testing.T) {
	entries := make([]uint16, 0x50)
	for i := range entries {
		entries[i] = EntryFree
	}
	fs := &FS{Fat: &Fat{Entries: entries}}
	start, err := fs.allocateChain(3)
	if err != nil {
		t.Fatalf("allocateChain: %v", err)
	}
	if start < firstFreeBlock {
		t.Errorf("allocateChain returned block %d below the reserved lower bound %d", start, firstFreeBlock)
	}
	blocks := fs.Fat.ChainBlocks(start)
	if len(blocks) != 3 {
		t.Fatalf("chain length = %d, want 3", len(blocks))
	}
	for _, b := range blocks {
		if b < firstFreeBlock {
			t.Errorf("chain visited reserved block %d", b)
		}
	}
}

func TestAllocateChainFailsWhenNotEnoughFree(t *testing.T) {
	entries := make([]uint16, firstFreeBlock+1)
	for i := range entries {
		entries[i] = EntryFree
	}
	fs := &FS{Fat: &Fat{Entries: entries}}
	if _, err := fs.allocateChain(5); err == nil {
		t.Error("expected ErrNoFreeBlocks when fewer free blocks exist than requested")
	}
}

func TestFindEmptySlot(t *testing.T) {
	files := make([]FileEntry, NumDirEntries)
	files[10].Valid = false
	for i := range files {
		if i != 10 {
			files[i].Valid = true
		}
	}
	fs := &FS{Fat: &Fat{Files: files}}
	if got := fs.findEmptySlot(); got != 10 {
		t.Errorf("findEmptySlot() = %d, want 10", got)
	}
}

func TestListFilesStripsPad(t *testing.T) {
	fs := &FS{Fat: &Fat{Files: []FileEntry{
		{Name: "test", Ext: "bin", Valid: true, Size: block.Size, Pad: 1},
		{Name: "skip", Valid: false},
	}}}
	list := fs.ListFiles()
	if len(list) != 1 {
		t.Fatalf("ListFiles() returned %d entries, want 1", len(list))
	}
	if list[0].Name != "test.bin" || list[0].Size != block.Size-1 {
		t.Errorf("ListFiles()[0] = %+v, want {test.bin, %d}", list[0], block.Size-1)
	}
}
