package bbfs

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/Jhynjhiruu/bbrdb/bberr"
	"github.com/Jhynjhiruu/bbrdb/block"
	"github.com/Jhynjhiruu/bbrdb/rdb"
)

// firstFreeBlock is the lowest block index FS operations are allowed to
// allocate from; blocks below it are reserved (spec §4.6, §9's resolution
// of the find_next_free_block ambiguity).
const firstFreeBlock = 0x40

// FS is the filesystem operations layer: a loaded Fat plus the block device
// it was read from (spec §4.6).
type FS struct {
	Dev *block.Device
	Fat *Fat
}

// ParseName splits a filename at its first '.' into an 8-char base and a
// 3-char extension, canonicalised to lowercase (spec §4.6). An empty
// extension is allowed.
func ParseName(name string) (base, ext string, err error) {
	name = strings.ToLower(name)
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		base, ext = name[:idx], name[idx+1:]
	} else {
		base = name
	}
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return "", "", &bberr.InvalidFilenameError{Name: name}
	}
	return base, ext, nil
}

// FullName re-joins a parsed base/ext pair the way ListFiles reports names.
func FullName(base, ext string) string {
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// BytesToBlocks returns ⌈n / block.Size⌉ (spec §4.6's bytes_to_blocks).
func BytesToBlocks(n uint32) uint32 {
	return (n + block.Size - 1) / block.Size
}

func (fs *FS) findFile(base, ext string) (int, *FileEntry) {
	for i := range fs.Fat.Files {
		f := &fs.Fat.Files[i]
		if f.Valid && f.Name == base && f.Ext == ext {
			return i, f
		}
	}
	return -1, nil
}

// DirEntry is one entry in a ListFiles result: a full name and its logical
// (pad-stripped) size.
type DirEntry struct {
	Name string
	Size uint32
}

// ListFiles returns every valid file's name and logical size (spec §6).
func (fs *FS) ListFiles() []DirEntry {
	var out []DirEntry
	for _, f := range fs.Fat.Files {
		if !f.Valid {
			continue
		}
		out = append(out, DirEntry{Name: FullName(f.Name, f.Ext), Size: f.Size - uint32(f.Pad)})
	}
	return out
}

// StatFile returns the directory entry for name without reading its data.
func (fs *FS) StatFile(name string) (*FileEntry, error) {
	base, ext, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	_, f := fs.findFile(base, ext)
	if f == nil {
		return nil, &bberr.FileNotFoundError{Name: name}
	}
	cp := *f
	return &cp, nil
}

// ListFileBlocks returns the ordered NAND block indices backing name.
func (fs *FS) ListFileBlocks(name string) ([]uint32, error) {
	f, err := fs.StatFile(name)
	if err != nil {
		return nil, err
	}
	return fs.Fat.ChainBlocks(f.Start), nil
}

// ReadFile walks name's chain and returns its logical (pad-stripped)
// contents, or (nil, nil) if the file doesn't exist (spec §4.6).
func (fs *FS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	base, ext, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	_, f := fs.findFile(base, ext)
	if f == nil {
		return nil, nil
	}
	logical := f.Size - uint32(f.Pad)
	out := make([]byte, 0, logical)
	cur := f.Start
	for uint32(len(out)) < logical {
		if cur == EntryEndOfChain || int(cur) >= len(fs.Fat.Entries) {
			return nil, &bberr.IncorrectNumBlocksError{Counted: len(out) / block.Size, Expected: int(BytesToBlocks(logical))}
		}
		nand, _, err := fs.Dev.ReadBlockAndSpare(ctx, uint32(cur))
		if err != nil {
			return nil, err
		}
		remaining := logical - uint32(len(out))
		n := uint32(len(nand))
		if n > remaining {
			n = remaining
		}
		out = append(out, nand[:n]...)
		cur = fs.Fat.Entries[cur]
	}
	return out, nil
}

// freeBlocks walks start's chain and marks every visited entry Free (spec
// §4.6's DeleteFile free-block walk).
func (fs *FS) freeBlocks(start uint16) {
	cur := start
	for cur != EntryEndOfChain && int(cur) < len(fs.Fat.Entries) {
		next := fs.Fat.Entries[cur]
		fs.Fat.Entries[cur] = EntryFree
		cur = next
	}
}

// DeleteFile clears name's directory entry and frees its blocks, committing
// the updated FAT (spec §4.6).
func (fs *FS) DeleteFile(ctx context.Context, name string) error {
	base, ext, err := ParseName(name)
	if err != nil {
		return err
	}
	idx, f := fs.findFile(base, ext)
	if f == nil {
		return nil
	}
	start := f.Start
	fs.Fat.Files[idx] = FileEntry{}
	fs.freeBlocks(start)
	return fs.Fat.Commit(ctx, fs.Dev)
}

// RenameFile renames from to to. A no-op if from == to; otherwise any
// existing to is deleted first, matching spec §4.6.
func (fs *FS) RenameFile(ctx context.Context, from, to string) error {
	if strings.EqualFold(from, to) {
		return nil
	}
	if err := fs.DeleteFile(ctx, to); err != nil {
		return err
	}
	fromBase, fromExt, err := ParseName(from)
	if err != nil {
		return err
	}
	idx, f := fs.findFile(fromBase, fromExt)
	if f == nil {
		return &bberr.FileNotFoundError{Name: from}
	}
	toBase, toExt, err := ParseName(to)
	if err != nil {
		return err
	}
	fs.Fat.Files[idx].Name = toBase
	fs.Fat.Files[idx].Ext = toExt
	return fs.Fat.Commit(ctx, fs.Dev)
}

// findEmptySlot returns the index of the first invalid directory entry, or
// -1 if all NumDirEntries slots are occupied.
func (fs *FS) findEmptySlot() int {
	for i, f := range fs.Fat.Files {
		if !f.Valid {
			return i
		}
	}
	return -1
}

// allocateChain greedily chains numBlocks Free entries starting no earlier
// than firstFreeBlock (spec §9's resolution: start_at is a true lower
// bound), returning the new chain's head.
func (fs *FS) allocateChain(numBlocks uint32) (uint16, error) {
	if numBlocks == 0 {
		return EntryEndOfChain, nil
	}
	var chain []uint16
	for i := firstFreeBlock; i < len(fs.Fat.Entries) && uint32(len(chain)) < numBlocks; i++ {
		if fs.Fat.Entries[i] == EntryFree {
			chain = append(chain, uint16(i))
		}
	}
	if uint32(len(chain)) < numBlocks {
		return 0, bberr.ErrNoFreeBlocks
	}
	for i, blk := range chain {
		if i+1 < len(chain) {
			fs.Fat.Entries[blk] = chain[i+1]
		} else {
			fs.Fat.Entries[blk] = EntryEndOfChain
		}
	}
	return chain[0], nil
}

// checksum is the wrapping sum of every byte of data mod 2^32 (spec §4.6's
// WriteFile chksum).
func checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// WriteFile stores data under name using the temp-swap sequence (spec
// §4.6): write to "temp.tmp", verify via the device's ChksumFile command,
// then rename into place. If name already exists and the device-side
// checksum over its current contents already matches data, the write is a
// no-op (scenario 6 of §8).
func (fs *FS) WriteFile(ctx context.Context, cmd *rdb.Commander, name string, data []byte) error {
	base, ext, err := ParseName(name)
	if err != nil {
		return err
	}

	sum := checksum(data)
	size := uint32(len(data))

	_, existing := fs.findFile(base, ext)
	if existing != nil {
		match, err := fs.chksumFile(ctx, cmd, name, sum, size)
		if err == nil && match {
			return nil
		}
	}

	freeCount := uint32(0)
	for _, e := range fs.Fat.Entries {
		if e == EntryFree {
			freeCount++
		}
	}
	var existingBlocks uint32
	if existing != nil {
		existingBlocks = BytesToBlocks(existing.Size)
	}
	needed := BytesToBlocks(size)
	if needed > freeCount+existingBlocks {
		return &bberr.FileTooBigError{Name: name, NeededBlocks: needed, Free: freeCount}
	}

	if err := fs.DeleteFile(ctx, "temp.tmp"); err != nil {
		return err
	}

	paddedSize := needed * block.Size
	pad := paddedSize - size

	start, err := fs.allocateChain(needed)
	if err != nil {
		return err
	}
	spare := make([]byte, block.SpareSize)
	for i := range spare {
		spare[i] = 0xFF
	}
	chain := fs.Fat.ChainBlocks(start)
	for i, blk := range chain {
		chunk := make([]byte, block.Size)
		lo := i * block.Size
		hi := lo + block.Size
		if hi > len(data) {
			hi = len(data)
		}
		if lo < len(data) {
			copy(chunk, data[lo:hi])
		}
		if err := fs.Dev.WriteBlockAndSpare(ctx, blk, chunk, spare); err != nil {
			return err
		}
	}

	slot := fs.findEmptySlot()
	if slot < 0 {
		return bberr.ErrNoEmptyFileSlots
	}
	fs.Fat.Files[slot] = FileEntry{
		Name:  "temp",
		Ext:   "tmp",
		Valid: true,
		Start: start,
		Pad:   uint16(pad),
		Size:  paddedSize,
	}
	if err := fs.Fat.Commit(ctx, fs.Dev); err != nil {
		return err
	}

	match, err := fs.chksumFile(ctx, cmd, "temp.tmp", sum, size)
	if err != nil {
		return err
	}
	if !match {
		return &bberr.ChecksumFailedError{Name: name, Expected: sum}
	}

	return fs.RenameFile(ctx, "temp.tmp", name)
}

// chksumFile issues the device-side ChksumFile command: send the padded
// NUL-terminated name length as the command argument, the padded name as
// HostData, then chksum and size as an 8-byte HostData payload; a returned
// status of 0 means match (spec §4.6).
func (fs *FS) chksumFile(ctx context.Context, cmd *rdb.Commander, name string, chksum, size uint32) (bool, error) {
	raw := append([]byte(name), 0)
	padded := (len(raw) + 3) / 4 * 4
	nameBuf := make([]byte, padded)
	copy(nameBuf, raw)

	if err := cmd.SendCommand(ctx, rdb.CmdChksumFile, uint32(padded)); err != nil {
		return false, err
	}
	if err := cmd.SendData(nameBuf); err != nil {
		return false, err
	}
	var tail [8]byte
	binary.BigEndian.PutUint32(tail[0:4], chksum)
	binary.BigEndian.PutUint32(tail[4:8], size)
	if err := cmd.SendData(tail[:]); err != nil {
		return false, err
	}
	words, err := cmd.Response(rdb.CmdChksumFile, 1)
	if err != nil {
		return false, err
	}
	return words[0] == 0, nil
}
