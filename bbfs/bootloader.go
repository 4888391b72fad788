package bbfs

import (
	"context"
	"encoding/binary"

	"github.com/Jhynjhiruu/bbrdb/bberr"
	"github.com/Jhynjhiruu/bbrdb/block"
)

// Layout of the data this reader interprets out of a block's spare area and
// its command header. The reading algorithm follows the original kernel
// reader's skip_bad_blocks/read_sk/read_sa; the two offsets below are
// inferred, not taken from a known struct layout: the SA chain pointer
// ("sa_block") is read as a big-endian u16 at the start of the spare area,
// and the command header's payload length as a big-endian u32 at the start
// of the SA header block.
const (
	spareSABlockOffset = 0
	cmdHeadSizeOffset  = 0
)

// skipBadBlocks reads numBlocks consecutive blocks starting at blk,
// skipping (but still advancing past) any that fail to read, mirroring the
// original reader's tolerance for transport failures in this region (spec
// §4.4's bootloader reader).
func skipBadBlocks(ctx context.Context, dev *block.Device, blk uint32, numBlocks int) (nand, spare []byte, next uint32, err error) {
	read := 0
	for read < numBlocks {
		n, s, rerr := dev.ReadBlockAndSpare(ctx, blk)
		if rerr == nil {
			nand = append(nand, n...)
			spare = append(spare, s...)
			read++
		}
		blk++
	}
	return nand, spare, blk, nil
}

// readSK reads the fixed 4-block SK region starting at block 0.
func readSK(ctx context.Context, dev *block.Device) (data []byte, next uint32, err error) {
	data, _, next, err = skipBadBlocks(ctx, dev, 0, 4)
	if err != nil {
		return nil, 0, err
	}
	if next >= 8 {
		return nil, 0, bberr.ErrBadSKSA
	}
	return data, next, nil
}

// readSA reads one SA region starting at blk: a one-block header declaring
// the region's byte length, followed by blocks chained via each spare's
// sa_block pointer until that many bytes have been read.
func readSA(ctx context.Context, dev *block.Device, blk uint32) (data []byte, next uint32, err error) {
	head, headSpare, _, err := skipBadBlocks(ctx, dev, blk, 1)
	if err != nil {
		return nil, 0, err
	}
	if len(head) < cmdHeadSizeOffset+4 {
		return nil, 0, bberr.ErrBadSKSA
	}
	size := binary.BigEndian.Uint32(head[cmdHeadSizeOffset : cmdHeadSizeOffset+4])

	cur := uint32(headSpare[spareSABlockOffset])<<8 | uint32(headSpare[spareSABlockOffset+1])
	out := append([]byte(nil), head...)
	for uint32(len(out)) < size {
		n, s, err := dev.ReadBlockAndSpare(ctx, cur)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n...)
		cur = uint32(s[spareSABlockOffset])<<8 | uint32(s[spareSABlockOffset+1])
	}
	return out, cur, nil
}

// ReadSKSA reads the console's secure kernel and secondary application
// regions: a fixed SK prefix, a first SA region, and (when the chain's
// terminal block index isn't 0xFF) a second SA region (spec §4.4a).
func ReadSKSA(ctx context.Context, dev *block.Device) ([]byte, error) {
	sk, blk, err := readSK(ctx, dev)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), sk...)

	sa, blk, err := readSA(ctx, dev, blk)
	if err != nil {
		return nil, err
	}
	out = append(out, sa...)

	if blk != 0xFF {
		sa2, _, err := readSA(ctx, dev, blk)
		if err != nil {
			return nil, err
		}
		out = append(out, sa2...)
	}

	return out, nil
}
