package block_test

import (
	"context"
	"testing"

	"github.com/Jhynjhiruu/bbrdb/block"
)

func TestWriteBlockAndSpareSkipsKnownBadBlock(t *testing.T) {
	d := &block.Device{}
	nand := make([]byte, block.Size)
	spare := make([]byte, block.SpareSize)
	spare[5] = 0xFE // not 0xFF: already-marked-bad per spec §4.4

	if err := d.WriteBlockAndSpare(context.Background(), 0, nand, spare); err != nil {
		t.Errorf("WriteBlockAndSpare on a known-bad block should be a silent no-op, got %v", err)
	}
}
