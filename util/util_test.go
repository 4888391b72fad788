package util_test

import (
	"fmt"
	"testing"

	"github.com/Jhynjhiruu/bbrdb/util"
)

func ExampleSetBit_msb() {
	out := util.SetBit(0, 7, true)
	fmt.Printf("%08b\n", out)
	// Output: 10000000
}

func ExampleSetBit_lsb() {
	out := util.SetBit(255, 0, false)
	fmt.Printf("%08b\n", out)
	// Output: 11111110
}

func TestGetBitRoundTrip(t *testing.T) {
	var b byte
	for i := uint(0); i < 8; i++ {
		b = util.SetBit(b, i, true)
		if !util.GetBit(b, i) {
			t.Errorf("bit %d expected set after SetBit", i)
		}
	}
}

func TestCountZeroBits(t *testing.T) {
	cases := []struct {
		in   byte
		want int
	}{
		{0xFF, 0},
		{0x00, 8},
		{0xFE, 1},
		{0xFC, 2},
	}
	for _, c := range cases {
		if got := util.CountZeroBits(c.in); got != c.want {
			t.Errorf("CountZeroBits(%08b) = %d, want %d", c.in, got, c.want)
		}
	}
}
