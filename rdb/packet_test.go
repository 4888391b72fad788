package rdb_test

import (
	"testing"

	"github.com/Jhynjhiruu/bbrdb/rdb"
)

func TestEncodeShortHeader(t *testing.T) {
	packet := rdb.EncodeShort(rdb.HostData, []byte{0xAA, 0xBB, 0xCC})
	if len(packet) != 4 {
		t.Fatalf("EncodeShort length = %d, want 4", len(packet))
	}
	wantHdr := (byte(rdb.HostData) << 2) | 3
	if packet[0] != wantHdr {
		t.Errorf("header = %08b, want %08b", packet[0], wantHdr)
	}
	if packet[1] != 0xAA || packet[2] != 0xBB || packet[3] != 0xCC {
		t.Errorf("payload = % X, want AA BB CC", packet[1:])
	}
}

func TestEncodeBlockHeader(t *testing.T) {
	data := make([]byte, 200)
	packet := rdb.EncodeBlock(rdb.HostData, data)
	if len(packet) != 2+len(data) {
		t.Fatalf("EncodeBlock length = %d, want %d", len(packet), 2+len(data))
	}
	wantHdr := byte(rdb.HostData) << 2
	if packet[0] != wantHdr {
		t.Errorf("header = %08b, want %08b", packet[0], wantHdr)
	}
	if packet[1] != 200 {
		t.Errorf("length byte = %d, want 200", packet[1])
	}
}

func TestDecodeHeaderRoundTrip(t *testing.T) {
	packet := rdb.EncodeShort(rdb.DeviceData, []byte{1, 2})
	tag, length, err := rdb.DecodeHeader(packet[0])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if tag != rdb.DeviceData {
		t.Errorf("tag = %v, want DeviceData", tag)
	}
	if length != 2 {
		t.Errorf("length = %d, want 2", length)
	}
}

func TestDecodeHeaderUnknownTag(t *testing.T) {
	// tag value 0 is not assigned to anything in tagNames.
	if _, _, err := rdb.DecodeHeader(0); err == nil {
		t.Fatal("expected error decoding an unassigned tag, got nil")
	}
}

func TestTagStringKnownAndUnknown(t *testing.T) {
	if got := rdb.DeviceReadyForData.String(); got != "DeviceReadyForData" {
		t.Errorf("String() = %q, want DeviceReadyForData", got)
	}
	if got := rdb.Tag(0).String(); got == "" {
		t.Error("String() for an unassigned tag should not be empty")
	}
}
