package bberr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Jhynjhiruu/bbrdb/bberr"
)

type fakeTemporary bool

func (f fakeTemporary) Error() string   { return "fake" }
func (f fakeTemporary) Temporary() bool { return bool(f) }

func TestIsTransport(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout sentinel", bberr.ErrTimeout, true},
		{"wrapped timeout", fmt.Errorf("reading: %w", bberr.ErrTimeout), true},
		{"wrong length sentinel", bberr.ErrWrongDataLength, true},
		{"unrelated sentinel", bberr.ErrNoFAT, false},
		{"temporary true", fakeTemporary(true), true},
		{"temporary false", fakeTemporary(false), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, c := range cases {
		if got := bberr.IsTransport(c.err); got != c.want {
			t.Errorf("IsTransport(%s) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCardErrorFromStatus(t *testing.T) {
	err := bberr.CardErrorFromStatus(-7)
	var ce *bberr.CardError
	if !errors.As(err, &ce) {
		t.Fatalf("CardErrorFromStatus(-7) = %v, want *CardError", err)
	}
	if ce.Code != bberr.CardFull {
		t.Errorf("Code = %v, want CardFull", ce.Code)
	}
}
