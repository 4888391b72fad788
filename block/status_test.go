package block

import (
	"errors"
	"testing"

	"github.com/Jhynjhiruu/bbrdb/bberr"
)

func TestStatusToErrZeroIsNil(t *testing.T) {
	if err := statusToErr(0); err != nil {
		t.Errorf("statusToErr(0) = %v, want nil", err)
	}
}

func TestStatusToErrMapsCardCode(t *testing.T) {
	err := statusToErr(uint32(int32(-7))) // CardFull
	var ce *bberr.CardError
	if !errors.As(err, &ce) {
		t.Fatalf("statusToErr(-7) = %v, want *bberr.CardError", err)
	}
	if ce.Code != bberr.CardFull {
		t.Errorf("Code = %v, want CardFull", ce.Code)
	}
}
