package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestListFilterValid(t *testing.T) {
	for _, f := range []ListFilter{FilterAll, FilterActive, FilterUsed} {
		if !f.Valid() {
			t.Errorf("expected %q to be valid", f)
		}
	}
	if ListFilter("archived").Valid() {
		t.Error("expected unknown filter to be invalid")
	}
}

func TestSentinelErrorsWrap(t *testing.T) {
	err := fmt.Errorf("%w: instrument abc", ErrAlreadyRedeemed)
	if !errors.Is(err, ErrAlreadyRedeemed) {
		t.Errorf("expected wrapped error to match ErrAlreadyRedeemed, got %v", err)
	}
	if errors.Is(err, ErrExpired) {
		t.Error("wrapped error should not match ErrExpired")
	}
}
