package rpi

import (
	"testing"

	"github.com/stianeikeland/go-rpio/v4"
)

func TestAsserted(t *testing.T) {
	tests := []struct {
		level     rpio.State
		activeLow bool
		want      bool
	}{
		{rpio.High, false, true},
		{rpio.Low, false, false},
		{rpio.High, true, false},
		{rpio.Low, true, true},
	}

	for _, tt := range tests {
		if got := asserted(tt.level, tt.activeLow); got != tt.want {
			t.Errorf("asserted(%v, %v): expected %v but got %v", tt.level, tt.activeLow, tt.want, got)
		}
	}
}

func TestPinsValidate(t *testing.T) {
	if err := DefaultPins.Validate(); err != nil {
		t.Errorf("unexpected error for default pins: %v", err)
	}

	dup := DefaultPins
	dup.Tube = dup.Magnet
	if err := dup.Validate(); err == nil {
		t.Error("expected error for a shared pin")
	}

	bad := DefaultPins
	bad.Step = 40
	if err := bad.Validate(); err == nil {
		t.Error("expected error for an out of range pin")
	}
}
