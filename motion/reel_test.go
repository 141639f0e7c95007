package motion

import (
	"math"
	"testing"
)

func TestReelRoundTrip(t *testing.T) {
	reel := DefaultReel
	onePulse := 1 / reel.PulsesPerCM()

	for d := -1000.0; d <= 1000.0; d += 0.37 {
		got := reel.ToDistance(reel.ToPulses(d))
		if math.Abs(got-d) > onePulse {
			t.Fatalf("round trip of %f gave %f, more than one pulse (%f) away", d, got, onePulse)
		}
	}
}

func TestReelToPulses(t *testing.T) {
	reel := DefaultReel

	tests := []struct {
		name     string
		distance float64
		expected int64
	}{
		{"Zero", 0, 0},
		{"OneCircumference", 2 * math.Pi * reel.RadiusCM, int64(reel.GearboxRatio * reel.PulsesPerRev)},
		{"NegativeCircumference", -2 * math.Pi * reel.RadiusCM, -int64(reel.GearboxRatio * reel.PulsesPerRev)},
		{"OneCM", 1, 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reel.ToPulses(tt.distance)
			if got != tt.expected {
				t.Errorf("expected %d pulses but got %d", tt.expected, got)
			}
		})
	}
}

func TestReelPulseRate(t *testing.T) {
	reel := DefaultReel
	got := reel.PulseRate(-10)
	expected := 10 * reel.PulsesPerCM()
	if math.Abs(got-expected) > 1e-9 {
		t.Errorf("expected %f but got %f", expected, got)
	}
}
