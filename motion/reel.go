package motion

import "math"

// Reel describes the spool and gearbox that turn motor pulses into line travel
type Reel struct {
	RadiusCM     float64 `yaml:"radius_cm"`
	GearboxRatio float64 `yaml:"gearbox_ratio"`
	PulsesPerRev float64 `yaml:"pulses_per_rev"`
}

// DefaultReel is the reel fitted to the instrument
var DefaultReel = Reel{
	RadiusCM:     5.0,
	GearboxRatio: 5.0,
	PulsesPerRev: 1600,
}

// PulsesPerCM is the number of motor pulses for one centimeter of line
func (r Reel) PulsesPerCM() float64 {
	return r.GearboxRatio * r.PulsesPerRev / (2 * math.Pi * r.RadiusCM)
}

// ToPulses converts a distance to the nearest whole pulse count
func (r Reel) ToPulses(distanceCM float64) int64 {
	return int64(math.Round(distanceCM * r.PulsesPerCM()))
}

// ToDistance converts a pulse count back to centimeters
func (r Reel) ToDistance(pulses int64) float64 {
	return float64(pulses) / r.PulsesPerCM()
}

// PulseRate converts a linear speed to a pulse frequency
func (r Reel) PulseRate(cmPerSec float64) float64 {
	return math.Abs(cmPerSec) * r.PulsesPerCM()
}
