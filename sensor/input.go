package sensor

import (
	"periph.io/x/conn/v3/physic"

	"github.com/calvinmclean/nora"
)

// DigitalInput reads a raw digital line. True means asserted.
type DigitalInput interface {
	Read() bool
}

// Thermometer reads the RTD channels
type Thermometer interface {
	Temperature(nora.TempSensor) (physic.Temperature, error)
}

// Celsius converts a periph temperature to degrees Celsius
func Celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Celsius)
}

// FromCelsius converts degrees Celsius to a periph temperature
func FromCelsius(c float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(c*float64(physic.Celsius))
}

// Switch is a debounced digital sensor such as the home magnet or the tube
// presence detector
type Switch struct {
	in DigitalInput
	d  *Debouncer
}

// NewSwitch creates a Switch confirmed after stable equal samples
func NewSwitch(in DigitalInput, stable int) *Switch {
	return &Switch{in: in, d: NewDebouncer(stable, false)}
}

// Poll samples the input once and returns the confirmed state
func (s *Switch) Poll() bool {
	return s.d.Update(s.in.Read())
}

// Active is the confirmed state as of the last Poll
func (s *Switch) Active() bool {
	return s.d.State()
}

// Settled is true when the last samples agreed with the confirmed state
func (s *Switch) Settled() bool {
	return s.d.Settled()
}
