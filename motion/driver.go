package motion

import "github.com/calvinmclean/nora"

// Driver is the stepper driver boundary. Position is counted in pulses and
// increases while running CW.
type Driver interface {
	// Run energizes the motor and steps continuously in dir at the given rate
	// until Stop or another Run
	Run(dir nora.MotorDir, pulsesPerSec float64) error
	// Stop halts stepping and de-energizes the motor
	Stop() error
	Position() int64
	SetPosition(int64)
	// AlarmLevel is the raw analog reading of the driver's alarm output
	AlarmLevel() (uint16, error)
	Energized() bool
}
