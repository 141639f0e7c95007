package sequence

import (
	"errors"
	"fmt"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/motion"
)

// Sensor is a debounced digital signal
type Sensor interface {
	Active() bool
	Settled() bool
}

// Plumbing opens and closes the solenoid valves
type Plumbing interface {
	SetValve(v nora.Valve, open bool) error
}

// Pump controls the analyzer's sample pump
type Pump interface {
	StartPump() error
	StopPump() error
}

// Error is a sequence failure that must be escalated to the fault register
type Error struct {
	Stage string
	Fault nora.AlarmFault
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s fault: %v", e.Stage, e.Fault, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FaultOf returns the fault carried by err, or FaultNone for errors that can be
// retried
func FaultOf(err error) nora.AlarmFault {
	var seqErr *Error
	if errors.As(err, &seqErr) {
		return seqErr.Fault
	}
	var moveErr *motion.MoveError
	if errors.As(err, &moveErr) {
		if moveErr.Outcome == motion.Alarmed {
			return nora.FaultMotor
		}
		return moveErr.Fault
	}
	return nora.FaultNone
}

// moveFault wraps a failed move. Alarms are always Motor faults. Timeouts only
// escalate when the target named a fault.
func moveFault(stage fmt.Stringer, err error) error {
	var moveErr *motion.MoveError
	if !errors.As(err, &moveErr) {
		return err
	}
	f := moveErr.Fault
	if moveErr.Outcome == motion.Alarmed {
		f = nora.FaultMotor
	}
	if f == nora.FaultNone {
		return err
	}
	return &Error{Stage: stage.String(), Fault: f, Err: err}
}
