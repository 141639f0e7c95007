package motion

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calvinmclean/nora"
)

// OutputPin is a digital output line
type OutputPin interface {
	High()
	Low()
}

// PowerSwitch energizes or releases the motor supply
type PowerSwitch interface {
	SetMotorPower(on bool) error
}

// AnalogInput reads a raw ADC value
type AnalogInput interface {
	Read() (uint16, error)
}

// StepperConfig wires a step/direction driver
type StepperConfig struct {
	Step  OutputPin
	Dir   OutputPin
	Power PowerSwitch
	Alarm AnalogInput

	// MaxPulseRate caps the step frequency to what the driver accepts
	MaxPulseRate float64
}

// Stepper drives a step/direction stepper driver. Pulses are generated by a
// background goroutine and counted atomically so Position can be read from the
// control loop while stepping.
type Stepper struct {
	cfg StepperConfig

	position  int64
	energized atomic.Bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ Driver = &Stepper{}

// NewStepper creates a Stepper with its outputs low and power released
func NewStepper(cfg StepperConfig) (*Stepper, error) {
	if cfg.Step == nil || cfg.Dir == nil {
		return nil, errors.New("step and direction pins are required")
	}
	if cfg.MaxPulseRate <= 0 {
		cfg.MaxPulseRate = 20000
	}

	s := &Stepper{cfg: cfg}
	cfg.Step.Low()
	cfg.Dir.Low()

	if cfg.Power != nil {
		err := cfg.Power.SetMotorPower(false)
		if err != nil {
			return nil, fmt.Errorf("error releasing motor power: %w", err)
		}
	}

	return s, nil
}

// Run starts stepping in the requested direction, replacing any current run
func (s *Stepper) Run(dir nora.MotorDir, pulsesPerSec float64) error {
	if dir == nora.MotorOff || pulsesPerSec <= 0 {
		return s.Stop()
	}
	if pulsesPerSec > s.cfg.MaxPulseRate {
		pulsesPerSec = s.cfg.MaxPulseRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.halt()

	if s.cfg.Power != nil && !s.energized.Load() {
		err := s.cfg.Power.SetMotorPower(true)
		if err != nil {
			return fmt.Errorf("error energizing motor: %w", err)
		}
	}
	s.energized.Store(true)

	inc := int64(1)
	if dir == nora.MotorCW {
		s.cfg.Dir.High()
	} else {
		s.cfg.Dir.Low()
		inc = -1
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.pulse(time.Duration(float64(time.Second)/pulsesPerSec), inc, s.stop, s.done)

	return nil
}

// Stop halts stepping and removes motor power
func (s *Stepper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.halt()

	// Energized stays true until the supply is known to be released
	if s.cfg.Power != nil {
		err := s.cfg.Power.SetMotorPower(false)
		if err != nil {
			return fmt.Errorf("error releasing motor power: %w", err)
		}
	}
	s.energized.Store(false)
	return nil
}

// halt stops the pulse goroutine and waits for it. Caller holds mu.
func (s *Stepper) halt() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
}

func (s *Stepper) pulse(period time.Duration, inc int64, stop, done chan struct{}) {
	defer close(done)
	defer s.cfg.Step.Low()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		s.cfg.Step.High()
		atomic.AddInt64(&s.position, inc)
		s.cfg.Step.Low()
	}
}

func (s *Stepper) Position() int64 {
	return atomic.LoadInt64(&s.position)
}

func (s *Stepper) SetPosition(p int64) {
	atomic.StoreInt64(&s.position, p)
}

func (s *Stepper) AlarmLevel() (uint16, error) {
	if s.cfg.Alarm == nil {
		return 0, nil
	}
	return s.cfg.Alarm.Read()
}

func (s *Stepper) Energized() bool {
	return s.energized.Load()
}
