package sequence

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/sensor"
)

var (
	ErrHomeNotFound   = errors.New("home magnet not found")
	ErrFlushWaterTemp = errors.New("flush water too hot")
)

// FlushConfig holds the motion and timing of the flush procedure
type FlushConfig struct {
	Timing FlushTiming `yaml:"timing"`

	DumpLiftCM        float64       `yaml:"dump_lift_cm"`
	DumpLiftSpeed     float64       `yaml:"dump_lift_speed_cm_s"`
	LineFlushDropCM   float64       `yaml:"line_flush_drop_cm"`
	LineFlushSpeed    float64       `yaml:"line_flush_speed_cm_s"`
	HomeSpeed         float64       `yaml:"home_speed_cm_s"`
	HomeOvershootCM   float64       `yaml:"home_overshoot_cm"`
	HomeTimeout       time.Duration `yaml:"home_timeout"`
	ToleranceCM       float64       `yaml:"tolerance_cm"`
	MoveTimeoutFactor float64       `yaml:"move_timeout_factor"`
}

// Flusher runs the six flush stages in order
type Flusher struct {
	cfg     FlushConfig
	motion  *motion.Controller
	valves  Plumbing
	pump    Pump
	thermo  sensor.Thermometer
	magnet  Sensor
	logger  *log.Logger
	verbose bool

	stage      nora.FlushStage
	entered    bool
	stageStart time.Time
	pumping    bool
	open       map[nora.Valve]bool
}

// NewFlusher creates an idle Flusher
func NewFlusher(cfg FlushConfig, mc *motion.Controller, valves Plumbing, pump Pump, thermo sensor.Thermometer, magnet Sensor, logger *log.Logger) *Flusher {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MoveTimeoutFactor <= 0 {
		cfg.MoveTimeoutFactor = 2
	}
	return &Flusher{
		cfg:    cfg,
		motion: mc,
		valves: valves,
		pump:   pump,
		thermo: thermo,
		magnet: magnet,
		logger: logger,
		stage:  nora.FlushNull,
		open:   map[nora.Valve]bool{},
	}
}

func (f *Flusher) Stage() nora.FlushStage {
	return f.stage
}

func (f *Flusher) Running() bool {
	return f.stage != nora.FlushNull
}

// SetTiming replaces the dwell table. It is used when the profile changes
// between cycles.
func (f *Flusher) SetTiming(t FlushTiming) {
	f.cfg.Timing = t
}

// Start begins the flush at DumpSample
func (f *Flusher) Start(now time.Time) {
	f.stage = nora.FlushDumpSample
	f.entered = false
	f.stageStart = now
	f.logger.Printf("[flush] start")
}

// Dwell is the minimum time the stage must last, buffer included
func (f *Flusher) Dwell(stage nora.FlushStage) time.Duration {
	t := f.cfg.Timing
	switch stage {
	case nora.FlushDumpSample:
		return t.LiftTube + t.Buffer
	case nora.FlushAirBubble:
		return t.AirBubble + t.Buffer
	case nora.FlushFreshwaterLineFlush:
		return t.FlushLine + t.Buffer
	case nora.FlushFreshwaterDeviceFlush:
		return t.FreshwaterToDevice + t.FreshwaterFlush + t.Buffer
	case nora.FlushAirFlush:
		return t.FinalAir + t.Buffer
	case nora.FlushHomeTube:
		return t.Buffer
	default:
		return 0
	}
}

// Abort stops motion, closes every valve and stops the pump, then resets to
// Null. Every step is attempted even if an earlier one fails.
func (f *Flusher) Abort() error {
	err := multierr.Combine(f.motion.Abort(), f.release())
	f.stage = nora.FlushNull
	f.entered = false
	return err
}

// release closes every valve and stops the pump
func (f *Flusher) release() error {
	var err error
	for _, v := range nora.Valves {
		err = multierr.Append(err, f.setValve(v, false))
	}
	if f.pumping {
		pumpErr := f.pump.StopPump()
		if pumpErr == nil {
			f.pumping = false
		}
		err = multierr.Append(err, pumpErr)
	}
	return err
}

// Tick advances the flush by at most one stage and returns true when the
// whole procedure has finished
func (f *Flusher) Tick(now time.Time) (bool, error) {
	if f.stage == nora.FlushNull {
		return false, nil
	}

	if f.stage == nora.FlushFreshwaterDeviceFlush && f.entered {
		err := f.checkWaterTemp()
		if err != nil {
			return false, errors.Join(err, f.Abort())
		}
	}

	if !f.entered {
		err := f.enter(now)
		if err != nil {
			return false, err
		}
		f.entered = true
		return false, nil
	}

	moved, err := f.tickMotion(now)
	if err != nil {
		return false, errors.Join(err, f.Abort())
	}

	if now.Sub(f.stageStart) < f.Dwell(f.stage) || !moved {
		return false, nil
	}

	err = f.exit()
	if err != nil {
		return false, err
	}

	next := f.stage.Next()
	f.logger.Printf("[flush] %s -> %s", f.stage, next)
	f.stage = next
	f.entered = false
	f.stageStart = now
	return next == nora.FlushNull, nil
}

func (f *Flusher) checkWaterTemp() error {
	t, err := f.thermo.Temperature(nora.FlushwaterTempSensor)
	if err != nil {
		return fmt.Errorf("error reading flush water temperature: %w", err)
	}
	c := sensor.Celsius(t)
	if f.verbose {
		f.logger.Printf("[flush] flush water %.1fC", c)
	}
	if c > f.cfg.Timing.MaxWaterTempC {
		return &Error{
			Stage: f.stage.String(),
			Fault: nora.FaultFlushWaterTemp,
			Err:   fmt.Errorf("%w: %.1fC above %.1fC", ErrFlushWaterTemp, c, f.cfg.Timing.MaxWaterTempC),
		}
	}
	return nil
}

func (f *Flusher) enter(now time.Time) error {
	f.stageStart = now
	pos := f.motion.PositionCM()

	switch f.stage {
	case nora.FlushDumpSample:
		return f.startMove(pos+f.cfg.DumpLiftCM, f.cfg.DumpLiftSpeed, now)
	case nora.FlushAirBubble, nora.FlushAirFlush:
		return f.setValve(nora.ValveAir, true)
	case nora.FlushFreshwaterLineFlush:
		err := f.setValve(nora.ValveFreshwater, true)
		if err != nil {
			return err
		}
		return f.startMove(pos-f.cfg.LineFlushDropCM, f.cfg.LineFlushSpeed, now)
	case nora.FlushFreshwaterDeviceFlush:
		err := f.setValve(nora.ValveFreshwater, true)
		if err != nil {
			return err
		}
		if !f.pumping {
			err = f.pump.StartPump()
			if err != nil {
				return fmt.Errorf("error starting pump: %w", err)
			}
			f.pumping = true
		}
		return nil
	case nora.FlushHomeTube:
		goal := -f.cfg.HomeOvershootCM
		if pos < 0 {
			goal = f.cfg.HomeOvershootCM
		}
		err := f.motion.Start(motion.Target{
			PositionCM:   goal,
			ToleranceCM:  f.cfg.ToleranceCM,
			MaxSpeedCMS:  f.cfg.HomeSpeed,
			Timeout:      f.cfg.HomeTimeout,
			TimeoutFault: nora.FaultTube,
			Until:        f.magnet.Active,
		}, now)
		if err != nil {
			return fmt.Errorf("error starting home move: %w", err)
		}
		return nil
	}
	return nil
}

func (f *Flusher) startMove(goal, speed float64, now time.Time) error {
	travel := math.Abs(goal-f.motion.PositionCM()) / speed
	err := f.motion.Start(motion.Target{
		PositionCM:  goal,
		ToleranceCM: f.cfg.ToleranceCM,
		MaxSpeedCMS: speed,
		Timeout:     time.Duration(travel * f.cfg.MoveTimeoutFactor * float64(time.Second)),
	}, now)
	if err != nil {
		return fmt.Errorf("error starting %s move: %w", f.stage, err)
	}
	return nil
}

// tickMotion advances any move of the current stage and reports whether its
// physical condition is met
func (f *Flusher) tickMotion(now time.Time) (bool, error) {
	if f.motion.Busy() {
		outcome, err := f.motion.Tick(now)
		if err != nil {
			var moveErr *motion.MoveError
			if errors.As(err, &moveErr) && moveErr.Outcome == motion.TimedOut && moveErr.Fault == nora.FaultNone {
				f.logger.Printf("[flush] %s move timed out at %.1fcm, continuing", f.stage, moveErr.PositionCM)
				return true, nil
			}
			return false, moveFault(f.stage, err)
		}
		if !outcome.Done() {
			return false, nil
		}
		if f.stage == nora.FlushHomeTube {
			return f.homed(outcome)
		}
		return true, nil
	}

	if f.stage == nora.FlushHomeTube {
		return f.homed(f.motion.Last())
	}
	return true, nil
}

func (f *Flusher) homed(outcome motion.Outcome) (bool, error) {
	if outcome == motion.Triggered || f.magnet.Active() {
		f.motion.Rezero()
		return true, nil
	}
	return false, &Error{
		Stage: f.stage.String(),
		Fault: nora.FaultTube,
		Err:   fmt.Errorf("%w: stopped at %.1fcm", ErrHomeNotFound, f.motion.PositionCM()),
	}
}

// exit undoes the stage's actuator changes
func (f *Flusher) exit() error {
	switch f.stage {
	case nora.FlushAirBubble, nora.FlushAirFlush:
		return f.setValve(nora.ValveAir, false)
	case nora.FlushFreshwaterLineFlush:
		return f.setValve(nora.ValveFreshwater, false)
	case nora.FlushFreshwaterDeviceFlush:
		err := f.setValve(nora.ValveFreshwater, false)
		if f.pumping {
			pumpErr := f.pump.StopPump()
			if pumpErr == nil {
				f.pumping = false
			}
			err = multierr.Append(err, pumpErr)
		}
		return err
	}
	return nil
}

func (f *Flusher) setValve(v nora.Valve, open bool) error {
	err := f.valves.SetValve(v, open)
	if err != nil {
		return fmt.Errorf("error setting %s valve open=%v: %w", v, open, err)
	}
	f.open[v] = open
	return nil
}

// OpenValves lists the valves the flusher currently holds open
func (f *Flusher) OpenValves() []nora.Valve {
	var open []nora.Valve
	for _, v := range nora.Valves {
		if f.open[v] {
			open = append(open, v)
		}
	}
	return open
}

// SetVerbose enables temperature logging
func (f *Flusher) SetVerbose(v bool) {
	f.verbose = v
}
