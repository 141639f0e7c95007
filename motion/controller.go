package motion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/calvinmclean/nora"
)

var (
	ErrBusy          = errors.New("a move is already in progress")
	ErrInhibited     = errors.New("motion inhibited by active fault")
	ErrInvalidTarget = errors.New("invalid position target")
)

// Outcome is the state of the current or last move
type Outcome int

const (
	Idle Outcome = iota
	Moving
	// Reached means the position is within tolerance of the target
	Reached
	// Triggered means the target's Until condition stopped the move early
	Triggered
	TimedOut
	Alarmed
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "Idle"
	case Moving:
		return "Moving"
	case Reached:
		return "Reached"
	case Triggered:
		return "Triggered"
	case TimedOut:
		return "TimedOut"
	case Alarmed:
		return "Alarmed"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Done is true for every outcome that ends a move
func (o Outcome) Done() bool {
	return o != Idle && o != Moving
}

// Target is a single move request. It is consumed by the Controller when the
// move ends.
type Target struct {
	PositionCM  float64
	ToleranceCM float64
	MaxSpeedCMS float64
	Timeout     time.Duration
	// TimeoutFault is reported in the MoveError when Timeout elapses. FaultNone
	// means a plain motion timeout.
	TimeoutFault nora.AlarmFault
	// Until stops the move early when it returns true
	Until func() bool
}

// MoveError describes a move that ended without reaching its target
type MoveError struct {
	Outcome    Outcome
	Fault      nora.AlarmFault
	PositionCM float64
	Err        error
}

func (e *MoveError) Error() string {
	msg := fmt.Sprintf("move %s at %.1fcm", e.Outcome, e.PositionCM)
	if e.Fault != nora.FaultNone {
		msg += " fault=" + e.Fault.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MoveError) Unwrap() error {
	return e.Err
}

// Interlock prevents new motion while a fault is latched
type Interlock interface {
	Preempting() bool
}

// Config holds the Controller's limits
type Config struct {
	Reel Reel `yaml:"reel"`
	// SpeedCeilingCMS caps every move regardless of the target's requested speed
	SpeedCeilingCMS float64 `yaml:"speed_ceiling_cm_s"`
	AlarmThreshold  uint16  `yaml:"alarm_threshold"`
	// AlarmSamples is how many consecutive readings above AlarmThreshold trip
	// the motor alarm
	AlarmSamples       int     `yaml:"alarm_samples"`
	DefaultToleranceCM float64 `yaml:"default_tolerance_cm"`
}

// Controller is the position loop for the reel. It exclusively owns the Driver
// and guarantees the driver is stopped whenever a move ends.
type Controller struct {
	cfg       Config
	driver    Driver
	interlock Interlock
	logger    *log.Logger
	verbose   bool

	target    *Target
	dir       nora.MotorDir
	startedAt time.Time
	alarmHits int
	last      Outcome
}

// NewController creates a Controller for the driver. The interlock may be nil.
func NewController(cfg Config, driver Driver, interlock Interlock, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.AlarmSamples < 1 {
		cfg.AlarmSamples = 1
	}
	return &Controller{
		cfg:       cfg,
		driver:    driver,
		interlock: interlock,
		logger:    logger,
	}
}

// SetVerbose enables per-tick position logging
func (c *Controller) SetVerbose(v bool) {
	c.verbose = v
}

// Reel returns the conversion used by the controller
func (c *Controller) Reel() Reel {
	return c.cfg.Reel
}

// PositionCM is the measured reel position. Home is 0 and lowering is negative.
func (c *Controller) PositionCM() float64 {
	return c.cfg.Reel.ToDistance(c.driver.Position())
}

// Rezero declares the current position to be home
func (c *Controller) Rezero() {
	c.driver.SetPosition(0)
}

// Busy is true while a move is in progress
func (c *Controller) Busy() bool {
	return c.target != nil
}

// Last returns the outcome of the current or most recent move
func (c *Controller) Last() Outcome {
	return c.last
}

// Start begins a move toward target. Direction is inferred from the current
// position and never changes during the move.
func (c *Controller) Start(target Target, now time.Time) error {
	if c.target != nil {
		return ErrBusy
	}
	if c.interlock != nil && c.interlock.Preempting() {
		return ErrInhibited
	}
	if target.MaxSpeedCMS <= 0 || math.IsNaN(target.PositionCM) {
		return fmt.Errorf("%w: speed %.2f target %.2f", ErrInvalidTarget, target.MaxSpeedCMS, target.PositionCM)
	}
	if target.ToleranceCM <= 0 {
		target.ToleranceCM = c.cfg.DefaultToleranceCM
	}

	speed := target.MaxSpeedCMS
	if c.cfg.SpeedCeilingCMS > 0 && speed > c.cfg.SpeedCeilingCMS {
		speed = c.cfg.SpeedCeilingCMS
	}

	pos := c.PositionCM()
	c.target = &target
	c.startedAt = now
	c.alarmHits = 0
	c.last = Moving

	if math.Abs(target.PositionCM-pos) <= target.ToleranceCM {
		c.dir = nora.MotorOff
		return nil
	}

	c.dir = nora.MotorCCW
	if target.PositionCM > pos {
		c.dir = nora.MotorCW
	}

	c.logger.Printf("[motion] move %.1fcm -> %.1fcm dir=%s speed=%.1fcm/s", pos, target.PositionCM, c.dir, speed)

	err := c.driver.Run(c.dir, c.cfg.Reel.PulseRate(speed))
	if err != nil {
		_ = c.finish(Aborted)
		return fmt.Errorf("error starting driver: %w", err)
	}
	return nil
}

// Tick samples the alarm and position once. It returns Moving until the move
// ends. Alarm and timeout end the move with a *MoveError.
func (c *Controller) Tick(now time.Time) (Outcome, error) {
	if c.target == nil {
		return c.last, nil
	}
	t := c.target

	if c.interlock != nil && c.interlock.Preempting() {
		return c.fail(Aborted, nora.FaultNone, ErrInhibited)
	}

	level, err := c.driver.AlarmLevel()
	if err != nil {
		return c.fail(Alarmed, nora.FaultMotor, fmt.Errorf("error reading alarm level: %w", err))
	}
	if level > c.cfg.AlarmThreshold {
		c.alarmHits++
	} else {
		c.alarmHits = 0
	}
	if c.alarmHits >= c.cfg.AlarmSamples {
		return c.fail(Alarmed, nora.FaultMotor, fmt.Errorf("alarm level %d above %d", level, c.cfg.AlarmThreshold))
	}

	pos := c.PositionCM()
	if c.verbose {
		c.logger.Printf("[motion] pos=%.2fcm target=%.2fcm", pos, t.PositionCM)
	}

	if t.Until != nil && t.Until() {
		return c.complete(Triggered)
	}

	if c.arrived(pos) {
		return c.complete(Reached)
	}

	if t.Timeout > 0 && now.Sub(c.startedAt) >= t.Timeout {
		return c.fail(TimedOut, t.TimeoutFault, fmt.Errorf("not reached after %s", t.Timeout))
	}

	return Moving, nil
}

// arrived is true inside tolerance or once the target has been passed
func (c *Controller) arrived(pos float64) bool {
	t := c.target
	if math.Abs(t.PositionCM-pos) <= t.ToleranceCM {
		return true
	}
	switch c.dir {
	case nora.MotorCW:
		return pos >= t.PositionCM
	case nora.MotorCCW:
		return pos <= t.PositionCM
	}
	return false
}

// Abort ends any move and de-energizes the motor
func (c *Controller) Abort() error {
	if c.target == nil {
		return c.driver.Stop()
	}
	c.logger.Printf("[motion] abort at %.1fcm", c.PositionCM())
	return c.finish(Aborted)
}

func (c *Controller) fail(o Outcome, f nora.AlarmFault, cause error) (Outcome, error) {
	pos := c.PositionCM()
	stopErr := c.finish(o)
	c.logger.Printf("[motion] %s at %.1fcm: %v", o, pos, cause)
	return o, &MoveError{
		Outcome:    o,
		Fault:      f,
		PositionCM: pos,
		Err:        errors.Join(cause, stopErr),
	}
}

// complete ends a successful move. A driver that fails to stop turns the
// success into a motor fault.
func (c *Controller) complete(o Outcome) (Outcome, error) {
	pos := c.PositionCM()
	err := c.finish(o)
	if err != nil {
		c.logger.Printf("[motion] %s at %.1fcm but driver did not stop: %v", o, pos, err)
		return o, &MoveError{
			Outcome:    o,
			Fault:      nora.FaultMotor,
			PositionCM: pos,
			Err:        fmt.Errorf("error stopping driver: %w", err),
		}
	}
	return o, nil
}

func (c *Controller) finish(o Outcome) error {
	c.target = nil
	c.dir = nora.MotorOff
	c.last = o
	return c.driver.Stop()
}

// MoveTo runs a complete move, ticking at interval until it ends. The driver
// is stopped on every return path, including cancellation.
func (c *Controller) MoveTo(ctx context.Context, target Target, interval time.Duration) error {
	err := c.Start(target, time.Now())
	if err != nil {
		return err
	}
	defer func() {
		if c.target != nil {
			_ = c.Abort()
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		outcome, err := c.Tick(time.Now())
		if err != nil {
			return err
		}
		if outcome.Done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return &MoveError{Outcome: Aborted, PositionCM: c.PositionCM(), Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}
