package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/fault"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/schedule"
	"github.com/calvinmclean/nora/sensor"
	"github.com/calvinmclean/nora/sequence"
	"github.com/calvinmclean/nora/topside"
	"github.com/calvinmclean/nora/twchart"
)

var (
	ErrNotStandby = errors.New("only accepted in standby")
	ErrNoAlarm    = errors.New("no alarm to acknowledge")
	// ErrReleaseTimeout is wrapped in the Motor fault raised when the drop
	// does not reach the sampling depth in time
	ErrReleaseTimeout = errors.New("tube not released in time")
)

// Link is the serial connection to the topside host
type Link interface {
	Send(msg string) error
	Inbound() <-chan []byte
}

// SettingsStore persists the operator's schedule
type SettingsStore interface {
	Load() (schedule.Settings, error)
	Save(schedule.Settings) error
}

// TideStore caches tide levels reported by the host
type TideStore interface {
	Record(schedule.TideReading) error
	Latest() (schedule.TideReading, bool, error)
}

// Hardware is the physical I/O the controller works through
type Hardware struct {
	Driver motion.Driver
	Valves sequence.Plumbing
	Thermo sensor.Thermometer
	Magnet sensor.DigitalInput
	Tube   sensor.DigitalInput
	EStop  sensor.DigitalInput
	Keys   sensor.KeyReader
}

// Options are the optional collaborators. Nil values disable the feature.
type Options struct {
	Link     Link
	Settings SettingsStore
	Tides    TideStore
	Clock    *schedule.Clock
	TWChart  twchartClient
	Probes   twchart.Probes
	Logger   *log.Logger
}

// Controller is the top-level operating mode state machine. It owns the
// sequencers and decides which one runs each tick. All methods must be called
// from the goroutine that calls Tick.
type Controller struct {
	cfg    Config
	hw     Hardware
	link   Link
	store  SettingsStore
	tides  TideStore
	clock  *schedule.Clock
	logger *log.Logger
	rec    *recorder

	faults    *fault.Supervisor
	motion    *motion.Controller
	retriever *sequence.Retriever
	flusher   *sequence.Flusher

	magnet *sensor.Switch
	tube   *sensor.Switch
	estop  *sensor.Switch
	keypad *sensor.Keypad

	comms fault.CommsWatchdog
	water fault.WaterDetector

	state      nora.State
	entered    bool
	stateStart time.Time
	startTime  time.Time
	now        time.Time
	key        nora.Key

	settings        schedule.Settings
	nextSample      time.Time
	sampleRequested bool
	cycles          int

	tideCM        float64
	tideKnown     bool
	secondAttempt bool
	releaseLeg    int
	releaseStart  time.Time
	calRetrieve   bool
	pumpOn        bool
	estopSeen     bool

	menu         menu
	manualValves map[nora.Valve]bool
	verbose      bool
}

// New creates a Controller in CALIBRATE
func New(cfg Config, hw Hardware, opts Options) (*Controller, error) {
	if hw.Driver == nil || hw.Valves == nil || hw.Thermo == nil {
		return nil, errors.New("driver, valves and thermometer are required")
	}
	if hw.Magnet == nil || hw.Tube == nil || hw.EStop == nil || hw.Keys == nil {
		return nil, errors.New("magnet, tube, e-stop and keypad inputs are required")
	}

	timing, err := sequence.FlushTimingFor(cfg.Flush.Profile)
	if err != nil {
		return nil, fmt.Errorf("error selecting flush timing: %w", err)
	}
	flushCfg := cfg.Flush.FlushConfig
	flushCfg.Timing = flushCfg.Timing.Merge(timing)

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = schedule.NewClock(0, "UTC")
	}
	probes := opts.Probes
	if probes == nil {
		probes = twchart.DefaultProbes
	}

	c := &Controller{
		cfg:    cfg,
		hw:     hw,
		link:   opts.Link,
		store:  opts.Settings,
		tides:  opts.Tides,
		clock:  clock,
		logger: logger,
		rec:    newRecorder(opts.TWChart, probes, logger),
		faults: fault.NewSupervisor(logger),
		magnet: sensor.NewSwitch(hw.Magnet, cfg.Sensors.MagnetStableTicks),
		tube:   sensor.NewSwitch(hw.Tube, cfg.Sensors.TubeStableTicks),
		estop:  sensor.NewSwitch(hw.EStop, cfg.Sensors.EStopStableTicks),
		keypad: sensor.NewKeypad(hw.Keys, cfg.Sensors.KeyDebounce, cfg.Sensors.KeyRepeat),
		comms:  fault.CommsWatchdog{Timeout: cfg.CommsTimeout},
		water: fault.WaterDetector{
			Timeout:  cfg.Sample.WaterDetectTimeout,
			MinDelta: cfg.Sample.MinTempDeltaC,
		},
		state:    nora.StateCalibrate,
		settings: schedule.DefaultSettings(),
	}

	c.motion = motion.NewController(cfg.Motion, hw.Driver, c.faults, logger)
	c.retriever = sequence.NewRetriever(cfg.Retrieve, c.motion, c.tube, c.magnet, logger)
	c.flusher = sequence.NewFlusher(flushCfg, c.motion, hw.Valves, linkPump{c}, hw.Thermo, c.magnet, logger)

	if c.store != nil {
		settings, err := c.store.Load()
		if err != nil {
			logger.Printf("[mode] using default settings: %v", err)
		}
		c.settings = settings
	}
	if c.tides != nil {
		reading, ok, err := c.tides.Latest()
		if err != nil {
			logger.Printf("[mode] error reading tide cache: %v", err)
		}
		if ok {
			c.tideCM, c.tideKnown = reading.LevelCM, true
		}
	}

	return c, nil
}

// State is the current operating mode
func (c *Controller) State() nora.State {
	return c.state
}

// Fault is the latched fault
func (c *Controller) Fault() nora.AlarmFault {
	return c.faults.Active()
}

// Faults exposes the fault register
func (c *Controller) Faults() *fault.Supervisor {
	return c.faults
}

// PositionCM is the tube position relative to home
func (c *Controller) PositionCM() float64 {
	return c.motion.PositionCM()
}

// Settings returns the current schedule
func (c *Controller) Settings() schedule.Settings {
	return c.settings
}

// NextSample is the wall time of the next scheduled cycle
func (c *Controller) NextSample() time.Time {
	return c.nextSample
}

// Tick runs one iteration of the control loop. Faults are handled before any
// state is allowed to advance.
func (c *Controller) Tick(now time.Time) {
	c.now = now
	if c.startTime.IsZero() {
		c.startTime = now
		c.stateStart = now
	}

	c.magnet.Poll()
	c.tube.Poll()
	c.estop.Poll()
	c.key = c.keypad.Poll(now)

	c.serviceLink(now)

	if c.estop.Active() {
		if !c.estopSeen {
			c.faults.Report(nora.FaultEStop, "estop", now)
		}
		c.estopSeen = true
	} else {
		c.estopSeen = false
	}

	if c.comms.Expired(now) {
		c.comms.Disarm()
		c.faults.Report(nora.FaultTopsideComms, "topside", now)
	}

	if c.faults.Preempting() && c.state != nora.StateAlarm {
		c.enterAlarm()
		return
	}

	err := c.runState(now)
	if err != nil {
		c.escalate(err)
	}
}

// Run ticks the controller until ctx is cancelled, then puts the hardware in
// a safe state
func (c *Controller) Run(ctx context.Context) error {
	interval := c.cfg.TickInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.Shutdown()
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

// Shutdown stops the motor, closes the valves and the pump and flushes
// telemetry. Every step is attempted.
func (c *Controller) Shutdown() error {
	err := c.safeState()
	c.rec.Close()
	c.logger.Printf("[mode] shutdown in %s", c.state)
	return err
}

func (c *Controller) runState(now time.Time) error {
	switch c.state {
	case nora.StateCalibrate:
		return c.calibrate(now)
	case nora.StateStandby:
		return c.standby(now)
	case nora.StateRelease:
		return c.release(now)
	case nora.StateSoak:
		return c.soak(now)
	case nora.StateRecover:
		return c.recover(now)
	case nora.StateSample:
		return c.sample(now)
	case nora.StateFlushSystem:
		return c.flush(now)
	case nora.StateDry:
		return c.dry(now)
	case nora.StateAlarm:
		return c.alarm()
	case nora.StateManual:
		return c.manual()
	case nora.StateMotorControl:
		return c.motorControl(now)
	case nora.StateSolenoidControl:
		return c.solenoidControl()
	}
	if c.state.InSettings() {
		return c.settingsMenu(now)
	}
	return fmt.Errorf("unhandled state %s", c.state)
}

func (c *Controller) setState(s nora.State) {
	if s == c.state {
		return
	}
	c.logger.Printf("%s [mode] %s -> %s", c.ts(), c.state, s)
	c.state = s
	c.entered = false
	c.stateStart = c.now

	if s.InCycle() {
		c.rec.Stage(s.String(), c.clock.Wall(c.now))
	}
}

// escalate latches the fault carried by err and preempts into ALARM in the
// same tick. Errors without a fault are retried on the next tick.
func (c *Controller) escalate(err error) {
	f := sequence.FaultOf(err)
	if f == nora.FaultNone {
		c.logger.Printf("%s [mode] %s: %v", c.ts(), c.state, err)
		return
	}
	c.logger.Printf("%s [mode] %s failed: %v", c.ts(), c.state, err)
	c.faults.Report(f, c.state.String(), c.now)
	if c.faults.Preempting() {
		c.enterAlarm()
	}
}

func (c *Controller) enterAlarm() {
	f := c.faults.Active()
	wasCycle := c.state.InCycle()

	err := c.safeState()
	if err != nil {
		c.logger.Printf("%s [mode] error reaching safe state: %v", c.ts(), err)
	}

	if code := f.ReportCode(); code != "" {
		c.send(code)
	}
	if f == nora.FaultTube && wasCycle {
		c.secondAttempt = true
	}
	if wasCycle {
		c.rec.Event("fault: "+f.String(), c.clock.Wall(c.now))
		c.rec.Done(c.clock.Wall(c.now))
	}

	c.sampleRequested = false
	c.manualValves = nil
	c.water.Stop()
	c.comms.Disarm()
	c.setState(nora.StateAlarm)
}

// safeState de-energizes the motor, closes every valve and tells the host to
// stop the pump
func (c *Controller) safeState() error {
	err := multierr.Combine(
		c.retriever.Abort(),
		c.flusher.Abort(),
		c.motion.Abort(),
	)
	for _, v := range nora.Valves {
		err = multierr.Append(err, c.hw.Valves.SetValve(v, false))
	}
	return multierr.Append(err, c.stopPump())
}

func (c *Controller) alarm() error {
	if c.key == nora.KeySelect {
		return c.acknowledge()
	}
	return nil
}

func (c *Controller) acknowledge() error {
	if c.state != nora.StateAlarm {
		return ErrNoAlarm
	}
	err := c.faults.Acknowledge(c.estop.Active())
	if err != nil {
		return fmt.Errorf("error acknowledging alarm: %w", err)
	}
	c.setState(nora.StateCalibrate)
	return nil
}

// calibrate finds home and makes it position zero. A tube that is far below
// home is brought up by the retrieval profile. Otherwise it is raised slowly
// until the home magnet confirms.
func (c *Controller) calibrate(now time.Time) error {
	if !c.entered {
		if c.link != nil {
			c.send(nora.RequestTime)
			c.comms.Arm(nora.RequestTime, now)
		}
		c.calRetrieve = c.motion.PositionCM() < -c.cfg.Retrieve.NearingHomeCM
		if c.calRetrieve {
			c.retriever.Start(now)
		}
		c.entered = true
		return nil
	}

	if c.calRetrieve {
		done, err := c.retriever.Tick(now)
		if err != nil || !done {
			return err
		}
		return c.calibrated()
	}

	if !c.motion.Busy() {
		if !c.magnet.Settled() {
			return nil
		}
		if c.magnet.Active() {
			return c.calibrated()
		}
		err := c.motion.Start(motion.Target{
			PositionCM:   c.motion.PositionCM() + c.cfg.Calibrate.SearchCM,
			MaxSpeedCMS:  c.cfg.Calibrate.SpeedCMS,
			Timeout:      c.cfg.Calibrate.Timeout,
			TimeoutFault: nora.FaultTube,
			Until:        c.magnet.Active,
		}, now)
		if err != nil {
			return fmt.Errorf("error starting calibration: %w", err)
		}
		return nil
	}

	outcome, err := c.motion.Tick(now)
	if err != nil {
		return err
	}
	switch outcome {
	case motion.Triggered:
		return c.calibrated()
	case motion.Reached:
		return &sequence.Error{
			Stage: c.state.String(),
			Fault: nora.FaultTube,
			Err:   fmt.Errorf("home magnet not found within %.0fcm", c.cfg.Calibrate.SearchCM),
		}
	}
	return nil
}

func (c *Controller) calibrated() error {
	c.motion.Rezero()
	c.faults.Recalibrated()
	c.logger.Printf("%s [mode] calibrated", c.ts())
	c.setState(nora.StateStandby)
	return nil
}

func (c *Controller) standby(now time.Time) error {
	wall := c.clock.Wall(now)
	if !c.entered {
		c.nextSample = c.settings.NextSample(wall)
		c.logger.Printf("%s [mode] next sample at %s", c.ts(), c.nextSample.Format(time.DateTime))
		c.entered = true
	}

	switch c.key {
	case nora.KeySelect:
		c.menu = menu{}
		c.setState(nora.StateSettings)
		return nil
	case nora.KeyRight:
		c.setState(nora.StateManual)
		return nil
	}

	if c.sampleRequested || !wall.Before(c.nextSample) {
		return c.startCycle(now)
	}
	return nil
}

// send writes a message to the host. Link errors are logged since the comms
// watchdog is what detects a dead host.
func (c *Controller) send(msg string) {
	if c.link == nil {
		return
	}
	err := c.link.Send(msg)
	if err != nil {
		c.logger.Printf("%s [topside] error sending %q: %v", c.ts(), msg, err)
	}
}

// serviceLink handles every line the host sent since the last tick
func (c *Controller) serviceLink(now time.Time) {
	if c.link == nil {
		return
	}
	in := c.link.Inbound()
	for {
		select {
		case line, ok := <-in:
			if !ok {
				c.logger.Printf("%s [topside] link closed", c.ts())
				c.link = nil
				if c.comms.Armed() {
					c.faults.Report(nora.FaultTopsideComms, "topside", now)
				}
				return
			}
			err := topside.Dispatch(c, line)
			if err != nil {
				c.logger.Printf("%s [topside] %q: %v", c.ts(), line, err)
			}
		default:
			return
		}
	}
}

// BeginSample starts a cycle on the next tick
func (c *Controller) BeginSample() error {
	if c.state != nora.StateStandby {
		return fmt.Errorf("%w: in %s", ErrNotStandby, c.state)
	}
	c.sampleRequested = true
	return nil
}

// SetClock syncs wall time to the host
func (c *Controller) SetClock(epoch time.Time) error {
	c.clock.Sync(epoch, c.now)
	c.comms.Answered(nora.RequestTime)
	c.logger.Printf("%s [mode] clock set to %s", c.ts(), c.clock.Wall(c.now).Format(time.DateTime))
	if c.state == nora.StateStandby {
		c.nextSample = c.settings.NextSample(c.clock.Wall(c.now))
	}
	return nil
}

// SetTide records the level used for the next release
func (c *Controller) SetTide(levelCM float64) error {
	c.tideCM, c.tideKnown = levelCM, true
	c.comms.Answered(nora.RequestTideData)
	if c.tides == nil {
		return nil
	}
	err := c.tides.Record(schedule.TideReading{At: c.clock.Wall(c.now), LevelCM: levelCM})
	if err != nil {
		return fmt.Errorf("error caching tide: %w", err)
	}
	return nil
}

// AcknowledgeAlarm is the host clearing the alarm
func (c *Controller) AcknowledgeAlarm() error {
	return c.acknowledge()
}

// Debug describes the controller's state
func (c *Controller) Debug() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s state=%s fault=%s pos=%.1fcm", c.ts(), c.state, c.faults.Active(), c.motion.PositionCM())
	switch c.state {
	case nora.StateRecover:
		fmt.Fprintf(&sb, " retrieve=%s", c.retriever.Stage())
	case nora.StateFlushSystem:
		fmt.Fprintf(&sb, " flush=%s", c.flusher.Stage())
	}
	if c.tideKnown {
		fmt.Fprintf(&sb, " tide=%.1fcm", c.tideCM)
	}
	fmt.Fprintf(&sb, " next=%s", c.nextSample.Format(time.DateTime))
	return sb.String()
}

// Verbose enables per-tick logging
func (c *Controller) Verbose() {
	c.verbose = true
	c.motion.SetVerbose(true)
	c.flusher.SetVerbose(true)
	c.logger.Printf("%s Set Verbose Mode", c.ts())
}

// Reply sends a free-form line to the host
func (c *Controller) Reply(msg string) {
	c.send(msg)
}

// ts returns the time since start for logging
func (c *Controller) ts() string {
	if c.startTime.IsZero() {
		return "[-]"
	}
	return "[" + c.now.Sub(c.startTime).Truncate(time.Millisecond).String() + "]"
}

// linkPump runs the analyzer's sample pump through the host
type linkPump struct {
	c *Controller
}

func (p linkPump) StartPump() error {
	p.c.send(nora.StartPump)
	p.c.pumpOn = true
	return nil
}

func (p linkPump) StopPump() error {
	return p.c.stopPump()
}

func (c *Controller) stopPump() error {
	c.send(nora.StopPump)
	c.pumpOn = false
	return nil
}

var _ topside.Handler = &Controller{}
