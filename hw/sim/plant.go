// Package sim is a simulated instrument: reel, sensors, valves and RTDs
// responding to each other closely enough to run full sampling cycles off the
// buoy.
package sim

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/sensor"
)

var ErrSensorFailed = errors.New("simulated sensor failure")

// Geometry places the simulated landmarks, in centimeters below home
type Geometry struct {
	MagnetBandCM  float64
	TubeOpeningCM float64
	WaterDepthCM  float64
}

// DefaultGeometry matches a pier deployment at mean tide
var DefaultGeometry = Geometry{
	MagnetBandCM:  1,
	TubeOpeningCM: 228,
	WaterDepthCM:  700,
}

// Plant is the simulated hardware. It is safe for use from the control loop
// and a background clock.
type Plant struct {
	mu sync.Mutex

	reel motion.Reel
	geo  Geometry

	pulses    float64
	offsetCM  float64
	dir       nora.MotorDir
	rate      float64
	energized bool
	alarm     uint16
	jammed    bool

	valves map[nora.Valve]bool
	pump   bool
	filled bool
	estop  bool
	keys   map[nora.Key]bool

	airC, waterC, flushC float64
	rtdErr               error
}

var (
	_ motion.Driver      = &Plant{}
	_ sensor.KeyReader   = &Plant{}
	_ sensor.Thermometer = &Plant{}
)

// New creates a plant with the tube physically at startCM (home is 0)
func New(reel motion.Reel, geo Geometry, startCM float64) *Plant {
	return &Plant{
		reel:     reel,
		geo:      geo,
		offsetCM: startCM,
		valves:   map[nora.Valve]bool{},
		keys:     map[nora.Key]bool{},
		airC:     18,
		waterC:   12,
		flushC:   20,
	}
}

// Advance moves the reel by the pulses produced during dt
func (p *Plant) Advance(dt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.energized || p.jammed {
		return
	}
	step := p.rate * dt.Seconds()
	switch p.dir {
	case nora.MotorCW:
		p.pulses += step
	case nora.MotorCCW:
		p.pulses -= step
	}

	if p.physical() <= -p.geo.WaterDepthCM {
		p.filled = true
	}
}

// physical is the true tube position. Caller holds mu.
func (p *Plant) physical() float64 {
	return p.reel.ToDistance(int64(p.pulses)) + p.offsetCM
}

// Place puts the tube at cm with the driver count agreeing with it, as if the
// instrument had been calibrated and then moved there
func (p *Plant) Place(cm float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pulses = float64(p.reel.ToPulses(cm))
	p.offsetCM = 0
	if cm <= -p.geo.WaterDepthCM {
		p.filled = true
	}
}

// PhysicalCM is the true tube position, independent of the driver's count
func (p *Plant) PhysicalCM() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.physical()
}

func (p *Plant) Run(dir nora.MotorDir, pulsesPerSec float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dir = dir
	p.rate = pulsesPerSec
	p.energized = dir != nora.MotorOff
	return nil
}

func (p *Plant) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dir = nora.MotorOff
	p.rate = 0
	p.energized = false
	return nil
}

func (p *Plant) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(p.pulses)
}

// SetPosition changes the driver's count without moving the tube
func (p *Plant) SetPosition(pulses int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	physical := p.physical()
	p.pulses = float64(pulses)
	p.offsetCM = physical - p.reel.ToDistance(pulses)
}

func (p *Plant) AlarmLevel() (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alarm, nil
}

func (p *Plant) Energized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.energized
}

// SetAlarm sets the driver's alarm output level
func (p *Plant) SetAlarm(level uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alarm = level
}

// Jam stops the reel from turning even while energized
func (p *Plant) Jam(jammed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jammed = jammed
}

// Magnet is the home sensor input
func (p *Plant) Magnet() sensor.DigitalInput {
	return input(func() bool {
		pos := p.PhysicalCM()
		return pos >= -p.geo.MagnetBandCM && pos <= p.geo.MagnetBandCM
	})
}

// Tube is the tube presence input, asserted once the tube is inside the guide
func (p *Plant) Tube() sensor.DigitalInput {
	return input(func() bool {
		return p.PhysicalCM() >= -p.geo.TubeOpeningCM
	})
}

// EStop is the emergency stop input
func (p *Plant) EStop() sensor.DigitalInput {
	return input(func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.estop
	})
}

// PressEStop asserts or releases the emergency stop
func (p *Plant) PressEStop(pressed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.estop = pressed
}

// PressKey holds or releases a keypad key
func (p *Plant) PressKey(k nora.Key, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[k] = down
}

func (p *Plant) KeyDown(k nora.Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[k]
}

func (p *Plant) SetValve(v nora.Valve, open bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valves[v] = open
	if v == nora.ValveAir && open {
		p.filled = false
	}
	return nil
}

// ValveOpen reports a valve's state
func (p *Plant) ValveOpen(v nora.Valve) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valves[v]
}

// SetPump turns the simulated analyzer pump on or off
func (p *Plant) SetPump(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pump = on
}

func (p *Plant) Pumping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pump
}

// SetFlushWaterTemp sets the freshwater tank temperature in Celsius
func (p *Plant) SetFlushWaterTemp(c float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushC = c
}

// SetWaterTemp sets the sea temperature in Celsius
func (p *Plant) SetWaterTemp(c float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waterC = c
}

// FailRTD makes every temperature read return err
func (p *Plant) FailRTD(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rtdErr = err
}

// Temperature reads an RTD. The sample line reads sea temperature while the
// pump draws from a filled tube.
func (p *Plant) Temperature(s nora.TempSensor) (physic.Temperature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rtdErr != nil {
		return 0, p.rtdErr
	}

	switch s {
	case nora.SampleTempSensor:
		if p.pump && p.filled {
			return sensor.FromCelsius(p.waterC), nil
		}
		return sensor.FromCelsius(p.airC), nil
	case nora.FlushwaterTempSensor:
		return sensor.FromCelsius(p.flushC), nil
	case nora.InternalAirTempSensor:
		return sensor.FromCelsius(p.airC), nil
	}
	return 0, ErrSensorFailed
}

type input func() bool

func (i input) Read() bool {
	return i()
}
