// Package rpi wires the stepper driver, the position sensors and the keypad to
// Raspberry Pi GPIO
package rpi

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/sensor"
)

// Pins are BCM GPIO numbers
type Pins struct {
	Step   int `yaml:"step"`
	Dir    int `yaml:"dir"`
	Magnet int `yaml:"magnet"`
	Tube   int `yaml:"tube"`
	EStop  int `yaml:"estop"`

	KeySelect int `yaml:"key_select"`
	KeyDown   int `yaml:"key_down"`
	KeyUp     int `yaml:"key_up"`
	KeyLeft   int `yaml:"key_left"`
	KeyRight  int `yaml:"key_right"`

	// ActiveLow inputs pull up and read asserted when grounded
	ActiveLow bool `yaml:"active_low"`
}

var DefaultPins = Pins{
	Step:      6,
	Dir:       13,
	Magnet:    25,
	Tube:      16,
	EStop:     26,
	KeySelect: 17,
	KeyDown:   27,
	KeyUp:     22,
	KeyLeft:   23,
	KeyRight:  24,
	ActiveLow: true,
}

// Validate reports pins that are out of range or used twice
func (p Pins) Validate() error {
	seen := map[int]string{}
	for _, e := range p.named() {
		if e.pin < 0 || e.pin > 27 {
			return fmt.Errorf("%s pin %d is not a BCM GPIO", e.name, e.pin)
		}
		if other, ok := seen[e.pin]; ok {
			return fmt.Errorf("%s and %s both use pin %d", other, e.name, e.pin)
		}
		seen[e.pin] = e.name
	}
	return nil
}

type namedPin struct {
	name string
	pin  int
}

func (p Pins) named() []namedPin {
	return []namedPin{
		{"step", p.Step},
		{"dir", p.Dir},
		{"magnet", p.Magnet},
		{"tube", p.Tube},
		{"estop", p.EStop},
		{"key_select", p.KeySelect},
		{"key_down", p.KeyDown},
		{"key_up", p.KeyUp},
		{"key_left", p.KeyLeft},
		{"key_right", p.KeyRight},
	}
}

func (p Pins) keys() map[nora.Key]int {
	return map[nora.Key]int{
		nora.KeySelect: p.KeySelect,
		nora.KeyDown:   p.KeyDown,
		nora.KeyUp:     p.KeyUp,
		nora.KeyLeft:   p.KeyLeft,
		nora.KeyRight:  p.KeyRight,
	}
}

// Board owns the GPIO memory mapping
type Board struct {
	pins Pins
	keys map[nora.Key]input
}

var _ sensor.KeyReader = &Board{}

// Open maps GPIO and configures every pin
func Open(pins Pins) (*Board, error) {
	if err := pins.Validate(); err != nil {
		return nil, err
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("error opening gpio: %w", err)
	}

	for _, out := range []int{pins.Step, pins.Dir} {
		p := rpio.Pin(out)
		p.Output()
		p.Low()
	}

	b := &Board{pins: pins, keys: map[nora.Key]input{}}
	for key, pin := range pins.keys() {
		b.keys[key] = b.input(pin)
	}
	return b, nil
}

func (b *Board) input(pin int) input {
	p := rpio.Pin(pin)
	p.Input()
	if b.pins.ActiveLow {
		p.PullUp()
	} else {
		p.PullDown()
	}
	return input{pin: p, activeLow: b.pins.ActiveLow}
}

// Stepper builds the step/direction driver. Power and alarm come from the I/O
// module.
func (b *Board) Stepper(power motion.PowerSwitch, alarm motion.AnalogInput, maxPulseRate float64) (*motion.Stepper, error) {
	return motion.NewStepper(motion.StepperConfig{
		Step:         rpio.Pin(b.pins.Step),
		Dir:          rpio.Pin(b.pins.Dir),
		Power:        power,
		Alarm:        alarm,
		MaxPulseRate: maxPulseRate,
	})
}

func (b *Board) Magnet() sensor.DigitalInput {
	return b.input(b.pins.Magnet)
}

func (b *Board) Tube() sensor.DigitalInput {
	return b.input(b.pins.Tube)
}

func (b *Board) EStop() sensor.DigitalInput {
	return b.input(b.pins.EStop)
}

func (b *Board) KeyDown(k nora.Key) bool {
	in, ok := b.keys[k]
	return ok && in.Read()
}

// Close drives the outputs low and unmaps GPIO
func (b *Board) Close() error {
	rpio.Pin(b.pins.Step).Low()
	rpio.Pin(b.pins.Dir).Low()
	return rpio.Close()
}

type input struct {
	pin       rpio.Pin
	activeLow bool
}

func (i input) Read() bool {
	return asserted(i.pin.Read(), i.activeLow)
}

func asserted(level rpio.State, activeLow bool) bool {
	return (level == rpio.High) != activeLow
}
