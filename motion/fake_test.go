package motion

import (
	"errors"
	"time"

	"github.com/calvinmclean/nora"
)

type fakeDriver struct {
	position  float64
	rate      float64
	dir       nora.MotorDir
	energized bool
	alarm     uint16
	alarmErr  error
	runErr    error
	stopErr   error
	stops     int
}

var _ Driver = &fakeDriver{}

func (d *fakeDriver) Run(dir nora.MotorDir, pulsesPerSec float64) error {
	if d.runErr != nil {
		return d.runErr
	}
	d.dir = dir
	d.rate = pulsesPerSec
	d.energized = true
	return nil
}

func (d *fakeDriver) Stop() error {
	d.dir = nora.MotorOff
	d.rate = 0
	d.energized = false
	d.stops++
	return d.stopErr
}

func (d *fakeDriver) Position() int64 {
	return int64(d.position)
}

func (d *fakeDriver) SetPosition(p int64) {
	d.position = float64(p)
}

func (d *fakeDriver) AlarmLevel() (uint16, error) {
	return d.alarm, d.alarmErr
}

func (d *fakeDriver) Energized() bool {
	return d.energized
}

// advance moves the fake by the pulses generated over dt
func (d *fakeDriver) advance(dt time.Duration) {
	if !d.energized {
		return
	}
	step := d.rate * dt.Seconds()
	switch d.dir {
	case nora.MotorCW:
		d.position += step
	case nora.MotorCCW:
		d.position -= step
	}
}

type fakeInterlock struct {
	active bool
}

func (f *fakeInterlock) Preempting() bool {
	return f.active
}

var errFakeADC = errors.New("adc read failed")
