package controller

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/schedule"
)

// settingsItems is the order of the SETTINGS menu
var settingsItems = []nora.State{
	nora.StateSetInterval,
	nora.StateSetStartTime,
	nora.StateSetClock,
	nora.StateSetDryTime,
	nora.StateSetSoakTime,
	nora.StateEnsureSampleStart,
	nora.StateFilterStatus,
}

// menu is the keypad cursor while in SETTINGS or one of its editors
type menu struct {
	item  int
	field int
	value schedule.HMS
}

func (c *Controller) saveSettings() {
	if c.store == nil {
		return
	}
	err := c.store.Save(c.settings)
	if err != nil {
		c.logger.Printf("%s [mode] error saving settings: %v", c.ts(), err)
	}
}

// settingsMenu handles SETTINGS and its editors. Up and Down change the value
// under the cursor, Right moves between hours, minutes and seconds, Select
// saves and Left backs out without saving.
func (c *Controller) settingsMenu(now time.Time) error {
	if c.state == nora.StateSettings {
		return c.settingsList()
	}

	if !c.entered {
		c.menu.field = 0
		c.menu.value = c.editValue(now)
		c.entered = true
	}

	switch c.state {
	case nora.StateEnsureSampleStart:
		switch c.key {
		case nora.KeySelect:
			c.sampleRequested = true
			c.setState(nora.StateStandby)
		case nora.KeyLeft:
			c.setState(nora.StateSettings)
		}
		return nil
	case nora.StateFilterStatus:
		switch c.key {
		case nora.KeySelect:
			c.settings.FilterSamples = 0
			c.saveSettings()
			c.setState(nora.StateSettings)
		case nora.KeyLeft:
			c.setState(nora.StateSettings)
		}
		return nil
	}

	switch c.key {
	case nora.KeyUp:
		c.menu.value = c.menu.value.Adjust(c.menu.field, 1)
	case nora.KeyDown:
		c.menu.value = c.menu.value.Adjust(c.menu.field, -1)
	case nora.KeyRight:
		c.menu.field = (c.menu.field + 1) % 3
	case nora.KeyLeft:
		c.setState(nora.StateSettings)
	case nora.KeySelect:
		c.applyEdit(now)
		c.setState(nora.StateSettings)
	}
	return nil
}

func (c *Controller) settingsList() error {
	switch c.key {
	case nora.KeyUp:
		c.menu.item = (c.menu.item + len(settingsItems) - 1) % len(settingsItems)
	case nora.KeyDown:
		c.menu.item = (c.menu.item + 1) % len(settingsItems)
	case nora.KeySelect, nora.KeyRight:
		c.setState(settingsItems[c.menu.item])
	case nora.KeyLeft:
		c.setState(nora.StateStandby)
	}
	return nil
}

// editValue is the starting value of the editor for the current state
func (c *Controller) editValue(now time.Time) schedule.HMS {
	switch c.state {
	case nora.StateSetInterval:
		return schedule.SplitHMS(c.settings.Interval)
	case nora.StateSetDryTime:
		return schedule.SplitHMS(c.settings.Dry)
	case nora.StateSetSoakTime:
		return schedule.SplitHMS(c.settings.Soak)
	case nora.StateSetStartTime:
		if !c.settings.Start.IsZero() {
			return timeOfDay(c.settings.Start.In(c.clock.Wall(now).Location()))
		}
		return timeOfDay(c.clock.Wall(now))
	case nora.StateSetClock:
		return timeOfDay(c.clock.Wall(now))
	}
	return schedule.HMS{}
}

// applyEdit saves the editor value. Invalid settings are rejected and the
// previous ones kept.
func (c *Controller) applyEdit(now time.Time) {
	updated := c.settings
	d := c.menu.value.Duration()

	switch c.state {
	case nora.StateSetInterval:
		updated.Interval = d
	case nora.StateSetDryTime:
		updated.Dry = d
	case nora.StateSetSoakTime:
		updated.Soak = d
	case nora.StateSetStartTime:
		updated.Start = atTimeOfDay(c.clock.Wall(now), d)
	case nora.StateSetClock:
		wall := atTimeOfDay(c.clock.Wall(now), d)
		c.clock.Sync(wall, now)
		c.logger.Printf("%s [mode] clock set to %s", c.ts(), wall.Format(time.DateTime))
		return
	}

	err := updated.Validate()
	if err != nil {
		c.logger.Printf("%s [mode] rejected %s: %v", c.ts(), c.state, err)
		return
	}
	c.settings = updated
	c.saveSettings()
	c.logger.Printf("%s [mode] %s saved %s", c.ts(), c.state, c.menu.value)
}

func timeOfDay(t time.Time) schedule.HMS {
	return schedule.HMS{Hours: t.Hour(), Minutes: t.Minute(), Seconds: t.Second()}
}

// atTimeOfDay is the same day as day at offset d past midnight
func atTimeOfDay(day time.Time, d time.Duration) time.Time {
	y, m, dd := day.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, day.Location()).Add(d)
}

// manual is the operator override menu. Up opens motor control and Down
// opens solenoid control.
func (c *Controller) manual() error {
	switch c.key {
	case nora.KeyUp:
		c.setState(nora.StateMotorControl)
	case nora.KeyDown:
		c.setState(nora.StateSolenoidControl)
	case nora.KeyLeft:
		c.setState(nora.StateStandby)
	}
	return nil
}

// motorControl jogs the tube while Up or Down is held. Each jog is a short
// move so the motor stops when the key is released.
func (c *Controller) motorControl(now time.Time) error {
	if c.key == nora.KeyLeft {
		err := c.motion.Abort()
		c.setState(nora.StateManual)
		return err
	}

	dir := 0.0
	switch {
	case c.keypad.Held(nora.KeyUp):
		dir = 1
	case c.keypad.Held(nora.KeyDown):
		dir = -1
	}

	if c.motion.Busy() {
		if dir == 0 {
			return c.motion.Abort()
		}
		outcome, err := c.motion.Tick(now)
		if err != nil || outcome == motion.Moving {
			return err
		}
	}
	if dir == 0 {
		return nil
	}

	m := c.cfg.Manual
	goal := c.motion.PositionCM() + dir*m.JogCM
	err := c.motion.Start(c.moveTarget(goal, m.SpeedCMS, c.cfg.Motion.DefaultToleranceCM, time.Second), now)
	if err != nil {
		return fmt.Errorf("error starting jog: %w", err)
	}
	return nil
}

// solenoidControl toggles the air valve with Up and the freshwater valve with
// Down. Leaving closes both.
func (c *Controller) solenoidControl() error {
	if !c.entered {
		c.manualValves = map[nora.Valve]bool{}
		c.entered = true
	}

	switch c.key {
	case nora.KeyUp:
		return c.toggleValve(nora.ValveAir)
	case nora.KeyDown:
		return c.toggleValve(nora.ValveFreshwater)
	case nora.KeyLeft:
		var err error
		for _, v := range nora.Valves {
			err = multierr.Append(err, c.hw.Valves.SetValve(v, false))
		}
		c.manualValves = nil
		c.setState(nora.StateManual)
		return err
	}
	return nil
}

func (c *Controller) toggleValve(v nora.Valve) error {
	open := !c.manualValves[v]
	err := c.hw.Valves.SetValve(v, open)
	if err != nil {
		return fmt.Errorf("error setting %s valve: %w", v, err)
	}
	c.manualValves[v] = open
	c.logger.Printf("%s [mode] %s valve open=%v", c.ts(), v, open)
	return nil
}

// Display renders the two line front panel for the current state
func (c *Controller) Display() string {
	wall := c.clock.Wall(c.now)
	var top, bottom string

	switch c.state {
	case nora.StateStandby:
		top = "STANDBY " + wall.Format(time.TimeOnly)
		bottom = "Next " + c.nextSample.Format("01/02 15:04:05")
	case nora.StateAlarm:
		top = "ALARM " + c.faults.Active().String()
		bottom = "Select to clear"
	case nora.StateRecover:
		top = "RECOVER"
		bottom = c.retriever.Stage().String()
	case nora.StateFlushSystem:
		top = "FLUSH"
		bottom = c.flusher.Stage().String()
	case nora.StateSettings:
		top = "SETTINGS"
		bottom = "> " + settingsItems[c.menu.item].String()
	case nora.StateSetInterval, nora.StateSetStartTime, nora.StateSetClock, nora.StateSetDryTime, nora.StateSetSoakTime:
		top = c.state.String()
		bottom = c.menu.value.String() + " " + [3]string{"hh", "mm", "ss"}[c.menu.field]
	case nora.StateEnsureSampleStart:
		top = "Sample now?"
		bottom = "Select to start"
	case nora.StateFilterStatus:
		top = fmt.Sprintf("Filter: %d samples", c.settings.FilterSamples)
		bottom = "Select to reset"
	case nora.StateMotorControl:
		top = "MOTOR CONTROL"
		bottom = fmt.Sprintf("%.1fcm", c.motion.PositionCM())
	case nora.StateSolenoidControl:
		top = "SOLENOIDS"
		bottom = fmt.Sprintf("air=%v fresh=%v", c.manualValves[nora.ValveAir], c.manualValves[nora.ValveFreshwater])
	default:
		top = c.state.String()
		bottom = fmt.Sprintf("%.1fcm %s", c.motion.PositionCM(), c.now.Sub(c.stateStart).Truncate(time.Second))
	}
	return top + "\n" + bottom
}
