package controller

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/sensor"
	"github.com/calvinmclean/nora/sequence"
)

func (c *Controller) startCycle(now time.Time) error {
	wall := c.clock.Wall(now)
	c.sampleRequested = false
	c.cycles++

	if c.settings.Start.IsZero() {
		c.settings.Start = wall
		c.saveSettings()
	}

	c.send(nora.ReportSampleBegin)
	if c.link != nil {
		c.send(nora.RequestTideData)
		c.comms.Arm(nora.RequestTideData, now)
	}

	c.rec.StartSession(fmt.Sprintf("NORA cycle %d %s", c.cycles, wall.Format(time.DateTime)), wall)
	c.logger.Printf("%s [mode] starting cycle %d", c.ts(), c.cycles)
	c.setState(nora.StateRelease)
	return nil
}

// WaterDepthCM is how far below home the water surface is, using the most
// recent tide level when there is one
func (c *Controller) WaterDepthCM() float64 {
	depth := c.cfg.Release.PierDistanceCM
	if c.tideKnown {
		depth -= c.tideCM
	}
	return depth
}

// releaseGoals returns the two legs of the drop: fast to near the water, then
// slow to the sampling depth
func (c *Controller) releaseGoals() (nearWater, bottom float64) {
	r := c.cfg.Release
	depth := c.WaterDepthCM()
	extra := 0.0
	if c.secondAttempt {
		extra = r.SecondAttemptCM
	}
	nearWater = -math.Max(depth-r.NearWaterCM, 0)
	bottom = -(depth + r.OvershootCM + extra)
	return nearWater, bottom
}

// release lowers the tube into the water. When a host is connected the drop
// waits for its tide reply, which the comms watchdog bounds.
func (c *Controller) release(now time.Time) error {
	if !c.entered {
		if c.link != nil && c.comms.Waiting(nora.RequestTideData) {
			return nil
		}
		c.entered = true
		c.releaseLeg = 0
		c.releaseStart = now
		_, bottom := c.releaseGoals()
		c.logger.Printf("%s [mode] release to %.1fcm, water at %.1fcm, second attempt %v", c.ts(), bottom, -c.WaterDepthCM(), c.secondAttempt)
	}

	if now.Sub(c.releaseStart) >= c.cfg.Release.Timeout {
		return &sequence.Error{
			Stage: fmt.Sprintf("%s leg %d", c.state, c.releaseLeg),
			Fault: nora.FaultMotor,
			Err:   errors.Join(ErrReleaseTimeout, c.motion.Abort()),
		}
	}

	if c.motion.Busy() {
		_, err := c.motion.Tick(now)
		if err != nil && sequence.FaultOf(err) == nora.FaultNone {
			c.logger.Printf("%s [mode] release leg %d: %v, retrying", c.ts(), c.releaseLeg, err)
			return nil
		}
		return err
	}

	r := c.cfg.Release
	nearWater, bottom := c.releaseGoals()
	goal, speed := nearWater, r.DropSpeed
	if c.releaseLeg > 0 {
		goal, speed = bottom, r.NearWaterSpeed
	}

	if c.motion.PositionCM() <= goal+r.ToleranceCM {
		if c.releaseLeg > 0 {
			c.setState(nora.StateSoak)
			return nil
		}
		c.releaseLeg++
		return nil
	}

	err := c.motion.Start(c.moveTarget(goal, speed, r.ToleranceCM, r.Slack), now)
	if err != nil {
		return fmt.Errorf("error starting release leg %d: %w", c.releaseLeg, err)
	}
	return nil
}

func (c *Controller) soak(now time.Time) error {
	if now.Sub(c.stateStart) >= c.settings.Soak {
		c.setState(nora.StateRecover)
	}
	return nil
}

func (c *Controller) recover(now time.Time) error {
	if !c.entered {
		c.retriever.Start(now)
		c.entered = true
		return nil
	}

	done, err := c.retriever.Tick(now)
	if err != nil {
		return err
	}
	if done {
		c.secondAttempt = false
		c.setState(nora.StateSample)
	}
	return nil
}

// sample has the host run the analyzer pump and watches the sample line
// temperature to confirm water reached the device
func (c *Controller) sample(now time.Time) error {
	if !c.entered {
		baseline, err := c.sampleTempC()
		if err != nil {
			return err
		}
		c.send(nora.BeginSample)
		err = linkPump{c}.StartPump()
		if err != nil {
			return err
		}
		c.water.Start(baseline, now)
		c.entered = true
		return nil
	}

	if !c.water.Detected() {
		temp, err := c.sampleTempC()
		if err != nil {
			return err
		}
		detected, failed := c.water.Check(temp, now)
		if detected {
			c.logger.Printf("%s [mode] sample water detected at %.1fC", c.ts(), temp)
		}
		if failed {
			return &sequence.Error{
				Stage: c.state.String(),
				Fault: nora.FaultSampleWaterNotDetected,
				Err:   fmt.Errorf("sample temperature stayed at %.1fC", temp),
			}
		}
	}

	if now.Sub(c.stateStart) < c.cfg.Sample.Duration {
		return nil
	}
	err := c.stopPump()
	if err != nil {
		return err
	}
	c.setState(nora.StateFlushSystem)
	return nil
}

func (c *Controller) sampleTempC() (float64, error) {
	t, err := c.hw.Thermo.Temperature(nora.SampleTempSensor)
	if err != nil {
		return 0, fmt.Errorf("error reading sample temperature: %w", err)
	}
	return sensor.Celsius(t), nil
}

func (c *Controller) flush(now time.Time) error {
	if !c.entered {
		c.flusher.Start(now)
		c.entered = true
		return nil
	}

	done, err := c.flusher.Tick(now)
	if err != nil {
		return err
	}
	if done {
		c.setState(nora.StateDry)
	}
	return nil
}

func (c *Controller) dry(now time.Time) error {
	if now.Sub(c.stateStart) < c.settings.Dry {
		return nil
	}

	c.send(nora.ReportSampleEnd)
	c.settings.FilterSamples++
	c.saveSettings()
	c.rec.Done(c.clock.Wall(now))
	c.logger.Printf("%s [mode] cycle %d complete", c.ts(), c.cycles)
	c.setState(nora.StateStandby)
	return nil
}

// moveTarget builds a target whose timeout is the travel time plus slack.
// Timeouts are not faults; the caller retries within its own overall bound.
func (c *Controller) moveTarget(goal, speed, tolerance float64, slack time.Duration) motion.Target {
	travel := math.Abs(goal-c.motion.PositionCM()) / speed
	return motion.Target{
		PositionCM:  goal,
		ToleranceCM: tolerance,
		MaxSpeedCMS: speed,
		Timeout:     time.Duration(travel*float64(time.Second)) + slack,
	}
}
