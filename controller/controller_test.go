package controller

import (
	"errors"
	"math"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/schedule"
)

// homeBandCM is how close to home the magnet confirms the tube
const homeBandCM = 1.0

func TestCalibrate(t *testing.T) {
	t.Run("AtHome", func(t *testing.T) {
		r := newRig(t, 0, true)
		r.ready()

		if r.link.sent[0] != nora.RequestTime {
			t.Errorf("expected time request first but sent %v", r.link.sent)
		}
		if !r.c.clock.Synced() {
			t.Error("expected clock to be synced from the host reply")
		}
	})

	t.Run("BelowHome", func(t *testing.T) {
		r := newRig(t, -50, false)
		r.waitState(60*time.Second, nora.StateStandby)

		if math.Abs(r.plant.PhysicalCM()) > homeBandCM {
			t.Errorf("expected tube at home but it is at %.2fcm", r.plant.PhysicalCM())
		}
		if math.Abs(r.c.PositionCM()) > 0.01 {
			t.Errorf("expected position to be zeroed but got %.2f", r.c.PositionCM())
		}
		if r.plant.Energized() {
			t.Error("expected motor off")
		}
	})

	t.Run("MagnetNotFound", func(t *testing.T) {
		r := newRig(t, -300, true)
		r.waitState(120*time.Second, nora.StateAlarm)

		if r.c.Fault() != nora.FaultTube {
			t.Errorf("expected Tube fault but got %s", r.c.Fault())
		}
		if !r.link.sentInOrder(nora.StopPump, nora.ReportTubeErr) {
			t.Errorf("expected pump stop then tube report but sent %v", r.link.sent)
		}
		if r.plant.Energized() {
			t.Error("expected motor off")
		}
	})
}

func TestFullCycle(t *testing.T) {
	r := newRig(t, 0, true)
	r.ready()
	r.states = nil

	r.link.in <- []byte("S")
	r.step()
	if r.c.State() != nora.StateRelease {
		t.Fatalf("expected Release after begin sample but got %s", r.c.State())
	}

	ok := r.runUntil(20*time.Minute, func() bool { return r.c.State() == nora.StateStandby })
	if !ok {
		t.Fatalf("cycle did not finish: in %s, fault %s, states %v", r.c.State(), r.c.Fault(), r.states)
	}

	expected := []nora.State{
		nora.StateRelease,
		nora.StateSoak,
		nora.StateRecover,
		nora.StateSample,
		nora.StateFlushSystem,
		nora.StateDry,
		nora.StateStandby,
	}
	if !slices.Equal(r.states, expected) {
		t.Errorf("expected states %v but got %v", expected, r.states)
	}

	if !r.link.sentInOrder(
		nora.ReportSampleBegin,
		nora.RequestTideData,
		nora.BeginSample,
		nora.StartPump,
		nora.StopPump,
		nora.ReportSampleEnd,
	) {
		t.Errorf("unexpected messages %v", r.link.sent)
	}
	if r.link.sentAny(nora.ReportTubeErr) || r.link.sentAny(nora.ReportMotorErr) {
		t.Errorf("unexpected fault report in %v", r.link.sent)
	}

	if r.store.settings.FilterSamples != 1 {
		t.Errorf("expected filter count 1 but got %d", r.store.settings.FilterSamples)
	}
	if len(r.tides.readings) != 1 || r.tides.readings[0].LevelCM != 50 {
		t.Errorf("expected tide to be cached but got %v", r.tides.readings)
	}
	if r.plant.Energized() || r.plant.Pumping() {
		t.Error("expected motor and pump off")
	}
	for _, v := range nora.Valves {
		if r.plant.ValveOpen(v) {
			t.Errorf("expected %s valve closed", v)
		}
	}
	if math.Abs(r.plant.PhysicalCM()) > homeBandCM {
		t.Errorf("expected tube home but it is at %.2fcm", r.plant.PhysicalCM())
	}
}

func TestEStopDuringSoak(t *testing.T) {
	r := newRig(t, 0, true)
	r.ready()
	r.link.in <- []byte("S")
	r.waitState(2*time.Minute, nora.StateSoak)
	r.step()

	r.plant.PressEStop(true)
	r.step()

	if r.c.State() != nora.StateAlarm {
		t.Fatalf("expected Alarm within one tick but got %s", r.c.State())
	}
	if r.c.Fault() != nora.FaultEStop {
		t.Errorf("expected EStop fault but got %s", r.c.Fault())
	}
	if !r.link.sentInOrder(nora.StopPump, nora.ReportEStopPressed) {
		t.Errorf("expected pump stop and e-stop report but sent %v", r.link.sent)
	}
	if r.plant.Energized() {
		t.Error("expected motor off")
	}

	t.Run("MotionBlocked", func(t *testing.T) {
		pos := r.plant.PhysicalCM()
		err := r.c.motion.Start(motion.Target{PositionCM: 0, MaxSpeedCMS: 10}, r.now)
		if !errors.Is(err, motion.ErrInhibited) {
			t.Errorf("expected ErrInhibited but got %v", err)
		}
		r.runUntil(30*time.Second, func() bool { return false })
		if r.plant.PhysicalCM() != pos {
			t.Errorf("expected tube to stay at %.2f but it moved to %.2f", pos, r.plant.PhysicalCM())
		}
		if r.c.State() != nora.StateAlarm {
			t.Errorf("expected Alarm to hold but got %s", r.c.State())
		}
	})

	t.Run("AcknowledgeRefusedWhileAsserted", func(t *testing.T) {
		r.press(nora.KeySelect)
		if r.c.State() != nora.StateAlarm {
			t.Errorf("expected Alarm but got %s", r.c.State())
		}
	})

	t.Run("AcknowledgeAndRecalibrate", func(t *testing.T) {
		r.plant.PressEStop(false)
		r.step()
		r.press(nora.KeySelect)
		if r.c.State() != nora.StateCalibrate {
			t.Fatalf("expected Calibrate after acknowledge but got %s", r.c.State())
		}
		r.waitState(3*time.Minute, nora.StateStandby)
		if r.c.Fault() != nora.FaultNone {
			t.Errorf("expected fault cleared but got %s", r.c.Fault())
		}
		if math.Abs(r.plant.PhysicalCM()) > homeBandCM {
			t.Errorf("expected tube home but it is at %.2fcm", r.plant.PhysicalCM())
		}
	})
}

func TestCycleFaults(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*rig)
		inject func(*rig)
		at     nora.State
		fault  nora.AlarmFault
		report string
	}{
		{
			"MotorAlarmDuringRelease",
			nil,
			func(r *rig) { r.plant.SetAlarm(2000) },
			nora.StateRelease,
			nora.FaultMotor,
			nora.ReportMotorErr,
		},
		{
			"SampleWaterNotDetected",
			func(r *rig) { r.link.noPump = true },
			nil,
			nora.StateSample,
			nora.FaultSampleWaterNotDetected,
			nora.ReportSampleWaterNotDetectedErr,
		},
		{
			"FlushWaterTooHot",
			func(r *rig) { r.plant.SetFlushWaterTemp(120) },
			nil,
			nora.StateFlushSystem,
			nora.FaultFlushWaterTemp,
			nora.ReportFlushWaterTempErr,
		},
		{
			"ReelJammedDuringRelease",
			nil,
			func(r *rig) { r.plant.Jam(true) },
			nora.StateRelease,
			nora.FaultMotor,
			nora.ReportMotorErr,
		},
		{
			"TubeJammedDuringRecover",
			nil,
			func(r *rig) { r.plant.Jam(true) },
			nora.StateRecover,
			nora.FaultTube,
			nora.ReportTubeErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, 0, true)
			if tt.setup != nil {
				tt.setup(r)
			}
			r.ready()
			r.link.in <- []byte("S")
			r.waitState(5*time.Minute, tt.at)
			r.step()
			if tt.inject != nil {
				tt.inject(r)
			}

			r.waitState(10*time.Minute, nora.StateAlarm)
			if r.c.Fault() != tt.fault {
				t.Errorf("expected %s fault but got %s", tt.fault, r.c.Fault())
			}
			if !r.link.sentInOrder(nora.StopPump, tt.report) {
				t.Errorf("expected %s report but sent %v", tt.report, r.link.sent)
			}
			if r.plant.Energized() {
				t.Error("expected motor off")
			}
			for _, v := range nora.Valves {
				if r.plant.ValveOpen(v) {
					t.Errorf("expected %s valve closed", v)
				}
			}
			if r.c.secondAttempt != (tt.fault == nora.FaultTube) {
				t.Errorf("unexpected second attempt flag %v", r.c.secondAttempt)
			}
		})
	}
}

func TestCommsTimeout(t *testing.T) {
	r := newRig(t, 0, true)
	r.link.silent = true
	r.ready()

	r.waitState(time.Minute, nora.StateAlarm)
	if r.c.Fault() != nora.FaultTopsideComms {
		t.Errorf("expected TopsideComms fault but got %s", r.c.Fault())
	}

	// no report code for a failed link
	last := r.link.sent[len(r.link.sent)-1]
	if last != nora.StopPump {
		t.Errorf("expected only a pump stop on entering alarm but last sent %q", last)
	}

	r.link.silent = false
	r.link.in <- []byte("A")
	r.step()
	if r.c.State() != nora.StateCalibrate {
		t.Errorf("expected host acknowledge to recalibrate but in %s", r.c.State())
	}
	if r.c.Fault() != nora.FaultNone {
		t.Errorf("expected comms fault cleared by acknowledge but got %s", r.c.Fault())
	}
}

func TestReleaseTideWait(t *testing.T) {
	tests := []struct {
		name    string
		replies []string
		fault   nora.AlarmFault
	}{
		{"NoReply", nil, nora.FaultTopsideComms},
		{"UnrelatedLine", []string{"D"}, nora.FaultTopsideComms},
		{"MalformedTide", []string{"Tabc"}, nora.FaultTopsideComms},
		{"ClockInsteadOfTide", []string{"C1700000000"}, nora.FaultTopsideComms},
		{"LateTide", []string{"D", "T40"}, nora.FaultNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, 0, true)
			r.ready()
			r.link.silent = true

			r.link.in <- []byte("S")
			r.step()
			if r.c.State() != nora.StateRelease {
				t.Fatalf("expected Release but got %s", r.c.State())
			}
			for _, line := range tt.replies {
				r.link.in <- []byte(line)
				r.step()
			}

			timeout := r.c.cfg.CommsTimeout
			if tt.fault != nora.FaultNone {
				r.waitState(timeout+time.Second, nora.StateAlarm)
				if r.c.Fault() != tt.fault {
					t.Errorf("expected %s fault but got %s", tt.fault, r.c.Fault())
				}
				if r.plant.PhysicalCM() < -1 || r.plant.Energized() {
					t.Errorf("expected tube held at home with motor off but at %.1fcm energized=%v", r.plant.PhysicalCM(), r.plant.Energized())
				}
				return
			}

			r.runUntil(timeout+time.Second, func() bool { return r.c.State() != nora.StateRelease })
			if r.c.State() != nora.StateSoak {
				t.Fatalf("expected the drop to finish into Soak but in %s (fault %s)", r.c.State(), r.c.Fault())
			}
			if r.c.WaterDepthCM() != 762-40 {
				t.Errorf("expected drop to use the late tide but water depth is %.1f", r.c.WaterDepthCM())
			}
		})
	}
}

func TestReleaseStalled(t *testing.T) {
	r := newRig(t, 0, false)
	r.ready()
	r.plant.Jam(true)

	if err := r.c.BeginSample(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.waitState(time.Second, nora.StateRelease)
	start := r.now

	timeout := r.c.cfg.Release.Timeout
	r.waitState(timeout+time.Second, nora.StateAlarm)
	if elapsed := r.now.Sub(start); elapsed < timeout {
		t.Errorf("expected leg timeouts retried until %s but alarmed after %s", timeout, elapsed)
	}
	if r.c.Fault() != nora.FaultMotor {
		t.Errorf("expected Motor fault but got %s", r.c.Fault())
	}
	if r.plant.Energized() {
		t.Error("expected motor off")
	}
}

func TestReleaseGoals(t *testing.T) {
	tests := []struct {
		name          string
		tideCM        float64
		tideKnown     bool
		secondAttempt bool
		nearWater     float64
		bottom        float64
	}{
		{"NoTide", 0, false, false, -662, -792},
		{"Tide", 62, true, false, -600, -730},
		{"SecondAttempt", 62, true, true, -600, -830},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, 0, false)
			r.c.tideCM, r.c.tideKnown = tt.tideCM, tt.tideKnown
			r.c.secondAttempt = tt.secondAttempt

			nearWater, bottom := r.c.releaseGoals()
			if nearWater != tt.nearWater || bottom != tt.bottom {
				t.Errorf("expected %.0f/%.0f but got %.0f/%.0f", tt.nearWater, tt.bottom, nearWater, bottom)
			}
		})
	}
}

func TestSecondAttemptReset(t *testing.T) {
	r := newRig(t, 0, false)
	r.ready()
	r.c.secondAttempt = true

	if err := r.c.BeginSample(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.waitState(5*time.Minute, nora.StateSample)

	if r.c.secondAttempt {
		t.Error("expected a completed retrieval to reset the second attempt")
	}
	if r.plant.PhysicalCM() > 1 {
		t.Errorf("unexpected position %.1f", r.plant.PhysicalCM())
	}
}

func TestScheduledCycle(t *testing.T) {
	start := testStart.Add(time.Minute)
	r := newRig(t, 0, false, func(s *schedule.Settings) {
		s.Start = start
	})
	r.ready()

	if !r.c.NextSample().Equal(start) {
		t.Errorf("expected next sample at %s but got %s", start, r.c.NextSample())
	}
	if r.c.State() != nora.StateStandby {
		t.Fatalf("expected to wait in Standby but in %s", r.c.State())
	}
	r.waitState(time.Minute, nora.StateRelease)
	if r.now.Before(start) {
		t.Errorf("expected release no earlier than %s but started at %s", start, r.now)
	}
}

func TestTopsideCommands(t *testing.T) {
	r := newRig(t, 0, true)
	r.ready()

	r.link.in <- []byte("D")
	r.step()
	last := r.link.sent[len(r.link.sent)-1]
	if !strings.Contains(last, "state=Standby") {
		t.Errorf("expected debug reply but got %q", last)
	}

	r.link.in <- []byte("T12.5")
	r.step()
	if latest, ok, _ := r.tides.Latest(); !ok || latest.LevelCM != 12.5 {
		t.Errorf("expected cached tide 12.5 but got %v", latest)
	}
	if r.c.WaterDepthCM() != 762-12.5 {
		t.Errorf("unexpected water depth %.1f", r.c.WaterDepthCM())
	}

	epoch := testStart.Add(24 * time.Hour)
	r.link.in <- []byte("C" + strconv.FormatInt(epoch.Unix(), 10))
	r.step()
	if d := r.c.clock.Wall(r.now).Sub(epoch); d < 0 || d > time.Second {
		t.Errorf("expected clock near %s but got %s", epoch, r.c.clock.Wall(r.now))
	}

	r.link.in <- []byte("A")
	r.step()
	if r.c.State() != nora.StateStandby {
		t.Errorf("expected acknowledge to be ignored in standby but in %s", r.c.State())
	}

	r.press(nora.KeyRight)
	if err := r.c.BeginSample(); !errors.Is(err, ErrNotStandby) {
		t.Errorf("expected ErrNotStandby but got %v", err)
	}
}

func TestShutdown(t *testing.T) {
	r := newRig(t, 0, true)
	r.ready()
	r.link.in <- []byte("S")
	r.waitState(time.Minute, nora.StateRelease)
	r.step()
	r.step()

	if !r.plant.Energized() {
		t.Fatal("expected motor running during release")
	}
	err := r.c.Shutdown()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.plant.Energized() {
		t.Error("expected motor off after shutdown")
	}
	if r.link.sent[len(r.link.sent)-1] != nora.StopPump {
		t.Errorf("expected pump stop on shutdown but sent %v", r.link.sent)
	}
}
