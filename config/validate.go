package config

import (
	"fmt"

	"github.com/calvinmclean/nora/sequence"
	"github.com/calvinmclean/nora/twchart"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for values the instrument cannot run with. It
// returns every problem found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	positive := func(field string, v float64) {
		if v <= 0 {
			add(field, "must be positive, got %g", v)
		}
	}

	reel := cfg.Motion.Reel
	positive("motion.reel.radius_cm", reel.RadiusCM)
	positive("motion.reel.gearbox_ratio", reel.GearboxRatio)
	positive("motion.reel.pulses_per_rev", reel.PulsesPerRev)
	positive("motion.speed_ceiling_cm_s", cfg.Motion.SpeedCeilingCMS)
	if cfg.Motion.AlarmSamples < 1 {
		add("motion.alarm_samples", "must be at least 1")
	}

	speeds := []struct {
		field string
		v     float64
	}{
		{"release.drop_speed_cm_s", cfg.Release.DropSpeed},
		{"release.near_water_speed_cm_s", cfg.Release.NearWaterSpeed},
		{"retrieve.raise_speed_cm_s", cfg.Retrieve.RaiseSpeed},
		{"retrieve.safe_rise_speed_cm_s", cfg.Retrieve.SafeRiseSpeed},
		{"retrieve.in_tube_raise_speed_cm_s", cfg.Retrieve.InTubeRaiseSpeed},
		{"calibrate.speed_cm_s", cfg.Calibrate.SpeedCMS},
		{"manual.speed_cm_s", cfg.Manual.SpeedCMS},
	}
	for _, s := range speeds {
		positive(s.field, s.v)
		if cfg.Motion.SpeedCeilingCMS > 0 && s.v > cfg.Motion.SpeedCeilingCMS {
			add(s.field, "%g exceeds the speed ceiling %g", s.v, cfg.Motion.SpeedCeilingCMS)
		}
	}

	positive("release.pier_distance_cm", cfg.Release.PierDistanceCM)
	if cfg.Release.Timeout <= 0 {
		add("release.timeout", "must be positive")
	}
	if cfg.Retrieve.Timeout <= 0 {
		add("retrieve.timeout", "must be positive")
	}
	if cfg.Retrieve.NearingHomeCM >= cfg.Retrieve.TubeOpeningCM {
		add("retrieve.nearing_home_cm", "must be above the tube opening")
	}
	if _, err := sequence.FlushTimingFor(cfg.Flush.Profile); err != nil {
		add("flush.profile", "must be %q or %q", sequence.ProfileProduction, sequence.ProfileTest)
	}
	if cfg.Sample.Duration <= 0 {
		add("sample.duration", "must be positive")
	}
	if cfg.CommsTimeout <= 0 {
		add("comms_timeout", "must be positive")
	}

	sensors := map[string]int{
		"sensors.tube_stable_ticks":   cfg.Sensors.TubeStableTicks,
		"sensors.magnet_stable_ticks": cfg.Sensors.MagnetStableTicks,
		"sensors.estop_stable_ticks":  cfg.Sensors.EStopStableTicks,
	}
	for field, v := range sensors {
		if v < 1 {
			add(field, "must be at least 1")
		}
	}

	validateHardware(cfg.Hardware, add)

	if cfg.Storage.SettingsFile == "" {
		add("storage.settings_file", "is required")
	}
	if cfg.Storage.TideFile == "" {
		add("storage.tide_file", "is required")
	}

	if cfg.TWChart.Probes != "" {
		if _, err := twchart.ParseProbes(cfg.TWChart.Probes); err != nil {
			add("twchart.probes", "%v", err)
		}
	}

	return errs
}

func validateHardware(hw HardwareConfig, add func(field, format string, args ...any)) {
	switch hw.Driver {
	case DriverRPi:
		if err := hw.RPi.Validate(); err != nil {
			add("hardware.rpi", "%v", err)
		}
		if hw.Modbus.Device == "" {
			add("hardware.modbus.device", "is required")
		}
		if hw.Modbus.MotorRelay == 0 || hw.Modbus.AirRelay == 0 || hw.Modbus.FreshwaterRelay == 0 {
			add("hardware.modbus", "relay numbers start at 1")
		}
	case DriverSim:
	default:
		add("hardware.driver", "must be %q or %q, got %q", DriverRPi, DriverSim, hw.Driver)
	}

	if hw.Sim.TimeScale <= 0 {
		add("hardware.sim.time_scale", "must be positive")
	}
}
