package controller

import (
	"time"

	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/sequence"
)

// Config holds everything the mode controller needs to run cycles
type Config struct {
	Motion    motion.Config           `yaml:"motion"`
	Retrieve  sequence.RetrieveConfig `yaml:"retrieve"`
	Flush     FlushConfig             `yaml:"flush"`
	Release   ReleaseConfig           `yaml:"release"`
	Calibrate CalibrationConfig       `yaml:"calibrate"`
	Sample    SampleConfig            `yaml:"sample"`
	Manual    ManualConfig            `yaml:"manual"`
	Sensors   SensorConfig            `yaml:"sensors"`

	// CommsTimeout is how long the host may take to answer a request
	CommsTimeout time.Duration `yaml:"comms_timeout"`
	// TickInterval is the control loop period used by Run
	TickInterval time.Duration `yaml:"tick_interval"`
}

// FlushConfig selects a built-in dwell table and allows overriding parts of it
type FlushConfig struct {
	// Profile is "production" or "test"
	Profile              string `yaml:"profile"`
	sequence.FlushConfig `yaml:",inline"`
}

// ReleaseConfig describes the drop from home into the water
type ReleaseConfig struct {
	// PierDistanceCM is from home down to the water at zero tide
	PierDistanceCM float64 `yaml:"pier_distance_cm"`
	// OvershootCM is how far below the surface the tube is lowered
	OvershootCM    float64 `yaml:"overshoot_cm"`
	NearWaterCM    float64 `yaml:"near_water_cm"`
	DropSpeed      float64 `yaml:"drop_speed_cm_s"`
	NearWaterSpeed float64 `yaml:"near_water_speed_cm_s"`
	// SecondAttemptCM is added to the drop after a cycle ended with a Tube fault
	SecondAttemptCM float64       `yaml:"second_attempt_cm"`
	ToleranceCM     float64       `yaml:"tolerance_cm"`
	Slack           time.Duration `yaml:"slack"`
	// Timeout bounds the whole drop once it starts, including retried legs
	Timeout time.Duration `yaml:"timeout"`
}

// CalibrationConfig describes the search for the home magnet
type CalibrationConfig struct {
	SpeedCMS float64 `yaml:"speed_cm_s"`
	// SearchCM bounds how far the tube is raised looking for the magnet
	SearchCM float64       `yaml:"search_cm"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SampleConfig covers the analyzer draw
type SampleConfig struct {
	Duration           time.Duration `yaml:"duration"`
	WaterDetectTimeout time.Duration `yaml:"water_detect_timeout"`
	MinTempDeltaC      float64       `yaml:"min_temp_delta_c"`
}

// ManualConfig covers keypad jogging
type ManualConfig struct {
	SpeedCMS float64 `yaml:"speed_cm_s"`
	// JogCM is the length of each jog move while a key is held
	JogCM float64 `yaml:"jog_cm"`
}

// SensorConfig holds debounce settings
type SensorConfig struct {
	TubeStableTicks   int           `yaml:"tube_stable_ticks"`
	MagnetStableTicks int           `yaml:"magnet_stable_ticks"`
	EStopStableTicks  int           `yaml:"estop_stable_ticks"`
	KeyDebounce       time.Duration `yaml:"key_debounce"`
	KeyRepeat         time.Duration `yaml:"key_repeat"`
}

// DefaultConfig is the instrument as built
func DefaultConfig() Config {
	return Config{
		Motion: motion.Config{
			Reel:               motion.DefaultReel,
			SpeedCeilingCMS:    75,
			AlarmThreshold:     1100,
			AlarmSamples:       3,
			DefaultToleranceCM: 0.5,
		},
		Retrieve: sequence.RetrieveConfig{
			InitialRiseCM:    15,
			TubeOpeningCM:    228,
			NearWaterCM:      100,
			NearingHomeCM:    30,
			HomeOvershootCM:  5,
			SafeRiseSpeed:    3,
			RaiseSpeed:       50,
			InTubeRaiseSpeed: 10,
			ToleranceCM:      0.5,
			Settle:           2 * time.Second,
			Timeout:          200 * time.Second,
			StageSlack:       10 * time.Second,
		},
		Flush: FlushConfig{
			Profile: sequence.ProfileProduction,
			FlushConfig: sequence.FlushConfig{
				DumpLiftCM:        20,
				DumpLiftSpeed:     2,
				LineFlushDropCM:   60,
				LineFlushSpeed:    10,
				HomeSpeed:         3,
				HomeOvershootCM:   5,
				HomeTimeout:       60 * time.Second,
				ToleranceCM:       0.5,
				MoveTimeoutFactor: 2,
			},
		},
		Release: ReleaseConfig{
			PierDistanceCM:  762,
			OvershootCM:     30,
			NearWaterCM:     100,
			DropSpeed:       75,
			NearWaterSpeed:  10,
			SecondAttemptCM: 100,
			ToleranceCM:     0.5,
			Slack:           10 * time.Second,
			Timeout:         120 * time.Second,
		},
		Calibrate: CalibrationConfig{
			SpeedCMS: 3,
			SearchCM: 228,
			Timeout:  200 * time.Second,
		},
		Sample: SampleConfig{
			Duration:           180 * time.Second,
			WaterDetectTimeout: 10 * time.Second,
			MinTempDeltaC:      2,
		},
		Manual: ManualConfig{
			SpeedCMS: 20,
			JogCM:    2,
		},
		Sensors: SensorConfig{
			TubeStableTicks:   3,
			MagnetStableTicks: 3,
			EStopStableTicks:  1,
			KeyDebounce:       35 * time.Millisecond,
			KeyRepeat:         25 * time.Millisecond,
		},
		CommsTimeout: 30 * time.Second,
		TickInterval: 50 * time.Millisecond,
	}
}
