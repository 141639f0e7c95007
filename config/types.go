package config

import (
	"time"

	"github.com/calvinmclean/nora/controller"
	"github.com/calvinmclean/nora/hw/modbusio"
	"github.com/calvinmclean/nora/hw/rpi"
	"github.com/calvinmclean/nora/topside"
)

const (
	DriverRPi = "rpi"
	DriverSim = "sim"
)

// Config is the instrument configuration file. The control parameters are
// inlined at the top level.
type Config struct {
	controller.Config `yaml:",inline"`

	Hardware HardwareConfig       `yaml:"hardware"`
	Topside  topside.SerialConfig `yaml:"topside"`
	Storage  StorageConfig        `yaml:"storage"`
	Clock    ClockConfig          `yaml:"clock"`
	TWChart  TWChartConfig        `yaml:"twchart"`
	Verbose  bool                 `yaml:"verbose"`
}

// HardwareConfig selects and configures the physical I/O
type HardwareConfig struct {
	// Driver is "rpi" for the buoy or "sim" for the simulated plant
	Driver string           `yaml:"driver"`
	RPi    rpi.Pins         `yaml:"rpi"`
	Modbus modbusio.Config  `yaml:"modbus"`
	Sim    SimulationConfig `yaml:"sim"`
}

// SimulationConfig is used by the simulate command and the "sim" driver
type SimulationConfig struct {
	// StartCM places the tube before calibration, 0 is home
	StartCM float64 `yaml:"start_cm"`
	// TimeScale runs simulated time faster than the wall clock
	TimeScale float64 `yaml:"time_scale"`
	TideCM    float64 `yaml:"tide_cm"`
}

// StorageConfig locates the files kept across restarts
type StorageConfig struct {
	SettingsFile string `yaml:"settings_file"`
	TideFile     string `yaml:"tide_file"`
	TideHistory  int    `yaml:"tide_history"`
}

// ClockConfig is the display zone for wall time
type ClockConfig struct {
	UTCOffset time.Duration `yaml:"utc_offset"`
	Zone      string        `yaml:"zone"`
}

// TWChartConfig enables cycle telemetry when Address is set
type TWChartConfig struct {
	Address string `yaml:"address"`
	// Probes overrides the probe mapping, "1=Name,2=Name,..."
	Probes string `yaml:"probes"`
}

// Default is the instrument as deployed
func Default() *Config {
	return &Config{
		Config: controller.DefaultConfig(),
		Hardware: HardwareConfig{
			Driver: DriverRPi,
			RPi:    rpi.DefaultPins,
			Modbus: modbusio.DefaultConfig,
			Sim: SimulationConfig{
				TimeScale: 1,
				TideCM:    60,
			},
		},
		Topside: topside.SerialConfig{
			BaudRate:    115200,
			ReadTimeout: 100 * time.Millisecond,
		},
		Storage: StorageConfig{
			SettingsFile: "settings.yaml",
			TideFile:     "tides.txt",
			TideHistory:  48,
		},
		Clock: ClockConfig{
			UTCOffset: -8 * time.Hour,
			Zone:      "PST",
		},
	}
}
