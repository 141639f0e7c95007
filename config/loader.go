package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "NORA_CONFIG"

// Load reads a configuration file. Keys missing from the file keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// LoadFromEnv loads the file named by NORA_CONFIG, or the defaults when it is
// unset
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		cfg := Default()
		applyDefaults(cfg)
		return cfg, nil
	}
	return Load(path)
}

// applyDefaults fills values that an explicit empty key would otherwise zero
func applyDefaults(cfg *Config) {
	if cfg.Hardware.Driver == "" {
		cfg.Hardware.Driver = DriverRPi
	}
	if cfg.Hardware.Sim.TimeScale == 0 {
		cfg.Hardware.Sim.TimeScale = 1
	}
	if cfg.Storage.TideHistory == 0 {
		cfg.Storage.TideHistory = 48
	}
	if cfg.Clock.Zone == "" {
		cfg.Clock.Zone = "UTC"
	}
	if cfg.Topside.BaudRate == 0 {
		cfg.Topside.BaudRate = 115200
	}
	if cfg.Hardware.Modbus.BaudRate == 0 {
		cfg.Hardware.Modbus.BaudRate = 9600
	}

	// jogs never exceed the motion ceiling
	ceiling := cfg.Motion.SpeedCeilingCMS
	if ceiling > 0 && cfg.Manual.SpeedCMS > ceiling {
		cfg.Manual.SpeedCMS = ceiling
	}
}
