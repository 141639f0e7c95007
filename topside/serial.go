package topside

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

var ErrNoUSBSerial = errors.New("no USB serial port found")

// SerialPortNone disables the topside link
const SerialPortNone = "none"

// SerialConfig selects and configures the host port
type SerialConfig struct {
	// Port is a device path, empty to use the first USB port, or SerialPortNone
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// GetSerialPorts lists the USB serial ports on the system
func GetSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("error listing serial ports: %w", err)
	}

	var usb []string
	for _, p := range ports {
		if strings.Contains(p, "usb") || strings.Contains(p, "USB") || strings.Contains(p, "ttyACM") {
			usb = append(usb, p)
		}
	}
	if len(usb) == 0 {
		return nil, ErrNoUSBSerial
	}
	return usb, nil
}

// Open opens the configured port. It returns nil without error when the link
// is disabled.
func Open(cfg SerialConfig) (serial.Port, error) {
	if cfg.Port == SerialPortNone {
		return nil, nil
	}

	name := cfg.Port
	if name == "" {
		ports, err := GetSerialPorts()
		if err != nil {
			return nil, err
		}
		name = ports[0]
	}

	baud := cfg.BaudRate
	if baud == 0 {
		baud = 115200
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("error opening serial port %s: %w", name, err)
	}

	if cfg.ReadTimeout > 0 {
		err = port.SetReadTimeout(cfg.ReadTimeout)
		if err != nil {
			port.Close()
			return nil, fmt.Errorf("error setting read timeout: %w", err)
		}
	}

	return port, nil
}
