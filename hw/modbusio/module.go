// Package modbusio drives the relay and RTD I/O module over Modbus RTU
package modbusio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/sensor"
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// Config addresses the module and maps its channels. Relay numbers start at 1
// as printed on the board.
type Config struct {
	Device   string        `yaml:"device"`
	BaudRate int           `yaml:"baud_rate"`
	SlaveID  byte          `yaml:"slave_id"`
	Timeout  time.Duration `yaml:"timeout"`

	MotorRelay      uint16 `yaml:"motor_relay"`
	AirRelay        uint16 `yaml:"air_relay"`
	FreshwaterRelay uint16 `yaml:"freshwater_relay"`

	// RTDRegister is the input register of RTD channel 1. Channel n is at
	// RTDRegister+n-1 and reads tenths of a degree Celsius.
	RTDRegister uint16 `yaml:"rtd_register"`
	// AlarmRegister holds the raw ADC reading of the driver's alarm output
	AlarmRegister uint16 `yaml:"alarm_register"`
}

// DefaultConfig matches the instrument wiring
var DefaultConfig = Config{
	Device:          "/dev/ttyUSB1",
	BaudRate:        9600,
	SlaveID:         1,
	Timeout:         500 * time.Millisecond,
	MotorRelay:      1,
	AirRelay:        3,
	FreshwaterRelay: 4,
	RTDRegister:     0x0000,
	AlarmRegister:   0x0010,
}

// registerClient is the part of modbus.Client used here
type registerClient interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
}

// Module is the I/O module. It switches motor power and the solenoids and reads
// the RTDs and the motor alarm level.
type Module struct {
	mu      sync.Mutex
	cfg     Config
	handler *modbus.RTUClientHandler
	client  registerClient
}

var (
	_ motion.PowerSwitch = &Module{}
	_ sensor.Thermometer = &Module{}
)

// Open connects to the module on its serial line
func Open(cfg Config) (*Module, error) {
	if cfg.Device == "" {
		return nil, errors.New("modbus device is required")
	}

	h := modbus.NewRTUClientHandler(cfg.Device)
	h.BaudRate = cfg.BaudRate
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.SlaveId = cfg.SlaveID
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", cfg.Device, err)
	}

	m := newModule(cfg, modbus.NewClient(h))
	m.handler = h
	return m, nil
}

func newModule(cfg Config, client registerClient) *Module {
	return &Module{cfg: cfg, client: client}
}

func (m *Module) SetMotorPower(on bool) error {
	return m.setRelay(m.cfg.MotorRelay, on)
}

func (m *Module) SetValve(v nora.Valve, open bool) error {
	switch v {
	case nora.ValveAir:
		return m.setRelay(m.cfg.AirRelay, open)
	case nora.ValveFreshwater:
		return m.setRelay(m.cfg.FreshwaterRelay, open)
	}
	return fmt.Errorf("unknown valve %d", v)
}

func (m *Module) setRelay(relay uint16, on bool) error {
	if relay == 0 {
		return errors.New("relay numbers start at 1")
	}
	value := coilOff
	if on {
		value = coilOn
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.client.WriteSingleCoil(relay-1, value)
	if err != nil {
		return fmt.Errorf("error setting relay %d: %w", relay, err)
	}
	return nil
}

// Temperature reads one RTD channel
func (m *Module) Temperature(s nora.TempSensor) (physic.Temperature, error) {
	if s < nora.SampleTempSensor {
		return 0, fmt.Errorf("invalid temperature sensor %d", s)
	}
	raw, err := m.readRegister(m.cfg.RTDRegister + uint16(s) - 1)
	if err != nil {
		return 0, fmt.Errorf("error reading %s temperature: %w", s, err)
	}
	return sensor.FromCelsius(float64(int16(raw)) / 10), nil
}

func (m *Module) readRegister(addr uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.client.ReadInputRegisters(addr, 1)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, fmt.Errorf("short response: %d bytes", len(data))
	}
	return binary.BigEndian.Uint16(data), nil
}

// Alarm is the motor driver's alarm level input
func (m *Module) Alarm() motion.AnalogInput {
	return alarmInput{m}
}

type alarmInput struct {
	m *Module
}

func (a alarmInput) Read() (uint16, error) {
	v, err := a.m.readRegister(a.m.cfg.AlarmRegister)
	if err != nil {
		return 0, fmt.Errorf("error reading alarm level: %w", err)
	}
	return v, nil
}

// Close releases every relay and closes the port. All steps are attempted.
func (m *Module) Close() error {
	err := multierr.Combine(
		m.SetMotorPower(false),
		m.SetValve(nora.ValveAir, false),
		m.SetValve(nora.ValveFreshwater, false),
	)
	if m.handler != nil {
		err = multierr.Append(err, m.handler.Close())
	}
	return err
}
