package main_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
)

// portEnv names the serial device wired to the instrument's topside port
const portEnv = "NORA_SERIAL_PORT"

func sendSerial(t *testing.T, in string, wait time.Duration) string {
	t.Helper()

	name := os.Getenv(portEnv)
	if name == "" {
		t.Skipf("%s is not set", portEnv)
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: 115200})
	if err != nil {
		t.Fatalf("unexpected error opening serial connection: %v", err)
	}
	defer port.Close()

	_, err = port.Write([]byte(in + "\n"))
	if err != nil {
		t.Fatalf("unexpected error writing serial: %v", err)
	}

	err = port.SetReadTimeout(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error setting read timeout: %v", err)
	}

	var out []byte
	buf := make([]byte, 256)
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			t.Fatalf("unexpected error reading serial: %v", err)
		}
		out = append(out, buf[:n]...)
	}
	return string(out)
}

func TestSerial(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected []string
	}{
		{
			"Debug",
			"D",
			[]string{"state=", "fault="},
		},
		{
			"Help",
			"H",
			[]string{"Available Commands:", "S: Start a sampling cycle", "A: Acknowledge"},
		},
		{
			"Tide",
			"T55.0\nD",
			[]string{"tide=55.0cm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := sendSerial(t, tt.in, time.Second)
			for _, want := range tt.expected {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q, got=%q", want, out)
				}
			}
		})
	}
}
