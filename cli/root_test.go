package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, error) {
	configFile, verbose = "", false

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nora.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{"run", "simulate", "config", "ports", "convert", "version"}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestConfigCommands(t *testing.T) {
	t.Setenv("NORA_CONFIG", "")

	t.Run("ValidateDefaults", func(t *testing.T) {
		out, err := executeCommand("config", "validate")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Configuration is valid.") {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("ValidateInvalid", func(t *testing.T) {
		path := writeConfig(t, "flush:\n  profile: fast\n")
		out, err := executeCommand("config", "validate", "--config", path)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(out, "flush.profile") {
			t.Errorf("expected output to name flush.profile, got: %s", out)
		}
	})

	t.Run("Show", func(t *testing.T) {
		path := writeConfig(t, "release:\n  pier_distance_cm: 800\n")
		out, err := executeCommand("config", "show", "--config", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"pier_distance_cm: 800", "profile: production", "tide_file: tides.txt"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got: %s", want, out)
			}
		}
	})
}

func TestConvertCommands(t *testing.T) {
	t.Setenv("NORA_CONFIG", "")

	out, err := executeCommand("convert", "cm", "100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "100.00cm = ") {
		t.Errorf("unexpected output: %s", out)
	}

	_, err = executeCommand("convert", "pulses", "abc")
	if err == nil {
		t.Error("expected error for invalid pulse count")
	}
}

func TestSimulate(t *testing.T) {
	path := writeConfig(t, "hardware:\n  driver: sim\n")
	_, err := executeCommand("simulate", "--config", path, "--for", "2s", "--scale", "1000", "--state-dir", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
