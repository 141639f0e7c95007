package topside

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidInput   = errors.New("invalid input")
)

// Command is a single character request from the host, optionally followed by
// an argument on the same line
type Command struct {
	Flag        byte
	HasInput    bool
	Run         func(Handler, []byte) error
	Description string
}

// Handler carries out host requests. It is implemented by the mode controller.
type Handler interface {
	BeginSample() error
	SetClock(epoch time.Time) error
	SetTide(levelCM float64) error
	AcknowledgeAlarm() error
	Debug() string
	Verbose()
	Reply(msg string)
}

var (
	BeginSampleCommand = &Command{
		Flag: 'S',
		Run: func(h Handler, _ []byte) error {
			return h.BeginSample()
		},
		Description: "Start a sampling cycle now. Only accepted in standby.",
	}
	ClockCommand = &Command{
		Flag:     'C',
		HasInput: true,
		Run: func(h Handler, in []byte) error {
			sec, err := strconv.ParseInt(string(in), 10, 64)
			if err != nil || sec <= 0 {
				return fmt.Errorf("%w: epoch %q", ErrInvalidInput, in)
			}
			return h.SetClock(time.Unix(sec, 0))
		},
		Description: "Set the clock. Input: Unix epoch seconds.",
	}
	TideCommand = &Command{
		Flag:     'T',
		HasInput: true,
		Run: func(h Handler, in []byte) error {
			level, err := strconv.ParseFloat(string(in), 64)
			if err != nil {
				return fmt.Errorf("%w: tide %q", ErrInvalidInput, in)
			}
			return h.SetTide(level)
		},
		Description: "Report the tide level. Input: centimeters above datum.",
	}
	AcknowledgeCommand = &Command{
		Flag: 'A',
		Run: func(h Handler, _ []byte) error {
			return h.AcknowledgeAlarm()
		},
		Description: "Acknowledge the active alarm and recalibrate.",
	}
	DebugCommand = &Command{
		Flag: 'D',
		Run: func(h Handler, _ []byte) error {
			h.Reply(h.Debug())
			return nil
		},
		Description: "Print the current state.",
	}
	VerboseCommand = &Command{
		Flag: 'V',
		Run: func(h Handler, _ []byte) error {
			h.Verbose()
			return nil
		},
		Description: "Enable verbose output.",
	}
	HelpCommand = &Command{
		Flag:        'H',
		Description: "Show all available commands and their descriptions.",
		Run: func(h Handler, _ []byte) error {
			h.Reply("Available Commands:")
			for _, cmd := range commands {
				h.Reply(string(cmd.Flag) + ": " + cmd.Description)
			}
			return nil
		},
	}
)

var commands = []*Command{
	BeginSampleCommand,
	ClockCommand,
	TideCommand,
	AcknowledgeCommand,
	DebugCommand,
	VerboseCommand,
}

var cmdMap = func() map[byte]*Command {
	m := map[byte]*Command{HelpCommand.Flag: HelpCommand}
	for _, cmd := range commands {
		m[cmd.Flag] = cmd
	}
	return m
}()

// Dispatch runs the command on one line received from the host
func Dispatch(h Handler, line []byte) error {
	text := strings.TrimSpace(string(line))
	if text == "" {
		return nil
	}

	cmd, ok := cmdMap[text[0]]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, text)
	}

	in := []byte(strings.TrimSpace(text[1:]))
	if !cmd.HasInput && len(in) > 0 {
		return fmt.Errorf("%w: %q takes no input", ErrInvalidInput, cmd.Flag)
	}
	if cmd.HasInput && len(in) == 0 {
		return fmt.Errorf("%w: %q needs input", ErrInvalidInput, cmd.Flag)
	}
	return cmd.Run(h, in)
}
