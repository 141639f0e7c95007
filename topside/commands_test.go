package topside

import (
	"errors"
	"testing"
	"time"
)

type fakeHandler struct {
	begins  int
	clock   time.Time
	tide    float64
	acks    int
	verbose bool
	replies []string
	err     error
}

func (h *fakeHandler) BeginSample() error {
	h.begins++
	return h.err
}

func (h *fakeHandler) SetClock(epoch time.Time) error {
	h.clock = epoch
	return nil
}

func (h *fakeHandler) SetTide(levelCM float64) error {
	h.tide = levelCM
	return nil
}

func (h *fakeHandler) AcknowledgeAlarm() error {
	h.acks++
	return h.err
}

func (h *fakeHandler) Debug() string {
	return "state=Standby"
}

func (h *fakeHandler) Verbose() {
	h.verbose = true
}

func (h *fakeHandler) Reply(msg string) {
	h.replies = append(h.replies, msg)
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		check   func(*testing.T, *fakeHandler)
		wantErr error
	}{
		{
			"BeginSample",
			"S",
			func(t *testing.T, h *fakeHandler) {
				if h.begins != 1 {
					t.Errorf("expected one begin but got %d", h.begins)
				}
			},
			nil,
		},
		{
			"Clock",
			"C1760000000\r",
			func(t *testing.T, h *fakeHandler) {
				if h.clock.Unix() != 1760000000 {
					t.Errorf("unexpected clock %v", h.clock)
				}
			},
			nil,
		},
		{
			"Tide",
			"T -12.5",
			func(t *testing.T, h *fakeHandler) {
				if h.tide != -12.5 {
					t.Errorf("unexpected tide %f", h.tide)
				}
			},
			nil,
		},
		{
			"Acknowledge",
			"A",
			func(t *testing.T, h *fakeHandler) {
				if h.acks != 1 {
					t.Errorf("expected one ack but got %d", h.acks)
				}
			},
			nil,
		},
		{
			"Debug",
			"D",
			func(t *testing.T, h *fakeHandler) {
				if len(h.replies) != 1 || h.replies[0] != "state=Standby" {
					t.Errorf("unexpected replies %v", h.replies)
				}
			},
			nil,
		},
		{
			"Verbose",
			"V",
			func(t *testing.T, h *fakeHandler) {
				if !h.verbose {
					t.Error("expected verbose")
				}
			},
			nil,
		},
		{
			"Help",
			"H",
			func(t *testing.T, h *fakeHandler) {
				if len(h.replies) != len(commands)+1 {
					t.Errorf("expected a line per command but got %v", h.replies)
				}
			},
			nil,
		},
		{"Empty", "  ", nil, nil},
		{"Unknown", "Q", nil, ErrUnknownCommand},
		{"BadEpoch", "Cabc", nil, ErrInvalidInput},
		{"MissingEpoch", "C", nil, ErrInvalidInput},
		{"BadTide", "Tx", nil, ErrInvalidInput},
		{"UnexpectedInput", "S5", nil, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandler{}
			err := Dispatch(h, []byte(tt.line))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v but got %v", tt.wantErr, err)
			}
			if tt.check != nil {
				tt.check(t, h)
			}
		})
	}
}

func TestDispatchHandlerError(t *testing.T) {
	wantErr := errors.New("not in standby")
	h := &fakeHandler{err: wantErr}
	err := Dispatch(h, []byte("S"))
	if !errors.Is(err, wantErr) {
		t.Errorf("expected handler error but got %v", err)
	}
}
