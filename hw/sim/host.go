package sim

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/calvinmclean/nora"
)

// Host plays the topside computer. It answers clock and tide requests and runs
// the sample pump on the plant.
type Host struct {
	plant  *Plant
	now    func() time.Time
	logger *log.Logger

	mu      sync.Mutex
	tideCM  float64
	silent  bool
	inbound chan []byte
	sent    []string
}

// NewHost answers requests using now for the clock reply
func NewHost(plant *Plant, now func() time.Time, tideCM float64, logger *log.Logger) *Host {
	if logger == nil {
		logger = log.Default()
	}
	return &Host{
		plant:   plant,
		now:     now,
		logger:  logger,
		tideCM:  tideCM,
		inbound: make(chan []byte, 32),
	}
}

// Send receives one message from the instrument
func (h *Host) Send(msg string) error {
	h.mu.Lock()
	h.sent = append(h.sent, msg)
	silent := h.silent
	tide := h.tideCM
	h.mu.Unlock()

	h.logger.Printf("[host] <- %s", msg)

	switch msg {
	case nora.StartPump:
		h.plant.SetPump(true)
	case nora.StopPump:
		h.plant.SetPump(false)
	case nora.RequestTime:
		if !silent {
			h.reply(fmt.Sprintf("C%d", h.now().Unix()))
		}
	case nora.RequestTideData:
		if !silent {
			h.reply(fmt.Sprintf("T%.1f", tide))
		}
	}
	return nil
}

// Inbound carries lines from the host to the instrument
func (h *Host) Inbound() <-chan []byte {
	return h.inbound
}

// Command queues an operator command such as "S" or "A"
func (h *Host) Command(line string) {
	h.reply(line)
}

func (h *Host) reply(line string) {
	select {
	case h.inbound <- []byte(line):
	default:
		h.logger.Printf("[host] dropped %q", line)
	}
}

// SetTide changes the level reported for the next request
func (h *Host) SetTide(cm float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tideCM = cm
}

// SetSilent stops the host from answering requests
func (h *Host) SetSilent(silent bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.silent = silent
}

// Sent returns every message received so far
func (h *Host) Sent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sent...)
}
