package fault

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/calvinmclean/nora"
)

var (
	ErrNoFault     = errors.New("no active fault")
	ErrEStopActive = errors.New("e-stop is still asserted")
)

// Record is one fault report
type Record struct {
	Fault  nora.AlarmFault
	Source string
	At     time.Time
	// Latched is false for reports that arrived while another fault was active
	Latched bool
}

// Supervisor is the single fault register shared by every component. The
// first reported fault is latched and later reports are only recorded until
// it is cleared.
type Supervisor struct {
	mu sync.Mutex

	active       nora.AlarmFault
	acknowledged bool
	history      []Record
	maxHistory   int

	logger *log.Logger
}

// NewSupervisor creates an empty register
func NewSupervisor(logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{logger: logger, maxHistory: 100}
}

// Report latches f if no fault is active and returns true when it did
func (s *Supervisor) Report(f nora.AlarmFault, source string, now time.Time) bool {
	if f == nora.FaultNone {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// an acknowledged fault waiting for recalibration is replaced by a new one
	latched := s.active == nora.FaultNone || s.acknowledged
	s.record(Record{Fault: f, Source: source, At: now, Latched: latched})

	if !latched {
		s.logger.Printf("[fault] %s from %s recorded while %s is active", f, source, s.active)
		return false
	}

	s.active = f
	s.acknowledged = false
	s.logger.Printf("[fault] latched %s from %s", f, source)
	return true
}

func (s *Supervisor) record(r Record) {
	s.history = append(s.history, r)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
}

// Active is the latched fault, including one that was acknowledged and is
// waiting for recalibration
func (s *Supervisor) Active() nora.AlarmFault {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Preempting is true while a fault is latched and not yet acknowledged. It
// blocks all motion.
func (s *Supervisor) Preempting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nora.FaultNone && !s.acknowledged
}

// Acknowledge is the operator clearing the alarm. Faults that need a
// recalibration stay latched, but stop preempting, until Recalibrated.
func (s *Supervisor) Acknowledge(estopAsserted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nora.FaultNone {
		return ErrNoFault
	}
	if estopAsserted {
		return ErrEStopActive
	}

	if s.active.RequiresRecalibration() {
		s.acknowledged = true
		s.logger.Printf("[fault] %s acknowledged, waiting for calibration", s.active)
		return nil
	}

	s.logger.Printf("[fault] %s acknowledged and cleared", s.active)
	s.active = nora.FaultNone
	s.acknowledged = false
	return nil
}

// Recalibrated clears an acknowledged fault after a successful calibration
func (s *Supervisor) Recalibrated() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nora.FaultNone || !s.acknowledged {
		return
	}
	s.logger.Printf("[fault] %s cleared by calibration", s.active)
	s.active = nora.FaultNone
	s.acknowledged = false
}

// History returns a copy of the recent reports, oldest first
func (s *Supervisor) History() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.history...)
}
