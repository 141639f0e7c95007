package fault

import (
	"math"
	"time"
)

// CommsWatchdog expires when the topside host has not answered an outstanding
// request in time. Each request is tracked by its code so only the matching
// reply clears it.
type CommsWatchdog struct {
	Timeout time.Duration

	pending map[string]time.Time
}

// Arm starts waiting for a reply to req. Arming a request that is already
// outstanding keeps the older deadline.
func (w *CommsWatchdog) Arm(req string, now time.Time) {
	if w.pending == nil {
		w.pending = map[string]time.Time{}
	}
	if _, ok := w.pending[req]; ok {
		return
	}
	w.pending[req] = now
}

// Answered clears req. Replies to requests that are not outstanding are ignored.
func (w *CommsWatchdog) Answered(req string) {
	delete(w.pending, req)
}

// Disarm forgets every outstanding request
func (w *CommsWatchdog) Disarm() {
	clear(w.pending)
}

func (w *CommsWatchdog) Armed() bool {
	return len(w.pending) > 0
}

// Waiting is true while req is outstanding
func (w *CommsWatchdog) Waiting(req string) bool {
	_, ok := w.pending[req]
	return ok
}

// Expired is true once any outstanding request has waited Timeout
func (w *CommsWatchdog) Expired(now time.Time) bool {
	for _, sent := range w.pending {
		if now.Sub(sent) >= w.Timeout {
			return true
		}
	}
	return false
}

// WaterDetector decides whether sample water reached the analyzer by watching
// the sample line temperature move away from its starting value
type WaterDetector struct {
	Timeout  time.Duration
	MinDelta float64

	running  bool
	baseline float64
	start    time.Time
	detected bool
}

// Start records the baseline temperature in Celsius
func (w *WaterDetector) Start(baselineC float64, now time.Time) {
	w.running = true
	w.detected = false
	w.baseline = baselineC
	w.start = now
}

// Stop ends detection
func (w *WaterDetector) Stop() {
	w.running = false
}

// Check feeds a temperature sample. It returns failed once Timeout passes
// without a change of at least MinDelta from the baseline.
func (w *WaterDetector) Check(tempC float64, now time.Time) (detected, failed bool) {
	if !w.running {
		return w.detected, false
	}

	if math.Abs(tempC-w.baseline) >= w.MinDelta {
		w.detected = true
		w.running = false
		return true, false
	}

	if now.Sub(w.start) >= w.Timeout {
		w.running = false
		return false, true
	}
	return false, false
}

func (w *WaterDetector) Detected() bool {
	return w.detected
}
