package sensor

import "time"

// Debouncer confirms a digital level after it has been sampled the same way
// for Stable consecutive ticks
type Debouncer struct {
	Stable int

	state   bool
	pending int
}

// NewDebouncer creates a Debouncer that starts in the given state
func NewDebouncer(stable int, initial bool) *Debouncer {
	if stable < 1 {
		stable = 1
	}
	return &Debouncer{Stable: stable, state: initial}
}

// Update feeds one raw sample and returns the confirmed state
func (d *Debouncer) Update(raw bool) bool {
	if raw == d.state {
		d.pending = 0
		return d.state
	}

	d.pending++
	if d.pending >= d.Stable {
		d.state = raw
		d.pending = 0
	}
	return d.state
}

// State is the last confirmed state
func (d *Debouncer) State() bool {
	return d.state
}

// Settled is true when no change is waiting for confirmation
func (d *Debouncer) Settled() bool {
	return d.pending == 0
}

// Reset forces the confirmed state
func (d *Debouncer) Reset(state bool) {
	d.state = state
	d.pending = 0
}

// Button debounces a key by time and repeats while it is held
type Button struct {
	// Wait is how long the raw level must hold before a press counts
	Wait time.Duration
	// Repeat is the interval between repeated presses while held. Zero disables
	// repeat.
	Repeat time.Duration

	raw        bool
	rawSince   time.Time
	pressed    bool
	lastFire   time.Time
	holdFrames int
}

// Update samples the raw level and returns true when a press fires, either on
// the confirmed edge or on a hold repeat
func (b *Button) Update(raw bool, now time.Time) bool {
	if raw != b.raw {
		b.raw = raw
		b.rawSince = now
	}

	if now.Sub(b.rawSince) < b.Wait {
		return false
	}

	if !b.raw {
		b.pressed = false
		b.holdFrames = 0
		return false
	}

	if !b.pressed {
		b.pressed = true
		b.lastFire = now
		return true
	}

	// the first repeat waits one extra debounce period so a normal press
	// doesn't double fire
	delay := b.Repeat
	if b.holdFrames == 0 {
		delay += b.Wait
	}
	if b.Repeat > 0 && now.Sub(b.lastFire) >= delay {
		b.lastFire = now
		b.holdFrames++
		return true
	}
	return false
}

// Held is true while the button is confirmed pressed
func (b *Button) Held() bool {
	return b.pressed
}
