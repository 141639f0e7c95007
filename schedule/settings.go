package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Settings are the operator-editable sampling parameters
type Settings struct {
	Interval time.Duration `yaml:"interval"`
	Soak     time.Duration `yaml:"soak"`
	Dry      time.Duration `yaml:"dry"`
	// Start anchors the schedule. Samples happen at Start plus whole multiples
	// of Interval. Zero means the first sample is due immediately.
	Start time.Time `yaml:"start,omitempty"`
	// FilterSamples counts cycles since the analyzer filter was replaced
	FilterSamples int `yaml:"filter_samples"`
}

// DefaultSettings is used when nothing has been saved yet
func DefaultSettings() Settings {
	return Settings{
		Interval: 8 * time.Hour,
		Soak:     15 * time.Second,
		Dry:      5 * time.Second,
	}
}

// Validate checks that the schedule can run
func (s Settings) Validate() error {
	var errs []error
	if s.Interval < time.Minute {
		errs = append(errs, fmt.Errorf("interval %s is shorter than 1m", s.Interval))
	}
	if s.Soak < 0 {
		errs = append(errs, fmt.Errorf("soak %s is negative", s.Soak))
	}
	if s.Dry < 0 {
		errs = append(errs, fmt.Errorf("dry %s is negative", s.Dry))
	}
	if s.FilterSamples < 0 {
		errs = append(errs, errors.New("filter sample count is negative"))
	}
	return errors.Join(errs...)
}

// NextSample returns the first scheduled time at or after now
func (s Settings) NextSample(now time.Time) time.Time {
	if s.Start.IsZero() {
		return now
	}
	if !now.After(s.Start) || s.Interval <= 0 {
		return s.Start
	}

	k := now.Sub(s.Start) / s.Interval
	next := s.Start.Add(k * s.Interval)
	if next.Before(now) {
		next = next.Add(s.Interval)
	}
	return next
}

// HMS is a duration split into the fields edited on the keypad
type HMS struct {
	Hours   int
	Minutes int
	Seconds int
}

// SplitHMS breaks d into whole hours, minutes and seconds
func SplitHMS(d time.Duration) HMS {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return HMS{Hours: int(h), Minutes: int(m), Seconds: int(d / time.Second)}
}

func (h HMS) Duration() time.Duration {
	return time.Duration(h.Hours)*time.Hour + time.Duration(h.Minutes)*time.Minute + time.Duration(h.Seconds)*time.Second
}

// Adjust changes one field by delta, wrapping minutes and seconds at 60 and
// keeping hours in 0-99
func (h HMS) Adjust(field, delta int) HMS {
	wrap := func(v, n int) int {
		return ((v % n) + n) % n
	}
	switch field {
	case 0:
		h.Hours = wrap(h.Hours+delta, 100)
	case 1:
		h.Minutes = wrap(h.Minutes+delta, 60)
	case 2:
		h.Seconds = wrap(h.Seconds+delta, 60)
	}
	return h
}

func (h HMS) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", h.Hours, h.Minutes, h.Seconds)
}
