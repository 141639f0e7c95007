package controller

import (
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/hw/sim"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/schedule"
	"github.com/calvinmclean/nora/sequence"
)

const tick = 50 * time.Millisecond

var testStart = time.Unix(1700000000, 0)

// fakeLink plays the topside host. It runs the simulated pump on P and F and
// answers time and tide requests on the next tick.
type fakeLink struct {
	plant  *sim.Plant
	sent   []string
	in     chan []byte
	now    func() time.Time
	silent bool
	noPump bool
	tideCM float64
}

func newFakeLink(plant *sim.Plant, now func() time.Time) *fakeLink {
	return &fakeLink{plant: plant, in: make(chan []byte, 32), now: now, tideCM: 50}
}

func (l *fakeLink) Send(msg string) error {
	l.sent = append(l.sent, msg)
	switch msg {
	case nora.StartPump:
		if !l.noPump {
			l.plant.SetPump(true)
		}
	case nora.StopPump:
		l.plant.SetPump(false)
	case nora.RequestTime:
		if !l.silent {
			l.in <- fmt.Appendf(nil, "C%d", l.now().Unix())
		}
	case nora.RequestTideData:
		if !l.silent {
			l.in <- fmt.Appendf(nil, "T%.1f", l.tideCM)
		}
	}
	return nil
}

func (l *fakeLink) Inbound() <-chan []byte {
	return l.in
}

// sentInOrder is true when want appears in sent as a subsequence
func (l *fakeLink) sentInOrder(want ...string) bool {
	i := 0
	for _, msg := range l.sent {
		if i < len(want) && msg == want[i] {
			i++
		}
	}
	return i == len(want)
}

func (l *fakeLink) sentAny(msg string) bool {
	for _, m := range l.sent {
		if m == msg {
			return true
		}
	}
	return false
}

type fakeStore struct {
	settings schedule.Settings
	saves    int
}

func (s *fakeStore) Load() (schedule.Settings, error) {
	return s.settings, nil
}

func (s *fakeStore) Save(settings schedule.Settings) error {
	err := settings.Validate()
	if err != nil {
		return err
	}
	s.settings = settings
	s.saves++
	return nil
}

type fakeTides struct {
	readings []schedule.TideReading
}

func (t *fakeTides) Record(r schedule.TideReading) error {
	t.readings = append(t.readings, r)
	return nil
}

func (t *fakeTides) Latest() (schedule.TideReading, bool, error) {
	if len(t.readings) == 0 {
		return schedule.TideReading{}, false, nil
	}
	return t.readings[len(t.readings)-1], true, nil
}

type rig struct {
	t      *testing.T
	plant  *sim.Plant
	link   *fakeLink
	store  *fakeStore
	tides  *fakeTides
	c      *Controller
	now    time.Time
	states []nora.State
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Flush.Profile = sequence.ProfileTest
	cfg.Sample.Duration = 20 * time.Second
	return cfg
}

// newRig builds a controller on a simulated plant with the tube physically at
// startCM. withLink attaches a topside host. Each edit is applied to the stored
// settings before the controller loads them.
func newRig(t *testing.T, startCM float64, withLink bool, edits ...func(*schedule.Settings)) *rig {
	t.Helper()

	r := &rig{
		t:     t,
		plant: sim.New(motion.DefaultReel, sim.DefaultGeometry, startCM),
		store: &fakeStore{settings: schedule.Settings{
			Interval: 8 * time.Hour,
			Soak:     15 * time.Second,
			Dry:      5 * time.Second,
			Start:    testStart.Add(time.Hour),
		}},
		tides: &fakeTides{},
		now:   testStart,
	}
	for _, edit := range edits {
		edit(&r.store.settings)
	}

	opts := Options{
		Settings: r.store,
		Tides:    r.tides,
		Logger:   log.New(io.Discard, "", 0),
	}
	if withLink {
		r.link = newFakeLink(r.plant, func() time.Time { return r.now })
		opts.Link = r.link
	}

	c, err := New(testConfig(), Hardware{
		Driver: r.plant,
		Valves: r.plant,
		Thermo: r.plant,
		Magnet: r.plant.Magnet(),
		Tube:   r.plant.Tube(),
		EStop:  r.plant.EStop(),
		Keys:   r.plant,
	}, opts)
	if err != nil {
		t.Fatalf("unexpected error creating controller: %v", err)
	}
	r.c = c
	t.Cleanup(func() {
		_ = c.Shutdown()
	})
	return r
}

// step advances the plant and runs one control tick
func (r *rig) step() {
	r.now = r.now.Add(tick)
	r.plant.Advance(tick)
	r.c.Tick(r.now)
	if len(r.states) == 0 || r.states[len(r.states)-1] != r.c.State() {
		r.states = append(r.states, r.c.State())
	}
}

// runUntil steps until cond holds or limit of simulated time passes
func (r *rig) runUntil(limit time.Duration, cond func() bool) bool {
	deadline := r.now.Add(limit)
	for r.now.Before(deadline) {
		r.step()
		if cond() {
			return true
		}
	}
	return false
}

func (r *rig) waitState(limit time.Duration, s nora.State) {
	r.t.Helper()
	ok := r.runUntil(limit, func() bool { return r.c.State() == s })
	if !ok {
		r.t.Fatalf("expected state %s within %s but in %s (fault %s)", s, limit, r.c.State(), r.c.Fault())
	}
}

// press holds a key long enough to fire once, then releases it
func (r *rig) press(k nora.Key) {
	r.plant.PressKey(k, true)
	r.step()
	r.step()
	r.plant.PressKey(k, false)
	r.step()
	r.step()
}

// ready brings the rig to STANDBY and runs its entry tick
func (r *rig) ready() {
	r.t.Helper()
	r.waitState(30*time.Second, nora.StateStandby)
	r.step()
}
