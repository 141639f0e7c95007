package sequence

import (
	"time"

	"github.com/calvinmclean/nora/hw/sim"
	"github.com/calvinmclean/nora/motion"
	"github.com/calvinmclean/nora/sensor"
)

const tick = 100 * time.Millisecond

var testMotionConfig = motion.Config{
	Reel:               motion.DefaultReel,
	SpeedCeilingCMS:    75,
	AlarmThreshold:     1100,
	AlarmSamples:       3,
	DefaultToleranceCM: 0.5,
}

var testRetrieveConfig = RetrieveConfig{
	InitialRiseCM:    15,
	TubeOpeningCM:    228,
	NearWaterCM:      100,
	NearingHomeCM:    30,
	HomeOvershootCM:  5,
	SafeRiseSpeed:    3,
	RaiseSpeed:       50,
	InTubeRaiseSpeed: 10,
	ToleranceCM:      0.5,
	Settle:           2 * time.Second,
	Timeout:          200 * time.Second,
	StageSlack:       5 * time.Second,
}

var testFlushConfig = FlushConfig{
	Timing:          ProductionFlushTiming,
	DumpLiftCM:      20,
	DumpLiftSpeed:   2,
	LineFlushDropCM: 60,
	LineFlushSpeed:  10,
	HomeSpeed:       3,
	HomeOvershootCM: 5,
	HomeTimeout:     60 * time.Second,
	ToleranceCM:     0.5,
}

type rig struct {
	plant  *sim.Plant
	motion *motion.Controller
	magnet *sensor.Switch
	tube   *sensor.Switch
	now    time.Time
}

func newRig(startCM float64) *rig {
	plant := sim.New(motion.DefaultReel, sim.DefaultGeometry, 0)
	plant.Place(startCM)
	return &rig{
		plant:  plant,
		motion: motion.NewController(testMotionConfig, plant, nil, nil),
		magnet: sensor.NewSwitch(plant.Magnet(), 3),
		tube:   sensor.NewSwitch(plant.Tube(), 3),
		now:    time.Unix(1700000000, 0),
	}
}

// step advances the plant one tick and polls the sensors
func (r *rig) step() time.Time {
	r.now = r.now.Add(tick)
	r.plant.Advance(tick)
	r.magnet.Poll()
	r.tube.Poll()
	return r.now
}

type fakePump struct {
	on     bool
	starts int
	stops  int
}

func (p *fakePump) StartPump() error {
	p.on = true
	p.starts++
	return nil
}

func (p *fakePump) StopPump() error {
	p.on = false
	p.stops++
	return nil
}

// fakeSensor holds a fixed confirmed state
type fakeSensor struct {
	active bool
}

func (s fakeSensor) Active() bool {
	return s.active
}

func (s fakeSensor) Settled() bool {
	return true
}
