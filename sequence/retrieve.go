package sequence

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/motion"
)

// ErrRetrieveTimeout is wrapped in the Tube fault raised by the retrieval
// watchdog
var ErrRetrieveTimeout = errors.New("tube not retrieved in time")

// RetrieveConfig holds the landmarks and speeds of the retrieval profile.
// Distances are measured below home.
type RetrieveConfig struct {
	// InitialRiseCM is the slow lift that unseats the tube
	InitialRiseCM    float64 `yaml:"initial_rise_cm"`
	TubeOpeningCM    float64 `yaml:"tube_opening_cm"`
	NearWaterCM      float64 `yaml:"near_water_cm"`
	NearingHomeCM    float64 `yaml:"nearing_home_cm"`
	HomeOvershootCM  float64 `yaml:"home_overshoot_cm"`
	SafeRiseSpeed    float64 `yaml:"safe_rise_speed_cm_s"`
	RaiseSpeed       float64 `yaml:"raise_speed_cm_s"`
	InTubeRaiseSpeed float64 `yaml:"in_tube_raise_speed_cm_s"`
	ToleranceCM      float64 `yaml:"tolerance_cm"`
	// Settle is the minimum pause in StopAndWait
	Settle time.Duration `yaml:"settle"`
	// Timeout bounds the whole retrieval
	Timeout time.Duration `yaml:"timeout"`
	// StageSlack is added to the travel time of each stage to form its local
	// timeout
	StageSlack time.Duration `yaml:"stage_slack"`
}

// Retriever brings the tube from the water back to home
type Retriever struct {
	cfg    RetrieveConfig
	motion *motion.Controller
	tube   Sensor
	magnet Sensor
	logger *log.Logger

	stage      nora.RetrieveStage
	running    bool
	entered    bool
	startedAt  time.Time
	stageStart time.Time
	retries    int
}

// NewRetriever creates a Retriever driving mc
func NewRetriever(cfg RetrieveConfig, mc *motion.Controller, tube, magnet Sensor, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.Default()
	}
	return &Retriever{
		cfg:    cfg,
		motion: mc,
		tube:   tube,
		magnet: magnet,
		logger: logger,
	}
}

func (r *Retriever) Stage() nora.RetrieveStage {
	return r.stage
}

func (r *Retriever) Running() bool {
	return r.running
}

// Retries is how many stage moves were restarted after a local timeout
func (r *Retriever) Retries() int {
	return r.retries
}

// Start begins retrieval from the current position
func (r *Retriever) Start(now time.Time) {
	r.stage = nora.RetrieveInitialSlowRise
	r.running = true
	r.entered = false
	r.retries = 0
	r.startedAt = now
	r.logger.Printf("[retrieve] start at %.1fcm", r.motion.PositionCM())
}

// Abort stops the motor and resets to the first stage
func (r *Retriever) Abort() error {
	r.running = false
	r.entered = false
	r.stage = nora.RetrieveInitialSlowRise
	return r.motion.Abort()
}

// Tick advances retrieval by at most one stage. It returns true once the tube
// is home. The watchdog is checked before anything else.
func (r *Retriever) Tick(now time.Time) (bool, error) {
	if !r.running {
		return r.stage == nora.RetrieveComplete, nil
	}

	if r.cfg.Timeout > 0 && now.Sub(r.startedAt) >= r.cfg.Timeout {
		stage := r.stage
		err := errors.Join(ErrRetrieveTimeout, r.Abort())
		r.logger.Printf("[retrieve] watchdog expired in %s", stage)
		return false, &Error{Stage: stage.String(), Fault: nora.FaultTube, Err: err}
	}

	if !r.entered {
		err := r.enter(now)
		if err != nil {
			return false, err
		}
		r.entered = true
		return false, nil
	}

	done, err := r.step(now)
	if err != nil {
		return false, err
	}
	if !done {
		return false, nil
	}

	next := r.stage.Next()
	r.logger.Printf("[retrieve] %s -> %s at %.1fcm", r.stage, next, r.motion.PositionCM())
	r.stage = next
	r.entered = false
	if next == nora.RetrieveComplete {
		r.running = false
		return true, nil
	}
	return false, nil
}

func (r *Retriever) enter(now time.Time) error {
	r.stageStart = now
	pos := r.motion.PositionCM()

	var target motion.Target
	switch r.stage {
	case nora.RetrieveInitialSlowRise:
		target = r.target(pos+r.cfg.InitialRiseCM, r.cfg.SafeRiseSpeed, nil)
	case nora.RetrieveNormalRise:
		goal := -(r.cfg.TubeOpeningCM + r.cfg.NearWaterCM)
		if pos >= goal {
			return nil
		}
		target = r.target(goal, r.cfg.RaiseSpeed, r.tube.Active)
	case nora.RetrieveStopAndWait:
		return r.motion.Abort()
	case nora.RetrieveSlowRiseToNearHome:
		goal := -r.cfg.NearingHomeCM
		if pos >= goal {
			return nil
		}
		target = r.target(goal, r.cfg.InTubeRaiseSpeed, nil)
	case nora.RetrieveFinalSlowAlign:
		target = r.target(r.cfg.HomeOvershootCM, r.cfg.SafeRiseSpeed, r.magnet.Active)
	default:
		return nil
	}

	err := r.motion.Start(target, now)
	if err != nil {
		return fmt.Errorf("error starting %s: %w", r.stage, err)
	}
	return nil
}

func (r *Retriever) target(goal, speed float64, until func() bool) motion.Target {
	travel := math.Abs(goal-r.motion.PositionCM()) / speed
	return motion.Target{
		PositionCM:  goal,
		ToleranceCM: r.cfg.ToleranceCM,
		MaxSpeedCMS: speed,
		Timeout:     time.Duration(travel*float64(time.Second)) + r.cfg.StageSlack,
		Until:       until,
	}
}

// step reports whether the current stage is finished
func (r *Retriever) step(now time.Time) (bool, error) {
	if r.stage == nora.RetrieveStopAndWait {
		return now.Sub(r.stageStart) >= r.cfg.Settle && r.tube.Settled(), nil
	}

	if !r.motion.Busy() && r.motion.Last() != motion.Moving {
		// stage was skipped or its move already ended
		return r.finished(r.motion.Last())
	}

	outcome, err := r.motion.Tick(now)
	if err != nil {
		var moveErr *motion.MoveError
		if errors.As(err, &moveErr) && moveErr.Outcome == motion.TimedOut {
			r.retries++
			r.logger.Printf("[retrieve] %s timed out, retrying", r.stage)
			r.entered = false
			return false, nil
		}
		return false, moveFault(r.stage, err)
	}
	if !outcome.Done() {
		return false, nil
	}
	return r.finished(outcome)
}

func (r *Retriever) finished(outcome motion.Outcome) (bool, error) {
	if r.stage != nora.RetrieveFinalSlowAlign {
		return true, nil
	}

	// only the home magnet completes retrieval
	if outcome == motion.Triggered || r.magnet.Active() {
		r.motion.Rezero()
		return true, nil
	}
	return false, &Error{
		Stage: r.stage.String(),
		Fault: nora.FaultTube,
		Err:   fmt.Errorf("%w: passed home to %.1fcm", ErrHomeNotFound, r.motion.PositionCM()),
	}
}
