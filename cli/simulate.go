package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/nora"
	"github.com/calvinmclean/nora/config"
	"github.com/calvinmclean/nora/controller"
	"github.com/calvinmclean/nora/hw/sim"
	"github.com/calvinmclean/nora/topside"
)

type simOptions struct {
	sampleNow bool
	duration  time.Duration
	stateDir  string
}

var (
	simFlags   simOptions
	simStartCM float64
	simScale   float64
	simTideCM  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the controller against a simulated instrument",
	Long: `Simulate runs the full controller against a simulated reel, sensors, valves
and topside host. Simulated time can run faster than the wall clock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("start-cm") {
			cfg.Hardware.Sim.StartCM = simStartCM
		}
		if flags.Changed("scale") {
			cfg.Hardware.Sim.TimeScale = simScale
		}
		if flags.Changed("tide-cm") {
			cfg.Hardware.Sim.TideCM = simTideCM
		}
		cfg.Hardware.Driver = config.DriverSim

		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				cmd.PrintErrf("  - %s\n", e)
			}
			return fmt.Errorf("config has %d validation error(s)", len(errs))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return simulate(ctx, cfg, simFlags)
	},
}

func simulate(ctx context.Context, cfg *config.Config, so simOptions) error {
	logger := log.Default()

	if so.stateDir == "" {
		dir, err := os.MkdirTemp("", "nora-sim")
		if err != nil {
			return fmt.Errorf("error creating state dir: %w", err)
		}
		defer os.RemoveAll(dir)
		so.stateDir = dir
	}
	cfg.Storage.SettingsFile = filepath.Join(so.stateDir, filepath.Base(cfg.Storage.SettingsFile))
	cfg.Storage.TideFile = filepath.Join(so.stateDir, filepath.Base(cfg.Storage.TideFile))

	geo := sim.DefaultGeometry
	geo.WaterDepthCM = cfg.Release.PierDistanceCM - cfg.Hardware.Sim.TideCM
	plant := sim.New(cfg.Motion.Reel, geo, cfg.Hardware.Sim.StartCM)

	start := time.Now()
	now := start
	host := sim.NewHost(plant, func() time.Time { return now }, cfg.Hardware.Sim.TideCM, logger)

	opts, err := newOptions(cfg, logger)
	if err != nil {
		return err
	}
	opts.Link = host

	hw := controller.Hardware{
		Driver: plant,
		Valves: plant,
		Thermo: plant,
		Magnet: plant.Magnet(),
		Tube:   plant.Tube(),
		EStop:  plant.EStop(),
		Keys:   plant,
	}
	c, err := controller.New(cfg.Config, hw, opts)
	if err != nil {
		return fmt.Errorf("error creating controller: %w", err)
	}
	if cfg.Verbose {
		c.Verbose()
	}

	step := cfg.TickInterval
	if step <= 0 {
		step = 50 * time.Millisecond
	}
	ticker := time.NewTicker(time.Duration(float64(step) / cfg.Hardware.Sim.TimeScale))
	defer ticker.Stop()

	logger.Printf("[sim] running at %gx, tube at %.1fcm, water at %.1fcm", cfg.Hardware.Sim.TimeScale, cfg.Hardware.Sim.StartCM, -geo.WaterDepthCM)

	sampleNow := so.sampleNow
	var panel string
	for {
		select {
		case <-ctx.Done():
			return c.Shutdown()
		case <-ticker.C:
		}

		now = now.Add(step)
		plant.Advance(step)
		c.Tick(now)

		if d := c.Display(); cfg.Verbose && d != panel {
			logger.Printf("[panel] %s", strings.ReplaceAll(d, "\n", " | "))
			panel = d
		}
		if sampleNow && c.State() == nora.StateStandby {
			host.Command(string(topside.BeginSampleCommand.Flag))
			sampleNow = false
		}
		if so.duration > 0 && now.Sub(start) >= so.duration {
			logger.Printf("[sim] finished after %s in %s", so.duration, c.State())
			return c.Shutdown()
		}
	}
}

func init() {
	simulateCmd.Flags().Float64Var(&simStartCM, "start-cm", 0, "tube position before calibration, negative is below home")
	simulateCmd.Flags().Float64Var(&simScale, "scale", 1, "simulated seconds per wall clock second")
	simulateCmd.Flags().Float64Var(&simTideCM, "tide-cm", 60, "tide level reported by the simulated host")
	simulateCmd.Flags().BoolVar(&simFlags.sampleNow, "sample-now", false, "start a cycle as soon as calibration finishes")
	simulateCmd.Flags().DurationVar(&simFlags.duration, "for", 0, "stop after this much simulated time, 0 runs until interrupted")
	simulateCmd.Flags().StringVar(&simFlags.stateDir, "state-dir", "", "directory for settings and tide files, a temporary one by default")
}
