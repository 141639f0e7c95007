package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/calvinmclean/nora/config"
	"github.com/calvinmclean/nora/controller"
	"github.com/calvinmclean/nora/hw/modbusio"
	"github.com/calvinmclean/nora/hw/rpi"
	"github.com/calvinmclean/nora/schedule"
	"github.com/calvinmclean/nora/topside"
	"github.com/calvinmclean/nora/twchart"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the instrument",
	Long: `Run calibrates the reel and then samples on the configured schedule until
interrupted. With hardware.driver set to "sim" it runs the simulated plant
instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Hardware.Driver == config.DriverSim {
			return simulate(ctx, cfg, simOptions{})
		}
		return run(ctx, cfg)
	},
}

func run(ctx context.Context, cfg *config.Config) (err error) {
	logger := log.Default()

	board, err := rpi.Open(cfg.Hardware.RPi)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, board.Close()) }()

	module, err := modbusio.Open(cfg.Hardware.Modbus)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, module.Close()) }()

	maxRate := cfg.Motion.Reel.PulseRate(cfg.Motion.SpeedCeilingCMS)
	stepper, err := board.Stepper(module, module.Alarm(), maxRate)
	if err != nil {
		return fmt.Errorf("error creating stepper: %w", err)
	}

	opts, err := newOptions(cfg, logger)
	if err != nil {
		return err
	}

	port, err := topside.Open(cfg.Topside)
	if err != nil {
		return err
	}
	if port != nil {
		link := topside.NewLink(port, logger)
		defer func() { err = multierr.Append(err, link.Close()) }()
		opts.Link = link
	} else {
		logger.Printf("[topside] link disabled")
	}

	hw := controller.Hardware{
		Driver: stepper,
		Valves: module,
		Thermo: module,
		Magnet: board.Magnet(),
		Tube:   board.Tube(),
		EStop:  board.EStop(),
		Keys:   board,
	}

	c, err := controller.New(cfg.Config, hw, opts)
	if err != nil {
		return fmt.Errorf("error creating controller: %w", err)
	}
	if cfg.Verbose {
		c.Verbose()
	}

	return c.Run(ctx)
}

// newOptions builds the persistence, clock and telemetry collaborators. The
// link is left to the caller.
func newOptions(cfg *config.Config, logger *log.Logger) (controller.Options, error) {
	opts := controller.Options{
		Settings: schedule.NewStore(cfg.Storage.SettingsFile),
		Tides:    schedule.NewTideCache(cfg.Storage.TideFile, cfg.Storage.TideHistory),
		Clock:    schedule.NewClock(cfg.Clock.UTCOffset, cfg.Clock.Zone),
		Logger:   logger,
	}

	if cfg.TWChart.Probes != "" {
		probes, err := twchart.ParseProbes(cfg.TWChart.Probes)
		if err != nil {
			return controller.Options{}, fmt.Errorf("error parsing probes: %w", err)
		}
		opts.Probes = probes
	}
	if cfg.TWChart.Address != "" {
		opts.TWChart = twchart.NewClient(cfg.TWChart.Address)
	}

	return opts, nil
}
