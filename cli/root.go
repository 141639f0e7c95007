package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/nora/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "nora",
	Short: "NORA buoy water sampler controller",
	Long: `nora lowers the sample tube from the pier into the water, soaks it, retrieves
it, runs the analyzer and flushes the plumbing on a schedule. It talks to the
topside computer over a serial link and is operated locally with the keypad.

Configuration is read from --config or the NORA_CONFIG environment variable.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to the instrument config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log position every tick")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(convertCmd)
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// loadValidConfig loads the config and refuses to continue when it is invalid
func loadValidConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			cmd.PrintErrf("  - %s\n", e)
		}
		return nil, fmt.Errorf("config has %d validation error(s)", len(errs))
	}
	return cfg, nil
}
