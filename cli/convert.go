package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert between reel distance and motor pulses",
}

var convertCMCmd = &cobra.Command{
	Use:   "cm DISTANCE",
	Short: "Print the pulses for a distance in centimeters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid distance %q: %w", args[0], err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cmd.Printf("%.2fcm = %d pulses\n", cm, cfg.Motion.Reel.ToPulses(cm))
		return nil
	},
}

var convertPulsesCmd = &cobra.Command{
	Use:   "pulses COUNT",
	Short: "Print the distance in centimeters for a pulse count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pulses, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid pulse count %q: %w", args[0], err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cmd.Printf("%d pulses = %.2fcm\n", pulses, cfg.Motion.Reel.ToDistance(pulses))
		return nil
	},
}

func init() {
	convertCmd.AddCommand(convertCMCmd)
	convertCmd.AddCommand(convertPulsesCmd)
}
