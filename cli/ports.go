package cli

import (
	"github.com/spf13/cobra"

	"github.com/calvinmclean/nora/topside"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List USB serial ports for the topside link",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := topside.GetSerialPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			cmd.Println(p)
		}
		return nil
	},
}
