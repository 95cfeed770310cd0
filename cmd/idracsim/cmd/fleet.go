package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/idracsim/internal/fleetemulator/fleetapp"
)

func fleetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Publishes telemetry for every server in the fleet on a fixed interval",
		RunE:  runFleet,
	}
	return cmd
}

func runFleet(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return fleetapp.Run(config)
}
