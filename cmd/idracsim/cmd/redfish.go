package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/idracsim/internal/redfish"
)

func redfishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redfish",
		Short: "Serves the Redfish API of a single emulated server",
		RunE:  runRedfish,
	}
	return cmd
}

func runRedfish(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return redfish.Run(config)
}
