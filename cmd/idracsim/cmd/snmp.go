package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/idracsim/internal/snmp"
)

func snmpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snmp",
		Short: "Serves the Dell enterprise SNMP subtree of a single emulated server",
		RunE:  runSnmp,
	}
	return cmd
}

func runSnmp(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return snmp.Run(config)
}
