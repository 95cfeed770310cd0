package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/idracsim/internal/common"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
)

const (
	CustomConfigLocation string = "config"
	defaultConfigPath    string = "./config/idracsim"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "idracsim",
		SilenceUsage: true,
		Short:        "Emulates the telemetry of a fleet of Dell iDRAC servers",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	common.BindCommandlineArguments(cmd.PersistentFlags())

	cmd.AddCommand(
		fleetCmd(),
		redfishCmd(),
		snmpCmd(),
	)

	return cmd
}

func loadConfig() (configuration.Configuration, error) {
	var config configuration.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, defaultConfigPath, userSpecifiedConfigs)

	if err := common.ConfigureLogging(config.Logging.Level, config.Logging.Format); err != nil {
		return config, err
	}
	return config, configuration.Validate(config)
}
