// Package cmd wires the command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/livesound/cmd/config"
	"github.com/tphakala/livesound/cmd/devices"
	"github.com/tphakala/livesound/cmd/file"
	"github.com/tphakala/livesound/cmd/realtime"
	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/telemetry"
)

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, version string) *cobra.Command {
	v := conf.NewViper()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "livesound",
		Short:         "Real-time audio classification",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}

	devicesCmd := devices.Command()

	rootCmd.AddCommand(
		realtime.Command(settings),
		file.Command(settings),
		devicesCmd,
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// listing devices needs neither a config file nor a model
		if cmd.Name() == devicesCmd.Name() {
			return nil
		}
		// bound here so only the running command's flags override settings
		if err := conf.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		return initialize(v, configFile, settings, version)
	}

	return rootCmd
}

// initialize loads the configuration and sets up logging and telemetry.
func initialize(v *viper.Viper, configFile string, settings *conf.Settings, version string) error {
	loaded, err := conf.Load(v, configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	if err := telemetry.Init(settings, version); err != nil {
		// telemetry is optional, keep running without it
		cl.Module("main").Warn("telemetry disabled", logger.Error(err))
	}

	return nil
}
