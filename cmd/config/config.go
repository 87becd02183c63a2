// Package config prints or writes the effective configuration.
package config

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/livesound/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long:  "Print the merged configuration as YAML, or write it to a file with --output. Secrets are redacted when printing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				return conf.SaveYAMLConfig(output, settings)
			}
			data, err := conf.MarshalYAML(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the configuration to this file")

	return cmd
}
