package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/mailgraph/config"
)

func newConfigCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize mailgraph's config.yaml",
	}

	root.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective, loaded configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(appCfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml if one does not already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigPath()
			if err != nil {
				return fmt.Errorf("resolving config path: %w", err)
			}
			if err := config.SaveConfig(config.DefaultConfig()); err != nil {
				return fmt.Errorf("writing default config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", path)
			return nil
		},
	})

	return root
}
