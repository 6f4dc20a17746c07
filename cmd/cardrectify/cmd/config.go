package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/cardrectify/internal/config"
)

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file,
CARDRECTIFY_* environment variables and command-line flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch format {
			case "yaml", "":
				return config.WriteYAML(out, a.cfg)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a.cfg)
			}
			return fmt.Errorf("invalid format: %s (must be yaml or json)", format)
		},
	}
	show.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write a config file with all defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				name = args[0]
			}
			if err := config.GenerateDefaultConfigFile(name); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", name)
			return err
		},
	}

	paths := &cobra.Command{
		Use:   "paths",
		Short: "Show where configuration is looked up",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			a.loader.PrintConfigInfo(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(show, initCmd, paths)
	return cmd
}
