package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tturner/wiredecode/internal/app"
)

type configFlags struct {
	configPath string
	force      bool
}

func newValidateConfigCmd() *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.configPath == "" && len(args) > 0 {
				flags.configPath = args[0]
			}
			if flags.configPath == "" {
				return missingFlagError(cmd, "--config")
			}
			return app.RunValidateConfig(app.ValidateConfigOptions{
				ConfigPath: flags.configPath,
				Stdout:     cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file (required)")
	return cmd
}

func newInitConfigCmd() *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration",
		Example: `  wiredecode init-config --config wiredecode.yaml
  wiredecode init-config --config wiredecode.toml --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.configPath == "" && len(args) > 0 {
				flags.configPath = args[0]
			}
			if flags.configPath == "" {
				return missingFlagError(cmd, "--config")
			}
			if err := app.RunInitConfig(app.InitConfigOptions{ConfigPath: flags.configPath, Force: flags.force}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", flags.configPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file to create (required)")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing file")
	return cmd
}
