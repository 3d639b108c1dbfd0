package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/sdk-provisioner/internal/config"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
)

// createValidateCommand creates the validate subcommand
func createValidateCommand() *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate [flags] CONFIG_FILE",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file against the schema without provisioning
anything. YAML, TOML and JSON files are accepted, chosen by extension.`,
		Args: cobra.ExactArgs(1),
		RunE: executeValidate,
	}

	return validateCmd
}

// executeValidate handles the validate command logic
func executeValidate(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	configPath := args[0]

	log.Infof("validating config file: %s", configPath)

	if err := config.ValidateFile(configPath); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	cfg, err := config.LoadGlobalConfig(configPath)
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", configPath)
	if verbose {
		for name, dep := range cfg.Dependencies {
			log.Infof("  %s: version=%q root=%q extra candidates=%d",
				name, dep.Version, dep.InstallRoot, len(dep.Candidates))
		}
	}
	return nil
}
