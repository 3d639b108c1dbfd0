package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/shell"
)

var (
	githubEnv     bool
	installedOnly bool
)

// createEnvCommand creates the env subcommand
func createEnvCommand() *cobra.Command {
	envCmd := &cobra.Command{
		Use:   "env [flags] [DEPENDENCY...]",
		Short: "Print install-root variables for the downstream build",
		Long: `Env prints one export line per dependency naming its install root, e.g.
export CUDA_PATH=/usr/local/cuda-12.4. With --github-env the assignments are
appended to the file named by $GITHUB_ENV instead.`,
		RunE:              executeEnv,
		ValidArgsFunction: dependencyCompletion,
	}

	addDependencyFlags(envCmd)
	envCmd.Flags().BoolVar(&githubEnv, "github-env", false,
		"Append VAR=root lines to the file named by $GITHUB_ENV")
	envCmd.Flags().BoolVar(&installedOnly, "installed-only", false,
		"Skip dependencies whose install root does not exist")
	return envCmd
}

// executeEnv handles the env command logic
func executeEnv(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	providers, err := provider.Select(args)
	if err != nil {
		return err
	}
	p, err := newProvisioner(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	format := "export %s=%s\n"
	quote := shell.Quote
	if githubEnv {
		path := os.Getenv("GITHUB_ENV")
		if path == "" {
			return fmt.Errorf("--github-env given but GITHUB_ENV is not set")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening GITHUB_ENV file: %w", err)
		}
		defer f.Close()
		out = f
		format = "%s=%s\n"
		quote = func(s string) string { return s }
	}

	for _, prov := range providers {
		spec, err := p.BuildSpec(prov)
		if err != nil {
			return err
		}
		if spec.EnvVar == "" {
			continue
		}
		if installedOnly {
			if _, err := os.Stat(spec.InstallRoot); err != nil {
				log.Debugf("skipping %s, %s not present", spec.Name, spec.InstallRoot)
				continue
			}
		}
		if err := writeEnvLine(out, format, spec.EnvVar, quote(spec.InstallRoot)); err != nil {
			return err
		}
	}
	return nil
}

func writeEnvLine(w io.Writer, format, name, value string) error {
	_, err := fmt.Fprintf(w, format, name, value)
	return err
}
