package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/system"
	"github.com/open-edge-platform/sdk-provisioner/internal/verifier"
)

var showProgress bool

// createInstallCommand creates the install subcommand
func createInstallCommand() *cobra.Command {
	installCmd := &cobra.Command{
		Use:   "install [flags] [DEPENDENCY...]",
		Short: "Download, install and verify SDK dependencies",
		Long: `Install provisions the named dependencies, or all of them, in dependency
order: cuda, cudnn, tensorrt, openvino. Each one is resolved, downloaded,
unpacked, installed into its root and verified. Provisioning stops at the
first dependency that cannot be acquired or unpacked.`,
		RunE:              executeInstall,
		ValidArgsFunction: dependencyCompletion,
	}

	addDependencyFlags(installCmd)
	installCmd.Flags().StringArrayVar(&candidateFlags, "candidate", nil,
		"Extra source tried after the built-in ones, as name=url (repeatable)")
	installCmd.Flags().BoolVar(&strictVerify, "strict", false,
		"Fail when installed files are missing instead of warning")
	installCmd.Flags().BoolVar(&showProgress, "progress", false,
		"Show download progress bars")
	return installCmd
}

// executeInstall handles the install command logic
func executeInstall(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	providers, err := provider.Select(args)
	if err != nil {
		return err
	}
	if showProgress {
		globalConfig.Progress = true
	}

	p, err := newProvisioner(cmd)
	if err != nil {
		return err
	}

	if host, err := system.GetHostOsInfo(); err != nil {
		log.Debugf("host detection failed: %v", err)
	} else {
		log.Debugf("host: %s %s %s", host["name"], host["version"], host["arch"])
	}

	summary, runErr := p.Run(cmd.Context(), providers)

	out := cmd.OutOrStdout()
	for _, res := range summary.Results {
		method := ""
		if res.Tree != nil {
			method = res.Tree.Method
		}
		fmt.Fprintf(out, "%s %s -> %s (%s)\n", res.Spec.Name, res.Spec.Version, res.Spec.InstallRoot, method)
		if res.Report != nil {
			if err := verifier.Render(out, res.Report); err != nil {
				return err
			}
		}
	}
	if summary.ManifestPath != "" {
		log.Infof("run %s recorded in %s", summary.RunID, summary.ManifestPath)
	}
	return runErr
}
