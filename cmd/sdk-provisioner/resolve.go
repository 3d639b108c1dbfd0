package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/sdk-provisioner/internal/resolver"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
)

// createResolveCommand creates the resolve subcommand
func createResolveCommand() *cobra.Command {
	resolveCmd := &cobra.Command{
		Use:   "resolve [flags] DEPENDENCY",
		Short: "Show the sources a dependency would be fetched from",
		Long: `Resolve prints, in order, the sources install would try for a dependency
without downloading anything. An override variable, when set, is the only
source shown.`,
		Args:              cobra.ExactArgs(1),
		RunE:              executeResolve,
		ValidArgsFunction: dependencyCompletion,
	}

	addDependencyFlags(resolveCmd)
	resolveCmd.Flags().StringArrayVar(&candidateFlags, "candidate", nil,
		"Extra source tried after the built-in ones, as name=url (repeatable)")
	return resolveCmd
}

// executeResolve handles the resolve command logic
func executeResolve(cmd *cobra.Command, args []string) error {
	prov, err := singleProvider(args[0])
	if err != nil {
		return err
	}
	p, err := newProvisioner(cmd)
	if err != nil {
		return err
	}
	spec, err := p.BuildSpec(prov)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (major.minor %s)\n", spec.Name, spec.Version, spec.MajorMinor)
	fmt.Fprintf(out, "install root: %s\n", spec.InstallRoot)
	if spec.OverrideEnv != "" {
		fmt.Fprintf(out, "override:     %s\n", spec.OverrideEnv)
	}

	attempts := resolver.Resolve(spec, resolver.Env)
	if len(attempts) == 0 {
		fmt.Fprintln(out, "no sources")
		return nil
	}
	for i, a := range attempts {
		fmt.Fprintf(out, "%d. [%s] %s%s\n", i+1, a.Source, logger.RedactURL(a.URL), describeAttempt(a))
	}
	if spec.Sibling != nil {
		fmt.Fprintf(out, "fallback: link from %s at %s\n", spec.Sibling.Name, spec.Sibling.Root)
	}
	return nil
}

func describeAttempt(a sdkpackage.Attempt) string {
	switch {
	case a.Source == sdkpackage.SourceOverride:
		return " (from " + a.EnvName + ")"
	case a.Format != "":
		return " (" + a.Format + ")"
	default:
		return ""
	}
}
