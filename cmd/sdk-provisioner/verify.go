package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/sdk-provisioner/internal/verifier"
)

var verifyFormat string

// createVerifyCommand creates the verify subcommand
func createVerifyCommand() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify [flags] DEPENDENCY",
		Short: "Check an existing install root for the expected files",
		Long: `Verify checks an already installed dependency against its manifest of
headers and libraries without downloading or installing anything. Missing
files are reported; with --strict they also fail the command.`,
		Args:              cobra.ExactArgs(1),
		RunE:              executeVerify,
		ValidArgsFunction: dependencyCompletion,
	}

	addDependencyFlags(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyFormat, "format", "text",
		"Output format: text or json")
	verifyCmd.Flags().BoolVar(&strictVerify, "strict", false,
		"Exit non-zero when files are missing")
	return verifyCmd
}

func resolveFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "", "text":
		return "text", nil
	case "json":
		return "json", nil
	default:
		return "", fmt.Errorf("invalid --format %q (expected text|json)", format)
	}
}

// executeVerify handles the verify command logic
func executeVerify(cmd *cobra.Command, args []string) error {
	format, err := resolveFormat(verifyFormat)
	if err != nil {
		return err
	}
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

	info, err := os.Stat(spec.InstallRoot)
	if err != nil {
		return fmt.Errorf("%s is not installed at %s: %w", spec.Name, spec.InstallRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s install root %s is not a directory", spec.Name, spec.InstallRoot)
	}

	report, verifyErr := verifier.Verify(os.DirFS(spec.InstallRoot), spec.Manifest, verifier.Options{
		Dependency: spec.Name,
		Root:       spec.InstallRoot,
		Strict:     p.Strict(),
	})
	if report == nil {
		return verifyErr
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		err = verifier.RenderJSON(out, report)
	} else {
		err = verifier.Render(out, report)
	}
	if err != nil {
		return err
	}
	return verifyErr
}
