package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/provision"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/system"
)

// Per-dependency flags shared by the provisioning commands.
var (
	versionFlags   []string // name=version
	rootFlags      []string // name=path
	candidateFlags []string // name=url
	strictVerify   bool
)

func addDependencyFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&versionFlags, "version", nil,
		"Dependency version as name=X.Y.Z[.B], e.g. --version cudnn=8.9.7.29 (repeatable)")
	cmd.Flags().StringArrayVar(&rootFlags, "root", nil,
		"Install root as name=path, e.g. --root tensorrt=/opt/tensorrt (repeatable)")
}

// parseAssignments turns name=value flags into a map, rejecting unknown
// dependency names.
func parseAssignments(flag string, values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("invalid --%s %q, expected name=value", flag, v)
		}
		if _, known := provider.Get(name); !known {
			return nil, fmt.Errorf("invalid --%s %q: unknown dependency %q (known: %s)",
				flag, v, name, strings.Join(provider.Names(), ", "))
		}
		out[name] = value
	}
	return out, nil
}

func parseCandidates(values []string) (map[string][]sdkpackage.Candidate, error) {
	urls := make(map[string][]sdkpackage.Candidate)
	for _, v := range values {
		m, err := parseAssignments("candidate", []string{v})
		if err != nil {
			return nil, err
		}
		for name, url := range m {
			urls[name] = append(urls[name], sdkpackage.Candidate{URL: url})
		}
	}
	return urls, nil
}

// newProvisioner applies the command-line settings on top of globalConfig.
func newProvisioner(cmd *cobra.Command) (*provision.Provisioner, error) {
	versions, err := parseAssignments("version", versionFlags)
	if err != nil {
		return nil, err
	}
	roots, err := parseAssignments("root", rootFlags)
	if err != nil {
		return nil, err
	}
	candidates, err := parseCandidates(candidateFlags)
	if err != nil {
		return nil, err
	}

	return provision.New(provision.Options{
		Config:       globalConfig,
		Versions:     versions,
		InstallRoots: roots,
		Candidates:   candidates,
		Strict:       strictVerify,
		Platform:     system.HostPlatform(),
		Distro:       hostDistro(),
		Remediation:  cmd.ErrOrStderr(),
	})
}

// hostDistro returns the distribution token for archive names, or "" to let
// providers use their default.
func hostDistro() string {
	dist, err := system.DetectOsDistribution()
	if err != nil {
		logger.Logger().Debugf("cannot detect host distribution: %v", err)
		return ""
	}
	return system.DistroToken(dist, "")
}

// singleProvider returns the provider for a one-dependency command.
func singleProvider(name string) (provider.Provider, error) {
	p, ok := provider.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown dependency %q (known: %s)", name, strings.Join(provider.Names(), ", "))
	}
	return p, nil
}

// dependencyCompletion completes dependency names.
func dependencyCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, n := range provider.Names() {
		if strings.HasPrefix(n, toComplete) {
			out = append(out, n)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
