package openvino

import (
	"fmt"

	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

const (
	Name           = "openvino"
	DefaultVersion = "2024.0.0"
	DefaultDistro  = "ubuntu22"
	baseURL        = "https://storage.openvinotoolkit.org/repositories/openvino/packages"
)

// builds maps a release to the build tag in its archive names.
var builds = map[string]string{
	"2023.3.0": "13775.ceeafaf64f3",
	"2024.0.0": "14509.34caeefd078",
	"2024.1.0": "15008.f4afc983258",
	"2024.2.0": "15519.5c0f38f83f6",
}

// fallbackDistros are tried after the host distribution, oldest glibc last.
var fallbackDistros = []string{"ubuntu22", "ubuntu20"}

// OpenVINO implements provider.Provider for the hardware-acceleration
// runtime.
type OpenVINO struct{}

func init() {
	provider.Register(&OpenVINO{})
}

func (p *OpenVINO) Name() string           { return Name }
func (p *OpenVINO) Order() int             { return 40 }
func (p *OpenVINO) DefaultVersion() string { return DefaultVersion }

func (p *OpenVINO) Spec(opts provider.Options) (*sdkpackage.DependencySpec, error) {
	version := opts.VersionOr(DefaultVersion)
	mm := sdkpackage.MajorMinor(version)

	build := opts.Build
	if build == "" {
		build = builds[version]
	}
	if build == "" {
		return nil, fmt.Errorf("no known build tag for openvino %s, set the build in the config", version)
	}

	archSuffix, libDir := "x86_64", "intel64"
	if opts.PlatformOrHost().Arch == "aarch64" {
		archSuffix, libDir = "arm64", "aarch64"
	}

	distros := []string{opts.Distro}
	if opts.Distro == "" {
		distros = []string{DefaultDistro}
	}
	for _, d := range fallbackDistros {
		if d != distros[0] {
			distros = append(distros, d)
		}
	}

	var candidates []sdkpackage.Candidate
	for _, d := range distros {
		name := fmt.Sprintf("l_openvino_toolkit_%s_%s.%s_%s.tgz", d, version, build, archSuffix)
		candidates = append(candidates, sdkpackage.Candidate{
			URL:    fmt.Sprintf("%s/%s/linux/%s", baseURL, mm, name),
			Format: "tar.gz",
		})
	}

	return &sdkpackage.DependencySpec{
		Name:          Name,
		Version:       version,
		MajorMinor:    mm,
		Candidates:    opts.Candidates(candidates...),
		Marker:        "runtime",
		NestedPattern: "l_openvino_toolkit_*",
		Manifest: []sdkpackage.ManifestEntry{
			{Path: "setupvars.sh"},
			{Path: "runtime/include/openvino/openvino.hpp"},
			{Path: "runtime/lib/" + libDir + "/libopenvino.so", Alternate: "runtime/lib/" + libDir + "/libopenvino.so." + version},
			{Path: "runtime/cmake/OpenVINOConfig.cmake"},
		},
		InstallRoot: opts.RootOr("/opt/intel/openvino_" + mm),
		Checksum:    opts.Checksum,
		Remediation: fmt.Sprintf(`OpenVINO %s could not be downloaded from %s.
  1. Check network access to storage.openvinotoolkit.org
  2. Or download the archive for your distribution manually and pass it with
     sdk-provisioner install openvino --candidate openvino=file:///path/to/archive.tgz`, version, baseURL),
		EnvVar: "INTEL_OPENVINO_DIR",
	}, nil
}
