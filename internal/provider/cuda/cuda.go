package cuda

import (
	"fmt"

	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

const (
	Name           = "cuda"
	DefaultVersion = "12.4.1"
	baseURL        = "https://developer.download.nvidia.com/compute/cuda"
)

// driverBundles maps toolkit versions to the driver version embedded in the
// runfile name.
var driverBundles = map[string]string{
	"11.8.0": "520.61.05",
	"12.1.1": "530.30.02",
	"12.2.2": "535.104.05",
	"12.3.2": "545.23.08",
	"12.4.1": "550.54.15",
	"12.6.3": "560.35.05",
}

// Cuda implements provider.Provider for the GPU compute toolkit.
type Cuda struct{}

func init() {
	provider.Register(&Cuda{})
}

func (p *Cuda) Name() string           { return Name }
func (p *Cuda) Order() int             { return 10 }
func (p *Cuda) DefaultVersion() string { return DefaultVersion }

// Spec templates the silent-install runfile for the requested version.
func (p *Cuda) Spec(opts provider.Options) (*sdkpackage.DependencySpec, error) {
	version := opts.VersionOr(DefaultVersion)
	mm := sdkpackage.MajorMinor(version)
	major := sdkpackage.Major(version)

	driver := opts.Build
	if driver == "" {
		driver = driverBundles[version]
	}
	if driver == "" {
		return nil, fmt.Errorf("no known driver bundle for cuda %s, set the build in the config", version)
	}

	suffix := "linux"
	if opts.PlatformOrHost().Arch == "aarch64" {
		suffix = "linux_sbsa"
	}
	runfile := fmt.Sprintf("cuda_%s_%s_%s.run", version, driver, suffix)

	return &sdkpackage.DependencySpec{
		Name:       Name,
		Version:    version,
		MajorMinor: mm,
		Candidates: opts.Candidates(
			sdkpackage.Candidate{URL: fmt.Sprintf("%s/%s/local_installers/%s", baseURL, version, runfile), Format: "run"},
		),
		Marker: "include",
		Manifest: []sdkpackage.ManifestEntry{
			{Path: "bin/nvcc"},
			{Path: "include/cuda_runtime.h"},
			{Path: "lib64/libcudart.so", Alternate: "lib64/libcudart.so." + major},
			{Path: "lib64/libcublas.so", Alternate: "lib64/libcublas.so." + major},
		},
		InstallRoot: opts.RootOr("/usr/local/cuda-" + mm),
		Checksum:    opts.Checksum,
		Remediation: fmt.Sprintf(`The CUDA %s toolkit installer could not be downloaded.
  1. Download %s from %s/%s/local_installers/
  2. Re-run with a candidate pointing at the local copy, for example
     sdk-provisioner install cuda --candidate cuda=file:///path/to/%s`, version, runfile, baseURL, version, runfile),
		EnvVar:  "CUDA_PATH",
		Runfile: true,
		RunfileArgs: []string{
			"--silent",
			"--toolkit",
			"--toolkitpath={staging}",
			"--no-man-page",
			"--override",
		},
	}, nil
}
