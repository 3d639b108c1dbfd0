package cudnn

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/provider/cuda"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

const (
	Name           = "cudnn"
	DefaultVersion = "8.9.7.29"
	OverrideEnv    = "CUDNN_DOWNLOAD_URL"
	redistURL      = "https://developer.download.nvidia.com/compute/cudnn/redist/cudnn"
	legacyURL      = "https://developer.download.nvidia.com/compute/redist/cudnn"
)

// Cudnn implements provider.Provider for the deep-learning primitives
// library. Toolkit installs that already bundle it are linked instead of
// downloaded when no archive can be fetched.
type Cudnn struct{}

func init() {
	provider.Register(&Cudnn{})
}

func (p *Cudnn) Name() string           { return Name }
func (p *Cudnn) Order() int             { return 20 }
func (p *Cudnn) DefaultVersion() string { return DefaultVersion }

func (p *Cudnn) Spec(opts provider.Options) (*sdkpackage.DependencySpec, error) {
	version := opts.VersionOr(DefaultVersion)
	mm := sdkpackage.MajorMinor(version)
	major := sdkpackage.Major(version)

	cudaVersion := opts.Versions[cuda.Name]
	if cudaVersion == "" {
		cudaVersion = cuda.DefaultVersion
	}
	cudaMajor := sdkpackage.Major(cudaVersion)

	arch := "x86_64"
	if opts.PlatformOrHost().Arch == "aarch64" {
		arch = "sbsa"
	}
	archive := fmt.Sprintf("cudnn-linux-%s-%s_cuda%s-archive.tar.xz", arch, version, cudaMajor)

	// The legacy tree is keyed by the version without its build number.
	short := version
	if parts := strings.Split(version, "."); len(parts) > 3 {
		short = strings.Join(parts[:3], ".")
	}

	cudaRoot := opts.Installed[cuda.Name]
	if cudaRoot == "" {
		cudaRoot = "/usr/local/cuda-" + sdkpackage.MajorMinor(cudaVersion)
	}

	return &sdkpackage.DependencySpec{
		Name:       Name,
		Version:    version,
		MajorMinor: mm,
		Candidates: opts.Candidates(
			sdkpackage.Candidate{URL: fmt.Sprintf("%s/linux-%s/%s", redistURL, arch, archive), Format: "tar.xz"},
			sdkpackage.Candidate{URL: fmt.Sprintf("%s/v%s/local_installers/%s.x/%s", legacyURL, short, cudaMajor, archive), Format: "tar.xz"},
		),
		OverrideEnv:   OverrideEnv,
		Marker:        "include",
		NestedPattern: "cudnn-*",
		Manifest: []sdkpackage.ManifestEntry{
			{Path: "include/cudnn.h", Alternate: "include/cudnn_version.h"},
			{Path: "lib/libcudnn.so", Alternate: "lib/libcudnn.so." + major},
			{Path: "lib/libcudnn_ops_infer.so*", Alternate: "lib/libcudnn_ops.so*"},
		},
		InstallRoot: opts.RootOr("/usr/local/cudnn"),
		Sibling: &sdkpackage.SiblingLink{
			Name:  cuda.Name,
			Root:  cudaRoot,
			Probe: "include/cudnn.h",
			Links: map[string]string{
				"include": "include",
				"lib":     "lib64",
			},
		},
		Checksum: opts.Checksum,
		Remediation: fmt.Sprintf(`cuDNN %s is distributed under the NVIDIA developer license and could not be downloaded.
  1. Sign in at https://developer.nvidia.com/cudnn and download %s
  2. Host it somewhere the build can reach and export %s=<direct download URL>
  3. Alternatively install a CUDA toolkit that bundles cuDNN under %s and re-run`, version, archive, OverrideEnv, cudaRoot),
		EnvVar: "CUDNN_PATH",
	}, nil
}
