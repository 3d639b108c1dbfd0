package tensorrt

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/provider/cuda"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

const (
	Name           = "tensorrt"
	DefaultVersion = "8.6.1.6"
	OverrideEnv    = "TENSORRT_DOWNLOAD_URL"
	baseURL        = "https://developer.nvidia.com/downloads/compute/machine-learning/tensorrt/secure"
)

// cudaBuilds maps a CUDA major version to the toolkit build TensorRT
// archives are published against.
var cudaBuilds = map[string]string{
	"11": "11.8",
	"12": "12.0",
}

// TensorRT implements provider.Provider for the inference-acceleration
// library.
type TensorRT struct{}

func init() {
	provider.Register(&TensorRT{})
}

func (p *TensorRT) Name() string           { return Name }
func (p *TensorRT) Order() int             { return 30 }
func (p *TensorRT) DefaultVersion() string { return DefaultVersion }

func (p *TensorRT) Spec(opts provider.Options) (*sdkpackage.DependencySpec, error) {
	version := opts.VersionOr(DefaultVersion)
	mm := sdkpackage.MajorMinor(version)
	major := sdkpackage.Major(version)

	cudaVersion := opts.Versions[cuda.Name]
	if cudaVersion == "" {
		cudaVersion = cuda.DefaultVersion
	}
	cudaBuild, ok := cudaBuilds[sdkpackage.Major(cudaVersion)]
	if !ok {
		return nil, fmt.Errorf("tensorrt %s has no archive for cuda %s", version, cudaVersion)
	}

	arch := opts.PlatformOrHost().Arch
	tar := fmt.Sprintf("TensorRT-%s.Linux.%s-gnu.cuda-%s.tar.gz", version, arch, cudaBuild)

	return &sdkpackage.DependencySpec{
		Name:       Name,
		Version:    version,
		MajorMinor: mm,
		Candidates: opts.Candidates(
			sdkpackage.Candidate{URL: fmt.Sprintf("%s/%s/tars/%s", baseURL, releaseDir(version), tar), Format: "tar.gz"},
		),
		OverrideEnv:   OverrideEnv,
		Marker:        "include",
		NestedPattern: "TensorRT-*",
		Manifest: []sdkpackage.ManifestEntry{
			{Path: "include/NvInfer.h"},
			{Path: "include/NvOnnxParser.h"},
			{Path: "lib/libnvinfer.so", Alternate: "lib/libnvinfer.so." + major},
			{Path: "lib/libnvonnxparser.so", Alternate: "lib/libnvonnxparser.so." + major},
			{Path: "bin/trtexec"},
		},
		InstallRoot: opts.RootOr("/usr/local/tensorrt"),
		Checksum:    opts.Checksum,
		Remediation: fmt.Sprintf(`TensorRT %s requires an NVIDIA developer login and could not be downloaded.
  1. Sign in at https://developer.nvidia.com/tensorrt and download %s
  2. Host it somewhere the build can reach and export %s=<direct download URL>`, version, tar, OverrideEnv),
		EnvVar: "TENSORRT_ROOT",
	}, nil
}

// releaseDir drops the build number: 8.6.1.6 is published under 8.6.1.
func releaseDir(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ".")
}
