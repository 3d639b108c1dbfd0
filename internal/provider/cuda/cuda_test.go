package cuda

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/system"
)

func TestSpec_Defaults(t *testing.T) {
	spec, err := (&Cuda{}).Spec(provider.Options{Platform: system.PlatformFor("linux", "amd64")})
	gt.NoError(t, err)

	gt.Value(t, spec.Name).Equal("cuda")
	gt.Value(t, spec.Version).Equal("12.4.1")
	gt.Value(t, spec.MajorMinor).Equal("12.4")
	gt.Value(t, spec.InstallRoot).Equal("/usr/local/cuda-12.4")
	gt.Value(t, spec.OverrideEnv).Equal("")
	gt.True(t, spec.Runfile)
	gt.Number(t, len(spec.Candidates)).Equal(1)
	gt.Value(t, spec.Candidates[0].URL).Equal(
		"https://developer.download.nvidia.com/compute/cuda/12.4.1/local_installers/cuda_12.4.1_550.54.15_linux.run")
	gt.Value(t, spec.Candidates[0].Format).Equal("run")
	gt.Value(t, spec.EnvVar).Equal("CUDA_PATH")
	gt.Value(t, spec.Manifest[2].Alternate).Equal("lib64/libcudart.so.12")

	var staging bool
	for _, a := range spec.RunfileArgs {
		if strings.Contains(a, "{staging}") {
			staging = true
		}
	}
	gt.True(t, staging)
}

func TestSpec_Arm(t *testing.T) {
	spec, err := (&Cuda{}).Spec(provider.Options{Version: "12.2.2", Platform: system.PlatformFor("linux", "arm64")})
	gt.NoError(t, err)
	gt.String(t, spec.Candidates[0].URL).Contains("cuda_12.2.2_535.104.05_linux_sbsa.run")
	gt.Value(t, spec.InstallRoot).Equal("/usr/local/cuda-12.2")
}

func TestSpec_UnknownVersion(t *testing.T) {
	_, err := (&Cuda{}).Spec(provider.Options{Version: "13.0.0"})
	gt.Error(t, err)

	spec, err := (&Cuda{}).Spec(provider.Options{Version: "13.0.0", Build: "580.65.06", InstallRoot: "/opt/cuda"})
	gt.NoError(t, err)
	gt.String(t, spec.Candidates[0].URL).Contains("cuda_13.0.0_580.65.06_")
	gt.Value(t, spec.InstallRoot).Equal("/opt/cuda")
}
