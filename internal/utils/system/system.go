package system

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/shell"
)

var OsReleaseFile = "/etc/os-release"

// OsDistribution contains information about the host Linux distribution
type OsDistribution struct {
	Name    string   // e.g. "Ubuntu"
	Version string   // e.g. "22.04"
	ID      string   // e.g. "ubuntu"
	IDLike  []string // e.g. ["debian"]
}

func GetHostOsInfo() (map[string]string, error) {
	log := logger.Logger()
	var hostOsInfo = map[string]string{
		"name":    "",
		"version": "",
		"arch":    "",
	}

	output, err := shell.ExecCmd(context.Background(), "uname -m", false, nil)
	if err != nil {
		log.Errorf("Failed to get host architecture: %v", err)
		return hostOsInfo, fmt.Errorf("failed to get host architecture: %w", err)
	}
	hostOsInfo["arch"] = strings.TrimSpace(output)

	dist, err := DetectOsDistribution()
	if err == nil {
		hostOsInfo["name"] = dist.Name
		hostOsInfo["version"] = dist.Version
		log.Infof("Detected OS info: %s %s %s", hostOsInfo["name"], hostOsInfo["version"], hostOsInfo["arch"])
		return hostOsInfo, nil
	}

	output, err = shell.ExecCmd(context.Background(), "lsb_release -si", false, nil)
	if err != nil {
		log.Errorf("Failed to get host OS name: %v", err)
		return hostOsInfo, fmt.Errorf("failed to get host OS name: %w", err)
	}
	if strings.TrimSpace(output) == "" {
		return hostOsInfo, fmt.Errorf("failed to detect host OS info")
	}
	hostOsInfo["name"] = strings.TrimSpace(output)

	output, err = shell.ExecCmd(context.Background(), "lsb_release -sr", false, nil)
	if err != nil {
		log.Errorf("Failed to get host OS version: %v", err)
		return hostOsInfo, fmt.Errorf("failed to get host OS version: %w", err)
	}
	hostOsInfo["version"] = strings.TrimSpace(output)
	log.Infof("Detected OS info: %s %s %s", hostOsInfo["name"], hostOsInfo["version"], hostOsInfo["arch"])
	return hostOsInfo, nil
}

// DetectOsDistribution parses OsReleaseFile.
func DetectOsDistribution() (*OsDistribution, error) {
	file, err := os.Open(OsReleaseFile)
	if err != nil {
		return nil, fmt.Errorf("file %s not found: %w", OsReleaseFile, err)
	}
	defer file.Close()

	osInfo := &OsDistribution{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"")

		switch key {
		case "NAME":
			osInfo.Name = value
		case "VERSION_ID":
			osInfo.Version = value
		case "ID":
			osInfo.ID = strings.ToLower(value)
		case "ID_LIKE":
			osInfo.IDLike = strings.Fields(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", OsReleaseFile, err)
	}
	return osInfo, nil
}

// DistroToken returns the short distribution tag vendors embed in archive
// names, e.g. "ubuntu22" or "rhel8". Unknown distributions fall back to
// the given default.
func DistroToken(dist *OsDistribution, fallback string) string {
	if dist == nil {
		return fallback
	}
	major := dist.Version
	if i := strings.Index(major, "."); i >= 0 {
		major = major[:i]
	}

	ids := append([]string{dist.ID}, dist.IDLike...)
	for _, id := range ids {
		switch strings.ToLower(id) {
		case "ubuntu":
			if major == "" {
				return fallback
			}
			return "ubuntu" + major
		case "rhel", "centos", "rocky", "almalinux":
			if major == "" {
				return fallback
			}
			return "rhel" + major
		case "debian":
			if major == "" {
				return fallback
			}
			return "debian" + major
		}
	}
	return fallback
}

// Platform identifies the host the way vendor download paths do.
type Platform struct {
	OS   string // "linux" or "windows"
	Arch string // "x86_64" or "sbsa"/"aarch64"
}

// HostPlatform maps the Go runtime platform to vendor naming.
func HostPlatform() Platform {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

func PlatformFor(goos, goarch string) Platform {
	p := Platform{OS: goos}
	switch goarch {
	case "amd64":
		p.Arch = "x86_64"
	case "arm64":
		p.Arch = "aarch64"
	default:
		p.Arch = goarch
	}
	return p
}
