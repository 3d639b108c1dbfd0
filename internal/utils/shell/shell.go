package shell

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
)

// GetOSEnvirons returns the system environment variables
func GetOSEnvirons() map[string]string {
	environ := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			environ[parts[0]] = parts[1]
		}
	}
	return environ
}

// GetOSProxyEnvirons retrieves HTTP and HTTPS proxy environment variables
func GetOSProxyEnvirons() map[string]string {
	proxyEnv := make(map[string]string)
	for key, value := range GetOSEnvirons() {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "http_proxy") ||
			strings.Contains(lower, "https_proxy") ||
			lower == "no_proxy" {
			proxyEnv[key] = value
		}
	}
	return proxyEnv
}

// getShell returns the preferred shell, falling back to /bin/sh if bash is not available
func getShell() string {
	shells := []string{"/bin/bash", "/usr/bin/bash", "/bin/sh"}
	for _, shell := range shells {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh"
}

// Quote single-quotes s for the shell unless it is already a safe word.
func Quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// IsCommandExist checks if a command exists on the host
func IsCommandExist(cmd string) bool {
	output, _ := exec.Command(getShell(), "-c", "command -v "+cmd).Output()
	return len(bytes.TrimSpace(output)) != 0
}

// GetFullCmdStr prepares a command string with sudo and environment prefixes.
// Proxy variables are forwarded explicitly because sudo drops them.
func GetFullCmdStr(cmdStr string, sudo bool, envVal []string) string {
	log := logger.Logger()

	envValStr := ""
	for _, env := range envVal {
		envValStr += env + " "
	}

	if !sudo {
		log.Debugf("Exec: [%s]", cmdStr)
		return envValStr + cmdStr
	}

	proxyEnv := GetOSProxyEnvirons()
	keys := make([]string, 0, len(proxyEnv))
	for key := range proxyEnv {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		envValStr += key + "=" + proxyEnv[key] + " "
	}

	log.Debugf("Exec: [sudo %s]", cmdStr)
	return "sudo " + envValStr + cmdStr
}

func execCmd(ctx context.Context, cmdStr string, sudo bool, envVal []string) (string, error) {
	log := logger.Logger()
	fullCmdStr := GetFullCmdStr(cmdStr, sudo, envVal)

	cmd := exec.CommandContext(ctx, getShell(), "-c", fullCmdStr)
	output, err := cmd.CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Info(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	if outputStr != "" {
		log.Debug(outputStr)
	}
	return outputStr, nil
}

func execCmdWithStream(ctx context.Context, cmdStr string, sudo bool, envVal []string) (string, error) {
	log := logger.Logger()
	fullCmdStr := GetFullCmdStr(cmdStr, sudo, envVal)

	cmd := exec.CommandContext(ctx, getShell(), "-c", fullCmdStr)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", fullCmdStr, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", fullCmdStr, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", fullCmdStr, err)
	}

	var (
		wg  sync.WaitGroup
		out strings.Builder
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if str := scanner.Text(); str != "" {
				out.WriteString(str)
				out.WriteByte('\n')
				log.Info(str)
			}
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if str := scanner.Text(); str != "" {
				log.Warn(str)
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return out.String(), fmt.Errorf("failed to wait for command %s: %w", fullCmdStr, err)
	}
	return out.String(), nil
}

// ExecCmd executes a command and returns its combined output. Tests replace
// it to avoid touching the host.
var ExecCmd = execCmd

// ExecCmdWithStream executes a command, logging its output line by line.
var ExecCmdWithStream = execCmdWithStream
