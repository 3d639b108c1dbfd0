package installer

import (
	"context"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/open-edge-platform/sdk-provisioner/internal/utils/shell"
)

// RunSilent executes a vendor self-extracting installer in unattended mode
// so that it unpacks into stagingDir. Each arg may reference {staging}.
func RunSilent(ctx context.Context, runfile, stagingDir string, args []string) error {
	if !shell.IsCommandExist("tar") {
		return goerr.New("self-extracting installers need tar on the host", goerr.V("runfile", runfile))
	}
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return goerr.Wrap(err, "failed to create staging directory", goerr.V("dir", stagingDir))
	}
	if err := os.Chmod(runfile, 0755); err != nil {
		return goerr.Wrap(err, "failed to mark installer executable", goerr.V("runfile", runfile))
	}

	// The installer unpacks itself under TMPDIR; keep that out of the staging tree.
	tmpDir := stagingDir + "-tmp"
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return goerr.Wrap(err, "failed to create installer temp directory", goerr.V("dir", tmpDir))
	}
	defer os.RemoveAll(tmpDir)

	parts := []string{"sh", shell.Quote(runfile)}
	for _, a := range args {
		parts = append(parts, shell.Quote(strings.ReplaceAll(a, "{staging}", stagingDir)))
	}

	if _, err := shell.ExecCmdWithStream(ctx, strings.Join(parts, " "), false, []string{"TMPDIR=" + shell.Quote(tmpDir)}); err != nil {
		return goerr.Wrap(err, "silent installer failed", goerr.V("runfile", runfile))
	}
	return nil
}
