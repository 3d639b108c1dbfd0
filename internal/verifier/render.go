package verifier

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"

	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

var (
	okMark      = color.New(color.FgGreen).SprintFunc()
	missingMark = color.New(color.FgRed, color.Bold).SprintFunc()
	altMark     = color.New(color.FgYellow).SprintFunc()
)

// Render writes a per-path status listing for report.
func Render(w io.Writer, report *sdkpackage.VerificationReport) error {
	if _, err := fmt.Fprintf(w, "%s (%s)\n", report.Dependency, report.Root); err != nil {
		return err
	}
	for _, e := range report.Entries {
		var line string
		switch {
		case !e.Present:
			line = fmt.Sprintf("  %s %s", missingMark("MISSING"), e.Path)
		case e.Alternate:
			line = fmt.Sprintf("  %s %s (found %s)", altMark("ok     "), e.Path, e.FoundAt)
		case e.FoundAt != e.Path:
			line = fmt.Sprintf("  %s %s (%s)", okMark("ok     "), e.Path, e.FoundAt)
		default:
			line = fmt.Sprintf("  %s %s", okMark("ok     "), e.Path)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	status := okMark("passed")
	if !report.Passed {
		status = missingMark("incomplete")
		if !report.Strict {
			status += " (advisory)"
		}
	}
	_, err := fmt.Fprintf(w, "verification %s: %d/%d present\n",
		status, len(report.Entries)-len(report.Missing()), len(report.Entries))
	return err
}

// RenderJSON writes report as indented JSON.
func RenderJSON(w io.Writer, report *sdkpackage.VerificationReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return goerr.Wrap(err, "failed to encode verification report")
	}
	return nil
}
