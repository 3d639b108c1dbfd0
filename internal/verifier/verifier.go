// Package verifier checks an install root against the files a dependency is
// expected to provide.
package verifier

import (
	"errors"
	"io/fs"
	"path"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
)

// Options selects how gaps are reported.
type Options struct {
	Dependency string
	Root       string // recorded in the report only; fsys is what gets probed
	Strict     bool
}

// Verify probes every manifest entry in fsys. An entry may be a plain
// relative path or a glob. When it is missing, its single alternate is
// probed before the entry is recorded absent.
//
// In permissive mode the report is returned with a nil error whatever it
// contains. In strict mode a gap yields an error matching
// sdkpackage.ErrVerificationGap alongside the report.
func Verify(fsys fs.FS, manifest []sdkpackage.ManifestEntry, opts Options) (*sdkpackage.VerificationReport, error) {
	log := logger.Logger()

	report := &sdkpackage.VerificationReport{
		Dependency: opts.Dependency,
		Root:       opts.Root,
		Entries:    make([]sdkpackage.EntryResult, 0, len(manifest)),
		Passed:     true,
		Strict:     opts.Strict,
	}

	for _, entry := range manifest {
		res := sdkpackage.EntryResult{Path: entry.Path}

		found, err := probe(fsys, entry.Path)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid manifest entry", goerr.V("path", entry.Path))
		}
		if found == "" && entry.Alternate != "" {
			found, err = probe(fsys, entry.Alternate)
			if err != nil {
				return nil, goerr.Wrap(err, "invalid manifest alternate", goerr.V("path", entry.Alternate))
			}
			res.Alternate = found != ""
		}

		if found != "" {
			res.Present = true
			res.FoundAt = found
			log.Debugf("[%s] found %s at %s", opts.Dependency, entry.Path, found)
		} else {
			report.Passed = false
			log.Debugf("[%s] missing %s", opts.Dependency, entry.Path)
		}
		report.Entries = append(report.Entries, res)
	}

	if report.Passed {
		return report, nil
	}

	missing := report.Missing()
	if opts.Strict {
		return report, goerr.Wrap(sdkpackage.ErrVerificationGap, "expected artifacts missing",
			goerr.V("dependency", opts.Dependency),
			goerr.V("missing", strings.Join(missing, ",")))
	}
	log.Warnf("[%s] %d expected artifact(s) missing under %s: %s",
		opts.Dependency, len(missing), opts.Root, strings.Join(missing, ", "))
	return report, nil
}

// probe returns the first path in fsys matching name, or "" when nothing
// matches.
func probe(fsys fs.FS, name string) (string, error) {
	name = path.Clean(strings.TrimPrefix(name, "/"))

	if !hasMeta(name) {
		if _, err := fs.Stat(fsys, name); err != nil {
			if errors.Is(err, fs.ErrInvalid) {
				return "", err
			}
			return "", nil
		}
		return name, nil
	}

	matches, err := fs.Glob(fsys, name)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0], nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, `*?[\`)
}
