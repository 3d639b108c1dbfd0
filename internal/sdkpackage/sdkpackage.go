package sdkpackage

import "strings"

// SourceKind tells where an Attempt came from.
type SourceKind string

const (
	SourceOverride SourceKind = "override" // operator-supplied environment value
	SourceStatic   SourceKind = "static"   // templated from name/version
)

// Install methods recorded on an InstalledTree.
const (
	MethodCopy = "copy"
	MethodLink = "link"
)

// Candidate is one statically templated retrieval location.
type Candidate struct {
	URL          string // download URL, file:// URL or local path
	Format       string // archive format; empty means detect from the file name
	SignatureURL string // optional detached OpenPGP signature
	Checksum     string // optional sha256 of this file; wins over DependencySpec.Checksum
}

// Attempt is one resolved retrieval, tried in order until one succeeds.
type Attempt struct {
	Source       SourceKind
	EnvName      string // set when Source is SourceOverride
	URL          string
	Format       string
	SignatureURL string
	Checksum     string
}

// ManifestEntry is an expected relative path (or glob) in an install root,
// plus one documented alternate probed on a miss.
type ManifestEntry struct {
	Path      string `json:"path" yaml:"path"`
	Alternate string `json:"alternate,omitempty" yaml:"alternate,omitempty"`
}

// SiblingLink describes an already-installed dependency that bundles this
// dependency's artifact tree.
type SiblingLink struct {
	Name  string            // sibling dependency name, e.g. "cuda"
	Root  string            // sibling install root
	Probe string            // relative path that must exist in Root for the link to be usable
	Links map[string]string // installRoot entry -> path relative to Root
}

// DependencySpec holds everything needed to acquire, install and verify one
// SDK. It is built once per invocation and not modified afterwards.
type DependencySpec struct {
	Name          string
	Version       string
	MajorMinor    string
	Candidates    []Candidate
	OverrideEnv   string // environment variable holding a direct download URL
	Marker        string // relative path proving a directory is the package root
	NestedPattern string // path.Match pattern for a second wrapper folder
	Manifest      []ManifestEntry
	InstallRoot   string
	Sibling       *SiblingLink
	Checksum      string // sha256 for static candidates without their own digest
	Remediation   string // operator guidance printed when no source is available
	EnvVar        string // variable the downstream build reads the install root from
	Runfile       bool   // candidates are self-extracting installers, not archives
	RunfileArgs   []string
}

// FetchResult describes a successfully retrieved candidate.
type FetchResult struct {
	Path   string
	Size   int64
	URL    string
	SHA256 string
	Format string
}

// InstalledTree is the on-disk state after installation.
type InstalledTree struct {
	Root    string   `json:"root" yaml:"root"`
	Subdirs []string `json:"subdirs" yaml:"subdirs"`
	Method  string   `json:"method" yaml:"method"`
}

// EntryResult is the verification outcome for one manifest entry.
type EntryResult struct {
	Path      string `json:"path" yaml:"path"`
	Present   bool   `json:"present" yaml:"present"`
	FoundAt   string `json:"foundAt,omitempty" yaml:"foundAt,omitempty"`
	Alternate bool   `json:"alternate" yaml:"alternate"`
}

// VerificationReport maps expected paths to presence. Passed is advisory
// unless Strict is set.
type VerificationReport struct {
	Dependency string        `json:"dependency" yaml:"dependency"`
	Root       string        `json:"root" yaml:"root"`
	Entries    []EntryResult `json:"entries" yaml:"entries"`
	Passed     bool          `json:"passed" yaml:"passed"`
	Strict     bool          `json:"strict" yaml:"strict"`
}

// Missing lists the manifest paths that were not found.
func (r *VerificationReport) Missing() []string {
	var out []string
	for _, e := range r.Entries {
		if !e.Present {
			out = append(out, e.Path)
		}
	}
	return out
}

// MajorMinor returns the first two dot-separated components of version.
func MajorMinor(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

// Major returns the first dot-separated component of version.
func Major(version string) string {
	if i := strings.Index(version, "."); i >= 0 {
		return version[:i]
	}
	return version
}
