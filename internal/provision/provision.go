// Package provision drives one dependency at a time through resolve, fetch,
// unpack, normalize, install and verify.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"

	"github.com/open-edge-platform/sdk-provisioner/internal/archive"
	"github.com/open-edge-platform/sdk-provisioner/internal/config"
	"github.com/open-edge-platform/sdk-provisioner/internal/installer"
	"github.com/open-edge-platform/sdk-provisioner/internal/pkgfetcher"
	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/resolver"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/system"
	"github.com/open-edge-platform/sdk-provisioner/internal/verifier"
)

// minFreeBytes is roughly what the CUDA runfile needs to unpack.
const minFreeBytes = 10 << 30

// Fetcher retrieves the first working attempt. *pkgfetcher.Fetcher
// satisfies it.
type Fetcher interface {
	FetchFirst(ctx context.Context, dep *sdkpackage.DependencySpec, attempts []sdkpackage.Attempt, destDir string) (*sdkpackage.FetchResult, error)
}

// Options configures a Provisioner. Only Config is required.
type Options struct {
	Config *config.GlobalConfig

	// Command-line settings; they win over Config.
	Versions     map[string]string
	InstallRoots map[string]string
	Candidates   map[string][]sdkpackage.Candidate
	Strict       bool

	Lookup      resolver.LookupFunc
	Fetcher     Fetcher
	Platform    system.Platform
	Distro      string
	Remediation io.Writer // operator guidance on unavailable sources, os.Stderr when nil
}

// Result is the outcome of provisioning one dependency.
type Result struct {
	Spec    *sdkpackage.DependencySpec
	Attempt *sdkpackage.Attempt // nil when the tree was linked from a sibling
	Fetch   *sdkpackage.FetchResult
	Tree    *sdkpackage.InstalledTree
	Report  *sdkpackage.VerificationReport
}

// Provisioner installs dependencies sequentially. Roots installed earlier in
// a run are visible to later dependencies.
type Provisioner struct {
	cfg         *config.GlobalConfig
	helpers     *config.ConfigHelpers
	opts        Options
	fetcher     Fetcher
	remediation io.Writer
	installed   map[string]string
}

// New builds a Provisioner, creating the default fetcher from the config
// when none is given.
func New(opts Options) (*Provisioner, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultGlobalConfig()
	}
	helpers := config.NewConfigHelpers(cfg)

	fetcher := opts.Fetcher
	if fetcher == nil {
		timeout, err := helpers.HTTPTimeout()
		if err != nil {
			return nil, err
		}
		fetcher = pkgfetcher.New(pkgfetcher.Options{
			Timeout:  timeout,
			Progress: cfg.Progress,
			Keyring:  cfg.Keyring,
		})
	}

	if opts.Platform.Arch == "" {
		opts.Platform = system.HostPlatform()
	}
	if opts.Lookup == nil {
		opts.Lookup = resolver.Env
	}

	remediation := opts.Remediation
	if remediation == nil {
		remediation = os.Stderr
	}

	p := &Provisioner{
		cfg:         cfg,
		helpers:     helpers,
		opts:        opts,
		fetcher:     fetcher,
		remediation: remediation,
		installed:   map[string]string{},
	}
	return p, nil
}

// Strict reports whether verification gaps are fatal.
func (p *Provisioner) Strict() bool {
	return p.opts.Strict || p.cfg.Verify.Strict
}

// BuildSpec asks prov for its DependencySpec with config and command-line
// settings applied.
func (p *Provisioner) BuildSpec(prov provider.Provider) (*sdkpackage.DependencySpec, error) {
	name := prov.Name()
	depCfg := p.cfg.Dependency(name)

	versions := map[string]string{}
	roots := map[string]string{}
	for n, d := range p.cfg.Dependencies {
		if d.Version != "" {
			versions[n] = d.Version
		}
		if d.InstallRoot != "" {
			roots[n] = d.InstallRoot
		}
	}
	for n, v := range p.opts.Versions {
		versions[n] = v
	}
	for n, r := range p.opts.InstallRoots {
		roots[n] = r
	}
	for n, r := range p.installed {
		roots[n] = r
	}

	var extra []sdkpackage.Candidate
	extra = append(extra, p.opts.Candidates[name]...)
	extra = append(extra, depCfg.ExtraCandidates()...)

	spec, err := prov.Spec(provider.Options{
		Version:         versions[name],
		Build:           depCfg.Build,
		InstallRoot:     roots[name],
		Checksum:        depCfg.Checksum,
		ExtraCandidates: extra,
		Platform:        p.opts.Platform,
		Distro:          p.opts.Distro,
		Installed:       roots,
		Versions:        versions,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build dependency spec", goerr.V("dependency", name))
	}
	return spec, nil
}

// Provision acquires, installs and verifies dep. The returned Result is
// non-nil whenever installation happened, even if strict verification then
// failed.
func (p *Provisioner) Provision(ctx context.Context, dep *sdkpackage.DependencySpec) (*Result, error) {
	log := logger.Logger()
	log.Infof("[%s] provisioning %s into %s", dep.Name, dep.Version, dep.InstallRoot)

	tempDir, err := p.helpers.CreateTempDir()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create temp directory")
	}
	p.checkFreeSpace(tempDir)

	work, err := os.MkdirTemp(tempDir, "sdkprov-"+dep.Name+"-*")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create work directory", goerr.V("dir", tempDir))
	}
	defer func() {
		if err := os.RemoveAll(work); err != nil {
			log.Warnf("[%s] failed to remove work directory %s: %v", dep.Name, work, err)
		}
	}()

	res := &Result{Spec: dep}

	attempts := resolver.Resolve(dep, p.opts.Lookup)
	var fetched *sdkpackage.FetchResult
	if len(attempts) == 0 {
		err = goerr.Wrap(sdkpackage.ErrSourceUnavailable, "no candidate sources", goerr.V("dependency", dep.Name))
	} else {
		fetched, err = p.fetcher.FetchFirst(ctx, dep, attempts, filepath.Join(work, "download"))
	}

	switch {
	case err == nil:
		res.Fetch = fetched
		res.Attempt = attemptFor(attempts, fetched.URL)
		if res.Tree, err = p.unpackAndInstall(ctx, dep, fetched, work); err != nil {
			return nil, err
		}
		logger.AddFetchedSource(fmt.Sprintf("%s %s %s %s sha256:%s",
			dep.Name, dep.Version, res.Attempt.Source, logger.RedactURL(fetched.URL), fetched.SHA256))

	case errors.Is(err, sdkpackage.ErrSourceUnavailable):
		tree, ok, linkErr := p.linkSibling(dep)
		if linkErr != nil {
			return nil, linkErr
		}
		if !ok {
			p.printRemediation(dep)
			return nil, err
		}
		log.Warnf("[%s] no source could be fetched, linked the copy bundled with %s", dep.Name, dep.Sibling.Name)
		res.Tree = tree
		logger.AddFetchedSource(fmt.Sprintf("%s %s link %s", dep.Name, dep.Version, dep.Sibling.Root))

	default:
		return nil, err
	}

	p.installed[dep.Name] = dep.InstallRoot

	res.Report, err = verifier.Verify(os.DirFS(dep.InstallRoot), dep.Manifest, verifier.Options{
		Dependency: dep.Name,
		Root:       dep.InstallRoot,
		Strict:     p.Strict(),
	})
	if err != nil {
		return res, err
	}

	log.Infof("[%s] installed into %s (%s)", dep.Name, res.Tree.Root, res.Tree.Method)
	return res, nil
}

// unpackAndInstall turns a fetched archive or runfile into an installed
// tree. Nothing is copied when the package root cannot be located.
func (p *Provisioner) unpackAndInstall(ctx context.Context, dep *sdkpackage.DependencySpec, fetched *sdkpackage.FetchResult, work string) (*sdkpackage.InstalledTree, error) {
	log := logger.Logger()
	stage := filepath.Join(work, "stage")

	format := fetched.Format
	if format == "" {
		detected, err := archive.DetectFormat(fetched.Path)
		switch {
		case err == nil:
			format = detected
		case dep.Runfile:
			format = archive.FormatRun
		default:
			return nil, goerr.Wrap(err, "cannot tell archive format", goerr.V("dependency", dep.Name))
		}
	}

	if format == archive.FormatRun {
		if err := installer.RunSilent(ctx, fetched.Path, stage, dep.RunfileArgs); err != nil {
			return nil, err
		}
	} else {
		n, err := archive.Extract(fetched.Path, stage, format)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to extract archive", goerr.V("dependency", dep.Name))
		}
		log.Debugf("[%s] extracted %d files", dep.Name, n)
	}

	// The archive is no longer needed; free the space before copying.
	if err := os.Remove(fetched.Path); err != nil {
		log.Debugf("[%s] could not remove %s: %v", dep.Name, fetched.Path, err)
	}

	rel, err := archive.Normalize(os.DirFS(stage), dep.Marker, dep.NestedPattern)
	if err != nil {
		return nil, goerr.Wrap(err, "unexpected archive layout", goerr.V("dependency", dep.Name))
	}
	log.Debugf("[%s] package root is %s", dep.Name, rel)

	return installer.Install(filepath.Join(stage, filepath.FromSlash(rel)), dep.InstallRoot)
}

// linkSibling installs dep by linking a sibling that bundles it. ok is false
// when there is no usable sibling.
func (p *Provisioner) linkSibling(dep *sdkpackage.DependencySpec) (*sdkpackage.InstalledTree, bool, error) {
	sib := dep.Sibling
	if sib == nil || sib.Root == "" {
		return nil, false, nil
	}
	if _, err := os.Stat(filepath.Join(sib.Root, filepath.FromSlash(sib.Probe))); err != nil {
		logger.Logger().Debugf("[%s] sibling %s not usable: %v", dep.Name, sib.Root, err)
		return nil, false, nil
	}
	tree, err := installer.Link(sib.Root, dep.InstallRoot, sib.Links)
	if err != nil {
		return nil, false, err
	}
	return tree, true, nil
}

func (p *Provisioner) printRemediation(dep *sdkpackage.DependencySpec) {
	fmt.Fprintf(p.remediation, "\n%s %s: no download source is available.\n", dep.Name, dep.Version)
	if dep.Remediation != "" {
		fmt.Fprintln(p.remediation, dep.Remediation)
	}
	fmt.Fprintln(p.remediation)
}

func (p *Provisioner) checkFreeSpace(dir string) {
	free, err := system.AvailableBytes(dir)
	if err != nil {
		logger.Logger().Debugf("free space check skipped: %v", err)
		return
	}
	if free < minFreeBytes {
		logger.Logger().Warnf("only %d MiB free under %s, large SDK archives may not fit", free>>20, dir)
	}
}

func attemptFor(attempts []sdkpackage.Attempt, url string) *sdkpackage.Attempt {
	for i := range attempts {
		if attempts[i].URL == url {
			return &attempts[i]
		}
	}
	return &sdkpackage.Attempt{URL: url}
}
