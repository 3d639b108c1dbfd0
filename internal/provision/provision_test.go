package provision

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/m-mizutani/gt"

	"github.com/open-edge-platform/sdk-provisioner/internal/config"
	"github.com/open-edge-platform/sdk-provisioner/internal/config/manifest"
	"github.com/open-edge-platform/sdk-provisioner/internal/provider"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	gt.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		gt.NoError(t, err)
		_, err = w.Write([]byte(body))
		gt.NoError(t, err)
	}
	gt.NoError(t, zw.Close())
}

func testConfig(t *testing.T) *config.GlobalConfig {
	t.Helper()
	cfg := config.DefaultGlobalConfig()
	dir := t.TempDir()
	cfg.TempDir = filepath.Join(dir, "tmp")
	cfg.ReportDir = filepath.Join(dir, "reports")
	return cfg
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func fooSpec(root string) *sdkpackage.DependencySpec {
	return &sdkpackage.DependencySpec{
		Name:        "foo",
		Version:     "1.2.3",
		MajorMinor:  "1.2",
		Candidates:  []sdkpackage.Candidate{{URL: "/nonexistent/foo-1.2.3.zip"}},
		OverrideEnv: "FOO_DOWNLOAD_URL",
		Marker:      "include",
		Manifest:    []sdkpackage.ManifestEntry{{Path: "include/foo.h"}},
		InstallRoot: root,
		Remediation: "download foo by hand",
	}
}

func TestProvision_OverrideZip(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "foo-1.2.3.zip")
	writeZip(t, archive, map[string]string{"foo-1.2.3/include/foo.h": "#define FOO 1\n"})

	root := filepath.Join(t.TempDir(), "opt", "foo")
	p, err := New(Options{
		Config: testConfig(t),
		Lookup: lookupFrom(map[string]string{"FOO_DOWNLOAD_URL": archive}),
	})
	gt.NoError(t, err)

	res, err := p.Provision(context.Background(), fooSpec(root))
	gt.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "include", "foo.h"))
	gt.NoError(t, err)
	gt.Value(t, string(data)).Equal("#define FOO 1\n")

	gt.Value(t, res.Attempt.Source).Equal(sdkpackage.SourceOverride)
	gt.Value(t, res.Tree.Method).Equal(sdkpackage.MethodCopy)
	gt.Value(t, res.Tree.Subdirs).Equal([]string{"include"})
	gt.True(t, res.Report.Passed)
	gt.Value(t, res.Report.Missing()).Nil()
}

func TestProvision_WorkDirRemoved(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "foo.zip")
	writeZip(t, archive, map[string]string{"include/foo.h": ""})

	cfg := testConfig(t)
	p, err := New(Options{Config: cfg, Lookup: lookupFrom(map[string]string{"FOO_DOWNLOAD_URL": archive})})
	gt.NoError(t, err)

	_, err = p.Provision(context.Background(), fooSpec(filepath.Join(t.TempDir(), "foo")))
	gt.NoError(t, err)

	entries, err := os.ReadDir(cfg.TempDir)
	gt.NoError(t, err)
	gt.Number(t, len(entries)).Equal(0)
}

func TestProvision_NoMarkerInstallsNothing(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "foo.zip")
	writeZip(t, archive, map[string]string{"foo/docs/README": "no headers here"})

	root := filepath.Join(t.TempDir(), "foo")
	p, err := New(Options{Config: testConfig(t), Lookup: lookupFrom(map[string]string{"FOO_DOWNLOAD_URL": archive})})
	gt.NoError(t, err)

	res, err := p.Provision(context.Background(), fooSpec(root))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, sdkpackage.ErrStructureMismatch))
	gt.Value(t, res).Nil()

	_, statErr := os.Stat(root)
	gt.True(t, os.IsNotExist(statErr))
}

func TestProvision_SourceUnavailable(t *testing.T) {
	var guidance bytes.Buffer
	root := filepath.Join(t.TempDir(), "foo")
	p, err := New(Options{Config: testConfig(t), Lookup: lookupFrom(nil), Remediation: &guidance})
	gt.NoError(t, err)

	_, err = p.Provision(context.Background(), fooSpec(root))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, sdkpackage.ErrSourceUnavailable))
	gt.True(t, errors.Is(err, sdkpackage.ErrTransport))
	gt.String(t, guidance.String()).Contains("foo 1.2.3: no download source is available.")
	gt.String(t, guidance.String()).Contains("download foo by hand")

	_, statErr := os.Stat(root)
	gt.True(t, os.IsNotExist(statErr))
}

func TestProvision_NoCandidates(t *testing.T) {
	spec := fooSpec(filepath.Join(t.TempDir(), "foo"))
	spec.Candidates = nil

	var guidance bytes.Buffer
	p, err := New(Options{Config: testConfig(t), Lookup: lookupFrom(nil), Remediation: &guidance})
	gt.NoError(t, err)

	_, err = p.Provision(context.Background(), spec)
	gt.True(t, errors.Is(err, sdkpackage.ErrSourceUnavailable))
	gt.String(t, guidance.String()).Contains("download foo by hand")
}

func TestProvision_SiblingLinkFallback(t *testing.T) {
	cudaRoot := t.TempDir()
	gt.NoError(t, os.MkdirAll(filepath.Join(cudaRoot, "include"), 0755))
	gt.NoError(t, os.MkdirAll(filepath.Join(cudaRoot, "lib64"), 0755))
	gt.NoError(t, os.WriteFile(filepath.Join(cudaRoot, "include", "cudnn.h"), nil, 0644))
	gt.NoError(t, os.WriteFile(filepath.Join(cudaRoot, "lib64", "libcudnn.so.8"), nil, 0644))

	root := filepath.Join(t.TempDir(), "cudnn")
	spec := &sdkpackage.DependencySpec{
		Name:        "cudnn",
		Version:     "8.9.7.29",
		Candidates:  []sdkpackage.Candidate{{URL: "/nonexistent/cudnn.tar.xz"}},
		Marker:      "include",
		InstallRoot: root,
		Manifest: []sdkpackage.ManifestEntry{
			{Path: "include/cudnn.h"},
			{Path: "lib/libcudnn.so", Alternate: "lib/libcudnn.so.8"},
		},
		Sibling: &sdkpackage.SiblingLink{
			Name:  "cuda",
			Root:  cudaRoot,
			Probe: "include/cudnn.h",
			Links: map[string]string{"include": "include", "lib": "lib64"},
		},
	}

	var guidance bytes.Buffer
	p, err := New(Options{Config: testConfig(t), Lookup: lookupFrom(nil), Remediation: &guidance})
	gt.NoError(t, err)

	res, err := p.Provision(context.Background(), spec)
	gt.NoError(t, err)
	gt.Value(t, res.Tree.Method).Equal(sdkpackage.MethodLink)
	gt.Value(t, res.Attempt).Nil()
	gt.True(t, res.Report.Passed)
	gt.True(t, res.Report.Entries[1].Alternate)
	gt.Number(t, guidance.Len()).Equal(0)
}

func TestProvision_SiblingWithoutProbe(t *testing.T) {
	spec := fooSpec(filepath.Join(t.TempDir(), "foo"))
	spec.Sibling = &sdkpackage.SiblingLink{Name: "cuda", Root: t.TempDir(), Probe: "include/foo.h", Links: map[string]string{"include": "include"}}

	var guidance bytes.Buffer
	p, err := New(Options{Config: testConfig(t), Lookup: lookupFrom(nil), Remediation: &guidance})
	gt.NoError(t, err)

	_, err = p.Provision(context.Background(), spec)
	gt.True(t, errors.Is(err, sdkpackage.ErrSourceUnavailable))
	gt.String(t, guidance.String()).Contains("download foo by hand")
}

func TestProvision_VerificationModes(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "foo.zip")
	writeZip(t, archive, map[string]string{"include/foo.h": ""})

	for _, strict := range []bool{false, true} {
		spec := fooSpec(filepath.Join(t.TempDir(), "foo"))
		spec.Manifest = append(spec.Manifest, sdkpackage.ManifestEntry{Path: "lib/libfoo.so", Alternate: "lib/libfoo.so.1"})

		cfg := testConfig(t)
		cfg.Verify.Strict = strict
		p, err := New(Options{Config: cfg, Lookup: lookupFrom(map[string]string{"FOO_DOWNLOAD_URL": archive})})
		gt.NoError(t, err)

		res, err := p.Provision(context.Background(), spec)
		gt.Value(t, res).NotNil()
		gt.Value(t, res.Report.Missing()).Equal([]string{"lib/libfoo.so"})
		if strict {
			gt.True(t, errors.Is(err, sdkpackage.ErrVerificationGap))
		} else {
			gt.NoError(t, err)
		}
	}
}

func TestProvision_Runfile(t *testing.T) {
	runfile := filepath.Join(t.TempDir(), "foo_1.2.3_linux.run")
	script := `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    --prefix=*) target="${arg#--prefix=}" ;;
  esac
done
mkdir -p "$target/include"
: > "$target/include/foo.h"
`
	gt.NoError(t, os.WriteFile(runfile, []byte(script), 0644))

	spec := fooSpec(filepath.Join(t.TempDir(), "foo"))
	spec.Candidates = []sdkpackage.Candidate{{URL: runfile, Format: "run"}}
	spec.Runfile = true
	spec.RunfileArgs = []string{"--silent", "--prefix={staging}"}

	p, err := New(Options{Config: testConfig(t), Lookup: lookupFrom(nil)})
	gt.NoError(t, err)

	res, err := p.Provision(context.Background(), spec)
	gt.NoError(t, err)
	gt.Value(t, res.Attempt.Source).Equal(sdkpackage.SourceStatic)
	gt.True(t, res.Report.Passed)
}

type fakeProvider struct {
	name  string
	order int
	spec  func(provider.Options) (*sdkpackage.DependencySpec, error)
	seen  []provider.Options
}

func (f *fakeProvider) Name() string           { return f.name }
func (f *fakeProvider) Order() int             { return f.order }
func (f *fakeProvider) DefaultVersion() string { return "0.0.1" }
func (f *fakeProvider) Spec(opts provider.Options) (*sdkpackage.DependencySpec, error) {
	f.seen = append(f.seen, opts)
	return f.spec(opts)
}

func TestBuildSpec_Precedence(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dependencies["foo"] = config.DependencyConfig{
		Version:     "1.0.0",
		Build:       "b42",
		InstallRoot: "/opt/foo-config",
		Candidates:  []config.CandidateConfig{{URL: "https://mirror.example.com/foo.zip"}},
	}
	cfg.Dependencies["bar"] = config.DependencyConfig{Version: "3.1.0"}

	p, err := New(Options{
		Config:       cfg,
		Versions:     map[string]string{"foo": "2.0.0"},
		InstallRoots: map[string]string{"bar": "/srv/bar"},
		Candidates:   map[string][]sdkpackage.Candidate{"foo": {{URL: "file:///cache/foo.zip"}}},
	})
	gt.NoError(t, err)

	fp := &fakeProvider{name: "foo", spec: func(o provider.Options) (*sdkpackage.DependencySpec, error) {
		return &sdkpackage.DependencySpec{Name: "foo"}, nil
	}}
	_, err = p.BuildSpec(fp)
	gt.NoError(t, err)

	got := fp.seen[0]
	gt.Value(t, got.Version).Equal("2.0.0")
	gt.Value(t, got.Build).Equal("b42")
	gt.Value(t, got.InstallRoot).Equal("/opt/foo-config")
	gt.Value(t, got.Versions["bar"]).Equal("3.1.0")
	gt.Value(t, got.Installed["bar"]).Equal("/srv/bar")
	gt.Number(t, len(got.ExtraCandidates)).Equal(2)
	gt.Value(t, got.ExtraCandidates[0].URL).Equal("file:///cache/foo.zip")
	gt.Value(t, got.ExtraCandidates[1].URL).Equal("https://mirror.example.com/foo.zip")

	failing := &fakeProvider{name: "baz", spec: func(provider.Options) (*sdkpackage.DependencySpec, error) {
		return nil, errors.New("unknown build")
	}}
	_, err = p.BuildSpec(failing)
	gt.Error(t, err)
}

func TestRun_WritesReportsAndStopsOnFailure(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "foo.zip")
	writeZip(t, archive, map[string]string{"foo/include/foo.h": ""})

	base := t.TempDir()
	good := &fakeProvider{name: "foo", order: 1, spec: func(o provider.Options) (*sdkpackage.DependencySpec, error) {
		spec := fooSpec(filepath.Join(base, "foo"))
		spec.Candidates = []sdkpackage.Candidate{{URL: archive}}
		return spec, nil
	}}
	var barInstalled map[string]string
	bad := &fakeProvider{name: "bar", order: 2, spec: func(o provider.Options) (*sdkpackage.DependencySpec, error) {
		barInstalled = o.Installed
		spec := fooSpec(filepath.Join(base, "bar"))
		spec.Name = "bar"
		return spec, nil
	}}
	never := &fakeProvider{name: "baz", order: 3, spec: func(o provider.Options) (*sdkpackage.DependencySpec, error) {
		t.Error("provisioning should stop at the first failure")
		return nil, errors.New("unreachable")
	}}

	cfg := testConfig(t)
	var guidance bytes.Buffer
	p, err := New(Options{Config: cfg, Lookup: lookupFrom(nil), Remediation: &guidance})
	gt.NoError(t, err)

	summary, err := p.Run(context.Background(), []provider.Provider{good, bad, never})
	gt.True(t, errors.Is(err, sdkpackage.ErrSourceUnavailable))
	gt.Number(t, len(summary.Results)).Equal(1)
	gt.Value(t, barInstalled["foo"]).Equal(filepath.Join(base, "foo"))

	m, err := manifest.ReadManifestFromFile(summary.ManifestPath)
	gt.NoError(t, err)
	gt.Value(t, m.RunID).Equal(summary.RunID)
	gt.Number(t, len(m.Dependencies)).Equal(1)
	gt.Value(t, m.Dependencies[0].Name).Equal("foo")
	gt.Value(t, m.Dependencies[0].Method).Equal("copy")
	gt.Value(t, m.Dependencies[0].SourceKind).Equal("static")
	gt.True(t, m.Dependencies[0].Verified)

	sources, err := os.ReadFile(summary.SourcesPath)
	gt.NoError(t, err)
	gt.String(t, string(sources)).Contains("foo 1.2.3 static " + archive)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fp := &fakeProvider{name: "foo", spec: func(provider.Options) (*sdkpackage.DependencySpec, error) {
		return fooSpec(t.TempDir()), nil
	}}
	p, err := New(Options{Config: testConfig(t), Lookup: lookupFrom(nil)})
	gt.NoError(t, err)

	summary, err := p.Run(ctx, []provider.Provider{fp})
	gt.True(t, errors.Is(err, context.Canceled))
	gt.Number(t, len(summary.Results)).Equal(0)
	gt.Number(t, len(fp.seen)).Equal(0)
}
