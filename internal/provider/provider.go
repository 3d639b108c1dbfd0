package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/system"
)

// Options carries the per-invocation settings a provider templates its
// DependencySpec from. Zero values select the provider defaults.
type Options struct {
	Version         string
	Build           string // vendor build suffix some archive names embed
	InstallRoot     string
	Checksum        string
	ExtraCandidates []sdkpackage.Candidate
	Platform        system.Platform
	Distro          string // distribution token, e.g. "ubuntu22"

	// Install roots of already provisioned dependencies, keyed by name.
	Installed map[string]string
	// Versions requested for other dependencies, keyed by name.
	Versions map[string]string
}

// Provider is the interface every SDK plugin must implement.
type Provider interface {
	// Name is a unique ID, e.g. "cuda" or "openvino".
	Name() string

	// Order positions the dependency in a full install; lower goes first.
	Order() int

	// DefaultVersion is used when no version is requested.
	DefaultVersion() string

	// Spec builds the immutable description of one dependency.
	Spec(opts Options) (*sdkpackage.DependencySpec, error)
}

var (
	mu        sync.RWMutex
	providers = make(map[string]Provider)
)

// Register makes a Provider available under its Name().
func Register(p Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[p.Name()] = p
}

// Get returns the Provider by name.
func Get(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := providers[name]
	return p, ok
}

// All returns every registered provider in install order.
func All() []Provider {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order() != out[j].Order() {
			return out[i].Order() < out[j].Order()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Names returns the registered provider names in install order.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name()
	}
	return names
}

// Select returns the named providers in install order, whatever order
// they were requested in. An empty request selects every provider.
func Select(names []string) ([]Provider, error) {
	if len(names) == 0 {
		return All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := Get(n); !ok {
			return nil, fmt.Errorf("unknown dependency %q (known: %v)", n, Names())
		}
		want[n] = true
	}
	var out []Provider
	for _, p := range All() {
		if want[p.Name()] {
			out = append(out, p)
		}
	}
	return out, nil
}

// VersionOr returns opts.Version, or def when none was requested.
func (o Options) VersionOr(def string) string {
	if o.Version != "" {
		return o.Version
	}
	return def
}

// RootOr returns opts.InstallRoot, or def when none was configured.
func (o Options) RootOr(def string) string {
	if o.InstallRoot != "" {
		return o.InstallRoot
	}
	return def
}

// PlatformOrHost returns opts.Platform, or the host platform when unset.
func (o Options) PlatformOrHost() system.Platform {
	if o.Platform.Arch == "" {
		return system.HostPlatform()
	}
	return o.Platform
}

// Candidates appends configured extra candidates to the templated ones.
func (o Options) Candidates(templated ...sdkpackage.Candidate) []sdkpackage.Candidate {
	out := make([]sdkpackage.Candidate, 0, len(templated)+len(o.ExtraCandidates))
	out = append(out, templated...)
	return append(out, o.ExtraCandidates...)
}
