// Package resolver turns a DependencySpec into the ordered list of
// retrieval attempts. It never touches the network.
package resolver

import (
	"os"
	"strings"

	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

// LookupFunc reads a named external value, as os.LookupEnv does.
type LookupFunc func(key string) (string, bool)

// Env is the default LookupFunc.
var Env LookupFunc = os.LookupEnv

// Resolve returns the attempts for dep. A non-empty override is the sole
// attempt; otherwise the static candidates are returned in their fixed order.
func Resolve(dep *sdkpackage.DependencySpec, lookup LookupFunc) []sdkpackage.Attempt {
	if lookup == nil {
		lookup = Env
	}

	if dep.OverrideEnv != "" {
		if v, ok := lookup(dep.OverrideEnv); ok && strings.TrimSpace(v) != "" {
			return []sdkpackage.Attempt{{
				Source:  sdkpackage.SourceOverride,
				EnvName: dep.OverrideEnv,
				URL:     strings.TrimSpace(v),
			}}
		}
	}

	attempts := make([]sdkpackage.Attempt, 0, len(dep.Candidates))
	for _, c := range dep.Candidates {
		attempts = append(attempts, sdkpackage.Attempt{
			Source:       sdkpackage.SourceStatic,
			URL:          c.URL,
			Format:       c.Format,
			SignatureURL: c.SignatureURL,
			Checksum:     c.Checksum,
		})
	}
	return attempts
}
