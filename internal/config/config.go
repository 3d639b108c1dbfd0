// Package config loads the provisioning configuration. Files may be YAML,
// TOML or JSON; every format is validated against the same JSON schema.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/open-edge-platform/sdk-provisioner/internal/config/validate"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

// GlobalConfig holds settings shared by every command.
type GlobalConfig struct {
	TempDir      string                      `yaml:"temp_dir" json:"temp_dir" toml:"temp_dir"`
	ReportDir    string                      `yaml:"report_dir" json:"report_dir" toml:"report_dir"`
	Progress     bool                        `yaml:"progress" json:"progress" toml:"progress"`
	HTTPTimeout  string                      `yaml:"http_timeout" json:"http_timeout" toml:"http_timeout"`
	Keyring      string                      `yaml:"keyring" json:"keyring" toml:"keyring"`
	Logging      LoggingConfig               `yaml:"logging" json:"logging" toml:"logging"`
	Verify       VerifyConfig                `yaml:"verify" json:"verify" toml:"verify"`
	Dependencies map[string]DependencyConfig `yaml:"dependencies" json:"dependencies" toml:"dependencies"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" toml:"level"`
}

// VerifyConfig controls post-install verification.
type VerifyConfig struct {
	Strict bool `yaml:"strict" json:"strict" toml:"strict"`
}

// DependencyConfig overrides the built-in defaults of one dependency.
type DependencyConfig struct {
	Version     string            `yaml:"version,omitempty" json:"version,omitempty" toml:"version,omitempty"`
	Build       string            `yaml:"build,omitempty" json:"build,omitempty" toml:"build,omitempty"`
	InstallRoot string            `yaml:"install_root,omitempty" json:"install_root,omitempty" toml:"install_root,omitempty"`
	Checksum    string            `yaml:"checksum,omitempty" json:"checksum,omitempty" toml:"checksum,omitempty"`
	Candidates  []CandidateConfig `yaml:"candidates,omitempty" json:"candidates,omitempty" toml:"candidates,omitempty"`
}

// CandidateConfig is an extra retrieval location tried after the built-in
// ones.
type CandidateConfig struct {
	URL       string `yaml:"url" json:"url" toml:"url"`
	Format    string `yaml:"format,omitempty" json:"format,omitempty" toml:"format,omitempty"`
	Signature string `yaml:"signature,omitempty" json:"signature,omitempty" toml:"signature,omitempty"`
	Checksum  string `yaml:"checksum,omitempty" json:"checksum,omitempty" toml:"checksum,omitempty"`
}

// DefaultGlobalConfig returns the configuration used when no file is given.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		TempDir:      "",
		ReportDir:    "builds",
		Progress:     false,
		HTTPTimeout:  "30m",
		Logging:      LoggingConfig{Level: "info"},
		Dependencies: map[string]DependencyConfig{},
	}
}

// LoadGlobalConfig reads path, validates it and overlays it on the
// defaults. An empty path returns the defaults.
func LoadGlobalConfig(path string) (*GlobalConfig, error) {
	if path == "" {
		return DefaultGlobalConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg, err := parseConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}
	return cfg, nil
}

// ValidateFile checks a config file against the schema without applying it.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	jsonData, err := toJSON(data, filepath.Ext(path))
	if err != nil {
		return err
	}
	return validate.ValidateConfigJSON(jsonData)
}

func parseConfig(data []byte, ext string) (*GlobalConfig, error) {
	jsonData, err := toJSON(data, ext)
	if err != nil {
		return nil, err
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		return nil, err
	}

	cfg := DefaultGlobalConfig()
	switch strings.ToLower(ext) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Dependencies == nil {
		cfg.Dependencies = map[string]DependencyConfig{}
	}
	return cfg, nil
}

// toJSON converts a config document to JSON for schema validation. An empty
// document is an empty object.
func toJSON(data []byte, ext string) ([]byte, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return []byte("{}"), nil
	}

	switch strings.ToLower(ext) {
	case ".json":
		return data, nil
	case ".toml":
		var doc map[string]interface{}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("converting TOML to JSON: %w", err)
		}
		return out, nil
	case ".yaml", ".yml", "":
		out, err := sigsyaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
}

// Dependency returns the overrides for name, or the zero value.
func (c *GlobalConfig) Dependency(name string) DependencyConfig {
	return c.Dependencies[name]
}

// ExtraCandidates converts configured candidates to the retrieval model.
func (d DependencyConfig) ExtraCandidates() []sdkpackage.Candidate {
	out := make([]sdkpackage.Candidate, 0, len(d.Candidates))
	for _, c := range d.Candidates {
		out = append(out, sdkpackage.Candidate{
			URL:          c.URL,
			Format:       c.Format,
			SignatureURL: c.Signature,
			Checksum:     c.Checksum,
		})
	}
	return out
}
