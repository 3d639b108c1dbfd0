package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const SchemaVersion = "1.0"

// ProvisionManifest records what one provisioning run installed.
type ProvisionManifest struct {
	SchemaVersion string             `json:"schema_version"`
	RunID         string             `json:"run_id"`
	BuiltAt       string             `json:"built_at"`
	Arch          string             `json:"arch"`
	Dependencies  []DependencyRecord `json:"dependencies"`
}

// DependencyRecord is one dependency's outcome within a run.
type DependencyRecord struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Source      string   `json:"source,omitempty"` // redacted URL the archive came from
	SourceKind  string   `json:"source_kind,omitempty"`
	SizeBytes   int64    `json:"size_bytes,omitempty"`
	Hash        string   `json:"hash,omitempty"`
	HashAlg     string   `json:"hash_alg,omitempty"`
	InstallRoot string   `json:"install_root"`
	Method      string   `json:"method"`
	Verified    bool     `json:"verified"`
	Missing     []string `json:"missing,omitempty"`
}

// New starts a manifest with a fresh run ID.
func New(arch string) *ProvisionManifest {
	return &ProvisionManifest{
		SchemaVersion: SchemaVersion,
		RunID:         uuid.NewString(),
		BuiltAt:       time.Now().UTC().Format(time.RFC3339),
		Arch:          arch,
		Dependencies:  []DependencyRecord{},
	}
}

// Add appends rec to the manifest.
func (m *ProvisionManifest) Add(rec DependencyRecord) {
	m.Dependencies = append(m.Dependencies, rec)
}

// WriteManifestToFile writes m as indented JSON, creating parent
// directories as needed.
func WriteManifestToFile(m ProvisionManifest, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifestFromFile loads a manifest written by WriteManifestToFile.
func ReadManifestFromFile(path string) (*ProvisionManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	var m ProvisionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return &m, nil
}

// FileName returns the manifest file name for a run.
func FileName(runID string) string {
	return "provision-" + runID + ".json"
}
