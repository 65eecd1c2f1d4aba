package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is the conventional per-directory manifest file.
const ManifestFileName = "plugin.yaml"

// LoadManifest loads and parses a plugin manifest from a YAML file.
func LoadManifest(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	// Artifact locations in manifests are relative to the manifest file.
	if d.ArtifactLocation != "" && !filepath.IsAbs(d.ArtifactLocation) {
		d.ArtifactLocation = filepath.Join(filepath.Dir(path), d.ArtifactLocation)
	}

	return &d, nil
}

// LoadManifestFromDir loads a plugin manifest from a directory
// (looks for plugin.yaml).
func LoadManifestFromDir(dir string) (*Descriptor, error) {
	return LoadManifest(filepath.Join(dir, ManifestFileName))
}

// SaveManifest writes a descriptor as a YAML manifest file.
func SaveManifest(d *Descriptor, path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Catalog is the JSON persistence format: a document holding an array of
// descriptor records.
type Catalog struct {
	Descriptors []*Descriptor `json:"descriptors"`
}

// LoadCatalog reads a JSON catalog document from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		// Accept a bare array as well as the wrapped document form.
		var list []*Descriptor
		if arrErr := json.Unmarshal(data, &list); arrErr != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
		catalog.Descriptors = list
	}
	return &catalog, nil
}

// SaveCatalog writes a JSON catalog document to path.
func SaveCatalog(catalog *Catalog, path string) error {
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}
