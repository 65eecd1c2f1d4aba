package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := `name: log-shipper
version: 2.1.0
description: Ships logs somewhere useful
author: infra
plugin_type: service
capabilities:
  - logs
dependencies:
  - name: metrics-collector
    version_requirement: "^1.0.0"
    optional: true
artifact_location: shipper.lua
entry_point: shipper.lua
`
	path := filepath.Join(dir, "plugin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))

	d, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, "log-shipper", d.Name)
	assert.Equal(t, "2.1.0", d.Version)
	assert.Equal(t, TypeService, d.Type)
	require.Len(t, d.Dependencies, 1)
	assert.True(t, d.Dependencies[0].Optional)
	assert.Equal(t, "^1.0.0", d.Dependencies[0].VersionRequirement)
	// Relative artifact paths resolve against the manifest directory.
	assert.Equal(t, filepath.Join(dir, "shipper.lua"), d.ArtifactLocation)
}

func TestLoadManifest_AbsoluteArtifact(t *testing.T) {
	dir := t.TempDir()
	manifest := `name: abs
version: 1.0.0
plugin_type: utility
artifact_location: /opt/plugins/abs.so
`
	path := filepath.Join(dir, "plugin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))

	d, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/plugins/abs.so", d.ArtifactLocation)
}

func TestLoadManifest_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{not yaml"), 0644))

	_, err := LoadManifest(path)
	assert.Error(t, err)

	_, err = LoadManifest(filepath.Join(dir, "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadManifestFromDir(t *testing.T) {
	dir := t.TempDir()
	manifest := `name: dir-plugin
version: 0.3.0
plugin_type: analyzer
artifact_location: main.lua
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(manifest), 0644))

	d, err := LoadManifestFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "dir-plugin", d.Name)
}

func TestSaveManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	d := validDescriptor()
	d.ArtifactLocation = filepath.Join(dir, "artifact.lua")

	path := filepath.Join(dir, "plugin.yaml")
	require.NoError(t, SaveManifest(d, path))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, d.Name, loaded.Name)
	assert.Equal(t, d.Version, loaded.Version)
	assert.Equal(t, d.Capabilities, loaded.Capabilities)
	assert.Equal(t, d.ArtifactLocation, loaded.ArtifactLocation)
}

func TestCatalog_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")

	catalog := &Catalog{Descriptors: []*Descriptor{
		validDescriptor(),
		{Name: "other", Version: "0.1.0", Type: TypeUtility, ArtifactLocation: "/tmp/x"},
	}}
	require.NoError(t, SaveCatalog(catalog, path))

	loaded, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, loaded.Descriptors, 2)
	assert.Equal(t, "metrics-collector", loaded.Descriptors[0].Name)
	assert.Equal(t, "other", loaded.Descriptors[1].Name)
}

func TestLoadCatalog_BareArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	doc := `[{"name":"solo","version":"1.0.0","plugin_type":"utility","artifact_location":"/tmp/solo"}]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	loaded, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, loaded.Descriptors, 1)
	assert.Equal(t, "solo", loaded.Descriptors[0].Name)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
