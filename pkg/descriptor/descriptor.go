package descriptor

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// HostAPIVersion is the contract version this host offers to plugins.
const HostAPIVersion = "1.0.0"

// Type categorizes a plugin.
type Type string

const (
	TypeService     Type = "service"
	TypeProcessor   Type = "processor"
	TypeAnalyzer    Type = "analyzer"
	TypeIntegration Type = "integration"
	TypeUtility     Type = "utility"
)

// Dependency declares that a plugin requires (or can use) another plugin.
type Dependency struct {
	Name               string `json:"name" yaml:"name"`
	VersionRequirement string `json:"version_requirement" yaml:"version_requirement"`
	Optional           bool   `json:"optional" yaml:"optional"`
	// ActivationRequired means the dependency must be Active, not merely
	// Loaded, before the dependent may start.
	ActivationRequired bool `json:"activation_required,omitempty" yaml:"activation_required,omitempty"`
}

// Descriptor is the immutable metadata record for a discoverable plugin
// artifact. Fields are never mutated after registration; re-registration
// replaces the whole record.
type Descriptor struct {
	Name             string       `json:"name" yaml:"name"`
	Version          string       `json:"version" yaml:"version"`
	Description      string       `json:"description" yaml:"description"`
	Author           string       `json:"author" yaml:"author"`
	Type             Type         `json:"plugin_type" yaml:"plugin_type"`
	Capabilities     []string     `json:"capabilities" yaml:"capabilities"`
	Dependencies     []Dependency `json:"dependencies" yaml:"dependencies"`
	ArtifactLocation string       `json:"artifact_location" yaml:"artifact_location"`
	EntryPoint       string       `json:"entry_point,omitempty" yaml:"entry_point,omitempty"`
	MinHostVersion   string       `json:"min_host_version,omitempty" yaml:"min_host_version,omitempty"`
	MaxHostVersion   string       `json:"max_host_version,omitempty" yaml:"max_host_version,omitempty"`
	License          string       `json:"license,omitempty" yaml:"license,omitempty"`
	Tags             []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	Checksum         string       `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	CreatedAt        time.Time    `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	DownloadCount    int64        `json:"download_count,omitempty" yaml:"download_count,omitempty"`
	Rating           float64      `json:"rating,omitempty" yaml:"rating,omitempty"`
	Verified         bool         `json:"verified,omitempty" yaml:"verified,omitempty"`
}

// Key returns the canonical name@version identity of the descriptor.
func (d *Descriptor) Key() string {
	return Key(d.Name, d.Version)
}

// Key builds the canonical name@version identity string.
func Key(name, version string) string {
	return name + "@" + version
}

// Issue describes a single descriptor validation problem.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates the issues found while validating a descriptor.
type ValidationError struct {
	Name   string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return fmt.Sprintf("descriptor %q is invalid: %s", e.Name, strings.Join(msgs, "; "))
}

// Validate checks the descriptor's required fields and version formats.
// It does not touch the filesystem; artifact existence is checked by the
// registry at registration time.
func (d *Descriptor) Validate() []Issue {
	var issues []Issue

	if d.Name == "" {
		issues = append(issues, Issue{Field: "name", Message: "plugin name is required"})
	}
	if d.Version == "" {
		issues = append(issues, Issue{Field: "version", Message: "version is required"})
	} else if !IsValidSemver(d.Version) {
		issues = append(issues, Issue{Field: "version", Message: fmt.Sprintf("invalid semver format: %s", d.Version)})
	}
	if d.Type == "" {
		issues = append(issues, Issue{Field: "plugin_type", Message: "plugin type is required"})
	}
	if d.ArtifactLocation == "" {
		issues = append(issues, Issue{Field: "artifact_location", Message: "artifact location is required"})
	}

	for i, dep := range d.Dependencies {
		field := fmt.Sprintf("dependencies[%d]", i)
		if dep.Name == "" {
			issues = append(issues, Issue{Field: field, Message: "dependency name is required"})
		}
		if dep.Name == d.Name {
			issues = append(issues, Issue{Field: field, Message: "plugin cannot depend on itself"})
		}
		if dep.VersionRequirement != "" && !IsValidRequirement(dep.VersionRequirement) {
			issues = append(issues, Issue{Field: field,
				Message: fmt.Sprintf("invalid version requirement: %s", dep.VersionRequirement)})
		}
	}

	if d.MinHostVersion != "" && !IsValidSemver(d.MinHostVersion) {
		issues = append(issues, Issue{Field: "min_host_version", Message: fmt.Sprintf("invalid semver format: %s", d.MinHostVersion)})
	}
	if d.MaxHostVersion != "" && !IsValidSemver(d.MaxHostVersion) {
		issues = append(issues, Issue{Field: "max_host_version", Message: fmt.Sprintf("invalid semver format: %s", d.MaxHostVersion)})
	}

	return issues
}

// CompatibleWithHost reports whether the descriptor's declared host version
// range admits the running host.
func (d *Descriptor) CompatibleWithHost() bool {
	if d.MinHostVersion != "" && CompareVersions(HostAPIVersion, d.MinHostVersion) < 0 {
		return false
	}
	if d.MaxHostVersion != "" && CompareVersions(HostAPIVersion, d.MaxHostVersion) > 0 {
		return false
	}
	return true
}

// HasCapability reports whether the descriptor advertises the capability tag.
func (d *Descriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasTag reports whether the descriptor carries the given tag.
func (d *Descriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. The registry hands out clones so callers can
// never mutate a registered descriptor in place.
func (d *Descriptor) Clone() *Descriptor {
	out := *d
	out.Capabilities = append([]string(nil), d.Capabilities...)
	out.Dependencies = append([]Dependency(nil), d.Dependencies...)
	out.Tags = append([]string(nil), d.Tags...)
	return &out
}

// ChecksumFile computes the sha256 checksum of the file at path, in the
// "sha256:<hex>" form stored in descriptor records.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash artifact: %w", err)
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}
