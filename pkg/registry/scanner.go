package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/armature-dev/armature/pkg/descriptor"
)

// ScanReport summarizes one discovery pass.
type ScanReport struct {
	Discovered []*descriptor.Descriptor
	Errors     []error
	Duration   time.Duration
}

// Scan walks the given locations and registers every descriptor it can
// parse. Per-artifact failures are collected as DiscoveryErrors (or
// ValidationErrors from registration) and do not abort the pass. Two layouts
// are recognized inside each location:
//
//   - a subdirectory containing a plugin.yaml manifest
//   - a *.json catalog document holding an array of descriptor records
//
// No executable code is loaded. Returns the descriptors that were newly
// registered or replaced during this pass.
func (r *Registry) Scan(ctx context.Context, paths []string) (*ScanReport, error) {
	start := time.Now()
	report := &ScanReport{}

	for _, root := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if _, err := os.Stat(root); os.IsNotExist(err) {
			r.log.Debugf("plugin directory does not exist: %s", root)
			continue
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			report.Errors = append(report.Errors, &DiscoveryError{Path: root, Err: err})
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(root, entry.Name())
			switch {
			case entry.IsDir():
				r.scanManifestDir(path, report)
			case strings.HasSuffix(entry.Name(), ".json"):
				r.scanCatalogFile(path, report)
			}
		}
	}

	report.Duration = time.Since(start)
	r.log.WithField("discovered", len(report.Discovered)).
		WithField("errors", len(report.Errors)).
		Info("plugin discovery scan complete")
	return report, nil
}

func (r *Registry) scanManifestDir(dir string, report *ScanReport) {
	manifestPath := filepath.Join(dir, descriptor.ManifestFileName)
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		return
	}

	d, err := descriptor.LoadManifest(manifestPath)
	if err != nil {
		report.Errors = append(report.Errors, &DiscoveryError{Path: manifestPath, Err: err})
		return
	}

	// The directory naming convention maps artifact names to plugin names.
	if d.Name == "" {
		d.Name = filepath.Base(dir)
	}
	r.registerDiscovered(d, manifestPath, report)
}

func (r *Registry) scanCatalogFile(path string, report *ScanReport) {
	catalog, err := descriptor.LoadCatalog(path)
	if err != nil {
		report.Errors = append(report.Errors, &DiscoveryError{Path: path, Err: err})
		return
	}
	for _, d := range catalog.Descriptors {
		r.registerDiscovered(d, path, report)
	}
}

func (r *Registry) registerDiscovered(d *descriptor.Descriptor, source string, report *ScanReport) {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	if err := r.Register(d); err != nil {
		r.log.WithField("source", source).Warnf("skipping plugin %s: %v", d.Name, err)
		report.Errors = append(report.Errors, err)
		return
	}
	report.Discovered = append(report.Discovered, d.Clone())
}
