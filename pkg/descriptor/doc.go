// Package descriptor defines the immutable metadata model for discoverable plugins.
//
// # Overview
//
// A Descriptor carries everything the host needs to know about a plugin artifact
// without loading any executable code: identity, versioning, declared dependencies,
// capability tags, the artifact location, and the entry point inside it. Descriptors
// are produced by discovery scans and replaced (never patched) on re-scan.
//
// Two on-disk representations are supported:
//
// plugin.yaml: one manifest per plugin directory, the conventional layout for
// artifacts shipped alongside their code.
//
// JSON catalogs: a single document holding an array of descriptor records, used
// for registry export/import and for catalogs published by build pipelines.
//
// # Usage Example
//
// Load and validate a manifest:
//
//	d, err := descriptor.LoadManifestFromDir("/opt/armature/plugins/wordcount")
//	if err != nil {
//		return err
//	}
//	if issues := d.Validate(); len(issues) > 0 {
//		return &descriptor.ValidationError{Name: d.Name, Issues: issues}
//	}
//
// # Related Packages
//
//   - pkg/registry: stores and indexes descriptors
//   - pkg/loader: turns a descriptor into a runnable instance
package descriptor
