// Package registry catalogs plugin descriptors discovered from configured
// locations and resolves dependency closures between them.
//
// # Overview
//
// The registry stores metadata only; no executable code is ever loaded here.
// It supports exact and highest-version lookup, multi-facet search over
// secondary indexes (type, capability, author, tag), and transitive
// dependency resolution with cycle rejection.
//
// The catalog is read-mostly: lookups take a read lock, register/unregister
// take the write lock. Descriptors handed out are clones, so registered
// records are never mutated in place.
//
// # Key Features
//
// Discovery: Scan walks plugin directories (plugin.yaml manifests) and JSON
// catalog documents without touching artifact code.
// Validation: required fields, artifact existence, host compatibility, and
// dependency-cycle rejection at registration time.
// Resolution: deterministic topological closure of required dependencies,
// failing with the exact missing names.
// Watching: optional fsnotify watcher plus cron-scheduled rescans keep the
// catalog current as artifacts appear and disappear.
//
// # Usage Example
//
//	reg := registry.New(log)
//	discovered, _ := reg.Scan(ctx, []string{"/opt/armature/plugins"})
//	for _, d := range discovered {
//		fmt.Printf("found %s\n", d.Key())
//	}
//
//	closure, err := reg.ResolveDependencies(d)
//	// closure lists dependencies before dependents
//
// # Related Packages
//
//   - pkg/descriptor: the metadata model
//   - pkg/manager: drives discovery and consumes closures during load
package registry
