package registry

import (
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/armature-dev/armature/pkg/descriptor"
)

// Registry catalogs plugin descriptors. It holds metadata only and never
// loads executable code.
type Registry struct {
	mu sync.RWMutex

	// byKey maps name@version to the registered descriptor.
	byKey map[string]*descriptor.Descriptor
	// versions maps plugin name to its registered versions.
	versions map[string][]string

	// Secondary indexes map facet value -> set of name@version keys.
	byType       map[descriptor.Type]map[string]struct{}
	byCapability map[string]map[string]struct{}
	byAuthor     map[string]map[string]struct{}
	byTag        map[string]map[string]struct{}

	log *logrus.Logger
}

// New creates an empty registry.
func New(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		byKey:        make(map[string]*descriptor.Descriptor),
		versions:     make(map[string][]string),
		byType:       make(map[descriptor.Type]map[string]struct{}),
		byCapability: make(map[string]map[string]struct{}),
		byAuthor:     make(map[string]map[string]struct{}),
		byTag:        make(map[string]map[string]struct{}),
		log:          log,
	}
}

// Register validates and stores a descriptor. An existing record under the
// same (name, version) is replaced wholesale, never patched. Registration
// fails if required fields are missing, the artifact location does not
// exist, the host version range excludes this host, or the descriptor would
// introduce a dependency cycle among registered descriptors.
func (r *Registry) Register(d *descriptor.Descriptor) error {
	issues := d.Validate()

	if d.ArtifactLocation != "" {
		if _, err := os.Stat(d.ArtifactLocation); err != nil {
			issues = append(issues, descriptor.Issue{
				Field:   "artifact_location",
				Message: "artifact does not exist: " + d.ArtifactLocation,
			})
		}
	}
	if !d.CompatibleWithHost() {
		issues = append(issues, descriptor.Issue{
			Field:   "min_host_version",
			Message: "plugin is not compatible with host version " + descriptor.HostAPIVersion,
		})
	}

	if len(issues) > 0 {
		return &descriptor.ValidationError{Name: d.Name, Issues: issues}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if chain := r.findCycleLocked(d); chain != nil {
		return &descriptor.ValidationError{Name: d.Name, Issues: []descriptor.Issue{{
			Field:   "dependencies",
			Message: (&CycleError{Chain: chain}).Error(),
		}}}
	}

	key := d.Key()
	if old, exists := r.byKey[key]; exists {
		r.dropIndexesLocked(old)
	} else {
		r.versions[d.Name] = append(r.versions[d.Name], d.Version)
	}

	stored := d.Clone()
	r.byKey[key] = stored
	r.addIndexesLocked(stored)

	r.log.WithFields(logrus.Fields{
		"plugin":  d.Name,
		"version": d.Version,
		"type":    d.Type,
	}).Debug("registered plugin descriptor")
	return nil
}

// Unregister removes one version, or every version when version is empty.
func (r *Registry) Unregister(name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if version != "" {
		key := descriptor.Key(name, version)
		d, exists := r.byKey[key]
		if !exists {
			return &NotFoundError{Name: name, Version: version}
		}
		r.removeLocked(d)
		return nil
	}

	versions, exists := r.versions[name]
	if !exists {
		return &NotFoundError{Name: name}
	}
	for _, v := range append([]string(nil), versions...) {
		if d, ok := r.byKey[descriptor.Key(name, v)]; ok {
			r.removeLocked(d)
		}
	}
	return nil
}

// Get returns the descriptor for the exact version, or the highest
// registered version when version is empty. The returned descriptor is a
// clone; mutating it does not affect the registry.
func (r *Registry) Get(name, version string) (*descriptor.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(name, version)
}

// Has reports whether any version of the plugin is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.versions[name]) > 0
}

// List returns all registered descriptors, sorted by name then version.
func (r *Registry) List() []*descriptor.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*descriptor.Descriptor, 0, len(r.byKey))
	for _, d := range r.byKey {
		out = append(out, d.Clone())
	}
	sortDescriptors(out)
	return out
}

// Count returns the number of registered (name, version) records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Export snapshots the catalog as the JSON persistence document.
func (r *Registry) Export() *descriptor.Catalog {
	return &descriptor.Catalog{Descriptors: r.List()}
}

// Import registers every descriptor in the catalog, reporting per-record
// failures without aborting the rest.
func (r *Registry) Import(catalog *descriptor.Catalog) []error {
	var errs []error
	for _, d := range catalog.Descriptors {
		if err := r.Register(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (r *Registry) getLocked(name, version string) (*descriptor.Descriptor, error) {
	if version != "" {
		d, exists := r.byKey[descriptor.Key(name, version)]
		if !exists {
			return nil, &NotFoundError{Name: name, Version: version}
		}
		return d.Clone(), nil
	}

	versions := r.versions[name]
	if len(versions) == 0 {
		return nil, &NotFoundError{Name: name}
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if descriptor.CompareVersions(v, best) > 0 {
			best = v
		}
	}
	return r.byKey[descriptor.Key(name, best)].Clone(), nil
}

func (r *Registry) removeLocked(d *descriptor.Descriptor) {
	delete(r.byKey, d.Key())
	r.dropIndexesLocked(d)

	kept := r.versions[d.Name][:0]
	for _, v := range r.versions[d.Name] {
		if v != d.Version {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		delete(r.versions, d.Name)
	} else {
		r.versions[d.Name] = kept
	}
}

func (r *Registry) addIndexesLocked(d *descriptor.Descriptor) {
	key := d.Key()
	indexAdd(r.byType, d.Type, key)
	indexAdd(r.byAuthor, d.Author, key)
	for _, c := range d.Capabilities {
		indexAdd(r.byCapability, c, key)
	}
	for _, t := range d.Tags {
		indexAdd(r.byTag, t, key)
	}
}

func (r *Registry) dropIndexesLocked(d *descriptor.Descriptor) {
	key := d.Key()
	indexDrop(r.byType, d.Type, key)
	indexDrop(r.byAuthor, d.Author, key)
	for _, c := range d.Capabilities {
		indexDrop(r.byCapability, c, key)
	}
	for _, t := range d.Tags {
		indexDrop(r.byTag, t, key)
	}
}

func indexAdd[K comparable](index map[K]map[string]struct{}, value K, key string) {
	var zero K
	if value == zero {
		return
	}
	set, ok := index[value]
	if !ok {
		set = make(map[string]struct{})
		index[value] = set
	}
	set[key] = struct{}{}
}

func indexDrop[K comparable](index map[K]map[string]struct{}, value K, key string) {
	if set, ok := index[value]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(index, value)
		}
	}
}

func sortDescriptors(list []*descriptor.Descriptor) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return descriptor.CompareVersions(list[i].Version, list[j].Version) < 0
	})
}
