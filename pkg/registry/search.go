package registry

import (
	"strings"

	"github.com/armature-dev/armature/pkg/descriptor"
)

// SearchQuery filters the catalog across the secondary indexes. Zero-value
// fields are ignored. Query is a free-text match over name and description.
type SearchQuery struct {
	Query        string
	Type         descriptor.Type
	Capabilities []string
	Author       string
	Tags         []string
}

// Search returns every descriptor matching all the populated query facets.
// The result order is stable for identical inputs: name ascending, then
// version ascending.
func (r *Registry) Search(q SearchQuery) []*descriptor.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Start from the most selective index available, fall back to a full
	// catalog walk.
	candidates := r.candidateKeysLocked(q)

	needle := strings.ToLower(q.Query)
	var out []*descriptor.Descriptor
	for key := range candidates {
		d := r.byKey[key]
		if d == nil || !matches(d, q, needle) {
			continue
		}
		out = append(out, d.Clone())
	}
	sortDescriptors(out)
	return out
}

func (r *Registry) candidateKeysLocked(q SearchQuery) map[string]struct{} {
	switch {
	case q.Author != "":
		return copySet(r.byAuthor[q.Author])
	case q.Type != "":
		return copySet(r.byType[q.Type])
	case len(q.Capabilities) > 0:
		return copySet(r.byCapability[q.Capabilities[0]])
	case len(q.Tags) > 0:
		return copySet(r.byTag[q.Tags[0]])
	default:
		all := make(map[string]struct{}, len(r.byKey))
		for key := range r.byKey {
			all[key] = struct{}{}
		}
		return all
	}
}

func matches(d *descriptor.Descriptor, q SearchQuery, needle string) bool {
	if q.Type != "" && d.Type != q.Type {
		return false
	}
	if q.Author != "" && d.Author != q.Author {
		return false
	}
	for _, c := range q.Capabilities {
		if !d.HasCapability(c) {
			return false
		}
	}
	for _, t := range q.Tags {
		if !d.HasTag(t) {
			return false
		}
	}
	if needle != "" &&
		!strings.Contains(strings.ToLower(d.Name), needle) &&
		!strings.Contains(strings.ToLower(d.Description), needle) {
		return false
	}
	return true
}

func copySet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for k := range set {
		out[k] = struct{}{}
	}
	return out
}
