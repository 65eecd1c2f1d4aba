package registry

import (
	"fmt"
	"sort"

	"github.com/armature-dev/armature/pkg/descriptor"
)

// ResolveDependencies computes the transitive closure of the descriptor's
// required dependencies, deduplicated and in deterministic topological order
// (dependencies before dependents). The root descriptor itself is not part
// of the result. Optional dependencies are included when they resolve and
// skipped silently when they do not; a required dependency that cannot be
// resolved fails the whole resolution, naming every missing dependency.
func (r *Registry) ResolveDependencies(d *descriptor.Descriptor) ([]*descriptor.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if chain := r.findCycleLocked(d); chain != nil {
		return nil, &CycleError{Chain: chain}
	}

	closure := make(map[string]*descriptor.Descriptor)
	var missing, conflicts []string

	var visit func(from *descriptor.Descriptor)
	visit = func(from *descriptor.Descriptor) {
		for _, dep := range from.Dependencies {
			if existing, seen := closure[dep.Name]; seen {
				// Another branch already chose a version; this requirement
				// must hold against that choice, not against the catalog.
				if !dep.Optional && !descriptor.Satisfies(existing.Version, dep.VersionRequirement) {
					conflicts = append(conflicts, fmt.Sprintf("%s@%s does not satisfy %q",
						dep.Name, existing.Version, dep.VersionRequirement))
				}
				continue
			}
			resolved := r.resolveRequirementLocked(dep.Name, dep.VersionRequirement)
			if resolved == nil {
				if !dep.Optional {
					missing = append(missing, dep.Name)
				}
				continue
			}
			closure[resolved.Name] = resolved
			visit(resolved)
		}
	}
	visit(d)

	if len(missing) > 0 || len(conflicts) > 0 {
		sort.Strings(missing)
		sort.Strings(conflicts)
		return nil, &DependencyError{Plugin: d.Name,
			Missing: dedupe(missing), Conflicts: dedupe(conflicts)}
	}

	return topoSort(closure), nil
}

// resolveRequirementLocked finds the highest registered version of name that
// satisfies the requirement.
func (r *Registry) resolveRequirementLocked(name, requirement string) *descriptor.Descriptor {
	var best *descriptor.Descriptor
	for _, v := range r.versions[name] {
		if !descriptor.Satisfies(v, requirement) {
			continue
		}
		candidate := r.byKey[descriptor.Key(name, v)]
		if best == nil || descriptor.CompareVersions(candidate.Version, best.Version) > 0 {
			best = candidate
		}
	}
	return best
}

// findCycleLocked checks whether d, together with the registered catalog,
// forms a dependency cycle reachable from d. Edges are name-level: any
// version requirement creates an edge to the dependency name. Returns the
// cycle chain or nil.
func (r *Registry) findCycleLocked(d *descriptor.Descriptor) []string {
	// Adjacency over names, with the candidate taking precedence over any
	// registered version of the same name.
	adjacency := func(name string) []string {
		var deps []descriptor.Dependency
		if name == d.Name {
			deps = d.Dependencies
		} else if vs := r.versions[name]; len(vs) > 0 {
			// Any registered version's edges can close a cycle; merge them.
			seen := make(map[string]struct{})
			for _, v := range vs {
				for _, dep := range r.byKey[descriptor.Key(name, v)].Dependencies {
					if _, ok := seen[dep.Name]; !ok {
						seen[dep.Name] = struct{}{}
						deps = append(deps, dep)
					}
				}
			}
		}
		names := make([]string, 0, len(deps))
		for _, dep := range deps {
			names = append(names, dep.Name)
		}
		sort.Strings(names)
		return names
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)
	var stack []string

	var dfs func(name string) []string
	dfs = func(name string) []string {
		state[name] = inStack
		stack = append(stack, name)
		for _, next := range adjacency(name) {
			switch state[next] {
			case inStack:
				// Slice the chain from the first occurrence of next.
				for i, n := range stack {
					if n == next {
						return append(append([]string(nil), stack[i:]...), next)
					}
				}
			case unvisited:
				if chain := dfs(next); chain != nil {
					return chain
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	return dfs(d.Name)
}

// SortDependenciesFirst orders the given descriptors so every descriptor
// appears after the dependencies it names (edges to descriptors outside the
// set are ignored). Identical inputs always produce identical output order.
func SortDependenciesFirst(descs []*descriptor.Descriptor) []*descriptor.Descriptor {
	closure := make(map[string]*descriptor.Descriptor, len(descs))
	for _, d := range descs {
		closure[d.Name] = d
	}
	return topoSort(closure)
}

// topoSort orders the closure dependencies-first using Kahn's algorithm with
// lexicographic tie-breaking, so identical inputs always produce identical
// output order.
func topoSort(closure map[string]*descriptor.Descriptor) []*descriptor.Descriptor {
	indegree := make(map[string]int, len(closure))
	dependents := make(map[string][]string, len(closure))

	for name := range closure {
		indegree[name] = 0
	}
	for name, d := range closure {
		for _, dep := range d.Dependencies {
			if _, inClosure := closure[dep.Name]; inClosure {
				indegree[name]++
				dependents[dep.Name] = append(dependents[dep.Name], name)
			}
		}
	}

	ready := make([]string, 0, len(closure))
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	out := make([]*descriptor.Descriptor, 0, len(closure))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		out = append(out, closure[name])

		var unlocked []string
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		sort.Strings(unlocked)
		ready = mergeSorted(ready, unlocked)
	}
	return out
}

func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
