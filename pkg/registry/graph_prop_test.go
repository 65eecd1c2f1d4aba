package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/armature-dev/armature/pkg/descriptor"
)

// TestResolveDependencies_TopoOrderProperty generates random acyclic
// dependency graphs and checks that resolution always places every
// dependency before its dependents and never includes the root.
func TestResolveDependencies_TopoOrderProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		reg := New(testLogger())

		n := rapid.IntRange(2, 8).Draw(rt, "nodes")

		// Nodes are created in index order and may only depend on
		// lower-indexed nodes, so the graph is acyclic by construction.
		names := make([]string, n)
		edges := make(map[string][]string, n)
		for i := 0; i < n; i++ {
			names[i] = fmt.Sprintf("plugin-%d", i)
			var deps []descriptor.Dependency
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(rt, fmt.Sprintf("edge-%d-%d", i, j)) {
					deps = append(deps, dep(names[j], "*"))
					edges[names[i]] = append(edges[names[i]], names[j])
				}
			}
			require.NoError(t, reg.Register(testDescriptor(t, dir, names[i], "1.0.0", deps...)))
		}

		root, err := reg.Get(names[n-1], "")
		require.NoError(t, err)

		resolved, err := reg.ResolveDependencies(root)
		require.NoError(t, err)

		position := make(map[string]int, len(resolved))
		for i, d := range resolved {
			require.NotEqual(t, root.Name, d.Name, "root must not appear in its own closure")
			_, dup := position[d.Name]
			require.False(t, dup, "closure must not contain duplicates")
			position[d.Name] = i
		}

		for name, pos := range position {
			for _, depName := range edges[name] {
				depPos, ok := position[depName]
				require.True(t, ok, "closure must be transitively complete")
				require.Less(t, depPos, pos, "%s must come before %s", depName, name)
			}
		}
	})
}
