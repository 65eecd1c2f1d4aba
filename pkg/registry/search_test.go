package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armature-dev/armature/pkg/descriptor"
)

func searchFixture(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	reg := New(testLogger())

	shipper := testDescriptor(t, dir, "log-shipper", "1.0.0")
	shipper.Type = descriptor.TypeService
	shipper.Author = "infra"
	shipper.Description = "Ships logs to cold storage"
	shipper.Capabilities = []string{"logs", "export"}
	shipper.Tags = []string{"observability"}
	require.NoError(t, reg.Register(shipper))

	collector := testDescriptor(t, dir, "metrics-collector", "1.0.0")
	collector.Type = descriptor.TypeProcessor
	collector.Author = "infra"
	collector.Capabilities = []string{"metrics", "export"}
	collector.Tags = []string{"observability"}
	require.NoError(t, reg.Register(collector))

	billing := testDescriptor(t, dir, "invoice-gen", "1.0.0")
	billing.Type = descriptor.TypeService
	billing.Author = "billing"
	billing.Capabilities = []string{"invoices"}
	require.NoError(t, reg.Register(billing))

	return reg
}

func TestSearch_ByType(t *testing.T) {
	reg := searchFixture(t)

	out := reg.Search(SearchQuery{Type: descriptor.TypeService})
	require.Len(t, out, 2)
	assert.Equal(t, "invoice-gen", out[0].Name)
	assert.Equal(t, "log-shipper", out[1].Name)
}

func TestSearch_ByAuthor(t *testing.T) {
	reg := searchFixture(t)

	out := reg.Search(SearchQuery{Author: "infra"})
	require.Len(t, out, 2)
}

func TestSearch_ByCapabilityAll(t *testing.T) {
	reg := searchFixture(t)

	// All listed capabilities must match, not any.
	out := reg.Search(SearchQuery{Capabilities: []string{"export", "logs"}})
	require.Len(t, out, 1)
	assert.Equal(t, "log-shipper", out[0].Name)
}

func TestSearch_ByTag(t *testing.T) {
	reg := searchFixture(t)

	out := reg.Search(SearchQuery{Tags: []string{"observability"}})
	assert.Len(t, out, 2)
}

func TestSearch_FreeText(t *testing.T) {
	reg := searchFixture(t)

	// Matches name or description, case-insensitive.
	out := reg.Search(SearchQuery{Query: "COLD STORAGE"})
	require.Len(t, out, 1)
	assert.Equal(t, "log-shipper", out[0].Name)

	out = reg.Search(SearchQuery{Query: "invoice"})
	require.Len(t, out, 1)
	assert.Equal(t, "invoice-gen", out[0].Name)
}

func TestSearch_CombinedFacets(t *testing.T) {
	reg := searchFixture(t)

	out := reg.Search(SearchQuery{
		Type:         descriptor.TypeService,
		Author:       "infra",
		Capabilities: []string{"logs"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "log-shipper", out[0].Name)
}

func TestSearch_NoMatch(t *testing.T) {
	reg := searchFixture(t)

	assert.Empty(t, reg.Search(SearchQuery{Author: "nobody"}))
	assert.Empty(t, reg.Search(SearchQuery{Query: "zzzz"}))
}

func TestSearch_EmptyQueryReturnsAllSorted(t *testing.T) {
	reg := searchFixture(t)

	out := reg.Search(SearchQuery{})
	require.Len(t, out, 3)
	assert.Equal(t, "invoice-gen", out[0].Name)
	assert.Equal(t, "log-shipper", out[1].Name)
	assert.Equal(t, "metrics-collector", out[2].Name)
}
