package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/dsl"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

func testRegistry(t *testing.T, components map[string][]string) *Registry {
	t.Helper()
	registry := NewRegistry(zap.NewNop())
	for name, versions := range components {
		for _, v := range versions {
			registry.MustRegister(name, v)
		}
	}
	return registry
}

func TestResolveRefExact(t *testing.T) {
	registry := testRegistry(t, map[string][]string{
		"transform": {"1.2.0", "1.3.1"},
	})
	resolver := NewResolver(registry)

	// The exact pin wins even though a newer compatible version exists.
	v, err := resolver.ResolveRef("transform", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, MustParse("1.2.0"), v)

	_, err = resolver.ResolveRef("transform", "1.2.9")
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerrors.ErrVersionNotFound)
}

func TestResolveRefLatestCompatible(t *testing.T) {
	registry := testRegistry(t, map[string][]string{
		"transform": {"1.2.0", "1.3.1"},
	})
	resolver := NewResolver(registry)

	v, err := resolver.ResolveRef("transform", "latest-compatible")
	require.NoError(t, err)
	assert.Equal(t, MustParse("1.3.1"), v)
}

func TestResolveRefLatestCompatibleStaysWithinMajor(t *testing.T) {
	registry := testRegistry(t, map[string][]string{
		"transform": {"1.2.0", "1.3.1", "2.0.0", "2.5.0"},
	})
	resolver := NewResolver(registry)

	// Without a baseline the lowest registered major fixes the family.
	v, err := resolver.ResolveRef("transform", "latest-compatible")
	require.NoError(t, err)
	assert.Equal(t, MustParse("1.3.1"), v)

	// A baseline in the next major moves the family up.
	v, err = resolver.ResolveRef("transform", "latest-compatible:2.0.0")
	require.NoError(t, err)
	assert.Equal(t, MustParse("2.5.0"), v)
}

func TestResolveRefRange(t *testing.T) {
	registry := testRegistry(t, map[string][]string{
		"transform": {"1.1.0", "1.2.0", "1.9.9", "2.0.0"},
	})
	resolver := NewResolver(registry)

	v, err := resolver.ResolveRef("transform", ">=1.2.0 <2.0.0")
	require.NoError(t, err)
	assert.Equal(t, MustParse("1.9.9"), v)

	_, err = resolver.ResolveRef("transform", ">=3.0.0")
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerrors.ErrVersionIncompatible)
}

func TestResolveRefUnknownComponent(t *testing.T) {
	resolver := NewResolver(testRegistry(t, nil))

	_, err := resolver.ResolveRef("ghost", "latest-compatible")
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerrors.ErrVersionNotFound)
}

func TestResolveIsDeterministic(t *testing.T) {
	registry := testRegistry(t, map[string][]string{
		"transform": {"1.0.0", "1.4.2", "1.4.3"},
		"lifecycle": {"3.1.0", "3.2.0"},
	})
	resolver := NewResolver(registry)

	node := dsl.PipelineNode{
		ID:       "n1",
		Executor: dsl.ComponentRef{Name: "transform", Version: "latest-compatible"},
		Subgraph: dsl.ComponentRef{Name: "lifecycle", Version: ">=3.0.0 <4.0.0"},
	}

	first, err := resolver.Resolve(node)
	require.NoError(t, err)
	second, err := resolver.Resolve(node)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, MustParse("1.4.3"), first.ExecutorVersion)
	assert.Equal(t, MustParse("3.2.0"), first.SubgraphVersion)
}

func TestResolveAll(t *testing.T) {
	registry := testRegistry(t, map[string][]string{
		"transform": {"1.0.0"},
	})
	resolver := NewResolver(registry)

	graph := &dsl.PipelineGraph{
		Nodes: []dsl.PipelineNode{
			{ID: "a", Executor: dsl.ComponentRef{Name: "transform", Version: "1.0.0"}},
			{ID: "b", Executor: dsl.ComponentRef{Name: "transform"}},
		},
	}

	resolved, err := resolver.ResolveAll(graph)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, MustParse("1.0.0"), resolved["a"].ExecutorVersion)
	assert.Equal(t, MustParse("1.0.0"), resolved["b"].ExecutorVersion)

	graph.Nodes = append(graph.Nodes, dsl.PipelineNode{
		ID:       "c",
		Executor: dsl.ComponentRef{Name: "ghost"},
	})
	_, err = resolver.ResolveAll(graph)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 'c'")
}

func TestRegistryRejectsDuplicateVersion(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	require.NoError(t, registry.Register("transform", MustParse("1.0.0")))
	assert.Error(t, registry.Register("transform", MustParse("1.0.0")))
}

func TestRegistryReload(t *testing.T) {
	registry := testRegistry(t, map[string][]string{
		"transform": {"1.0.0"},
	})
	assert.Equal(t, 0, registry.Generation())

	require.NoError(t, registry.Reload(map[string][]string{
		"transform": {"2.0.0", "1.5.0"},
	}))
	assert.Equal(t, 1, registry.Generation())
	assert.Equal(t,
		[]Version{MustParse("1.5.0"), MustParse("2.0.0")},
		registry.Versions("transform"))

	// A rejected reload leaves the registry untouched.
	err := registry.Reload(map[string][]string{"transform": {"1.0.0", "1.0.0"}})
	require.Error(t, err)
	assert.Equal(t, 1, registry.Generation())
}
