package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"javagent/internal/cache"
	"javagent/internal/extractor"
	"javagent/internal/graph"
	"javagent/internal/storage"
)

func unit(id, src string) extractor.Unit {
	return extractor.Unit{ID: id, Source: []byte(src)}
}

func TestIndexer_IndexUnits(t *testing.T) {
	g := graph.NewStore()
	ix := NewIndexer(g, WithWorkers(2))

	summary, err := ix.IndexUnits(context.Background(), []extractor.Unit{
		unit("p/I.java", `package p; interface I {}`),
		unit("p/A.java", `package p; class A implements I { void m() {} }`),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.BatchID)
	assert.Equal(t, 2, summary.Indexed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Unresolved)

	a, ok := g.ByQualifiedName("p.A")
	require.True(t, ok)
	edges := g.Neighbors(a.ID, []graph.RelationKind{graph.RelImplements}, graph.DirOut)
	require.Len(t, edges, 1)
}

func TestIndexer_BrokenUnitIsIsolated(t *testing.T) {
	g := graph.NewStore()
	ix := NewIndexer(g)

	summary, err := ix.IndexUnits(context.Background(), []extractor.Unit{
		unit("p/Good.java", `package p; class Good {}`),
		unit("p/Bad.java", `package p; class Bad { void m( }`),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Diagnostics, 1)
	assert.Equal(t, "p/Bad.java", summary.Diagnostics[0].UnitID)

	_, ok := g.ByQualifiedName("p.Good")
	assert.True(t, ok)
	_, ok = g.ByQualifiedName("p.Bad")
	assert.False(t, ok)
}

func TestIndexer_ReindexIsIdempotent(t *testing.T) {
	g := graph.NewStore()
	ix := NewIndexer(g)
	units := []extractor.Unit{
		unit("p/A.java", `package p; class A extends B {}`),
		unit("p/B.java", `package p; class B {}`),
	}

	_, err := ix.IndexUnits(context.Background(), units)
	require.NoError(t, err)
	first := g.Stats()

	_, err = ix.IndexUnits(context.Background(), units)
	require.NoError(t, err)
	assert.Equal(t, first, g.Stats())
}

func TestIndexer_ConcurrentBatchConverges(t *testing.T) {
	// Regardless of worker interleaving, cross-unit references resolve.
	units := []extractor.Unit{
		unit("p/A.java", `package p; class A extends B {}`),
		unit("p/B.java", `package p; class B implements C {}`),
		unit("p/C.java", `package p; interface C {}`),
		unit("p/D.java", `package p; class D { A a; B b; C c; }`),
	}

	for workers := 1; workers <= 4; workers++ {
		g := graph.NewStore()
		ix := NewIndexer(g, WithWorkers(workers))
		summary, err := ix.IndexUnits(context.Background(), units)
		require.NoError(t, err)
		assert.Equal(t, 4, summary.Indexed, "workers=%d", workers)
		assert.Equal(t, 0, summary.Unresolved, "workers=%d", workers)
	}
}

func TestIndexer_CancelledContext(t *testing.T) {
	g := graph.NewStore()
	ix := NewIndexer(g)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ix.IndexUnits(ctx, []extractor.Unit{
		unit("p/A.java", `package p; class A {}`),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexer_ReusesCachedExtractions(t *testing.T) {
	results := cache.NewResultCache(16)
	units := []extractor.Unit{
		unit("p/A.java", `package p; class A {}`),
		unit("p/B.java", `package p; class B {}`),
	}

	g := graph.NewStore()
	ix := NewIndexer(g, WithResultCache(results))

	_, err := ix.IndexUnits(context.Background(), units)
	require.NoError(t, err)
	hits, misses := results.Stats()
	assert.Equal(t, 0, hits)
	assert.Equal(t, 2, misses)

	_, err = ix.IndexUnits(context.Background(), units)
	require.NoError(t, err)
	hits, _ = results.Stats()
	assert.Equal(t, 2, hits)
}

func TestIndexer_PersistsThroughStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	store, err := storage.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	g := graph.NewStore()
	ix := NewIndexer(g, WithPersistence(store))

	_, err = ix.IndexUnits(context.Background(), []extractor.Unit{
		unit("p/A.java", `package p; class A extends B {}`),
		unit("p/B.java", `package p; class B {}`),
	})
	require.NoError(t, err)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, g.Stats(), loaded.Stats())

	require.NoError(t, ix.RemoveUnit(context.Background(), "p/B.java"))
	loaded, err = store.Load(context.Background())
	require.NoError(t, err)
	_, ok := loaded.ByQualifiedName("p.B")
	assert.False(t, ok)
}
