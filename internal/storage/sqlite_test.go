package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"javagent/internal/graph"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func classContribution(unitID, pkg, name string, extra ...graph.Claim) graph.UnitContribution {
	qname := pkg + "." + name
	pkgID := graph.EntityID(graph.KindPackage, pkg)
	classID := graph.EntityID(graph.KindClass, qname)
	claims := append([]graph.Claim{
		{From: classID, Target: pkg, Kind: graph.RelDeclaredIn},
	}, extra...)
	return graph.UnitContribution{
		UnitID: unitID,
		Entities: []graph.Entity{
			{ID: pkgID, Kind: graph.KindPackage, Name: pkg, QualifiedName: pkg},
			{ID: classID, Kind: graph.KindClass, Name: name, QualifiedName: qname,
				Package: pkg, Modifiers: []string{"public"}, Signature: "public class " + name},
		},
		Claims: claims,
	}
}

func TestSQLiteStore_SaveUnitRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	classID := graph.EntityID(graph.KindClass, "p.A")
	contrib := classContribution("p/A.java", "p", "A",
		graph.Claim{From: classID, Target: "p.B", Kind: graph.RelExtends})
	require.NoError(t, store.SaveUnit(ctx, contrib))

	g, err := store.Load(ctx)
	require.NoError(t, err)

	a, ok := g.ByQualifiedName("p.A")
	require.True(t, ok)
	assert.Equal(t, graph.KindClass, a.Kind)
	assert.Equal(t, []string{"public"}, a.Modifiers)

	// The unresolved extends target comes back as a placeholder.
	assert.Equal(t, []string{"p.B"}, g.UnresolvedNames())
}

func TestSQLiteStore_SaveUnitReplacesPrevious(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	classID := graph.EntityID(graph.KindClass, "p.A")
	require.NoError(t, store.SaveUnit(ctx, classContribution("p/A.java", "p", "A",
		graph.Claim{From: classID, Target: "p.B", Kind: graph.RelExtends})))
	require.NoError(t, store.SaveUnit(ctx, classContribution("p/A.java", "p", "A",
		graph.Claim{From: classID, Target: "p.C", Kind: graph.RelExtends})))

	g, err := store.Load(ctx)
	require.NoError(t, err)

	// Only the latest contribution survives.
	assert.Equal(t, []string{"p.C"}, g.UnresolvedNames())

	ids, err := store.UnitIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p/A.java"}, ids)
}

func TestSQLiteStore_DeleteUnit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUnit(ctx, classContribution("p/A.java", "p", "A")))
	require.NoError(t, store.SaveUnit(ctx, classContribution("p/B.java", "p", "B")))
	require.NoError(t, store.DeleteUnit(ctx, "p/A.java"))

	g, err := store.Load(ctx)
	require.NoError(t, err)

	_, ok := g.ByQualifiedName("p.A")
	assert.False(t, ok)
	_, ok = g.ByQualifiedName("p.B")
	assert.True(t, ok)

	// Deleting an absent unit is not an error.
	require.NoError(t, store.DeleteUnit(ctx, "p/Missing.java"))
}

func TestSQLiteStore_LoadResolvesAcrossUnits(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	aID := graph.EntityID(graph.KindClass, "p.A")
	require.NoError(t, store.SaveUnit(ctx, classContribution("p/A.java", "p", "A",
		graph.Claim{From: aID, Target: "p.B", Kind: graph.RelDependsOn})))
	require.NoError(t, store.SaveUnit(ctx, classContribution("p/B.java", "p", "B")))

	g, err := store.Load(ctx)
	require.NoError(t, err)

	assert.Empty(t, g.UnresolvedNames())
	edges := g.Neighbors(aID, []graph.RelationKind{graph.RelDependsOn}, graph.DirOut)
	require.Len(t, edges, 1)
	assert.Equal(t, graph.EntityID(graph.KindClass, "p.B"), edges[0].To)
}

func TestSQLiteStore_SaveAll(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	g := graph.NewStore()
	a := classContribution("p/A.java", "p", "A")
	b := classContribution("p/B.java", "p", "B")
	require.NoError(t, g.UpsertUnit(a.UnitID, a.Entities, a.Claims))
	require.NoError(t, g.UpsertUnit(b.UnitID, b.Entities, b.Claims))

	require.NoError(t, store.SaveAll(ctx, g))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, g.Stats(), loaded.Stats())
}
