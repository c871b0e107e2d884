package analysis

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"javagent/internal/extractor"
	"javagent/internal/graph"
)

func buildGraph(t *testing.T, units map[string]string) *graph.Store {
	t.Helper()
	g := graph.NewStore()
	for id, src := range units {
		res, err := extractor.Extract(id, []byte(src))
		require.NoError(t, err)
		require.NoError(t, g.UpsertUnit(res.UnitID, res.Entities, res.Claims))
	}
	g.Promote()
	return g
}

func findingsFor(r *Report, rule string) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Rule == rule {
			out = append(out, f)
		}
	}
	return out
}

func TestAnalyzer_GodClass(t *testing.T) {
	var methods strings.Builder
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&methods, "void m%d() {}\n", i)
	}
	g := buildGraph(t, map[string]string{
		"p/Big.java":   `package p; class Big { ` + methods.String() + ` }`,
		"p/Small.java": `package p; class Small { void one() {} }`,
	})

	cfg := DefaultConfig()
	cfg.GodClassMembers = 5
	report := NewAnalyzer(g, cfg).Analyze()

	found := findingsFor(report, "god-class")
	require.Len(t, found, 1)
	assert.Equal(t, "p.Big", found[0].Subject)
	assert.Contains(t, found[0].Detail, "6 members")
}

func TestAnalyzer_DeepInheritance(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"p/A.java": `package p; class A extends B {}`,
		"p/B.java": `package p; class B extends C {}`,
		"p/C.java": `package p; class C extends D {}`,
		"p/D.java": `package p; class D {}`,
	})

	cfg := DefaultConfig()
	cfg.DeepInheritanceDepth = 3
	report := NewAnalyzer(g, cfg).Analyze()

	found := findingsFor(report, "deep-inheritance")
	require.Len(t, found, 1)
	assert.Equal(t, "p.A", found[0].Subject)
}

func TestAnalyzer_UnresolvedDependencies(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"p/A.java": `package p; class A extends Missing {}`,
	})

	report := NewAnalyzer(g, DefaultConfig()).Analyze()
	found := findingsFor(report, "unresolved-dependency")
	require.Len(t, found, 1)
	assert.Equal(t, "p.Missing", found[0].Subject)
}

func TestAnalyzer_CleanGraphIsQuiet(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"p/A.java": `package p; class A extends B { void m() {} }`,
		"p/B.java": `package p; class B {}`,
	})

	report := NewAnalyzer(g, DefaultConfig()).Analyze()
	assert.Empty(t, report.Findings)
}

func TestAnalyzer_Deterministic(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"p/A.java": `package p; class A extends X {}`,
		"p/B.java": `package p; class B extends Y {}`,
	})

	a := NewAnalyzer(g, DefaultConfig())
	first := a.Analyze()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, a.Analyze())
	}
}
