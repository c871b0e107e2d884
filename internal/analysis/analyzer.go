package analysis

import (
	"fmt"
	"sort"

	"javagent/internal/graph"
)

// Finding is one structural issue detected in the graph.
type Finding struct {
	Rule    string
	Subject string
	Detail  string
}

// Report groups findings by rule, in deterministic order.
type Report struct {
	Findings []Finding
}

// Config holds the rule thresholds.
type Config struct {
	GodClassMembers      int
	DeepInheritanceDepth int
}

func DefaultConfig() Config {
	return Config{
		GodClassMembers:      20,
		DeepInheritanceDepth: 4,
	}
}

// Analyzer runs a fixed set of structural rules over the graph: god
// classes, deep inheritance chains and unresolved dependencies.
type Analyzer struct {
	g   *graph.Store
	cfg Config
}

func NewAnalyzer(g *graph.Store, cfg Config) *Analyzer {
	if cfg.GodClassMembers < 1 {
		cfg.GodClassMembers = DefaultConfig().GodClassMembers
	}
	if cfg.DeepInheritanceDepth < 1 {
		cfg.DeepInheritanceDepth = DefaultConfig().DeepInheritanceDepth
	}
	return &Analyzer{g: g, cfg: cfg}
}

// Analyze runs every rule and returns the combined report.
func (a *Analyzer) Analyze() *Report {
	var findings []Finding
	findings = append(findings, a.godClasses()...)
	findings = append(findings, a.deepInheritance()...)
	findings = append(findings, a.unresolvedDependencies()...)

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Rule != findings[j].Rule {
			return findings[i].Rule < findings[j].Rule
		}
		return findings[i].Subject < findings[j].Subject
	})
	return &Report{Findings: findings}
}

func (a *Analyzer) godClasses() []Finding {
	var findings []Finding
	for _, e := range a.typeEntities() {
		members := len(a.g.Neighbors(e.ID, []graph.RelationKind{graph.RelHasMethod, graph.RelHasField}, graph.DirOut))
		if members >= a.cfg.GodClassMembers {
			findings = append(findings, Finding{
				Rule:    "god-class",
				Subject: e.QualifiedName,
				Detail:  fmt.Sprintf("%d members, threshold %d", members, a.cfg.GodClassMembers),
			})
		}
	}
	return findings
}

func (a *Analyzer) deepInheritance() []Finding {
	var findings []Finding
	for _, e := range a.typeEntities() {
		depth := a.inheritanceDepth(e.ID, map[string]bool{})
		if depth >= a.cfg.DeepInheritanceDepth {
			findings = append(findings, Finding{
				Rule:    "deep-inheritance",
				Subject: e.QualifiedName,
				Detail:  fmt.Sprintf("chain depth %d, threshold %d", depth, a.cfg.DeepInheritanceDepth),
			})
		}
	}
	return findings
}

// inheritanceDepth follows EXTENDS upward. The visited set guards against
// cycles, which malformed input can produce.
func (a *Analyzer) inheritanceDepth(id string, visited map[string]bool) int {
	if visited[id] {
		return 0
	}
	visited[id] = true

	best := 0
	for _, e := range a.g.Neighbors(id, []graph.RelationKind{graph.RelExtends}, graph.DirOut) {
		if d := 1 + a.inheritanceDepth(e.To, visited); d > best {
			best = d
		}
	}
	return best
}

func (a *Analyzer) unresolvedDependencies() []Finding {
	var findings []Finding
	for _, name := range a.g.UnresolvedNames() {
		findings = append(findings, Finding{
			Rule:    "unresolved-dependency",
			Subject: name,
			Detail:  "referenced but never declared in the indexed units",
		})
	}
	return findings
}

func (a *Analyzer) typeEntities() []graph.Entity {
	var out []graph.Entity
	for _, c := range a.g.Units() {
		for _, e := range c.Entities {
			if e.Kind.IsType() {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName < out[j].QualifiedName
	})
	return out
}
