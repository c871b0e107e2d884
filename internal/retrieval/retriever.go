package retrieval

import (
	"errors"
	"math"
	"sort"

	"javagent/internal/graph"
)

// ErrEmptyQuery marks a malformed query descriptor: one carrying no
// anchors at all. Anchors that simply fail to resolve are not an error;
// they yield an empty result.
var ErrEmptyQuery = errors.New("retrieval: query has no anchors")

// Config controls neighborhood expansion and scoring.
type Config struct {
	HopLimit       int
	Decay          float64
	OwnershipBonus float64
	Cap            int
	AllowedKinds   map[graph.RelationKind]bool
}

func DefaultConfig() Config {
	return Config{
		HopLimit:       2,
		Decay:          0.5,
		OwnershipBonus: 0.15,
		Cap:            32,
	}
}

// Query names the starting points of an expansion. Anchors may be
// qualified names, simple names or entity IDs; unresolvable anchors are
// skipped.
type Query struct {
	Anchors []string
}

// ScoredEntity is one retrieved entity with its relevance score and the
// hop distance at which it was first reached.
type ScoredEntity struct {
	Entity graph.Entity
	Score  float64
	Hops   int
}

// Result is a scored, capped neighborhood around the query anchors.
// Edges cover only pairs where both endpoints were selected.
type Result struct {
	Anchors   []string
	Entities  []ScoredEntity
	Edges     []graph.Edge
	Truncated bool
}

type Retriever struct {
	graph *graph.Store
	cfg   Config
}

func NewRetriever(g *graph.Store, cfg Config) *Retriever {
	if cfg.HopLimit < 0 {
		cfg.HopLimit = 0
	}
	if cfg.Cap < 1 {
		cfg.Cap = DefaultConfig().Cap
	}
	return &Retriever{graph: g, cfg: cfg}
}

type visit struct {
	hops      int
	ownership bool
}

// Retrieve expands outward from the query anchors up to the hop limit and
// returns the highest scoring entities. Scores depend only on graph
// structure, so retrieval never mutates the store and repeated calls give
// identical results.
func (r *Retriever) Retrieve(q Query) (*Result, error) {
	if len(q.Anchors) == 0 {
		return nil, ErrEmptyQuery
	}

	anchorIDs := r.resolveAnchors(q.Anchors)
	if len(anchorIDs) == 0 {
		// No structural context available. Callers distinguish this from
		// an error by the empty entity set.
		return &Result{}, nil
	}

	visited := map[string]visit{}
	frontier := make([]string, 0, len(anchorIDs))
	for _, id := range anchorIDs {
		visited[id] = visit{hops: 0}
		frontier = append(frontier, id)
	}

	// Level-order expansion keeps hop counts minimal without a priority
	// queue. The ownership flag records whether any shortest arrival used
	// a HAS_METHOD or HAS_FIELD edge.
	for hops := 1; hops <= r.cfg.HopLimit && len(frontier) > 0; hops++ {
		var next []string
		for _, id := range frontier {
			for _, e := range r.graph.Neighbors(id, r.allowedKinds(), graph.DirBoth) {
				other := e.To
				if other == id {
					other = e.From
				}
				ownership := isOwnership(e.Kind)
				v, seen := visited[other]
				switch {
				case !seen:
					visited[other] = visit{hops: hops, ownership: ownership}
					next = append(next, other)
				case v.hops == hops && ownership && !v.ownership:
					visited[other] = visit{hops: hops, ownership: true}
				}
			}
		}
		frontier = next
	}

	scored := make([]ScoredEntity, 0, len(visited))
	for id, v := range visited {
		entity, ok := r.graph.Lookup(id)
		if !ok {
			continue
		}
		score := math.Pow(r.cfg.Decay, float64(v.hops))
		if v.ownership {
			score += r.cfg.OwnershipBonus
		}
		scored = append(scored, ScoredEntity{Entity: entity, Score: score, Hops: v.hops})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Hops != scored[j].Hops {
			return scored[i].Hops < scored[j].Hops
		}
		return scored[i].Entity.QualifiedName < scored[j].Entity.QualifiedName
	})

	truncated := false
	if len(scored) > r.cfg.Cap {
		scored = scored[:r.cfg.Cap]
		truncated = true
	}

	return &Result{
		Anchors:   anchorIDs,
		Entities:  scored,
		Edges:     r.edgesBetween(scored),
		Truncated: truncated,
	}, nil
}

// Expansion follows structural and ownership edges. DECLARED_IN stays
// out: hopping through a package would pull in every sibling type.
var defaultExpansionKinds = []graph.RelationKind{
	graph.RelDependsOn,
	graph.RelExtends,
	graph.RelHasField,
	graph.RelHasMethod,
	graph.RelImplements,
}

func (r *Retriever) allowedKinds() []graph.RelationKind {
	if r.cfg.AllowedKinds == nil {
		return defaultExpansionKinds
	}
	kinds := make([]graph.RelationKind, 0, len(r.cfg.AllowedKinds))
	for k, ok := range r.cfg.AllowedKinds {
		if ok {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// resolveAnchors accepts qualified names, entity IDs and unique simple
// names, in that order of preference. Duplicates collapse.
func (r *Retriever) resolveAnchors(anchors []string) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, anchor := range anchors {
		if anchor == "" {
			continue
		}
		if e, ok := r.graph.ByQualifiedName(anchor); ok {
			add(e.ID)
			continue
		}
		if _, ok := r.graph.Lookup(anchor); ok {
			add(anchor)
			continue
		}
		for _, e := range r.graph.ByName(anchor) {
			add(e.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Retriever) edgesBetween(selected []ScoredEntity) []graph.Edge {
	inSet := make(map[string]bool, len(selected))
	for _, s := range selected {
		inSet[s.Entity.ID] = true
	}

	var edges []graph.Edge
	for _, e := range r.graph.Edges() {
		if inSet[e.From] && inSet[e.To] {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
	return edges
}

func isOwnership(kind graph.RelationKind) bool {
	return kind == graph.RelHasMethod || kind == graph.RelHasField
}
