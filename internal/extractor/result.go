package extractor

import "javagent/internal/graph"

// Unit is one source file's worth of input: a stable logical identifier and
// the raw source text. Units are handed to the extractor by an external
// walker; the extractor never touches the filesystem itself.
type Unit struct {
	ID     string
	Source []byte
}

// Result is the self-contained outcome of extracting a single unit: the
// entities the unit declares and the relationship claims it implies. Claims
// whose targets are not declared in this unit carry name-only targets that
// the graph store resolves or parks as placeholders.
type Result struct {
	UnitID   string
	Package  string
	Entities []graph.Entity
	Claims   []graph.Claim
}
