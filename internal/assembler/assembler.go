package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"javagent/internal/graph"
	"javagent/internal/llm"
	"javagent/internal/retrieval"
)

// Config bounds the assembled context and the oracle call.
type Config struct {
	// MaxContextBytes caps the rendered context. Lowest scoring entities
	// drop first when the render would exceed it.
	MaxContextBytes int

	// OracleTimeout applies only at the external boundary. Local
	// rendering is bounded by input size and never times out.
	OracleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxContextBytes: 16 * 1024,
		OracleTimeout:   60 * time.Second,
	}
}

// Assembler turns a retrieved subgraph into a structured prompt and hands
// it to the generative oracle. It never mutates the graph and never
// retries: retry policy belongs to the caller.
type Assembler struct {
	client llm.Client
	cfg    Config
}

func NewAssembler(client llm.Client, cfg Config) *Assembler {
	if cfg.MaxContextBytes < 1 {
		cfg.MaxContextBytes = DefaultConfig().MaxContextBytes
	}
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = DefaultConfig().OracleTimeout
	}
	return &Assembler{client: client, cfg: cfg}
}

// Render serializes the subgraph and request into the prompt text.
// Entities appear signature-only, highest score first; when the cap would
// be exceeded, entities drop from the bottom of the ranking so the most
// relevant context always survives.
func (a *Assembler) Render(request string, res *retrieval.Result) string {
	entities := res.Entities
	for {
		out := render(request, entities, res.Edges)
		if len(out) <= a.cfg.MaxContextBytes || len(entities) == 0 {
			return out
		}
		entities = entities[:len(entities)-1]
	}
}

// Ask renders the context and performs a single oracle call under the
// configured timeout. Oracle errors propagate unwrapped so callers can
// match llm.ErrUnavailable and llm.ErrContentRejected.
func (a *Assembler) Ask(ctx context.Context, request string, res *retrieval.Result) (string, error) {
	prompt := a.Render(request, res)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.OracleTimeout)
	defer cancel()

	return a.client.Complete(ctx, prompt)
}

func render(request string, entities []retrieval.ScoredEntity, edges []graph.Edge) string {
	var sb strings.Builder
	sb.WriteString("# Request\n")
	sb.WriteString(strings.TrimSpace(request))
	sb.WriteString("\n\n# Code context\n")

	byID := make(map[string]graph.Entity, len(entities))
	for _, s := range entities {
		byID[s.Entity.ID] = s.Entity
		sb.WriteString(renderEntity(s))
	}

	if len(edges) > 0 {
		sb.WriteString("\n# Relationships\n")
		for _, e := range edges {
			from, okFrom := byID[e.From]
			to, okTo := byID[e.To]
			if !okFrom || !okTo {
				continue
			}
			fmt.Fprintf(&sb, "- %s %s %s\n", from.QualifiedName, e.Kind, to.QualifiedName)
		}
	}
	return sb.String()
}

func renderEntity(s retrieval.ScoredEntity) string {
	e := s.Entity
	var sb strings.Builder

	switch e.Kind {
	case graph.KindPackage:
		fmt.Fprintf(&sb, "- package %s\n", e.QualifiedName)
	case graph.KindUnresolved:
		fmt.Fprintf(&sb, "- %s (external, unresolved)\n", e.QualifiedName)
	default:
		sig := e.Signature
		if sig == "" {
			sig = e.Name
		}
		fmt.Fprintf(&sb, "- %s: %s\n", e.QualifiedName, sig)
		if doc := firstDocLine(e.Doc); doc != "" {
			fmt.Fprintf(&sb, "  %s\n", doc)
		}
	}
	return sb.String()
}

// firstDocLine strips comment markers and keeps the leading sentence.
func firstDocLine(doc string) string {
	doc = strings.TrimSpace(doc)
	doc = strings.TrimPrefix(doc, "/**")
	doc = strings.TrimPrefix(doc, "/*")
	doc = strings.TrimSuffix(doc, "*/")
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if line != "" {
			return line
		}
	}
	return ""
}
