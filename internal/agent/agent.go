package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"javagent/internal/analysis"
	"javagent/internal/assembler"
	"javagent/internal/crawler"
	"javagent/internal/extractor"
	"javagent/internal/graph"
	"javagent/internal/index"
	"javagent/internal/llm"
	"javagent/internal/retrieval"
)

// RetryPolicy bounds oracle retries. Only transient failures retry;
// rejected content fails immediately.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 2 * time.Second}
}

// Status is a point-in-time view of the indexed project.
type Status struct {
	Stats      graph.Stats
	Unresolved []string
}

// Agent answers questions about an indexed Java codebase and drives code
// generation through the graph-grounded context pipeline.
type Agent struct {
	graph     *graph.Store
	retriever *retrieval.Retriever
	assembler *assembler.Assembler
	analyzer  *analysis.Analyzer
	indexer   *index.Indexer
	crawler   *crawler.Crawler
	retry     RetryPolicy
	logger    *slog.Logger
}

type Deps struct {
	Graph     *graph.Store
	Retriever *retrieval.Retriever
	Assembler *assembler.Assembler
	Analyzer  *analysis.Analyzer
	Indexer   *index.Indexer
	Retry     RetryPolicy
	Logger    *slog.Logger
}

func New(deps Deps) *Agent {
	if deps.Retry.Attempts < 1 {
		deps.Retry = DefaultRetryPolicy()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Agent{
		graph:     deps.Graph,
		retriever: deps.Retriever,
		assembler: deps.Assembler,
		analyzer:  deps.Analyzer,
		indexer:   deps.Indexer,
		crawler:   crawler.NewCrawler(),
		retry:     deps.Retry,
		logger:    deps.Logger,
	}
}

// IndexProject crawls the root and indexes every Java unit found.
func (a *Agent) IndexProject(ctx context.Context, root string) (*index.Summary, error) {
	units, err := a.crawler.CollectUnits(root)
	if err != nil {
		return nil, fmt.Errorf("failed to crawl %s: %w", root, err)
	}
	return a.indexer.IndexUnits(ctx, units)
}

// IndexUnits indexes pre-loaded units, bypassing the filesystem.
func (a *Agent) IndexUnits(ctx context.Context, units []extractor.Unit) (*index.Summary, error) {
	return a.indexer.IndexUnits(ctx, units)
}

// GetStatus reports graph size and outstanding unresolved references.
func (a *Agent) GetStatus() Status {
	return Status{
		Stats:      a.graph.Stats(),
		Unresolved: a.graph.UnresolvedNames(),
	}
}

// QueryCodebase answers a free-form question. Capitalized tokens in the
// question act as anchor candidates; Java type names are conventionally
// capitalized, so this picks up class references without any parsing of
// the question itself.
func (a *Agent) QueryCodebase(ctx context.Context, question string) (string, error) {
	res, err := a.retrieve(anchorCandidates(question))
	if err != nil {
		return "", err
	}
	if len(res.Entities) == 0 {
		return "Could not find any indexed classes matching the question. Mention a class or method name, or run the index command first.", nil
	}

	a.logger.Info("query", "anchors", len(res.Anchors), "entities", len(res.Entities))
	prompt := "Answer the question using only the code context below.\n\nQuestion: " + question
	return a.withRetry(ctx, func(ctx context.Context) (string, error) {
		return a.assembler.Ask(ctx, prompt, res)
	})
}

// GenerateCode produces Java code for the request, grounded in the
// neighborhood of any classes the request mentions.
func (a *Agent) GenerateCode(ctx context.Context, request string) (string, error) {
	res, err := a.retrieve(anchorCandidates(request))
	if err != nil {
		return "", err
	}

	prompt := "Write Java code for the following request. Follow the conventions " +
		"visible in the code context and reuse existing types where they fit.\n\nRequest: " + request
	return a.withRetry(ctx, func(ctx context.Context) (string, error) {
		return a.assembler.Ask(ctx, prompt, res)
	})
}

// AnalyzeProject summarizes the overall structure of the indexed project.
func (a *Agent) AnalyzeProject(ctx context.Context) (string, error) {
	stats := a.graph.Stats()
	if stats.Entities() == 0 {
		return "", fmt.Errorf("nothing indexed yet")
	}

	res, err := a.retrieve(a.topLevelTypeNames())
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(
		"Describe the architecture of this Java project: its main components and how they relate. "+
			"The index holds %d entities and %d relationships across %d source units.",
		stats.Entities(), stats.Edges, stats.Units)
	return a.withRetry(ctx, func(ctx context.Context) (string, error) {
		return a.assembler.Ask(ctx, prompt, res)
	})
}

// SuggestImprovements runs the structural rules and asks the oracle to
// turn the findings into actionable advice.
func (a *Agent) SuggestImprovements(ctx context.Context) (string, error) {
	report := a.analyzer.Analyze()
	if len(report.Findings) == 0 {
		return "No structural issues found.", nil
	}

	var sb strings.Builder
	sb.WriteString("Suggest concrete refactorings for these findings:\n")
	anchors := make([]string, 0, len(report.Findings))
	for _, f := range report.Findings {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", f.Rule, f.Subject, f.Detail)
		anchors = append(anchors, f.Subject)
	}

	res, err := a.retrieve(anchors)
	if err != nil {
		return "", err
	}

	return a.withRetry(ctx, func(ctx context.Context) (string, error) {
		return a.assembler.Ask(ctx, sb.String(), res)
	})
}

// retrieve runs the query, treating a descriptor with no anchors the
// same as one whose anchors resolve to nothing: no structural context.
func (a *Agent) retrieve(anchors []string) (*retrieval.Result, error) {
	if len(anchors) == 0 {
		return &retrieval.Result{}, nil
	}
	return a.retriever.Retrieve(retrieval.Query{Anchors: anchors})
}

// withRetry re-invokes fn while it fails with llm.ErrUnavailable, up to
// the policy's attempt budget. All other errors return immediately.
func (a *Agent) withRetry(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.retry.Attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, llm.ErrUnavailable) {
			return "", err
		}
		lastErr = err
		a.logger.Warn("oracle unavailable", "attempt", attempt, "error", err)

		if attempt == a.retry.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.retry.Backoff):
		}
	}
	return "", lastErr
}

func (a *Agent) topLevelTypeNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, c := range a.graph.Units() {
		for _, e := range c.Entities {
			if e.Kind.IsType() && !seen[e.QualifiedName] {
				seen[e.QualifiedName] = true
				names = append(names, e.QualifiedName)
			}
		}
	}
	sort.Strings(names)
	return names
}

// anchorCandidates extracts capitalized tokens from free-form text.
// Tokens that resolve to nothing are dropped later by the retriever.
func anchorCandidates(text string) []string {
	seen := map[string]bool{}
	var anchors []string
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '#' && r != '_'
	}) {
		tok = strings.Trim(tok, ".")
		if tok == "" || seen[tok] {
			continue
		}
		first := []rune(tok)[0]
		if !unicode.IsUpper(first) && !strings.Contains(tok, ".") {
			continue
		}
		seen[tok] = true
		anchors = append(anchors, tok)
	}
	return anchors
}
