package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"javagent/internal/analysis"
	"javagent/internal/assembler"
	"javagent/internal/extractor"
	"javagent/internal/graph"
	"javagent/internal/index"
	"javagent/internal/llm"
	"javagent/internal/retrieval"
)

type scriptedOracle struct {
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (s *scriptedOracle) Complete(ctx context.Context, prompt string) (string, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var reply string
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	return reply, err
}

func newAgent(t *testing.T, oracle llm.Client) *Agent {
	t.Helper()
	g := graph.NewStore()
	return New(Deps{
		Graph:     g,
		Retriever: retrieval.NewRetriever(g, retrieval.DefaultConfig()),
		Assembler: assembler.NewAssembler(oracle, assembler.DefaultConfig()),
		Analyzer:  analysis.NewAnalyzer(g, analysis.DefaultConfig()),
		Indexer:   index.NewIndexer(g),
		Retry:     RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
	})
}

func indexSource(t *testing.T, a *Agent, units map[string]string) {
	t.Helper()
	var batch []extractor.Unit
	for id, src := range units {
		batch = append(batch, extractor.Unit{ID: id, Source: []byte(src)})
	}
	summary, err := a.IndexUnits(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 0, summary.Failed)
}

func TestAgent_GetStatus(t *testing.T) {
	a := newAgent(t, &scriptedOracle{})
	indexSource(t, a, map[string]string{
		"p/A.java": `package p; class A extends Missing { void m() {} }`,
	})

	status := a.GetStatus()
	assert.Equal(t, 1, status.Stats.Units)
	assert.Greater(t, status.Stats.Entities(), 0)
	assert.Equal(t, []string{"p.Missing"}, status.Unresolved)
}

func TestAgent_IndexAndStatusNeedNoOracle(t *testing.T) {
	g := graph.NewStore()
	a := New(Deps{
		Graph:     g,
		Retriever: retrieval.NewRetriever(g, retrieval.DefaultConfig()),
		Analyzer:  analysis.NewAnalyzer(g, analysis.DefaultConfig()),
		Indexer:   index.NewIndexer(g),
	})

	indexSource(t, a, map[string]string{
		"p/A.java": `package p; class A { void m() {} }`,
	})

	status := a.GetStatus()
	assert.Equal(t, 1, status.Stats.Units)
	assert.Greater(t, status.Stats.Entities(), 0)
}

func TestAgent_QueryCodebase(t *testing.T) {
	oracle := &scriptedOracle{replies: []string{"OrderService validates and saves orders."}}
	a := newAgent(t, oracle)
	indexSource(t, a, map[string]string{
		"svc/OrderService.java": `package svc; public class OrderService { void save() {} }`,
	})

	out, err := a.QueryCodebase(context.Background(), "What does OrderService do?")
	require.NoError(t, err)
	assert.Equal(t, "OrderService validates and saves orders.", out)

	require.Equal(t, 1, oracle.calls)
	assert.Contains(t, oracle.prompts[0], "What does OrderService do?")
	assert.Contains(t, oracle.prompts[0], "svc.OrderService")
}

func TestAgent_QueryCodebaseNoAnchors(t *testing.T) {
	oracle := &scriptedOracle{}
	a := newAgent(t, oracle)
	indexSource(t, a, map[string]string{
		"p/A.java": `package p; class A {}`,
	})

	out, err := a.QueryCodebase(context.Background(), "what is this thing about?")
	require.NoError(t, err)
	assert.Contains(t, out, "Could not find any indexed classes")
	assert.Equal(t, 0, oracle.calls)

	// A mentioned class that was never indexed behaves the same.
	out, err = a.QueryCodebase(context.Background(), "What does PaymentGateway do?")
	require.NoError(t, err)
	assert.Contains(t, out, "Could not find any indexed classes")
	assert.Equal(t, 0, oracle.calls)
}

func TestAgent_GenerateCodeRetriesUnavailable(t *testing.T) {
	oracle := &scriptedOracle{
		errs:    []error{llm.ErrUnavailable, llm.ErrUnavailable, nil},
		replies: []string{"", "", "class OrderValidator {}"},
	}
	a := newAgent(t, oracle)
	indexSource(t, a, map[string]string{
		"svc/Order.java": `package svc; class Order {}`,
	})

	out, err := a.GenerateCode(context.Background(), "Add a validator for Order")
	require.NoError(t, err)
	assert.Equal(t, "class OrderValidator {}", out)
	assert.Equal(t, 3, oracle.calls)
}

func TestAgent_GenerateCodeDoesNotRetryRejection(t *testing.T) {
	oracle := &scriptedOracle{errs: []error{llm.ErrContentRejected}}
	a := newAgent(t, oracle)
	indexSource(t, a, map[string]string{
		"p/A.java": `package p; class A {}`,
	})

	_, err := a.GenerateCode(context.Background(), "Extend A")
	assert.ErrorIs(t, err, llm.ErrContentRejected)
	assert.Equal(t, 1, oracle.calls)
}

func TestAgent_GenerateCodeExhaustsRetries(t *testing.T) {
	oracle := &scriptedOracle{
		errs: []error{llm.ErrUnavailable, llm.ErrUnavailable, llm.ErrUnavailable},
	}
	a := newAgent(t, oracle)
	indexSource(t, a, map[string]string{
		"p/A.java": `package p; class A {}`,
	})

	_, err := a.GenerateCode(context.Background(), "Extend A")
	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.Equal(t, 3, oracle.calls)
}

func TestAgent_AnalyzeProject(t *testing.T) {
	oracle := &scriptedOracle{replies: []string{"Layered service architecture."}}
	a := newAgent(t, oracle)
	indexSource(t, a, map[string]string{
		"svc/OrderService.java": `package svc; class OrderService {}`,
		"repo/OrderRepo.java":   `package repo; class OrderRepo {}`,
	})

	out, err := a.AnalyzeProject(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Layered service architecture.", out)
	assert.Contains(t, oracle.prompts[0], "svc.OrderService")
	assert.Contains(t, oracle.prompts[0], "repo.OrderRepo")
}

func TestAgent_AnalyzeProjectEmptyIndex(t *testing.T) {
	a := newAgent(t, &scriptedOracle{})
	_, err := a.AnalyzeProject(context.Background())
	assert.Error(t, err)
}

func TestAgent_SuggestImprovementsCleanGraph(t *testing.T) {
	oracle := &scriptedOracle{}
	a := newAgent(t, oracle)
	indexSource(t, a, map[string]string{
		"p/A.java": `package p; class A { void m() {} }`,
	})

	out, err := a.SuggestImprovements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No structural issues found.", out)
	assert.Equal(t, 0, oracle.calls)
}

func TestAgent_SuggestImprovementsWithFindings(t *testing.T) {
	oracle := &scriptedOracle{replies: []string{"Declare the missing type or add the dependency."}}
	a := newAgent(t, oracle)
	indexSource(t, a, map[string]string{
		"p/A.java": `package p; class A extends Missing {}`,
	})

	out, err := a.SuggestImprovements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Declare the missing type or add the dependency.", out)
	assert.Contains(t, oracle.prompts[0], "unresolved-dependency")
	assert.Contains(t, oracle.prompts[0], "p.Missing")
}

func TestAnchorCandidates(t *testing.T) {
	anchors := anchorCandidates("What does the OrderService do with svc.OrderRepo?")
	assert.Contains(t, anchors, "OrderService")
	assert.Contains(t, anchors, "svc.OrderRepo")
	assert.NotContains(t, anchors, "does")

	assert.Empty(t, anchorCandidates("nothing capitalized here"))
}
