package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"javagent/internal/cache"
	"javagent/internal/extractor"
	"javagent/internal/graph"
	"javagent/internal/storage"
)

// Diagnostic records one unit that could not be indexed.
type Diagnostic struct {
	UnitID string
	Err    error
}

// Summary reports the outcome of one indexing batch.
type Summary struct {
	BatchID     string
	Indexed     int
	Failed      int
	Unresolved  int
	Promoted    int
	Diagnostics []Diagnostic
}

// Indexer runs extraction across a batch of units with a bounded worker
// pool and applies each result to the graph. Unit failures are collected,
// never fatal: one broken file costs exactly that file.
type Indexer struct {
	graph   *graph.Store
	persist *storage.SQLiteStore
	results *cache.ResultCache
	workers int
	logger  *slog.Logger
}

type Option func(*Indexer)

// WithWorkers bounds extraction concurrency. Values below 1 fall back to
// the default.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n >= 1 {
			ix.workers = n
		}
	}
}

// WithPersistence writes each successfully applied unit through to disk.
func WithPersistence(s *storage.SQLiteStore) Option {
	return func(ix *Indexer) {
		ix.persist = s
	}
}

// WithResultCache reuses extraction results for units whose content has
// not changed since the last pass.
func WithResultCache(c *cache.ResultCache) Option {
	return func(ix *Indexer) {
		ix.results = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		ix.logger = l
	}
}

func NewIndexer(g *graph.Store, opts ...Option) *Indexer {
	ix := &Indexer{
		graph:   g,
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// IndexUnits extracts and applies a batch of units. Extraction runs
// concurrently; graph application is serialized through the store's own
// locking. Returns an error only when the context is cancelled.
func (ix *Indexer) IndexUnits(ctx context.Context, units []extractor.Unit) (*Summary, error) {
	summary := &Summary{BatchID: uuid.NewString()}
	ix.logger.Info("indexing batch", "batch", summary.BatchID, "units", len(units), "workers", ix.workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	for _, unit := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := ix.extract(unit)
			if err == nil {
				err = ix.apply(gctx, res)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Diagnostics = append(summary.Diagnostics, Diagnostic{UnitID: unit.ID, Err: err})
				ix.logger.Warn("unit failed", "unit", unit.ID, "error", err)
				return nil
			}
			summary.Indexed++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	// Late arrivals may resolve names that earlier units left dangling.
	summary.Promoted = ix.graph.Promote()
	summary.Unresolved = len(ix.graph.UnresolvedNames())

	sort.Slice(summary.Diagnostics, func(i, j int) bool {
		return summary.Diagnostics[i].UnitID < summary.Diagnostics[j].UnitID
	})

	ix.logger.Info("batch complete", "batch", summary.BatchID,
		"indexed", summary.Indexed, "failed", summary.Failed,
		"promoted", summary.Promoted, "unresolved", summary.Unresolved)
	return summary, nil
}

func (ix *Indexer) extract(unit extractor.Unit) (*extractor.Result, error) {
	if ix.results == nil {
		return extractor.Extract(unit.ID, unit.Source)
	}

	key := cache.Key(unit.ID, unit.Source)
	if res, ok := ix.results.Get(key); ok {
		return res, nil
	}
	res, err := extractor.Extract(unit.ID, unit.Source)
	if err != nil {
		return nil, err
	}
	ix.results.Put(key, res)
	return res, nil
}

func (ix *Indexer) apply(ctx context.Context, res *extractor.Result) error {
	if err := ix.graph.UpsertUnit(res.UnitID, res.Entities, res.Claims); err != nil {
		return fmt.Errorf("failed to apply unit %s: %w", res.UnitID, err)
	}
	if ix.persist != nil {
		return ix.persist.SaveUnit(ctx, graph.UnitContribution{
			UnitID:   res.UnitID,
			Entities: res.Entities,
			Claims:   res.Claims,
		})
	}
	return nil
}

// RemoveUnit retracts a unit from the graph and from disk.
func (ix *Indexer) RemoveUnit(ctx context.Context, unitID string) error {
	ix.graph.RemoveUnit(unitID)
	if ix.persist != nil {
		return ix.persist.DeleteUnit(ctx, unitID)
	}
	return nil
}
