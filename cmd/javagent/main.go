package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"javagent/internal/agent"
	"javagent/internal/analysis"
	"javagent/internal/assembler"
	"javagent/internal/cache"
	"javagent/internal/config"
	"javagent/internal/graph"
	"javagent/internal/index"
	"javagent/internal/llm"
	"javagent/internal/retrieval"
	"javagent/internal/storage"
)

var (
	rootCmd = &cobra.Command{
		Use:   "javagent",
		Short: "Graph-grounded AI agent for Java codebases",
	}
	dbPath     string
	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the knowledge graph database (SQLite)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(statusCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if dbPath != "" {
		cfg.Project.DB = dbPath
	}
	return cfg
}

// openGraph loads the persisted graph and wires the full pipeline.
func openGraph(ctx context.Context, cfg *config.Config) (*graph.Store, *storage.SQLiteStore) {
	store, err := storage.NewSQLiteStore(cfg.Project.DB)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", cfg.Project.DB, err)
	}

	g, err := store.Load(ctx)
	if err != nil {
		store.Close()
		log.Fatalf("Failed to load graph: %v", err)
	}
	return g, store
}

// newAgent wires the graph-side pipeline without an oracle client.
// index and status never talk to the model, so they work without an
// API key.
func newAgent(cfg *config.Config, g *graph.Store, store *storage.SQLiteStore) *agent.Agent {
	return buildAgent(cfg, g, store, nil)
}

// newOracleAgent additionally constructs the LLM client, for the
// commands that call the model.
func newOracleAgent(ctx context.Context, cfg *config.Config, g *graph.Store, store *storage.SQLiteStore) *agent.Agent {
	client, err := llm.NewClient(ctx, llm.Options{
		Provider:    cfg.AI.Provider,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		BaseURL:     cfg.AI.BaseURL,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}
	return buildAgent(cfg, g, store, client)
}

func buildAgent(cfg *config.Config, g *graph.Store, store *storage.SQLiteStore, client llm.Client) *agent.Agent {
	logger := newLogger()

	retriever := retrieval.NewRetriever(g, retrieval.Config{
		HopLimit:       cfg.Retrieval.HopLimit,
		Decay:          cfg.Retrieval.Decay,
		OwnershipBonus: cfg.Retrieval.OwnershipBonus,
		Cap:            cfg.Retrieval.Cap,
	})

	var asm *assembler.Assembler
	if client != nil {
		asm = assembler.NewAssembler(client, assembler.DefaultConfig())
	}

	return agent.New(agent.Deps{
		Graph:     g,
		Retriever: retriever,
		Assembler: asm,
		Analyzer:  analysis.NewAnalyzer(g, analysis.DefaultConfig()),
		Indexer: index.NewIndexer(g,
			index.WithWorkers(cfg.Index.Workers),
			index.WithPersistence(store),
			index.WithResultCache(cache.NewResultCache(cfg.Index.CacheSize)),
			index.WithLogger(logger)),
		Logger: logger,
	})
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a Java project into the knowledge graph",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		root := cfg.Project.Root
		if len(args) > 0 {
			root = args[0]
		}

		ctx := context.Background()
		g, store := openGraph(ctx, cfg)
		defer store.Close()

		fmt.Printf("📂 Indexing %s...\n", root)
		start := time.Now()

		a := newAgent(cfg, g, store)
		summary, err := a.IndexProject(ctx, root)
		if err != nil {
			log.Fatalf("Indexing failed: %v", err)
		}

		fmt.Printf("✅ Indexed %d units in %v (batch %s)\n", summary.Indexed, time.Since(start), summary.BatchID)
		if summary.Failed > 0 {
			fmt.Printf("⚠️  %d units failed:\n", summary.Failed)
			for _, d := range summary.Diagnostics {
				fmt.Printf("   - %s: %v\n", d.UnitID, d.Err)
			}
		}
		if summary.Unresolved > 0 {
			fmt.Printf("🔎 %d external references remain unresolved\n", summary.Unresolved)
		}
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question about the indexed codebase",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()
		g, store := openGraph(ctx, cfg)
		defer store.Close()

		a := newOracleAgent(ctx, cfg, g, store)
		answer, err := a.QueryCodebase(ctx, strings.Join(args, " "))
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		fmt.Println(answer)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <request>",
	Short: "Generate Java code grounded in the indexed codebase",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()
		g, store := openGraph(ctx, cfg)
		defer store.Close()

		a := newOracleAgent(ctx, cfg, g, store)
		code, err := a.GenerateCode(ctx, strings.Join(args, " "))
		if err != nil {
			log.Fatalf("Generation failed: %v", err)
		}
		fmt.Println(code)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize the architecture of the indexed project",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()
		g, store := openGraph(ctx, cfg)
		defer store.Close()

		a := newOracleAgent(ctx, cfg, g, store)
		out, err := a.AnalyzeProject(ctx)
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		fmt.Println(out)
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest improvements based on structural findings",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()
		g, store := openGraph(ctx, cfg)
		defer store.Close()

		a := newOracleAgent(ctx, cfg, g, store)
		out, err := a.SuggestImprovements(ctx)
		if err != nil {
			log.Fatalf("Suggestion failed: %v", err)
		}
		fmt.Println(out)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the size and health of the knowledge graph",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()
		g, store := openGraph(ctx, cfg)
		defer store.Close()

		a := newAgent(cfg, g, store)
		status := a.GetStatus()

		fmt.Printf("Units:        %d\n", status.Stats.Units)
		fmt.Printf("Entities:     %d\n", status.Stats.Entities())
		fmt.Printf("Edges:        %d\n", status.Stats.Edges)
		fmt.Printf("Unresolved:   %d\n", status.Stats.Unresolved)
		if len(status.Unresolved) > 0 {
			fmt.Println("\nUnresolved references:")
			for _, name := range status.Unresolved {
				fmt.Printf("  - %s\n", name)
			}
		}
	},
}
