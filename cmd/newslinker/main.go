package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsLinker/internal/collect"
	"github.com/TobiSchelling/NewsLinker/internal/config"
	"github.com/TobiSchelling/NewsLinker/internal/database"
	"github.com/TobiSchelling/NewsLinker/internal/embed"
	"github.com/TobiSchelling/NewsLinker/internal/index"
	"github.com/TobiSchelling/NewsLinker/internal/logging"
	"github.com/TobiSchelling/NewsLinker/internal/pgstore"
	"github.com/TobiSchelling/NewsLinker/internal/pipeline"
	"github.com/TobiSchelling/NewsLinker/internal/report"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newslinker",
	Short:   "Related-article links, clusters and importance for a news corpus",
	Long:    "NewsLinker indexes collected news articles semantically and by keyword, links related stories, ranks them by importance and groups them into clusters.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup("INFO", verbose)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadEnv(); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Setup(cfg.Logging.Level, verbose)
		log.Debug("config loaded", "path", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(importanceCmd)
	rootCmd.AddCommand(reportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newslinker", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newslinker/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, the embedding provider and the article store.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Driver == "postgres" {
			fmt.Printf("Today: %s\n", database.GetToday())
			fmt.Printf("Store: postgres (connection from $%s)\n", cfg.Store.PostgresDSNEnv)
			fmt.Println("  Article and result counts live in postgres; 'newslinker index' writes them there.")
			fmt.Println("\nIndex:")
			printSnapshotStatus()
			return nil
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		schema, err := db.SchemaVersion()
		if err != nil {
			return err
		}

		fmt.Printf("Today: %s\n", database.GetToday())
		fmt.Printf("Store: %s (%s, schema v%d)\n\n", cfg.Store.Driver, db.Path(), schema)
		fmt.Println("Articles:")
		fmt.Printf("  Total collected: %d\n", stats.TotalArticles)
		fmt.Printf("  Annotated: %d\n", stats.AnnotatedArticles)
		fmt.Printf("  With links: %d\n", stats.LinkedArticles)
		fmt.Printf("  Ranked: %d\n", stats.RankedArticles)
		fmt.Println("\nClusters:")
		fmt.Printf("  Total: %d\n", stats.Clusters)
		fmt.Printf("  Prioritized: %d\n", stats.PrioritizedClusters)
		fmt.Println("\nIndex:")
		fmt.Printf("  Runs: %d\n", stats.IndexRuns)

		run, err := db.GetLatestIndexRun()
		if err != nil {
			return err
		}
		if run != nil {
			built := ""
			if run.BuiltAt != nil {
				built = *run.BuiltAt
			}
			fmt.Printf("  Latest: %s (%s, %d articles, %d edges)\n", run.Generation, built, run.ArticleCount, run.EdgeCount)
		}
		printSnapshotStatus()
		return nil
	},
}

func printSnapshotStatus() {
	if _, err := os.Stat(cfg.SnapshotPath()); err == nil {
		fmt.Printf("  Snapshot: %s\n", cfg.SnapshotPath())
	} else {
		fmt.Println("  Snapshot: none (run 'newslinker index')")
	}
}

// --- collect command ---

var collectDays int

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect articles from configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Collecting articles from feeds...")

		collector := collect.NewCollector(cfg, db, collectDays)
		result := collector.Collect(cmd.Context())

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New articles: %d\n", result.NewArticles)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		if result.Failed > 0 {
			fmt.Printf("  Failed: %d\n", result.Failed)
		}

		if len(result.Sources) > 0 {
			fmt.Println("\nArticles by source:")
			// Sort sources by count descending
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool {
				if sorted[i].val != sorted[j].val {
					return sorted[i].val > sorted[j].val
				}
				return sorted[i].key < sorted[j].key
			})
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().IntVar(&collectDays, "days-back", 1, "Only keep entries published within this many days")
}

// --- index command ---

var dryRun bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the index: load -> index -> link -> rank -> cluster -> snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		var embedder index.Embedder
		if !dryRun {
			if embedder, err = embed.CreateProvider(ctx, embeddingOptions()); err != nil {
				return err
			}
		}

		pipe := pipeline.New(cfg, store, embedder)

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(ctx)
		} else {
			result = pipe.Run(ctx)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/6: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			return fmt.Errorf("index run did not complete")
		}
		if !dryRun {
			fmt.Println("\nIndex complete! Try 'newslinker related <article-id>' or 'newslinker report'.")
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

// --- report command ---

var (
	reportHTML   bool
	reportOutput string
	reportLimit  int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a report of prioritized clusters and important articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reporter := report.NewReporter(db, reportLimit, reportLimit)
		var text string
		if reportHTML {
			text, err = reporter.HTML()
		} else {
			text, err = reporter.Markdown()
		}
		if err != nil {
			return err
		}

		if reportOutput == "" {
			fmt.Print(text)
			return nil
		}
		if err := os.WriteFile(reportOutput, []byte(text), 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("Report written to %s\n", reportOutput)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportHTML, "html", false, "Render HTML instead of markdown")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report to a file")
	reportCmd.Flags().IntVarP(&reportLimit, "top", "k", 10, "Clusters and articles to include")
}

var errPostgresStore = errors.New("this command works on the local SQLite store, but store.driver is postgres: articles and index results live in the postgres database")

// openDB opens the local SQLite store. It refuses when the configured store
// is postgres so that commands never read a stale local copy.
func openDB() (*database.DB, error) {
	if cfg.Store.Driver == "postgres" {
		return nil, errPostgresStore
	}
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DatabasePath())
}

// openStore returns the configured article store for index runs.
func openStore(ctx context.Context) (pipeline.Store, func(), error) {
	if cfg.Store.Driver == "postgres" {
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			return nil, nil, err
		}
		store, err := pgstore.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}

func embeddingOptions() embed.Options {
	e := cfg.Embedding
	return embed.Options{
		Provider:    e.Provider,
		Model:       e.Model,
		OllamaURL:   e.OllamaURL,
		OpenAIModel: e.OpenAIModel,
		OpenAIURL:   e.OpenAIURL,
		APIKeyEnv:   e.APIKeyEnv,
		BatchSize:   e.BatchSize,
		Concurrency: e.Concurrency,
	}
}
