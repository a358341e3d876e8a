package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsLinker/internal/cluster"
	"github.com/TobiSchelling/NewsLinker/internal/index"
	"github.com/TobiSchelling/NewsLinker/internal/pipeline"
)

func loadSnapshot(ctx context.Context) (*index.Snapshot, error) {
	path := cfg.SnapshotPath()
	snap, err := index.Load(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no snapshot at %s; run 'newslinker index' first", path)
		}
		return nil, err
	}
	return snap, nil
}

// --- related command ---

var (
	relatedMethod string
	relatedK      int
	relatedWeight float64
	relatedText   string
)

var relatedCmd = &cobra.Command{
	Use:   "related [article-id]",
	Short: "List the articles most related to an article or to free text",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if relatedText == "" && len(args) == 0 {
			return fmt.Errorf("give an article ID or --text")
		}
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		if relatedText != "" {
			fmt.Printf("Keyword matches for %q:\n", relatedText)
			printMatches(snap, snap.QueryKeywordText(relatedText, relatedK))
			return nil
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid article ID: %s", args[0])
		}
		h, ok := snap.HandleOf(id)
		if !ok {
			return fmt.Errorf("article %d is not in the index", id)
		}
		method, err := index.ParseMethod(relatedMethod)
		if err != nil {
			return err
		}
		weight := relatedWeight
		if !cmd.Flags().Changed("weight") {
			weight = cfg.Index.SemanticWeight
		}

		matches, err := snap.Related(method, h, relatedK, weight)
		if err != nil {
			return err
		}
		a, _ := snap.Article(h)
		fmt.Printf("[%d] %s\n\nRelated (%s):\n", a.ID, a.Title, method)
		printMatches(snap, matches)
		return nil
	},
}

func init() {
	relatedCmd.Flags().StringVarP(&relatedMethod, "method", "m", "semantic", "semantic, keyword, hybrid or graph")
	relatedCmd.Flags().IntVarP(&relatedK, "top", "k", 5, "Number of results")
	relatedCmd.Flags().Float64Var(&relatedWeight, "weight", index.DefaultSemanticWeight, "Semantic weight for hybrid search")
	relatedCmd.Flags().StringVar(&relatedText, "text", "", "Search by free text instead of an article")
}

func printMatches(snap *index.Snapshot, matches index.Matches) {
	if len(matches) == 0 {
		fmt.Println("  (none)")
		return
	}
	for i, m := range matches {
		a, err := snap.Article(m.Handle)
		if err != nil {
			continue
		}
		fmt.Printf("  %d. [%d] %s (%.4f)\n", i+1, a.ID, a.Title, m.Score)
	}
}

// --- clusters command ---

var (
	clusterSpace string
	clusterN     int
	clusterWard  float64
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Detect clusters in the saved snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		cc := cfg.Clustering
		if cmd.Flags().Changed("method") {
			cc.Method = clusterSpace
		}
		if cmd.Flags().Changed("n-clusters") {
			cc.NClusters = clusterN
		}
		if cmd.Flags().Changed("ward") {
			cc.WardThreshold = clusterWard
		}
		space, err := index.ParseFeatureSpace(cc.Method)
		if err != nil {
			return err
		}
		partitioner, name := pipeline.Partitioner(cc)

		assignment := snap.Partition(space, partitioner)
		clusters := cluster.Summarize(snap, assignment, name, cc.PrioritySlots)

		fmt.Printf("%d clusters (%s over %s features)\n\n", len(clusters), name, space)
		for _, c := range clusters {
			span := ""
			if c.StartDate != nil {
				span = fmt.Sprintf(" %s..%s", *c.StartDate, *c.EndDate)
			}
			fmt.Printf("  [p%d] %s: %d articles%s\n", c.Priority, c.Title, c.ReferenceCount, span)
			fmt.Printf("        %v\n", c.ArticleIDs)
		}
		if noise := assignment[index.NoiseLabel]; len(noise) > 0 {
			fmt.Printf("\n  %d articles not in any cluster\n", len(noise))
		}
		return nil
	},
}

func init() {
	clustersCmd.Flags().StringVarP(&clusterSpace, "method", "m", "semantic", "Feature space: semantic or tfidf")
	clustersCmd.Flags().IntVarP(&clusterN, "n-clusters", "n", 0, "Number of k-means clusters (0 runs DBSCAN)")
	clustersCmd.Flags().Float64Var(&clusterWard, "ward", 0, "Run Ward clustering cut at this distance")
}

// --- importance command ---

var importanceK int

var importanceCmd = &cobra.Command{
	Use:   "importance",
	Short: "List the most important articles by PageRank",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		ranked := snap.TopImportance(importanceK)
		fmt.Printf("Top %d of %d articles (%d graph edges):\n", len(ranked), snap.Len(), snap.EdgeCount())
		printMatches(snap, ranked)
		return nil
	},
}

func init() {
	importanceCmd.Flags().IntVarP(&importanceK, "top", "k", 10, "Number of articles")
}
