// Package collect pulls articles from RSS/Atom feeds into the article store.
package collect

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/TobiSchelling/NewsLinker/internal/config"
	"github.com/TobiSchelling/NewsLinker/internal/database"
)

// Result holds the results of a collection run.
type Result struct {
	TotalFound  int
	NewArticles int
	Duplicates  int
	Failed      int
	Sources     map[string]int
}

// Collector stores feed entries as articles.
type Collector struct {
	db         *database.DB
	feedParser *FeedParser
	daysBack   int
}

// NewCollector creates a collector over the configured feeds.
func NewCollector(cfg *config.Config, db *database.DB, daysBack int) *Collector {
	feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
	for i, f := range cfg.Sources.Feeds {
		feeds[i] = FeedConfig{URL: f.URL, Name: f.Name, Category: f.Category}
	}
	return &Collector{
		db:         db,
		feedParser: NewFeedParser(feeds),
		daysBack:   daysBack,
	}
}

// Collect fetches every feed and inserts the entries it has not seen. New
// articles with a category are annotated with it.
func (c *Collector) Collect(ctx context.Context) *Result {
	r := &Result{Sources: make(map[string]int)}

	log.Info("collecting from feeds", "feeds", len(c.feedParser.feeds), "days", c.daysBack)
	entries := c.feedParser.ParseAll(ctx, c.daysBack)
	r.TotalFound = len(entries)

	for _, entry := range entries {
		id, err := c.db.InsertArticle(entry.URL, entry.Title,
			optional(entry.Source), optional(entry.PublishedDate), optional(entry.Content))
		if err != nil {
			log.Warn("storing article failed", "url", entry.URL, "err", err)
			r.Failed++
			continue
		}
		if id == 0 {
			r.Duplicates++
			continue
		}
		r.NewArticles++
		r.Sources[entry.Source]++

		if entry.Category != "" {
			if err := c.db.AnnotateArticle(id, nil, nil, &entry.Category); err != nil {
				log.Warn("annotating article failed", "id", id, "err", err)
			}
		}
	}

	log.Info("collection complete", "found", r.TotalFound, "new", r.NewArticles, "duplicates", r.Duplicates)
	return r
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
