// Package pgstore reads the corpus from, and writes index results back to,
// a PostgreSQL article database with the layout used by the annotation
// pipeline: articles keyed by article_id, related IDs in an array column and
// clusters with comma-separated members and DD/MM/YYYY dates.
package pgstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TobiSchelling/NewsLinker/internal/database"
	"github.com/TobiSchelling/NewsLinker/internal/index"
)

// Store is a pooled connection to the article database.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and makes sure the result columns exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    article_id BIGINT PRIMARY KEY,
    title TEXT NOT NULL,
    body TEXT,
    source TEXT,
    published_date TEXT,
    location_mentions TEXT,
    officials_involved TEXT,
    relevance_category TEXT
);
ALTER TABLE articles ADD COLUMN IF NOT EXISTS linked_id BIGINT[];
ALTER TABLE articles ADD COLUMN IF NOT EXISTS importance DOUBLE PRECISION;

CREATE TABLE IF NOT EXISTS clusters (
    id SERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    linkedarticles TEXT,
    startdate TEXT,
    enddate TEXT,
    referencecount INTEGER DEFAULT 0,
    priority INTEGER DEFAULT 0
);
`

// EnsureSchema creates missing tables and result columns. Existing data is
// left alone.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring postgres schema: %w", err)
	}
	return nil
}

// LoadCorpus returns every article ordered by article_id.
func (s *Store) LoadCorpus(ctx context.Context) ([]index.Article, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT article_id, title, source, published_date,
		location_mentions, officials_involved, relevance_category
		FROM articles ORDER BY article_id`)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	defer rows.Close()

	var corpus []index.Article
	for rows.Next() {
		var a index.Article
		var source, published, loc, off, category *string
		if err := rows.Scan(&a.ID, &a.Title, &source, &published, &loc, &off, &category); err != nil {
			return nil, err
		}
		a.Source = deref(source)
		a.PublishedDate = deref(published)
		a.LocationMention = deref(loc)
		a.OfficialsInvolved = deref(off)
		a.RelevanceCategory = deref(category)
		corpus = append(corpus, a)
	}
	return corpus, rows.Err()
}

// ReplaceLinks rewrites every article's linked_id array.
func (s *Store) ReplaceLinks(ctx context.Context, links []database.Link) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "UPDATE articles SET linked_id = NULL"); err != nil {
		return err
	}
	grouped := groupLinks(links)
	batch := &pgx.Batch{}
	for _, id := range sortedKeys(grouped) {
		batch.Queue("UPDATE articles SET linked_id = $1 WHERE article_id = $2", grouped[id], id)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing links: %w", err)
	}
	log.Debug("links written to postgres", "articles", len(grouped))
	return tx.Commit(ctx)
}

// ReplaceImportance stores every score, clearing articles without one.
func (s *Store) ReplaceImportance(ctx context.Context, scores map[int64]float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "UPDATE articles SET importance = NULL"); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, id := range sortedKeys(scores) {
		batch.Queue("UPDATE articles SET importance = $1 WHERE article_id = $2", scores[id], id)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing importance: %w", err)
	}
	return tx.Commit(ctx)
}

// ReplaceClusters swaps the clusters table contents and fills in new IDs.
func (s *Store) ReplaceClusters(ctx context.Context, clusters []database.Cluster) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM clusters"); err != nil {
		return err
	}
	for i := range clusters {
		c := &clusters[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO clusters (title, linkedarticles, startdate, enddate, referencecount, priority)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			c.Title, joinIDs(c.ArticleIDs), dayMonthYear(c.StartDate), dayMonthYear(c.EndDate),
			c.ReferenceCount, c.Priority,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("inserting cluster %q: %w", c.Title, err)
		}
	}
	return tx.Commit(ctx)
}

func groupLinks(links []database.Link) map[int64][]int64 {
	sorted := append([]database.Link(nil), links...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ArticleID != sorted[j].ArticleID {
			return sorted[i].ArticleID < sorted[j].ArticleID
		}
		return sorted[i].Rank < sorted[j].Rank
	})
	out := make(map[int64][]int64)
	for _, l := range sorted {
		out[l.ArticleID] = append(out[l.ArticleID], l.LinkedID)
	}
	return out
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// dayMonthYear converts a YYYY-MM-DD date to the DD/MM/YYYY form the
// clusters table holds. Unparseable values pass through unchanged.
func dayMonthYear(date *string) *string {
	if date == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", *date)
	if err != nil {
		return date
	}
	s := t.Format("02/01/2006")
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
