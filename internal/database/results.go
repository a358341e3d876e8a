package database

import (
	"context"
	"database/sql"
	"sort"
)

// ReplaceLinks swaps the stored related-article lists for links in one
// transaction.
func (db *DB) ReplaceLinks(ctx context.Context, links []Link) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM article_links"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO article_links (article_id, rank, linked_id, score, method) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, l := range links {
		if _, err := stmt.ExecContext(ctx, l.ArticleID, l.Rank, l.LinkedID, l.Score, l.Method); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetLinks returns the stored links of an article by rank.
func (db *DB) GetLinks(articleID int64) ([]Link, error) {
	rows, err := db.conn.Query(
		`SELECT article_id, rank, linked_id, score, method FROM article_links
		WHERE article_id = ? ORDER BY rank`, articleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ArticleID, &l.Rank, &l.LinkedID, &l.Score, &l.Method); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// ReplaceImportance swaps the stored importance scores.
func (db *DB) ReplaceImportance(ctx context.Context, scores map[int64]float64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM article_importance"); err != nil {
		return err
	}
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO article_importance (article_id, score) VALUES (?, ?)", id, scores[id]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTopImportance returns the limit most important articles.
func (db *DB) GetTopImportance(limit int) ([]ScoredArticle, error) {
	rows, err := db.conn.Query(
		`SELECT a.id, a.url, a.title, a.source, a.published_date, a.content,
		a.location_mention, a.officials_involved, a.relevance_category, a.collected_at, i.score
		FROM articles a JOIN article_importance i ON a.id = i.article_id
		ORDER BY i.score DESC, a.id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredArticle
	for rows.Next() {
		var s ScoredArticle
		a := &s.Article
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.Source, &a.PublishedDate, &a.Content,
			&a.LocationMention, &a.OfficialsInvolved, &a.RelevanceCategory, &a.CollectedAt, &s.Score); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceClusters removes every stored cluster and inserts clusters,
// filling in their new IDs.
func (db *DB) ReplaceClusters(ctx context.Context, clusters []Cluster) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cluster_articles"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM clusters"); err != nil {
		return err
	}

	for i := range clusters {
		c := &clusters[i]
		result, err := tx.ExecContext(ctx,
			`INSERT INTO clusters (title, method, start_date, end_date, reference_count, priority)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.Title, c.Method, c.StartDate, c.EndDate, c.ReferenceCount, c.Priority,
		)
		if err != nil {
			return err
		}
		if c.ID, err = result.LastInsertId(); err != nil {
			return err
		}
		for _, aid := range c.ArticleIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO cluster_articles (cluster_id, article_id) VALUES (?, ?)", c.ID, aid); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// GetClusters returns clusters by priority, then size.
func (db *DB) GetClusters() ([]Cluster, error) {
	rows, err := db.conn.Query(
		`SELECT id, title, method, start_date, end_date, reference_count, priority, created_at
		FROM clusters ORDER BY priority DESC, reference_count DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		var c Cluster
		if err := rows.Scan(&c.ID, &c.Title, &c.Method, &c.StartDate, &c.EndDate,
			&c.ReferenceCount, &c.Priority, &c.CreatedAt); err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range clusters {
		if clusters[i].ArticleIDs, err = db.GetClusterArticleIDs(clusters[i].ID); err != nil {
			return nil, err
		}
	}
	return clusters, nil
}

// GetClusterArticleIDs returns the article IDs in a cluster.
func (db *DB) GetClusterArticleIDs(clusterID int64) ([]int64, error) {
	rows, err := db.conn.Query(
		"SELECT article_id FROM cluster_articles WHERE cluster_id = ? ORDER BY article_id", clusterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetClusterArticles returns the full articles in a cluster.
func (db *DB) GetClusterArticles(clusterID int64) ([]Article, error) {
	rows, err := db.conn.Query(
		`SELECT a.id, a.url, a.title, a.source, a.published_date, a.content,
		a.location_mention, a.officials_involved, a.relevance_category, a.collected_at
		FROM articles a JOIN cluster_articles ca ON a.id = ca.article_id
		WHERE ca.cluster_id = ? ORDER BY a.id`, clusterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// InsertIndexRun records a completed rebuild.
func (db *DB) InsertIndexRun(ctx context.Context, run IndexRun) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO index_runs (generation, article_count, edge_count, cluster_count, snapshot_path)
		VALUES (?, ?, ?, ?, ?)`,
		run.Generation, run.ArticleCount, run.EdgeCount, run.ClusterCount, run.SnapshotPath,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLatestIndexRun returns the most recent rebuild, or nil if none.
func (db *DB) GetLatestIndexRun() (*IndexRun, error) {
	var r IndexRun
	err := db.conn.QueryRow(
		`SELECT id, generation, article_count, edge_count, cluster_count, snapshot_path, built_at
		FROM index_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&r.ID, &r.Generation, &r.ArticleCount, &r.EdgeCount, &r.ClusterCount, &r.SnapshotPath, &r.BuiltAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM articles", &s.TotalArticles},
		{`SELECT COUNT(*) FROM articles WHERE COALESCE(location_mention, '') != ''
			OR COALESCE(officials_involved, '') != '' OR COALESCE(relevance_category, '') != ''`, &s.AnnotatedArticles},
		{"SELECT COUNT(DISTINCT article_id) FROM article_links", &s.LinkedArticles},
		{"SELECT COUNT(*) FROM article_importance", &s.RankedArticles},
		{"SELECT COUNT(*) FROM clusters", &s.Clusters},
		{"SELECT COUNT(*) FROM clusters WHERE priority > 0", &s.PrioritizedClusters},
		{"SELECT COUNT(*) FROM index_runs", &s.IndexRuns},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
