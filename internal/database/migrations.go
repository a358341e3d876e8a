package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "article store",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    source TEXT,
    published_date TEXT,
    content TEXT,
    collected_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_articles_url ON articles(url);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_date);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "annotation columns",
		Up: func(tx *sql.Tx) error {
			for _, col := range []string{"location_mention", "officials_involved", "relevance_category"} {
				if err := addColumnIfMissing(tx, "articles", col, "TEXT"); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "links, importance, clusters and index runs",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS article_links (
    article_id INTEGER NOT NULL REFERENCES articles(id),
    rank INTEGER NOT NULL,
    linked_id INTEGER NOT NULL REFERENCES articles(id),
    score REAL NOT NULL,
    method TEXT NOT NULL,
    PRIMARY KEY (article_id, rank)
);

CREATE TABLE IF NOT EXISTS article_importance (
    article_id INTEGER PRIMARY KEY REFERENCES articles(id),
    score REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS clusters (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    method TEXT NOT NULL,
    start_date TEXT,
    end_date TEXT,
    reference_count INTEGER DEFAULT 0,
    priority INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cluster_articles (
    cluster_id INTEGER NOT NULL REFERENCES clusters(id),
    article_id INTEGER NOT NULL REFERENCES articles(id),
    PRIMARY KEY (cluster_id, article_id)
);

CREATE TABLE IF NOT EXISTS index_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    generation TEXT UNIQUE NOT NULL,
    article_count INTEGER DEFAULT 0,
    edge_count INTEGER DEFAULT 0,
    cluster_count INTEGER DEFAULT 0,
    snapshot_path TEXT,
    built_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_article_links_linked ON article_links(linked_id);
CREATE INDEX IF NOT EXISTS idx_clusters_priority ON clusters(priority);
`)
			return err
		},
	},
}

// addColumnIfMissing keeps ALTER TABLE re-runnable; SQLite has no
// ADD COLUMN IF NOT EXISTS.
func addColumnIfMissing(tx *sql.Tx, table, column, decl string) error {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
