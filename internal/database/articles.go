package database

import (
	"context"
	"database/sql"

	"github.com/TobiSchelling/NewsLinker/internal/index"
)

const articleColumns = `id, url, title, source, published_date, content,
	location_mention, officials_involved, relevance_category, collected_at`

// InsertArticle inserts an article. Returns the ID on success, 0 if duplicate.
func (db *DB) InsertArticle(url, title string, source, publishedDate, content *string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO articles (url, title, source, published_date, content)
		VALUES (?, ?, ?, ?, ?)`,
		url, title, source, publishedDate, content,
	)
	if err != nil {
		// Duplicate URL constraint
		return 0, nil //nolint: nilerr
	}
	return result.LastInsertId()
}

// AnnotateArticle stores the extracted fields the index text is built from.
func (db *DB) AnnotateArticle(articleID int64, location, officials, category *string) error {
	_, err := db.conn.Exec(
		`UPDATE articles SET location_mention = ?, officials_involved = ?, relevance_category = ?
		WHERE id = ?`,
		location, officials, category, articleID,
	)
	return err
}

// GetArticles returns every article in insertion order, which is also the
// corpus order of an index run.
func (db *DB) GetArticles() ([]Article, error) {
	rows, err := db.conn.Query(`SELECT ` + articleColumns + ` FROM articles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetArticleByID returns a single article by ID.
func (db *DB) GetArticleByID(articleID int64) (*Article, error) {
	row := db.conn.QueryRow(`SELECT `+articleColumns+` FROM articles WHERE id = ?`, articleID)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// LoadCorpus returns the index view of every article, ordered by ID.
func (db *DB) LoadCorpus(ctx context.Context) ([]index.Article, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles, err := scanArticles(rows)
	if err != nil {
		return nil, err
	}
	corpus := make([]index.Article, len(articles))
	for i, a := range articles {
		corpus[i] = a.IndexArticle()
	}
	return corpus, nil
}

// IndexArticle converts the stored row, treating missing fields as empty.
func (a Article) IndexArticle() index.Article {
	return index.Article{
		ID:                a.ID,
		URL:               a.URL,
		Title:             a.Title,
		Source:            deref(a.Source),
		PublishedDate:     deref(a.PublishedDate),
		LocationMention:   deref(a.LocationMention),
		OfficialsInvolved: deref(a.OfficialsInvolved),
		RelevanceCategory: deref(a.RelevanceCategory),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInto(s scanner, a *Article) error {
	return s.Scan(&a.ID, &a.URL, &a.Title, &a.Source, &a.PublishedDate, &a.Content,
		&a.LocationMention, &a.OfficialsInvolved, &a.RelevanceCategory, &a.CollectedAt)
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		var a Article
		if err := scanInto(rows, &a); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func scanArticle(row *sql.Row) (*Article, error) {
	var a Article
	if err := scanInto(row, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
