package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateLegacyDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	// Simulate a pre-migration database: create tables without setting user_version.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	_, err = raw.Exec(`CREATE TABLE articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	raw.Close()

	// Now open via the migration system.
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d after legacy migration, got %d", latestVersion(), version)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := getSchemaVersion(conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}

func TestLegacyVersionOnNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	legacy, err := legacyVersion(conn)
	if err != nil {
		t.Fatalf("legacyVersion: %v", err)
	}
	if legacy != 0 {
		t.Errorf("expected legacy version 0 on empty database, got %d", legacy)
	}
}

func TestLegacyVersionWithAnnotations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "export.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	_, err = conn.Exec(`CREATE TABLE articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		location_mention TEXT,
		officials_involved TEXT,
		relevance_category TEXT
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	legacy, err := legacyVersion(conn)
	if err != nil {
		t.Fatalf("legacyVersion: %v", err)
	}
	if legacy != 2 {
		t.Errorf("expected legacy version 2, got %d", legacy)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := openTestDB(t)
	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected %d, got %d", latestVersion(), version)
	}
}

func TestLegacyDBGainsAnnotationColumns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "collector.db")

	// Article table as written by the collector before annotation support.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	_, err = raw.Exec(`CREATE TABLE articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		source TEXT,
		published_date TEXT,
		content TEXT,
		content_fetched INTEGER DEFAULT 0,
		period_id TEXT,
		collected_at TEXT DEFAULT (datetime('now'))
	);
	INSERT INTO articles (url, title, period_id) VALUES ('https://old.example/1', 'Old article', '2026-02-06');`)
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	raw.Close()

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.AnnotateArticle(1, ptr("Harbor"), nil, ptr("economy")); err != nil {
		t.Fatalf("AnnotateArticle: %v", err)
	}
	corpus, err := db.LoadCorpus(context.Background())
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if len(corpus) != 1 {
		t.Fatalf("expected 1 article, got %d", len(corpus))
	}
	if corpus[0].LocationMention != "Harbor" || corpus[0].RelevanceCategory != "economy" {
		t.Errorf("annotation not stored: %+v", corpus[0])
	}
}

func TestAddColumnIfMissingIsRepeatable(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 2; i++ {
		tx, err := db.conn.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := addColumnIfMissing(tx, "articles", "location_mention", "TEXT"); err != nil {
			tx.Rollback()
			t.Fatalf("run %d: %v", i, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
}
