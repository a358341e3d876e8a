package report

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/NewsLinker/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func seed(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	a1, _ := db.InsertArticle("https://a.com/1", "Bridge closed", ptr("Gazette"), ptr("2026-02-01"), nil)
	a2, _ := db.InsertArticle("https://a.com/2", "Bridge reopens", ptr("Herald"), ptr("2026-02-06"), nil)
	a3, _ := db.InsertArticle("https://a.com/3", "Budget approved", nil, nil, nil)

	if err := db.ReplaceLinks(ctx, []database.Link{{ArticleID: a1, Rank: 1, LinkedID: a2, Score: 0.9, Method: "semantic"}}); err != nil {
		t.Fatalf("ReplaceLinks: %v", err)
	}
	if err := db.ReplaceImportance(ctx, map[int64]float64{a1: 0.5, a2: 0.3, a3: 0.2}); err != nil {
		t.Fatalf("ReplaceImportance: %v", err)
	}
	clusters := []database.Cluster{
		{Title: "Bridge", Method: "kmeans/semantic", ArticleIDs: []int64{a1, a2}, StartDate: ptr("2026-02-01"), EndDate: ptr("2026-02-06"), ReferenceCount: 2, Priority: 20},
		{Title: "Budget", Method: "kmeans/semantic", ArticleIDs: []int64{a3}, ReferenceCount: 1, Priority: 0},
	}
	if err := db.ReplaceClusters(ctx, clusters); err != nil {
		t.Fatalf("ReplaceClusters: %v", err)
	}
	if _, err := db.InsertIndexRun(ctx, database.IndexRun{Generation: "gen-1", ArticleCount: 3, EdgeCount: 1, ClusterCount: 2}); err != nil {
		t.Fatalf("InsertIndexRun: %v", err)
	}
}

func TestMarkdownWithoutRun(t *testing.T) {
	db := openTestDB(t)
	text, err := NewReporter(db, 0, 0).Markdown()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "No index run yet") {
		t.Errorf("expected empty notice, got %q", text)
	}
}

func TestMarkdownReport(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	text, err := NewReporter(db, 0, 0).Markdown()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"3 articles indexed, 1 graph edges, 2 clusters.",
		"### Bridge",
		"Priority 20 · 2 articles · Feb 01 - Feb 06, 2026",
		"- [Bridge closed](https://a.com/1) (Gazette)",
		"1. [Bridge closed](https://a.com/1) (0.5000)",
		"    - related: [Bridge reopens](https://a.com/2)",
		"3. [Budget approved](https://a.com/3) (0.2000)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "### Budget") {
		t.Error("clusters without priority should not be listed")
	}
}

func TestClusterLimit(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	text, err := NewReporter(db, 1, 1).Markdown()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(text, "2. ") {
		t.Errorf("expected a single importance entry:\n%s", text)
	}
}

func TestHTMLReport(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	page, err := NewReporter(db, 0, 0).HTML()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(page, "<!DOCTYPE html>") {
		t.Error("expected a full HTML page")
	}
	if !strings.Contains(page, "<h3>Bridge</h3>") {
		t.Errorf("expected rendered heading, got:\n%s", page)
	}
	if !strings.Contains(page, `<a href="https://a.com/1">Bridge closed</a>`) {
		t.Error("expected rendered article link")
	}
}

func TestRenderHTMLEscapesTitle(t *testing.T) {
	page, err := RenderHTML("<script>", "# Hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(page, "<title><script>") {
		t.Error("title should be escaped")
	}
	if !strings.Contains(page, "<h1>Hi</h1>") {
		t.Error("expected rendered markdown body")
	}
}

func TestRenderHTMLOmitsRawHTML(t *testing.T) {
	page, err := RenderHTML("Report", "# Title\n\n<script>alert(1)</script>\n")
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if strings.Contains(page, "<script>alert(1)</script>") {
		t.Error("raw HTML from the markdown should not reach the page")
	}
	if !strings.Contains(page, "raw HTML omitted") {
		t.Error("expected goldmark to mark the omitted HTML block")
	}
}
