package cluster

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/TobiSchelling/NewsLinker/internal/database"
	"github.com/TobiSchelling/NewsLinker/internal/index"
)

// wordEmbedder maps texts to one of two directions depending on a marker
// word, which is enough to give two well separated groups.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(strings.ToLower(t), "bridge") {
			out[i] = []float32{1, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func buildSnapshot(t *testing.T, corpus []index.Article) *index.Snapshot {
	t.Helper()
	snap, err := index.Build(context.Background(), corpus, wordEmbedder{}, index.DefaultSettings())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return snap
}

func corpus() []index.Article {
	return []index.Article{
		{ID: 1, Title: "Bridge closed after flooding", PublishedDate: "2026-02-03"},
		{ID: 2, Title: "Flooding: bridge repairs begin", PublishedDate: "2026-02-01"},
		{ID: 3, Title: "Bridge reopens to traffic", PublishedDate: "Thu, 05 Feb 2026 09:00:00 +0000"},
		{ID: 4, Title: "School budget approved", PublishedDate: "2026-01-20"},
		{ID: 5, Title: "School budget vote delayed"},
	}
}

func TestSummarizeBuildsClusters(t *testing.T) {
	snap := buildSnapshot(t, corpus())
	clusters := index.Clusters{
		0: {0, 1, 2},
		1: {3, 4},
	}

	got := Summarize(snap, clusters, "kmeans", 20)
	if len(got) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(got))
	}

	bridge := got[0]
	if bridge.Title != "Bridge Flooding Begin" {
		t.Errorf("unexpected title %q", bridge.Title)
	}
	if bridge.ReferenceCount != 3 || len(bridge.ArticleIDs) != 3 {
		t.Errorf("expected 3 members, got %+v", bridge)
	}
	if bridge.StartDate == nil || *bridge.StartDate != "2026-02-01" {
		t.Errorf("unexpected start date %v", bridge.StartDate)
	}
	if bridge.EndDate == nil || *bridge.EndDate != "2026-02-05" {
		t.Errorf("unexpected end date %v", bridge.EndDate)
	}
	if bridge.Priority != 20 || got[1].Priority != 19 {
		t.Errorf("expected priorities 20 and 19, got %d and %d", bridge.Priority, got[1].Priority)
	}
	if bridge.Method != "kmeans" {
		t.Errorf("expected method recorded, got %q", bridge.Method)
	}

	school := got[1]
	if school.StartDate == nil || *school.StartDate != "2026-01-20" || *school.EndDate != "2026-01-20" {
		t.Errorf("undated members should not affect the span, got %v..%v", school.StartDate, school.EndDate)
	}
}

func TestSummarizeSkipsNoise(t *testing.T) {
	snap := buildSnapshot(t, corpus())
	clusters := index.Clusters{
		index.NoiseLabel: {3, 4},
		0:                {0, 1, 2},
	}
	got := Summarize(snap, clusters, "dbscan", 20)
	if len(got) != 1 {
		t.Fatalf("expected noise to be skipped, got %d clusters", len(got))
	}
	if got[0].ReferenceCount != 3 {
		t.Errorf("expected the bridge cluster, got %+v", got[0])
	}
}

func TestSummarizeFromDetectedClusters(t *testing.T) {
	snap := buildSnapshot(t, corpus())
	got := Summarize(snap, snap.DetectClusters(index.SemanticSpace, 2), "kmeans", 20)
	if len(got) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(got))
	}
	total := 0
	for _, c := range got {
		total += c.ReferenceCount
	}
	if total != 5 {
		t.Errorf("expected every article in a cluster, got %d", total)
	}
}

func TestPrioritize(t *testing.T) {
	clusters := []database.Cluster{
		{Title: "a", ReferenceCount: 2},
		{Title: "b", ReferenceCount: 5},
		{Title: "c", ReferenceCount: 2},
		{Title: "d", ReferenceCount: 1},
	}
	Prioritize(clusters, 2)

	want := map[string]int{"b": 2, "a": 1, "c": 0, "d": 0}
	for _, c := range clusters {
		if c.Priority != want[c.Title] {
			t.Errorf("cluster %s: expected priority %d, got %d", c.Title, want[c.Title], c.Priority)
		}
	}
}

func TestPrioritizeDefaultSlots(t *testing.T) {
	clusters := make([]database.Cluster, 25)
	for i := range clusters {
		clusters[i].ReferenceCount = 100 - i
	}
	Prioritize(clusters, 0)
	if clusters[0].Priority != 20 || clusters[19].Priority != 1 || clusters[20].Priority != 0 {
		t.Errorf("unexpected priorities %d, %d, %d", clusters[0].Priority, clusters[19].Priority, clusters[20].Priority)
	}
}

func TestGenerateLabel(t *testing.T) {
	articles := []index.Article{
		{Title: "AI Models Transform Software Development"},
		{Title: "New AI Models for Software Testing"},
		{Title: "Software Development with AI Models"},
	}
	label := generateLabel(articles)
	if label != "Models Software Development" {
		t.Errorf("unexpected label %q", label)
	}
}

func TestGenerateLabelFallsBackToTitle(t *testing.T) {
	label := generateLabel([]index.Article{{Title: "It is so"}})
	if label != "It is so" {
		t.Errorf("expected title fallback, got %q", label)
	}
}

func TestGenerateLabelKeepsMultiByteWordsIntact(t *testing.T) {
	label := generateLabel([]index.Article{{Title: "Überschwemmung ändert Pläne"}})
	if !utf8.ValidString(label) {
		t.Fatalf("label is not valid UTF-8: %q", label)
	}
	if label != "Pläne Ändert Überschwemmung" {
		t.Errorf("unexpected label %q", label)
	}
}

func TestGenerateLabelTruncatesFallbackByRune(t *testing.T) {
	title := strings.Repeat("é ", 30)
	label := generateLabel([]index.Article{{Title: title}})
	if !utf8.ValidString(label) {
		t.Fatalf("label is not valid UTF-8: %q", label)
	}
	if n := utf8.RuneCountInString(label); n != maxFallbackRunes {
		t.Errorf("expected %d runes, got %d", maxFallbackRunes, n)
	}
}
