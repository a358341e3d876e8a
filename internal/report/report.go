// Package report renders the stored index results as a markdown document,
// optionally converted to a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/NewsLinker/internal/database"
)

const (
	DefaultClusterLimit    = 10
	DefaultImportanceLimit = 10
)

var md = goldmark.New()

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
h2 { border-bottom: 1px solid #ddd; padding-bottom: .25rem; }
hr { border: 0; border-top: 1px solid #eee; margin: 2rem 0; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Reporter reads results from the article store.
type Reporter struct {
	db              *database.DB
	clusterLimit    int
	importanceLimit int
}

// NewReporter creates a reporter. Limits of 0 use the defaults.
func NewReporter(db *database.DB, clusterLimit, importanceLimit int) *Reporter {
	if clusterLimit <= 0 {
		clusterLimit = DefaultClusterLimit
	}
	if importanceLimit <= 0 {
		importanceLimit = DefaultImportanceLimit
	}
	return &Reporter{db: db, clusterLimit: clusterLimit, importanceLimit: importanceLimit}
}

// Markdown assembles the report: run summary, prioritized clusters and the
// most important articles with their related links.
func (r *Reporter) Markdown() (string, error) {
	run, err := r.db.GetLatestIndexRun()
	if err != nil {
		return "", err
	}
	if run == nil {
		return "# News Linker Report\n\nNo index run yet. Run `newslinker index` first.\n", nil
	}

	header := fmt.Sprintf("# News Linker Report\n\n%d articles indexed, %d graph edges, %d clusters.",
		run.ArticleCount, run.EdgeCount, run.ClusterCount)
	if run.BuiltAt != nil {
		header += fmt.Sprintf(" Built %s (generation `%s`).", *run.BuiltAt, run.Generation)
	}

	clusters, err := r.clusterSection()
	if err != nil {
		return "", err
	}
	important, err := r.importanceSection()
	if err != nil {
		return "", err
	}

	return strings.Join([]string{header, clusters, important}, "\n\n---\n\n") + "\n", nil
}

// HTML renders the markdown report into a complete page.
func (r *Reporter) HTML() (string, error) {
	text, err := r.Markdown()
	if err != nil {
		return "", err
	}
	return RenderHTML("News Linker Report", text)
}

// RenderHTML converts markdown into a standalone HTML page.
func RenderHTML(title, markdown string) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	var out bytes.Buffer
	err := page.Execute(&out, map[string]any{
		"Title": title,
		"Body":  template.HTML(body.String()), //nolint:gosec // goldmark escapes raw HTML by default
	})
	if err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}
	return out.String(), nil
}

func (r *Reporter) clusterSection() (string, error) {
	clusters, err := r.db.GetClusters()
	if err != nil {
		return "", err
	}

	var sections []string
	for _, c := range clusters {
		if c.Priority == 0 || len(sections) >= r.clusterLimit {
			break
		}
		articles, err := r.db.GetClusterArticles(c.ID)
		if err != nil {
			return "", err
		}
		section := fmt.Sprintf("### %s\n\nPriority %d · %d articles", c.Title, c.Priority, c.ReferenceCount)
		if span := clusterSpan(c); span != "" {
			section += " · " + span
		}
		var refs []string
		for _, a := range articles {
			refs = append(refs, articleLine(a))
		}
		if len(refs) > 0 {
			section += "\n\n" + strings.Join(refs, "\n")
		}
		sections = append(sections, section)
	}

	if len(sections) == 0 {
		return "## Top Stories\n\nNo prioritized clusters.", nil
	}
	return "## Top Stories\n\n" + strings.Join(sections, "\n\n"), nil
}

func (r *Reporter) importanceSection() (string, error) {
	top, err := r.db.GetTopImportance(r.importanceLimit)
	if err != nil {
		return "", err
	}
	if len(top) == 0 {
		return "## Most Important Articles\n\nNo importance scores stored.", nil
	}

	var items []string
	for i, s := range top {
		item := fmt.Sprintf("%d. %s (%.4f)", i+1, articleLink(s.Article), s.Score)
		links, err := r.db.GetLinks(s.ID)
		if err != nil {
			return "", err
		}
		for _, l := range links {
			linked, err := r.db.GetArticleByID(l.LinkedID)
			if err != nil {
				return "", err
			}
			if linked == nil {
				continue
			}
			item += fmt.Sprintf("\n    - related: %s", articleLink(*linked))
		}
		items = append(items, item)
	}
	return "## Most Important Articles\n\n" + strings.Join(items, "\n"), nil
}

func clusterSpan(c database.Cluster) string {
	if c.StartDate == nil || c.EndDate == nil {
		return ""
	}
	return database.FormatSpanDisplay(database.MakeSpan(*c.StartDate, *c.EndDate))
}

func articleLine(a database.Article) string {
	line := "- " + articleLink(a)
	if a.Source != nil && *a.Source != "" {
		line += " (" + *a.Source + ")"
	}
	return line
}

func articleLink(a database.Article) string {
	return fmt.Sprintf("[%s](%s)", a.Title, a.URL)
}
