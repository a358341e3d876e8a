// Package cluster turns a cluster assignment over a snapshot into the
// clusters the article store keeps: a label, the member articles, their date
// span and a priority ranking by size.
package cluster

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TobiSchelling/NewsLinker/internal/database"
	"github.com/TobiSchelling/NewsLinker/internal/index"
)

const DefaultPrioritySlots = 20

const (
	maxLabelWords    = 3
	maxFallbackRunes = 50
)

// Summarize builds one stored cluster per non-noise label, in label order,
// and assigns priorities. method is recorded with each cluster.
func Summarize(snap *index.Snapshot, clusters index.Clusters, method string, prioritySlots int) []database.Cluster {
	var out []database.Cluster
	for _, label := range clusters.Labels() {
		if label == index.NoiseLabel {
			continue
		}
		members := make([]index.Article, 0, len(clusters[label]))
		for _, h := range clusters[label] {
			a, err := snap.Article(h)
			if err != nil {
				continue
			}
			members = append(members, a)
		}
		if len(members) == 0 {
			continue
		}
		out = append(out, summarize(members, method))
	}
	Prioritize(out, prioritySlots)
	return out
}

func summarize(members []index.Article, method string) database.Cluster {
	c := database.Cluster{
		Title:          generateLabel(members),
		Method:         method,
		ReferenceCount: len(members),
	}
	var start, end string
	for _, a := range members {
		c.ArticleIDs = append(c.ArticleIDs, a.ID)
		day, ok := database.NormalizeDate(a.PublishedDate)
		if !ok {
			continue
		}
		if start == "" || day < start {
			start = day
		}
		if end == "" || day > end {
			end = day
		}
	}
	sort.Slice(c.ArticleIDs, func(i, j int) bool { return c.ArticleIDs[i] < c.ArticleIDs[j] })
	if start != "" {
		c.StartDate = &start
		c.EndDate = &end
	}
	return c
}

// Prioritize gives the slots largest clusters priorities slots down to 1 and
// every other cluster 0. Equal sizes keep their input order.
func Prioritize(clusters []database.Cluster, slots int) {
	if slots <= 0 {
		slots = DefaultPrioritySlots
	}
	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return clusters[order[a]].ReferenceCount > clusters[order[b]].ReferenceCount
	})
	for rank, i := range order {
		if rank < slots {
			clusters[i].Priority = slots - rank
		} else {
			clusters[i].Priority = 0
		}
	}
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "shall": true,
	"to": true, "of": true, "in": true, "for": true, "on": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true, "and": true, "but": true,
	"or": true, "nor": true, "not": true, "so": true, "yet": true, "both": true,
	"either": true, "neither": true, "each": true, "every": true, "all": true, "any": true,
	"few": true, "more": true, "most": true, "other": true, "some": true, "such": true,
	"no": true, "only": true, "own": true, "same": true, "than": true, "too": true,
	"very": true, "just": true, "how": true, "what": true, "which": true, "who": true,
	"whom": true, "this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "new": true, "about": true, "up": true, "out": true, "one": true,
	"two": true, "also": true, "like": true, "get": true, "says": true, "over": true,
}

// generateLabel names a cluster after the most frequent title words of its
// members, ties alphabetical.
func generateLabel(articles []index.Article) string {
	wordCounts := make(map[string]int)
	for _, article := range articles {
		for _, word := range strings.Fields(strings.ToLower(article.Title)) {
			word = strings.Trim(word, ".,!?:;\"'()-[]")
			if utf8.RuneCountInString(word) > 2 && !stopWords[word] {
				wordCounts[word]++
			}
		}
	}

	words := make([]string, 0, len(wordCounts))
	for w := range wordCounts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if wordCounts[words[i]] != wordCounts[words[j]] {
			return wordCounts[words[i]] > wordCounts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > maxLabelWords {
		words = words[:maxLabelWords]
	}
	for i, w := range words {
		words[i] = capitalize(w)
	}

	if len(words) > 0 {
		return strings.Join(words, " ")
	}

	// Fallback: first article title truncated
	title := articles[0].Title
	if utf8.RuneCountInString(title) > maxFallbackRunes {
		title = string([]rune(title)[:maxFallbackRunes])
	}
	return title
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}
