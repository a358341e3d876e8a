// Package index builds and queries the article similarity structures: a
// semantic nearest-neighbour index over embeddings, a TF-IDF keyword index,
// a similarity graph with PageRank importance, and cluster detection over
// either feature space.
//
// Every structure in a Snapshot is addressed by Handle, the article's position
// in the corpus the snapshot was built from. Handles are only meaningful for
// the snapshot that produced them; a rebuild may reorder nothing but is free
// to append, so callers should translate handles back to article IDs before
// keeping them.
package index

import "strings"

// Article is the slice of an article record the index needs. It is carried
// as the attribute set of its graph node and persisted with the snapshot.
type Article struct {
	ID                int64  `msgpack:"id"`
	URL               string `msgpack:"url,omitempty"`
	Title             string `msgpack:"title"`
	Source            string `msgpack:"source,omitempty"`
	PublishedDate     string `msgpack:"published_date,omitempty"`
	LocationMention   string `msgpack:"location_mention,omitempty"`
	OfficialsInvolved string `msgpack:"officials_involved,omitempty"`
	RelevanceCategory string `msgpack:"relevance_category,omitempty"`
}

// Handle is the rebuild-scoped position of an article in a snapshot's corpus.
// Embedding rows, TF-IDF rows and graph nodes all share it.
type Handle int

func (h Handle) valid(n int) bool {
	return h >= 0 && int(h) < n
}

// Match is a query result with its similarity score.
type Match struct {
	Handle Handle
	Score  float64
}

// Matches is a ranked result list, best first.
type Matches []Match

// Handles drops the scores, keeping rank order.
func (m Matches) Handles() []Handle {
	out := make([]Handle, len(m))
	for i, match := range m {
		out[i] = match.Handle
	}
	return out
}

// DefaultTitleWeight is how many times the title is repeated in the blob.
const DefaultTitleWeight = 2

// Blob renders the weighted text both the semantic and keyword indexes are
// built from: the title repeated titleWeight times, then the location,
// officials and relevance category fields, joined by single spaces.
func Blob(a Article, titleWeight int) string {
	if titleWeight <= 0 {
		titleWeight = DefaultTitleWeight
	}
	parts := make([]string, 0, titleWeight+3)
	for i := 0; i < titleWeight; i++ {
		parts = append(parts, a.Title)
	}
	parts = append(parts, a.LocationMention, a.OfficialsInvolved, a.RelevanceCategory)
	return strings.Join(parts, " ")
}

func blobs(corpus []Article, titleWeight int) []string {
	texts := make([]string, len(corpus))
	for i, a := range corpus {
		texts[i] = Blob(a, titleWeight)
	}
	return texts
}
