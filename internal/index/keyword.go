package index

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	DefaultMaxFeatures = 5000
	DefaultMaxDF       = 0.95
	DefaultMinDF       = 1
)

// VectorizerConfig holds the TF-IDF fitting parameters.
type VectorizerConfig struct {
	MaxFeatures int     `msgpack:"max_features"`
	MaxDF       float64 `msgpack:"max_df"`
	MinDF       int     `msgpack:"min_df"`
}

func (c VectorizerConfig) withDefaults() VectorizerConfig {
	if c.MaxFeatures <= 0 {
		c.MaxFeatures = DefaultMaxFeatures
	}
	if c.MaxDF <= 0 || c.MaxDF > 1 {
		c.MaxDF = DefaultMaxDF
	}
	if c.MinDF <= 0 {
		c.MinDF = DefaultMinDF
	}
	return c
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`)

// terms lowercases, tokenizes, drops stop words and emits unigrams followed
// by bigrams of the remaining tokens.
func terms(text string) []string {
	var words []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if !englishStopWords[tok] {
			words = append(words, tok)
		}
	}
	out := make([]string, 0, 2*len(words))
	out = append(out, words...)
	for i := 0; i+1 < len(words); i++ {
		out = append(out, words[i]+" "+words[i+1])
	}
	return out
}

// SparseVector is an L2-normalised TF-IDF row. Indices are ascending.
type SparseVector struct {
	Indices []int32   `msgpack:"i"`
	Values  []float64 `msgpack:"v"`
}

// Vectorizer is the fitted vocabulary and IDF weights. It is reused, never
// refit, to vectorize texts outside the corpus.
type Vectorizer struct {
	Config     VectorizerConfig `msgpack:"config"`
	Vocabulary []string         `msgpack:"vocabulary"`
	IDF        []float64        `msgpack:"idf"`

	lookup map[string]int32
}

func (v *Vectorizer) index() {
	v.lookup = make(map[string]int32, len(v.Vocabulary))
	for i, term := range v.Vocabulary {
		v.lookup[term] = int32(i)
	}
}

// Transform vectorizes text with the fitted vocabulary. Unknown terms are
// ignored; a text with no known terms yields an empty vector.
func (v *Vectorizer) Transform(text string) SparseVector {
	if v.lookup == nil {
		v.index()
	}
	counts := make(map[int32]float64)
	for _, term := range terms(text) {
		if id, ok := v.lookup[term]; ok {
			counts[id]++
		}
	}
	return v.weigh(counts)
}

func (v *Vectorizer) weigh(counts map[int32]float64) SparseVector {
	row := SparseVector{
		Indices: make([]int32, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for id := range counts {
		row.Indices = append(row.Indices, id)
	}
	sort.Slice(row.Indices, func(i, j int) bool { return row.Indices[i] < row.Indices[j] })

	var norm float64
	for _, id := range row.Indices {
		w := counts[id] * v.IDF[id]
		row.Values = append(row.Values, w)
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range row.Values {
			row.Values[i] /= norm
		}
	}
	return row
}

type keywordIndex struct {
	vectorizer *Vectorizer
	rows       []SparseVector
	// postings maps a feature to the rows holding it, for scoring a query
	// against every row without a dense scan.
	postings [][]posting
}

type posting struct {
	row    int32
	weight float64
}

func buildKeyword(texts []string, cfg VectorizerConfig) *keywordIndex {
	cfg = cfg.withDefaults()
	n := len(texts)

	docTerms := make([]map[string]float64, n)
	df := make(map[string]int)
	total := make(map[string]float64)
	for i, text := range texts {
		counts := make(map[string]float64)
		for _, term := range terms(text) {
			counts[term]++
		}
		docTerms[i] = counts
		for term, c := range counts {
			df[term]++
			total[term] += c
		}
	}

	vocab := selectVocabulary(df, total, n, cfg)
	vz := &Vectorizer{Config: cfg, Vocabulary: vocab, IDF: make([]float64, len(vocab))}
	for i, term := range vocab {
		vz.IDF[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}
	vz.index()

	rows := make([]SparseVector, n)
	for i, counts := range docTerms {
		ids := make(map[int32]float64, len(counts))
		for term, c := range counts {
			if id, ok := vz.lookup[term]; ok {
				ids[id] = c
			}
		}
		rows[i] = vz.weigh(ids)
	}
	return newKeywordIndex(vz, rows)
}

// selectVocabulary applies the document-frequency bounds and the feature cap
// and returns the surviving terms in alphabetical order. If the max_df bound
// would empty the vocabulary of a non-empty corpus, it is not applied.
func selectVocabulary(df map[string]int, total map[string]float64, n int, cfg VectorizerConfig) []string {
	maxDocs := cfg.MaxDF * float64(n)
	keep := func(applyMax bool) []string {
		var out []string
		for term, d := range df {
			if d < cfg.MinDF {
				continue
			}
			if applyMax && float64(d) > maxDocs {
				continue
			}
			out = append(out, term)
		}
		return out
	}

	vocab := keep(true)
	if len(vocab) == 0 && len(df) > 0 {
		vocab = keep(false)
	}

	if len(vocab) > cfg.MaxFeatures {
		sort.Slice(vocab, func(i, j int) bool {
			if total[vocab[i]] != total[vocab[j]] {
				return total[vocab[i]] > total[vocab[j]]
			}
			return vocab[i] < vocab[j]
		})
		vocab = vocab[:cfg.MaxFeatures]
	}
	sort.Strings(vocab)
	return vocab
}

func newKeywordIndex(vz *Vectorizer, rows []SparseVector) *keywordIndex {
	if vz.lookup == nil {
		vz.index()
	}
	postings := make([][]posting, len(vz.Vocabulary))
	for r, row := range rows {
		for i, id := range row.Indices {
			postings[id] = append(postings[id], posting{row: int32(r), weight: row.Values[i]})
		}
	}
	return &keywordIndex{vectorizer: vz, rows: rows, postings: postings}
}

// similarities returns the cosine similarity of q against every row. Rows
// are unit length (or empty), so cosine reduces to the dot product.
func (k *keywordIndex) similarities(q SparseVector) []float64 {
	sims := make([]float64, len(k.rows))
	for i, id := range q.Indices {
		for _, p := range k.postings[id] {
			sims[p.row] += q.Values[i] * p.weight
		}
	}
	return sims
}

// rank orders every row by descending similarity, equal scores keeping row
// order, skips exclude and keeps k.
func (k *keywordIndex) rank(q SparseVector, exclude int, limit int) Matches {
	sims := k.similarities(q)
	order := make([]int, len(sims))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return sims[order[a]] > sims[order[b]] })

	out := make(Matches, 0, min(limit, len(order)))
	for _, i := range order {
		if len(out) >= limit {
			break
		}
		if i == exclude {
			continue
		}
		out = append(out, Match{Handle: Handle(i), Score: sims[i]})
	}
	return out
}

func (k *keywordIndex) query(h Handle, limit int) Matches {
	return k.rank(k.rows[h], int(h), limit)
}

// dense expands the matrix for clustering.
func (k *keywordIndex) dense() [][]float64 {
	out := make([][]float64, len(k.rows))
	for r, row := range k.rows {
		vec := make([]float64, len(k.vectorizer.Vocabulary))
		for i, id := range row.Indices {
			vec[id] = row.Values[i]
		}
		out[r] = vec
	}
	return out
}
