package index

import "sort"

// DefaultSemanticWeight is the semantic share of a hybrid score.
const DefaultSemanticWeight = 0.7

// fuse unions two scored candidate lists, scoring each handle as
// w*semantic + (1-w)*keyword with a missing side contributing nothing, and
// keeps the best k. Equal combined scores order by ascending handle.
func fuse(semantic, keyword Matches, w float64, k int) Matches {
	combined := make(map[Handle]float64, len(semantic)+len(keyword))
	for _, m := range semantic {
		combined[m.Handle] += w * m.Score
	}
	for _, m := range keyword {
		combined[m.Handle] += (1 - w) * m.Score
	}

	out := make(Matches, 0, len(combined))
	for h, score := range combined {
		out = append(out, Match{Handle: h, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Handle < out[j].Handle
	})
	if k < len(out) {
		out = out[:k]
	}
	return out
}
