package index

import "fmt"

// Method selects the similarity structure a related-articles lookup uses.
type Method string

const (
	MethodSemantic Method = "semantic"
	MethodKeyword  Method = "keyword"
	MethodHybrid   Method = "hybrid"
	MethodGraph    Method = "graph"
)

// ParseMethod validates a configured or command-line method name.
func ParseMethod(name string) (Method, error) {
	switch m := Method(name); m {
	case MethodSemantic, MethodKeyword, MethodHybrid, MethodGraph:
		return m, nil
	default:
		return "", fmt.Errorf("unknown link method %q (want semantic, keyword, hybrid or graph)", name)
	}
}

// Related answers a lookup with the chosen method. semanticWeight is only
// read by MethodHybrid.
func (s *Snapshot) Related(m Method, h Handle, k int, semanticWeight float64) (Matches, error) {
	switch m {
	case MethodSemantic:
		return s.QuerySemantic(h, k)
	case MethodKeyword:
		return s.QueryKeyword(h, k)
	case MethodHybrid:
		return s.QueryHybrid(h, k, semanticWeight)
	case MethodGraph:
		return s.QueryGraphNeighbors(h, k), nil
	default:
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidQuery, m)
	}
}
