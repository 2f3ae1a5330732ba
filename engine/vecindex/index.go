// Package vecindex is an exact, in-memory nearest-neighbour index over
// fixed-dimension vectors, each paired with the chunk text it was embedded from.
// Insertion order is the index's identifier space.
package vecindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrLengthMismatch    = errors.New("vectors and texts length mismatch")
	ErrSealed            = errors.New("index is sealed")
	ErrNoCandidates      = errors.New("no matching candidates for search")
	ErrInvalidDimension  = errors.New("invalid dimension")
)

// Hit is a single search result.
type Hit struct {
	Ordinal  int     `json:"ordinal"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// Index stores co-indexed vectors and texts. It is append-only until sealed.
type Index struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	texts   []string
	sealed  bool
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vecindex: %w: %d", ErrInvalidDimension, dim)
	}
	return &Index{dim: dim}, nil
}

// Dim returns the configured dimension.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of stored entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.texts)
}

// Text returns the text stored at ordinal i.
func (x *Index) Text(i int) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if i < 0 || i >= len(x.texts) {
		return "", false
	}
	return x.texts[i], true
}

// Texts returns a copy of all stored texts in ordinal order.
func (x *Index) Texts() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, len(x.texts))
	copy(out, x.texts)
	return out
}

// Seal rejects any further Add. Published indexes are sealed.
func (x *Index) Seal() {
	x.mu.Lock()
	x.sealed = true
	x.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (x *Index) Sealed() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.sealed
}

// Add appends vectors and their texts. The whole batch is validated first, so
// a failed call leaves the index unchanged.
func (x *Index) Add(vectors [][]float32, texts []string) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("vecindex: add: %w: %d vectors, %d texts", ErrLengthMismatch, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("vecindex: add: %w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(v), x.dim)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.sealed {
		return fmt.Errorf("vecindex: add: %w", ErrSealed)
	}
	for _, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		x.vectors = append(x.vectors, cp)
	}
	x.texts = append(x.texts, texts...)
	return nil
}

// SearchAll returns the k stored texts nearest to query, nearest first.
// Equal distances keep insertion order. An empty index yields no hits.
func (x *Index) SearchAll(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("vecindex: search: %w: query has %d, want %d", ErrDimensionMismatch, len(query), x.dim)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return nearest(query, k, x.vectors, x.texts), nil
}

// SearchSubset restricts the search to stored entries whose text equals one of
// candidates. Every stored entry with a matching text is a candidate, so
// duplicate texts are all searchable. If nothing matches, ErrNoCandidates is
// returned.
func (x *Index) SearchSubset(query []float32, k int, candidates []string) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("vecindex: search subset: %w: query has %d, want %d", ErrDimensionMismatch, len(query), x.dim)
	}
	x.mu.RLock()
	byText := make(map[string][]int, len(x.texts))
	for i, t := range x.texts {
		byText[t] = append(byText[t], i)
	}
	var ordinals []int
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		ordinals = append(ordinals, byText[c]...)
	}
	x.mu.RUnlock()

	if len(ordinals) == 0 {
		return nil, ErrNoCandidates
	}
	sort.Ints(ordinals)
	return x.searchOrdinals(query, k, ordinals)
}

// SearchPositions restricts the search to the given ordinals. Out-of-range and
// repeated ordinals are ignored. If none remain, ErrNoCandidates is returned.
func (x *Index) SearchPositions(query []float32, k int, ordinals []int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("vecindex: search positions: %w: query has %d, want %d", ErrDimensionMismatch, len(query), x.dim)
	}
	n := x.Len()
	seen := make(map[int]bool, len(ordinals))
	valid := make([]int, 0, len(ordinals))
	for _, o := range ordinals {
		if o < 0 || o >= n || seen[o] {
			continue
		}
		seen[o] = true
		valid = append(valid, o)
	}
	if len(valid) == 0 {
		return nil, ErrNoCandidates
	}
	sort.Ints(valid)
	return x.searchOrdinals(query, k, valid)
}

// searchOrdinals builds an ephemeral index over the given ordinals (ascending)
// and searches it, reporting hits with their ordinals in this index.
func (x *Index) searchOrdinals(query []float32, k int, ordinals []int) ([]Hit, error) {
	x.mu.RLock()
	sub := &Index{dim: x.dim}
	vecs := make([][]float32, len(ordinals))
	texts := make([]string, len(ordinals))
	for i, o := range ordinals {
		vecs[i] = x.vectors[o]
		texts[i] = x.texts[o]
	}
	x.mu.RUnlock()

	if err := sub.Add(vecs, texts); err != nil {
		return nil, err
	}
	sub.Seal()
	hits, err := sub.SearchAll(query, k)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Ordinal = ordinals[hits[i].Ordinal]
	}
	return hits, nil
}

// nearest ranks vectors by squared L2 distance to query. Sorting on
// (distance, ordinal) keeps ties in insertion order.
func nearest(query []float32, k int, vectors [][]float32, texts []string) []Hit {
	if k <= 0 || len(vectors) == 0 {
		return []Hit{}
	}
	type scored struct {
		i  int
		d2 float64
	}
	all := make([]scored, len(vectors))
	for i, v := range vectors {
		all[i] = scored{i: i, d2: l2Squared(query, v)}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].d2 != all[b].d2 {
			return all[a].d2 < all[b].d2
		}
		return all[a].i < all[b].i
	})
	if k > len(all) {
		k = len(all)
	}
	hits := make([]Hit, k)
	for j := 0; j < k; j++ {
		s := all[j]
		hits[j] = Hit{Ordinal: s.i, Text: texts[s.i], Distance: math.Sqrt(s.d2)}
	}
	return hits
}

func l2Squared(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
