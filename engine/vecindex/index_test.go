package vecindex

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	x, err := New(2)
	require.NoError(t, err)
	require.NoError(t, x.Add(
		[][]float32{{0, 0}, {1, 0}, {5, 5}, {0, 1}},
		[]string{"origin", "east", "far", "north"},
	))
	return x
}

func texts(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Text
	}
	return out
}

func TestNew_InvalidDimension(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestAdd_Validation(t *testing.T) {
	x := newIndex(t)

	err := x.Add([][]float32{{1, 1}}, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	err = x.Add([][]float32{{1, 1}, {1, 2, 3}}, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 4, x.Len(), "failed add must not grow the index")

	x.Seal()
	assert.True(t, x.Sealed())
	err = x.Add([][]float32{{1, 1}}, []string{"a"})
	assert.ErrorIs(t, err, ErrSealed)
}

func TestAdd_CopiesVectors(t *testing.T) {
	x, err := New(2)
	require.NoError(t, err)
	v := []float32{3, 3}
	require.NoError(t, x.Add([][]float32{v}, []string{"a"}))
	v[0] = 100

	hits, err := x.SearchAll([]float32{3, 3}, 1)
	require.NoError(t, err)
	assert.Zero(t, hits[0].Distance)
}

func TestSearchAll_NearestFirst(t *testing.T) {
	x := newIndex(t)

	hits, err := x.SearchAll([]float32{0.9, 0.1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"east", "origin", "north"}, texts(hits))
	assert.Equal(t, 1, hits[0].Ordinal)
}

func TestSearchAll_ExactVectorAtDistanceZero(t *testing.T) {
	x := newIndex(t)

	hits, err := x.SearchAll([]float32{5, 5}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "far", hits[0].Text)
	assert.Zero(t, hits[0].Distance)
}

func TestSearchAll_TiesKeepInsertionOrder(t *testing.T) {
	x := newIndex(t)

	// east and north are both at distance 1 from the origin.
	hits, err := x.SearchAll([]float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"origin", "east", "north"}, texts(hits))
}

func TestSearchAll_EmptyAndBounds(t *testing.T) {
	x, err := New(3)
	require.NoError(t, err)

	hits, err := x.SearchAll([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = x.SearchAll([]float32{1, 2}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	y := newIndex(t)
	hits, err = y.SearchAll([]float32{0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	hits, err = y.SearchAll([]float32{0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchSubset_StaysInsideSubset(t *testing.T) {
	x := newIndex(t)

	subset := []string{"far", "north"}
	hits, err := x.SearchSubset([]float32{1, 0}, 10, subset)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Contains(t, subset, h.Text)
	}
	assert.Equal(t, "north", hits[0].Text)
	assert.Equal(t, 3, hits[0].Ordinal, "ordinal refers to the full index")
}

func TestSearchSubset_NoCandidates(t *testing.T) {
	x := newIndex(t)

	_, err := x.SearchSubset([]float32{0, 0}, 3, []string{"nowhere"})
	assert.True(t, errors.Is(err, ErrNoCandidates))

	_, err = x.SearchSubset([]float32{0, 0}, 3, nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestSearchSubset_DuplicateTextsAreAllCandidates(t *testing.T) {
	x, err := New(1)
	require.NoError(t, err)
	require.NoError(t, x.Add([][]float32{{0}, {10}, {20}}, []string{"dup", "other", "dup"}))

	hits, err := x.SearchSubset([]float32{19}, 5, []string{"dup", "dup"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0].Ordinal)
	assert.Equal(t, 0, hits[1].Ordinal)
}

func TestSearchPositions(t *testing.T) {
	x := newIndex(t)

	hits, err := x.SearchPositions([]float32{5, 4}, 5, []int{0, 2, 2, 99, -1})
	require.NoError(t, err)
	assert.Equal(t, []string{"far", "origin"}, texts(hits))

	_, err = x.SearchPositions([]float32{0, 0}, 5, []int{42})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestConcurrentReads(t *testing.T) {
	x := newIndex(t)
	x.Seal()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := x.SearchAll([]float32{0, 0}, 2)
			if err != nil || len(hits) != 2 {
				t.Errorf("unexpected search result: %v %v", hits, err)
			}
			if _, err := x.SearchSubset([]float32{0, 0}, 1, []string{"far"}); err != nil {
				t.Errorf("subset: %v", err)
			}
		}()
	}
	wg.Wait()
}
