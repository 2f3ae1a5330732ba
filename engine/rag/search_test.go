package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetrag/engine/domain"
	"github.com/fleetdesk/fleetrag/engine/kb"
	"github.com/fleetdesk/fleetrag/engine/vecindex"
)

func hitOrdinals[R any](hits []SearchHit[R]) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Ordinal
	}
	return out
}

func TestSearch_WholeCorpusAttachesRecords(t *testing.T) {
	e := orderEngine(t, &stubEmbedder{vec: []float32{14, 14}}, nil, nil)

	hits, err := e.Search(context.Background(), "cement", SearchOptions{K: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, hitOrdinals(hits))
	require.NotNil(t, hits[0].Record)
	assert.Equal(t, "ON22222", hits[0].Record.Orderno)
	assert.Equal(t, "ON33333", hits[1].Record.Orderno)
	assert.InDelta(t, 32.0, hits[0].Distance, 1e-9)
}

func TestSearch_DefaultKIsTopK(t *testing.T) {
	e := orderEngine(t, &stubEmbedder{vec: []float32{0, 0}}, nil, nil)

	hits, err := e.Search(context.Background(), "anything", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, hitOrdinals(hits))
}

func TestSearch_Scopes(t *testing.T) {
	tests := []struct {
		name string
		opts SearchOptions
		want []int
	}{
		{"chunks", SearchOptions{K: 5, Chunks: []string{
			"orderno: ON12345 || status_name: Completed",
			"orderno: ON33333 || status_name: Completed",
		}}, []int{2, 0}},
		{"ordinals", SearchOptions{K: 5, Ordinals: []int{0, 1}}, []int{1, 0}},
		{"ordinals capped by k", SearchOptions{K: 1, Ordinals: []int{0, 1, 2}}, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := orderEngine(t, &stubEmbedder{vec: []float32{14, 14}}, nil, nil)
			hits, err := e.Search(context.Background(), "q", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hitOrdinals(hits))
		})
	}
}

func TestSearch_Errors(t *testing.T) {
	ctx := context.Background()
	emb := &stubEmbedder{vec: []float32{0, 0}}

	e := New(OrderDomain(time.UTC), &kb.Store[domain.Order]{}, emb, nil, Options{}, nil, nil)
	_, err := e.Search(ctx, "q", SearchOptions{})
	assert.ErrorIs(t, err, kb.ErrNotLoaded)
	assert.Zero(t, emb.calls)

	e = orderEngine(t, nil, nil, nil)
	_, err = e.Search(ctx, "q", SearchOptions{})
	assert.ErrorIs(t, err, ErrNoEmbedder)

	e = orderEngine(t, emb, nil, nil)
	_, err = e.Search(ctx, "q", SearchOptions{Chunks: []string{"a"}, Ordinals: []int{0}})
	assert.ErrorIs(t, err, ErrAmbiguousScope)

	_, err = e.Search(ctx, "q", SearchOptions{Chunks: []string{"nowhere"}})
	assert.ErrorIs(t, err, vecindex.ErrNoCandidates)

	_, err = e.Search(ctx, "q", SearchOptions{Ordinals: []int{99}})
	assert.ErrorIs(t, err, vecindex.ErrNoCandidates)

	down := errors.New("ollama down")
	e = orderEngine(t, &stubEmbedder{err: down}, nil, nil)
	_, err = e.Search(ctx, "q", SearchOptions{})
	assert.ErrorIs(t, err, down)

	e = orderEngine(t, &stubEmbedder{vec: []float32{1, 2, 3}}, nil, nil)
	_, err = e.Search(ctx, "q", SearchOptions{})
	assert.ErrorIs(t, err, vecindex.ErrDimensionMismatch)
}

func TestSearch_UnlinkedChunksHaveNoRecord(t *testing.T) {
	base, err := kb.Build[domain.Order]([]string{"a", "b"}, [][]float32{{0, 0}, {1, 1}}, 2)
	require.NoError(t, err)
	var s kb.Store[domain.Order]
	s.Publish(base)
	e := New(OrderDomain(time.UTC), &s, &stubEmbedder{vec: []float32{1, 1}}, nil, Options{}, nil, nil)

	hits, err := e.Search(context.Background(), "q", SearchOptions{K: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Text)
	assert.Nil(t, hits[0].Record)
}
