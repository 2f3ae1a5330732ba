package rag

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetdesk/fleetrag/engine/vecindex"
)

var (
	ErrNoEmbedder     = errors.New("embedding service not configured")
	ErrAmbiguousScope = errors.New("search scope names both chunks and ordinals")
)

// SearchOptions scopes a raw similarity search. At most one of Chunks and
// Ordinals may be set; with neither the whole corpus is searched.
type SearchOptions struct {
	K        int      // hits to return; 0 uses Options.TopK
	Chunks   []string // only chunks with one of these texts
	Ordinals []int    // only chunks at these ordinals
}

// SearchHit is a ranked chunk plus the record it was built from, when the
// knowledge base links chunks to records.
type SearchHit[R any] struct {
	vecindex.Hit
	Record *R `json:"record,omitempty"`
}

// Search ranks stored chunks by distance to the embedding of question without
// generating an answer. It returns kb.ErrNotLoaded before the first publish
// and vecindex.ErrNoCandidates when a scope matches no stored chunk.
func (e *Engine[R]) Search(ctx context.Context, question string, so SearchOptions) ([]SearchHit[R], error) {
	ctx, span := e.tracer.Start(ctx, "rag.search", trace.WithAttributes(attribute.String("domain", e.domain.Name)))
	defer span.End()

	if len(so.Chunks) > 0 && len(so.Ordinals) > 0 {
		return nil, ErrAmbiguousScope
	}
	base, err := e.store.MustLoad()
	if err != nil {
		return nil, err
	}
	if e.embed == nil {
		return nil, ErrNoEmbedder
	}
	k := so.K
	if k <= 0 {
		k = e.opts.TopK
	}

	q, err := e.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("rag: search: embed: %w", err)
	}

	var hits []vecindex.Hit
	switch {
	case len(so.Chunks) > 0:
		hits, err = base.Index.SearchSubset(q, k, so.Chunks)
	case len(so.Ordinals) > 0:
		hits, err = base.Index.SearchPositions(q, k, so.Ordinals)
	default:
		hits, err = base.Index.SearchAll(q, k)
	}
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}

	out := make([]SearchHit[R], len(hits))
	for i, h := range hits {
		out[i].Hit = h
		if r, ok := base.RecordOf(h.Ordinal); ok {
			out[i].Record = &r
		}
	}
	span.SetAttributes(attribute.Int("hits", len(out)))
	e.logger.Debug("rag search", "hits", len(out), "k", k)
	return out, nil
}
