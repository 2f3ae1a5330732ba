// Package kb pairs a sealed vector index with the records it was built from
// and publishes it for concurrent readers. A knowledge base is never mutated
// after Build; refreshing builds a new one and swaps it in.
package kb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdesk/fleetrag/engine/vecindex"
)

var (
	ErrEmptyBatch   = errors.New("empty batch")
	ErrNotLoaded    = errors.New("knowledge base not loaded")
	ErrBadChunkLink = errors.New("chunk record link out of range")
)

// KnowledgeBase is a published, read-only index plus its source records.
type KnowledgeBase[R any] struct {
	ID      uuid.UUID
	BuiltAt time.Time
	Index   *vecindex.Index

	records     []R
	chunkRecord []int
}

// Option configures Build.
type Option[R any] func(*KnowledgeBase[R])

// WithRecords attaches the source records. chunkRecord[i] is the position in
// records of the record chunk i came from, or -1 when unknown. A nil
// chunkRecord attaches records without chunk links.
func WithRecords[R any](records []R, chunkRecord []int) Option[R] {
	return func(kb *KnowledgeBase[R]) {
		kb.records = records
		kb.chunkRecord = chunkRecord
	}
}

// Build indexes chunks with their embeddings. It fails fast on an empty batch,
// a length mismatch, or any embedding whose dimension is not dim.
func Build[R any](chunks []string, embeddings [][]float32, dim int, opts ...Option[R]) (*KnowledgeBase[R], error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("kb: build: %w", ErrEmptyBatch)
	}
	idx, err := vecindex.New(dim)
	if err != nil {
		return nil, fmt.Errorf("kb: build: %w", err)
	}
	if err := idx.Add(embeddings, chunks); err != nil {
		return nil, fmt.Errorf("kb: build: %w", err)
	}
	idx.Seal()

	kb := &KnowledgeBase[R]{ID: uuid.New(), BuiltAt: time.Now(), Index: idx}
	for _, o := range opts {
		o(kb)
	}
	if kb.chunkRecord != nil {
		if len(kb.chunkRecord) != len(chunks) {
			return nil, fmt.Errorf("kb: build: %w: %d links for %d chunks", ErrBadChunkLink, len(kb.chunkRecord), len(chunks))
		}
		for i, r := range kb.chunkRecord {
			if r < -1 || r >= len(kb.records) {
				return nil, fmt.Errorf("kb: build: %w: chunk %d -> record %d", ErrBadChunkLink, i, r)
			}
		}
	}
	return kb, nil
}

// Len returns the number of indexed chunks.
func (kb *KnowledgeBase[R]) Len() int { return kb.Index.Len() }

// Chunks returns the chunk texts in ordinal order.
func (kb *KnowledgeBase[R]) Chunks() []string { return kb.Index.Texts() }

// Records returns the attached source records. Callers must not modify them.
func (kb *KnowledgeBase[R]) Records() []R { return kb.records }

// HasRecords reports whether source records were attached.
func (kb *KnowledgeBase[R]) HasRecords() bool { return len(kb.records) > 0 }

// RecordOf returns the record chunk ordinal came from.
func (kb *KnowledgeBase[R]) RecordOf(ordinal int) (R, bool) {
	var zero R
	if ordinal < 0 || ordinal >= len(kb.chunkRecord) {
		return zero, false
	}
	r := kb.chunkRecord[ordinal]
	if r < 0 {
		return zero, false
	}
	return kb.records[r], true
}

// Store holds the currently published knowledge base for one domain.
type Store[R any] struct {
	cur atomic.Pointer[KnowledgeBase[R]]
	mu  sync.Mutex // serialises Refresh
}

// Load returns the published knowledge base, or false before the first publish.
func (s *Store[R]) Load() (*KnowledgeBase[R], bool) {
	kb := s.cur.Load()
	return kb, kb != nil
}

// MustLoad is Load returning ErrNotLoaded instead of a flag.
func (s *Store[R]) MustLoad() (*KnowledgeBase[R], error) {
	kb := s.cur.Load()
	if kb == nil {
		return nil, ErrNotLoaded
	}
	return kb, nil
}

// Publish swaps kb in. In-flight readers keep the instance they loaded.
func (s *Store[R]) Publish(kb *KnowledgeBase[R]) {
	kb.Index.Seal()
	s.cur.Store(kb)
}

// Refresh runs build and publishes its result. On failure the previously
// published knowledge base stays in place. Concurrent refreshes run one at a time.
func (s *Store[R]) Refresh(ctx context.Context, build func(context.Context) (*KnowledgeBase[R], error)) (*KnowledgeBase[R], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kb, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("kb: refresh: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("kb: refresh: %w", err)
	}
	s.Publish(kb)
	return kb, nil
}
