// Package ingest builds knowledge bases from raw JSON records through
// decoding, validation, chunking, and embedding stages.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetdesk/fleetrag/engine/kb"
	"github.com/fleetdesk/fleetrag/pkg/flatten"
	"github.com/fleetdesk/fleetrag/pkg/fn"
)

const (
	// EmbedBatchSize is the number of chunks embedded per batch stage call.
	EmbedBatchSize = 32
	// DefaultWorkers bounds concurrent embedding requests.
	DefaultWorkers = 4
)

// ErrNoEmbedder is returned when the pipeline has no embedder configured.
var ErrNoEmbedder = errors.New("no embedder configured")

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config describes how one domain's records are ingested.
type Config[R any] struct {
	Domain string
	// Dim is the expected embedding dimension. Zero takes it from the first
	// embedding.
	Dim       int
	ChunkSize int
	Workers   int
	Retry     fn.RetryOpts
	// Validate drops records it rejects. Nil keeps every record.
	Validate func(R) error
}

// Deps holds the external dependencies for the pipeline.
type Deps struct {
	Embedder Embedder
	Logger   *slog.Logger
}

// NewValidate returns a stage that drops records failing validate and logs
// each one. It fails only when nothing is left.
func NewValidate[R any](validate func(R) error, log *slog.Logger) fn.Stage[[]Record[R], []Record[R]] {
	return func(_ context.Context, recs []Record[R]) fn.Result[[]Record[R]] {
		if validate == nil {
			return fn.Ok(recs)
		}
		kept := fn.Filter(recs, func(r Record[R]) bool {
			if err := validate(r.Value); err != nil {
				log.Warn("ingest: dropping record", "err", err)
				return false
			}
			return true
		})
		if len(kept) == 0 {
			return fn.Err[[]Record[R]](fmt.Errorf("ingest: validate: %w", kb.ErrEmptyBatch))
		}
		return fn.Ok(kept)
	}
}

// NewChunk returns a stage that flattens every record and links each chunk
// back to its record.
func NewChunk[R any](size int) fn.Stage[[]Record[R], ChunkedBatch[R]] {
	return func(_ context.Context, recs []Record[R]) fn.Result[ChunkedBatch[R]] {
		out := ChunkedBatch[R]{Records: make([]R, len(recs))}
		for i, r := range recs {
			out.Records[i] = r.Value
			chunks, err := flatten.ChunkRecord(r.Raw, size)
			if err != nil {
				return fn.Err[ChunkedBatch[R]](fmt.Errorf("ingest: chunk record %d: %w", i, err))
			}
			for _, c := range chunks {
				out.Chunks = append(out.Chunks, c)
				out.Links = append(out.Links, i)
			}
		}
		return fn.Ok(out)
	}
}

// NewEmbed returns a stage that embeds every chunk. Chunks are embedded in
// batches of EmbedBatchSize with at most workers requests in flight, and
// each request is retried with opts.
func NewEmbed[R any](e Embedder, workers int, opts fn.RetryOpts) fn.Stage[ChunkedBatch[R], EmbeddedBatch[R]] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	one := fn.RetryStage(opts, func(ctx context.Context, text string) fn.Result[[]float32] {
		if e == nil {
			return fn.Err[[]float32](ErrNoEmbedder)
		}
		v, err := e.Embed(ctx, text)
		return fn.FromPair(v, err)
	})
	batch := fn.BatchStage(workers, one)

	return func(ctx context.Context, in ChunkedBatch[R]) fn.Result[EmbeddedBatch[R]] {
		embeddings := make([][]float32, 0, len(in.Chunks))
		for _, group := range fn.Chunk(in.Chunks, EmbedBatchSize) {
			if err := ctx.Err(); err != nil {
				return fn.Err[EmbeddedBatch[R]](err)
			}
			vecs, err := batch(ctx, group).Unwrap()
			if err != nil {
				return fn.Err[EmbeddedBatch[R]](fmt.Errorf("ingest: embed: %w", err))
			}
			embeddings = append(embeddings, vecs...)
		}
		return fn.Ok(EmbeddedBatch[R]{ChunkedBatch: in, Embeddings: embeddings})
	}
}

// NewBuild returns a stage that seals an embedded batch into a knowledge base.
func NewBuild[R any](dim int) fn.Stage[EmbeddedBatch[R], *kb.KnowledgeBase[R]] {
	return func(_ context.Context, in EmbeddedBatch[R]) fn.Result[*kb.KnowledgeBase[R]] {
		d := dim
		if d == 0 && len(in.Embeddings) > 0 {
			d = len(in.Embeddings[0])
		}
		base, err := kb.Build(in.Chunks, in.Embeddings, d, kb.WithRecords(in.Records, in.Links))
		return fn.FromPair(base, err)
	}
}

// LoggedTap returns a stage that logs entry and exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline wires Validate, Chunk, Embed and Build for one domain.
func NewPipeline[R any](cfg Config[R], deps Deps) fn.Stage[[]Record[R], *kb.KnowledgeBase[R]] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("domain", cfg.Domain)

	validated := fn.Then(LoggedTap[[]Record[R]]("validate", log), NewValidate(cfg.Validate, log))
	chunked := fn.Then(validated, fn.TracedStage("ingest.chunk", NewChunk[R](cfg.ChunkSize)))
	embedded := fn.Then(chunked, fn.TracedStage("ingest.embed", NewEmbed[R](deps.Embedder, cfg.Workers, cfg.Retry)))
	return fn.Then(embedded, fn.TracedStage("ingest.build", NewBuild[R](cfg.Dim)))
}

// Builder returns a function suitable for kb.Store.Refresh that reads raw
// records from source and runs them through the pipeline.
func Builder[R any](cfg Config[R], deps Deps, source func(context.Context) ([]byte, error)) func(context.Context) (*kb.KnowledgeBase[R], error) {
	pipeline := NewPipeline(cfg, deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context) (*kb.KnowledgeBase[R], error) {
		start := time.Now()
		data, err := source(ctx)
		if err != nil {
			return nil, err
		}
		recs, err := Decode[R](data)
		if err != nil {
			return nil, err
		}
		base, err := fn.TracedStage("ingest."+cfg.Domain, pipeline)(ctx, recs).Unwrap()
		if err != nil {
			return nil, err
		}
		log.Info("ingest: knowledge base built",
			"domain", cfg.Domain,
			"records", len(base.Records()),
			"chunks", base.Len(),
			"took", time.Since(start),
		)
		return base, nil
	}
}
