// Package rag answers natural-language questions over one record domain.
// A query takes the first applicable branch: knowledge base not loaded,
// exact record key, structured filter, or whole-corpus vector search whose
// chunks are handed to an answer generator.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetdesk/fleetrag/engine/criteria"
	"github.com/fleetdesk/fleetrag/engine/kb"
	"github.com/fleetdesk/fleetrag/pkg/flatten"
	"github.com/fleetdesk/fleetrag/pkg/metrics"
)

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator composes a final answer from a question and context chunks.
type Generator interface {
	Generate(ctx context.Context, question string, context []string) (string, error)
}

// Branch names the dispatcher path that produced an answer.
type Branch string

const (
	BranchNotLoaded  Branch = "not_loaded"
	BranchExactKey   Branch = "exact_key"
	BranchStructured Branch = "structured"
	BranchVector     Branch = "vector"
)

// Fixed user-facing messages.
const (
	MsgNotLoaded = "Knowledge base not loaded yet."
	MsgNoChunks  = "No matching records found."
)

// Options configures the engine.
type Options struct {
	TopK       int              // chunks handed to the generator on the vector branch
	MaxMatches int              // records listed on the structured branch
	Now        func() time.Time // clock for relative date filters
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{TopK: 3, MaxMatches: 5, Now: time.Now}
}

// Answer is the result of one query.
type Answer struct {
	ID      uuid.UUID `json:"id"`
	Domain  string    `json:"domain"`
	Branch  Branch    `json:"branch"`
	Text    string    `json:"text"`
	Context []string  `json:"context,omitempty"`
	Matches int       `json:"matches"`
	Failed  bool      `json:"failed,omitempty"`
}

// Response returns the answer in the list form clients expect.
func (a *Answer) Response() []string { return []string{a.Text} }

// Engine dispatches queries for one domain.
type Engine[R any] struct {
	domain Domain[R]
	store  *kb.Store[R]
	embed  Embedder
	gen    Generator
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	met    *queryMetrics
}

// New creates an engine. embed and gen may be nil; branches that need them
// then report a failure string. reg may be nil.
func New[R any](d Domain[R], store *kb.Store[R], embed Embedder, gen Generator, opts Options, reg *metrics.Registry, logger *slog.Logger) *Engine[R] {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = def.MaxMatches
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return &Engine[R]{
		domain: d,
		store:  store,
		embed:  embed,
		gen:    gen,
		opts:   opts,
		logger: logger.With("domain", d.Name),
		tracer: otel.Tracer("engine/rag"),
		met:    newQueryMetrics(reg, d.Name),
	}
}

// Domain returns the engine's domain name.
func (e *Engine[R]) Domain() string { return e.domain.Name }

// Store returns the knowledge base store the engine reads from.
func (e *Engine[R]) Store() *kb.Store[R] { return e.store }

// Query runs the dispatcher. External-service failures are reported in the
// answer text, never as an error.
func (e *Engine[R]) Query(ctx context.Context, question string) *Answer {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "rag.query", trace.WithAttributes(attribute.String("domain", e.domain.Name)))
	defer span.End()

	ans := e.dispatch(ctx, question)
	ans.ID = uuid.New()
	ans.Domain = e.domain.Name

	span.SetAttributes(attribute.String("branch", string(ans.Branch)), attribute.Int("matches", ans.Matches))
	e.met.observe(ans, start)
	e.logger.Info("rag query", "branch", ans.Branch, "matches", ans.Matches, "failed", ans.Failed, "took", time.Since(start))
	return ans
}

// Criteria returns the structured filters the engine would extract from
// question. It does not consult the knowledge base.
func (e *Engine[R]) Criteria(question string) criteria.Set {
	if e.domain.Extract == nil {
		return criteria.New()
	}
	return e.domain.Extract(question, e.opts.Now())
}

// Key returns the record identifier found in question, if any.
func (e *Engine[R]) Key(question string) (string, bool) { return e.domain.extractKey(question) }

func (e *Engine[R]) dispatch(ctx context.Context, question string) *Answer {
	base, ok := e.store.Load()
	if !ok {
		return &Answer{Branch: BranchNotLoaded, Text: MsgNotLoaded}
	}
	if key, ok := e.domain.extractKey(question); ok {
		return e.exactKey(ctx, base, question, key)
	}
	if base.HasRecords() && e.domain.Extract != nil {
		set := e.domain.Extract(question, e.opts.Now())
		if !set.Empty() {
			return e.structured(ctx, base, question, set)
		}
	}
	return e.vector(ctx, base, question)
}

// exactKey never falls through: a miss is a deterministic not-found answer.
func (e *Engine[R]) exactKey(ctx context.Context, base *kb.KnowledgeBase[R], question, key string) *Answer {
	for _, chunk := range base.Chunks() {
		v, ok := flatten.Lookup(flatten.Decode(chunk), e.domain.KeyField)
		if !ok || !strings.EqualFold(strings.TrimSpace(v), key) {
			continue
		}
		ans := &Answer{Branch: BranchExactKey, Context: []string{chunk}, Matches: 1}
		e.generate(ctx, ans, question, ans.Context, chunk)
		return ans
	}
	return &Answer{Branch: BranchExactKey, Text: fmt.Sprintf(e.domain.KeyMissFormat, key)}
}

func (e *Engine[R]) structured(ctx context.Context, base *kb.KnowledgeBase[R], question string, set criteria.Set) *Answer {
	res := e.domain.Filter(base.Records(), set)
	if len(res.Excluded) > 0 {
		e.logger.Debug("records excluded from filter", "count", len(res.Excluded), "reason", res.Excluded[0].Reason)
	}
	if len(res.Matches) == 0 {
		return &Answer{Branch: BranchStructured, Text: e.domain.NoMatchMessage}
	}
	top := res.Matches
	if len(top) > e.opts.MaxMatches {
		top = top[:e.opts.MaxMatches]
	}
	block := e.domain.Render(res.Summary, top, set)
	ans := &Answer{Branch: BranchStructured, Matches: len(res.Matches), Text: block}
	if e.domain.ComposeFiltered && e.gen != nil {
		ans.Context = []string{block}
		e.generate(ctx, ans, question, ans.Context, block)
	}
	return ans
}

func (e *Engine[R]) vector(ctx context.Context, base *kb.KnowledgeBase[R], question string) *Answer {
	ans := &Answer{Branch: BranchVector}
	if e.embed == nil {
		e.fail(ans, "embedding service", fmt.Errorf("not configured"))
		return ans
	}
	q, err := e.embed.Embed(ctx, question)
	if err != nil {
		e.fail(ans, "embedding service", err)
		return ans
	}
	hits, err := base.Index.SearchAll(q, e.opts.TopK)
	if err != nil {
		e.fail(ans, "embedding service", err)
		return ans
	}
	if len(hits) == 0 {
		ans.Text = MsgNoChunks
		return ans
	}
	ans.Context = make([]string, len(hits))
	for i, h := range hits {
		ans.Context[i] = h.Text
	}
	ans.Matches = len(hits)
	e.generate(ctx, ans, question, ans.Context, "")
	return ans
}

// generate fills ans.Text from the generator. Without a generator the
// fallback text is used; with no fallback that is a failure.
func (e *Engine[R]) generate(ctx context.Context, ans *Answer, question string, chunks []string, fallback string) {
	if e.gen == nil {
		if fallback != "" {
			ans.Text = fallback
			return
		}
		e.fail(ans, "answer service", fmt.Errorf("not configured"))
		return
	}
	text, err := e.gen.Generate(ctx, question, chunks)
	if err != nil {
		e.fail(ans, "answer service", err)
		return
	}
	ans.Text = text
}

func (e *Engine[R]) fail(ans *Answer, stage string, err error) {
	e.logger.Warn("rag: external service failed", "stage", stage, "err", err)
	ans.Failed = true
	ans.Text = fmt.Sprintf("error: %s: %s", stage, err)
}
