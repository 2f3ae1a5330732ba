package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fleetdesk/fleetrag/engine/criteria"
	"github.com/fleetdesk/fleetrag/engine/kb"
	"github.com/fleetdesk/fleetrag/engine/rag"
	"github.com/fleetdesk/fleetrag/engine/vecindex"
	"github.com/fleetdesk/fleetrag/pkg/metrics"
)

// domainService is the record-type independent view of one domain that the
// HTTP and NATS handlers work with.
type domainService interface {
	Name() string
	Query(ctx context.Context, question string) *rag.Answer
	Criteria(question string) (criteria.Set, string)
	Search(ctx context.Context, question string, so rag.SearchOptions) ([]SearchHit, error)
	Refresh(ctx context.Context) (domainStatus, error)
	Status() domainStatus
}

// SearchHit is one ranked chunk with its source record, if linked.
type SearchHit struct {
	vecindex.Hit
	Record any `json:"record,omitempty"`
}

// domainStatus describes the published knowledge base of a domain.
type domainStatus struct {
	Loaded      bool       `json:"loaded"`
	Records     int        `json:"records"`
	Chunks      int        `json:"chunks"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
}

type service[R any] struct {
	engine    *rag.Engine[R]
	build     func(context.Context) (*kb.KnowledgeBase[R], error)
	reg       *metrics.Registry
	log       *slog.Logger
	refreshed atomic.Pointer[time.Time]
}

func newService[R any](engine *rag.Engine[R], build func(context.Context) (*kb.KnowledgeBase[R], error), reg *metrics.Registry, log *slog.Logger) *service[R] {
	if reg == nil {
		reg = metrics.New()
	}
	return &service[R]{engine: engine, build: build, reg: reg, log: log.With("domain", engine.Domain())}
}

func (s *service[R]) Name() string { return s.engine.Domain() }

func (s *service[R]) Query(ctx context.Context, question string) *rag.Answer {
	return s.engine.Query(ctx, question)
}

func (s *service[R]) Criteria(question string) (criteria.Set, string) {
	key, _ := s.engine.Key(question)
	return s.engine.Criteria(question), key
}

func (s *service[R]) Search(ctx context.Context, question string, so rag.SearchOptions) ([]SearchHit, error) {
	hits, err := s.engine.Search(ctx, question, so)
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, len(hits))
	for i, h := range hits {
		out[i].Hit = h.Hit
		if h.Record != nil {
			out[i].Record = h.Record
		}
	}
	return out, nil
}

// Refresh rebuilds the knowledge base and publishes it. On failure the
// previous knowledge base keeps serving.
func (s *service[R]) Refresh(ctx context.Context) (domainStatus, error) {
	start := time.Now()
	_, err := s.engine.Store().Refresh(ctx, s.build)

	result := "ok"
	if err != nil {
		result = "error"
	}
	s.reg.Counter(metrics.WithLabels("fleetrag_refresh_total", "domain", s.Name(), "result", result), "Knowledge base refreshes").Inc()

	if err != nil {
		s.log.Error("knowledge base refresh failed", "err", err, "took", time.Since(start))
		return s.Status(), err
	}
	now := time.Now()
	s.refreshed.Store(&now)
	st := s.Status()
	s.reg.Gauge(metrics.WithLabels("fleetrag_kb_chunks", "domain", s.Name()), "Indexed chunks").Set(int64(st.Chunks))
	s.reg.Gauge(metrics.WithLabels("fleetrag_kb_records", "domain", s.Name()), "Indexed records").Set(int64(st.Records))
	s.reg.Histogram(metrics.WithLabels("fleetrag_refresh_duration_seconds", "domain", s.Name()), "Knowledge base build time", nil).Since(start)
	s.log.Info("knowledge base refreshed", "records", st.Records, "chunks", st.Chunks, "took", time.Since(start))
	return st, nil
}

func (s *service[R]) Status() domainStatus {
	base, ok := s.engine.Store().Load()
	if !ok {
		return domainStatus{}
	}
	return domainStatus{
		Loaded:      true,
		Records:     len(base.Records()),
		Chunks:      base.Len(),
		RefreshedAt: s.refreshed.Load(),
	}
}
