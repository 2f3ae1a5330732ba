package rag

import (
	"time"

	"github.com/fleetdesk/fleetrag/pkg/metrics"
)

// queryMetrics is a nil-safe set of per-domain dispatcher metrics.
type queryMetrics struct {
	reg      *metrics.Registry
	domain   string
	latency  *metrics.Histogram
	failures *metrics.Counter
}

func newQueryMetrics(reg *metrics.Registry, domain string) *queryMetrics {
	if reg == nil {
		return nil
	}
	return &queryMetrics{
		reg:      reg,
		domain:   domain,
		latency:  reg.Histogram(metrics.WithLabels("fleetrag_query_duration_seconds", "domain", domain), "Query latency", nil),
		failures: reg.Counter(metrics.WithLabels("fleetrag_query_failures_total", "domain", domain), "Queries that hit an external-service failure"),
	}
}

func (m *queryMetrics) observe(a *Answer, start time.Time) {
	if m == nil {
		return
	}
	m.reg.Counter(metrics.WithLabels("fleetrag_queries_total", "domain", m.domain, "branch", string(a.Branch)), "Queries by answering branch").Inc()
	m.latency.Since(start)
	if a.Failed {
		m.failures.Inc()
	}
}
