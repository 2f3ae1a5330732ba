// Package metrics is a small Prometheus-compatible registry of counters,
// gauges and histograms, rendered in the text exposition format.
package metrics

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are the default histogram buckets (in seconds).
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter only goes up.
type Counter struct{ n atomic.Int64 }

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Add(n int64)  { c.n.Add(n) }
func (c *Counter) Value() int64 { return c.n.Load() }

func (c *Counter) sample() string { return strconv.FormatInt(c.Value(), 10) }

// Gauge holds an integer, or a float after SetFloat until the next Set.
type Gauge struct {
	bits    atomic.Int64
	isFloat atomic.Bool
}

func (g *Gauge) Set(n int64)  { g.isFloat.Store(false); g.bits.Store(n) }
func (g *Gauge) Inc()         { g.bits.Add(1) }
func (g *Gauge) Dec()         { g.bits.Add(-1) }
func (g *Gauge) Value() int64 { return g.bits.Load() }

// SetFloat stores f; it is rendered as a float until the next Set.
func (g *Gauge) SetFloat(f float64) {
	g.bits.Store(int64(math.Float64bits(f)))
	g.isFloat.Store(true)
}

// FloatValue reads the stored bits as a float64.
func (g *Gauge) FloatValue() float64 { return math.Float64frombits(uint64(g.bits.Load())) }

func (g *Gauge) sample() string {
	if g.isFloat.Load() {
		return strconv.FormatFloat(g.FloatValue(), 'g', -1, 64)
	}
	return strconv.FormatInt(g.Value(), 10)
}

// Histogram counts observations into fixed upper bounds.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64 // per bound, not cumulative
	sum    float64
	count  uint64
}

func newHistogram(bounds []float64) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	return &Histogram{bounds: b, counts: make([]uint64, len(b))}
}

// Observe records v in the first bucket whose bound is >= v.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	if i < len(h.counts) {
		h.counts[i]++
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

func (h *Histogram) snapshot() (bounds []float64, counts []uint64, sum float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bounds, append([]uint64(nil), h.counts...), h.sum, h.count
}
