package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// family is every series sharing one base name.
type family struct {
	kind   kind
	help   string
	series map[string]any // label block ("" or `{k="v"}`) -> *Counter, *Gauge or *Histogram
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*family
	order    []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

// lookup returns the series for name, creating it with mk. Registering one
// base name under two kinds is a programming error and panics.
func (r *Registry) lookup(name, help string, k kind, mk func() any) any {
	base, labels := splitName(name)

	r.mu.RLock()
	if f, ok := r.families[base]; ok && f.kind == k {
		if s, ok := f.series[labels]; ok {
			r.mu.RUnlock()
			return s
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[base]
	if !ok {
		f = &family{kind: k, series: make(map[string]any)}
		r.families[base] = f
		r.order = append(r.order, base)
	}
	if f.kind != k {
		panic(fmt.Sprintf("metrics: %s is a %s, not a %s", base, f.kind, k))
	}
	if f.help == "" {
		f.help = help
	}
	s, ok := f.series[labels]
	if !ok {
		s = mk()
		f.series[labels] = s
	}
	return s
}

// Counter returns the counter called name, creating it on first use. Labels
// are part of the name; build it with WithLabels.
func (r *Registry) Counter(name, help string) *Counter {
	return r.lookup(name, help, kindCounter, func() any { return &Counter{} }).(*Counter)
}

// Gauge returns the gauge called name, creating it on first use.
func (r *Registry) Gauge(name, help string) *Gauge {
	return r.lookup(name, help, kindGauge, func() any { return &Gauge{} }).(*Gauge)
}

// Histogram returns the histogram called name, creating it on first use with
// buckets, or DefaultBuckets when nil. Buckets of an existing histogram are
// kept.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return r.lookup(name, help, kindHistogram, func() any { return newHistogram(buckets) }).(*Histogram)
}

// WithLabels appends label pairs to name:
// WithLabels("foo", "k", "v") is `foo{k="v"}`. An odd number of kvs
// returns name unchanged.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	pairs := make([]string, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		pairs = append(pairs, kvs[i]+`="`+labelEscaper.Replace(kvs[i+1])+`"`)
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// splitName separates `foo{k="v"}` into "foo" and `{k="v"}`.
func splitName(name string) (base, labels string) {
	if i := strings.IndexByte(name, '{'); i >= 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

// Render writes every family in the text exposition format.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, base := range r.order {
		f := r.families[base]
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", base, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", base, f.kind)

		labelSets := make([]string, 0, len(f.series))
		for l := range f.series {
			labelSets = append(labelSets, l)
		}
		sort.Strings(labelSets)

		for _, l := range labelSets {
			switch s := f.series[l].(type) {
			case *Counter:
				fmt.Fprintf(&b, "%s%s %s\n", base, l, s.sample())
			case *Gauge:
				fmt.Fprintf(&b, "%s%s %s\n", base, l, s.sample())
			case *Histogram:
				renderHistogram(&b, base, l, s)
			}
		}
	}
	return b.String()
}

func renderHistogram(b *strings.Builder, base, labels string, h *Histogram) {
	bounds, counts, sum, count := h.snapshot()
	extra := ""
	if labels != "" {
		extra = "," + labels[1:len(labels)-1]
	}
	var cumulative uint64
	for i, le := range bounds {
		cumulative += counts[i]
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"%s} %d\n", base, le, extra, cumulative)
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"%s} %d\n", base, extra, count)
	fmt.Fprintf(b, "%s_sum%s %g\n", base, labels, sum)
	fmt.Fprintf(b, "%s_count%s %d\n", base, labels, count)
}
