package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("fleetrag_queries_total", "Queries answered")
	c.Inc()
	c.Add(5)
	if c.Value() != 6 {
		t.Fatalf("counter = %d, want 6", c.Value())
	}
	if r.Counter("fleetrag_queries_total", "") != c {
		t.Fatal("same name should return the same counter")
	}
	if r.Counter(WithLabels("fleetrag_queries_total", "domain", "orders"), "") == c {
		t.Fatal("labelled series should be distinct")
	}

	g := r.Gauge("fleetrag_kb_chunks", "Indexed chunks")
	g.Set(42)
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 43 {
		t.Fatalf("gauge = %d, want 43", g.Value())
	}
}

func TestGaugeFloat(t *testing.T) {
	r := New()
	g := r.Gauge("fleetrag_kb_load_seconds", "")
	g.SetFloat(3.14)
	if g.FloatValue() != 3.14 {
		t.Fatalf("FloatValue = %f", g.FloatValue())
	}
	if out := r.Render(); !strings.Contains(out, "fleetrag_kb_load_seconds 3.14\n") {
		t.Fatalf("float gauge not rendered as float:\n%s", out)
	}
	g.Set(2)
	if out := r.Render(); !strings.Contains(out, "fleetrag_kb_load_seconds 2\n") {
		t.Fatalf("Set should switch back to integer rendering:\n%s", out)
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := New().Histogram("fleetrag_query_duration_seconds", "", []float64{1.0, 0.1, 0.5})
	for _, v := range []float64{0.05, 0.1, 0.3, 0.8, 2.0} {
		h.Observe(v)
	}
	bounds, counts, sum, count := h.snapshot()
	if !reflect.DeepEqual(bounds, []float64{0.1, 0.5, 1.0}) {
		t.Errorf("bounds = %v, want sorted", bounds)
	}
	// 0.1 lands in its own bucket; 2.0 only shows up in +Inf.
	if !reflect.DeepEqual(counts, []uint64{2, 1, 1}) {
		t.Errorf("counts = %v", counts)
	}
	if count != 5 || sum != 0.05+0.1+0.3+0.8+2.0 {
		t.Errorf("count = %d sum = %g", count, sum)
	}

	h.Since(time.Now().Add(-100 * time.Millisecond))
	if _, _, _, count := h.snapshot(); count != 6 {
		t.Errorf("Since did not observe, count = %d", count)
	}
}

func TestWithLabels(t *testing.T) {
	tests := []struct {
		name string
		kvs  []string
		want string
	}{
		{"no labels", nil, "x"},
		{"odd pairs ignored", []string{"domain"}, "x"},
		{"two pairs", []string{"domain", "orders", "branch", "vector"}, `x{domain="orders",branch="vector"}`},
		{"escaped", []string{"err", "say \"hi\"\n\\"}, `x{err="say \"hi\"\n\\"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithLabels("x", tt.kvs...); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct{ in, base, labels string }{
		{"foo_total", "foo_total", ""},
		{`foo_total{k="v"}`, "foo_total", `{k="v"}`},
		{`foo{a="1",b="2"}`, "foo", `{a="1",b="2"}`},
	}
	for _, tt := range tests {
		base, labels := splitName(tt.in)
		if base != tt.base || labels != tt.labels {
			t.Errorf("splitName(%q) = %q, %q", tt.in, base, labels)
		}
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter(WithLabels("fleetrag_refresh_total", "domain", "vehicles", "result", "ok"), "Knowledge base refreshes").Add(2)
	r.Counter(WithLabels("fleetrag_refresh_total", "domain", "orders", "result", "error"), "ignored").Inc()
	r.Gauge(WithLabels("fleetrag_kb_chunks", "domain", "orders"), "Indexed chunks").Set(5)
	h := r.Histogram(WithLabels("fleetrag_refresh_duration_seconds", "domain", "orders"), "Build time", []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.3)

	want := `# HELP fleetrag_refresh_total Knowledge base refreshes
# TYPE fleetrag_refresh_total counter
fleetrag_refresh_total{domain="orders",result="error"} 1
fleetrag_refresh_total{domain="vehicles",result="ok"} 2
# HELP fleetrag_kb_chunks Indexed chunks
# TYPE fleetrag_kb_chunks gauge
fleetrag_kb_chunks{domain="orders"} 5
# HELP fleetrag_refresh_duration_seconds Build time
# TYPE fleetrag_refresh_duration_seconds histogram
fleetrag_refresh_duration_seconds_bucket{le="0.1",domain="orders"} 1
fleetrag_refresh_duration_seconds_bucket{le="1",domain="orders"} 2
fleetrag_refresh_duration_seconds_bucket{le="+Inf",domain="orders"} 2
fleetrag_refresh_duration_seconds_sum{domain="orders"} 0.35
fleetrag_refresh_duration_seconds_count{domain="orders"} 2
`
	if got := r.Render(); got != want {
		t.Fatalf("Render mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderUnlabelledHistogram(t *testing.T) {
	r := New()
	r.Histogram("latency", "", []float64{1}).Observe(0.5)
	out := r.Render()
	for _, line := range []string{`latency_bucket{le="1"} 1`, `latency_bucket{le="+Inf"} 1`, "latency_sum 0.5", "latency_count 1"} {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("missing %q in:\n%s", line, out)
		}
	}
}

func TestKindConflictPanics(t *testing.T) {
	r := New()
	r.Counter(WithLabels("fleetrag_kb_chunks", "domain", "orders"), "")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering a counter name as a gauge")
		}
	}()
	r.Gauge(WithLabels("fleetrag_kb_chunks", "domain", "vehicles"), "")
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("test_total", "test").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "test_total 1") {
		t.Error("missing metric in handler output")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	r := New()
	r.Counter("fleetrag_refresh_total", "").Inc()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, addr, log) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("metrics server never came up: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "fleetrag_refresh_total 1") {
		t.Errorf("unexpected body:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
