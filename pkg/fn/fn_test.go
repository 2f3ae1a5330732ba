package fn

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestResult(t *testing.T) {
	ok := Ok(3)
	if !ok.IsOk() || ok.IsErr() {
		t.Fatal("Ok should be ok")
	}
	if v, err := ok.Unwrap(); v != 3 || err != nil {
		t.Fatalf("Unwrap = %d, %v", v, err)
	}

	bad := Err[int](errBoom)
	if bad.IsOk() || !bad.IsErr() {
		t.Fatal("Err should be err")
	}
	if got := bad.UnwrapOr(7); got != 7 {
		t.Errorf("UnwrapOr = %d, want 7", got)
	}
	if got := ok.UnwrapOr(7); got != 3 {
		t.Errorf("UnwrapOr on ok = %d, want 3", got)
	}

	if !FromPair(1, nil).IsOk() || !FromPair(0, errBoom).IsErr() {
		t.Error("FromPair mismatch")
	}
}

func TestCollect(t *testing.T) {
	tests := []struct {
		name    string
		in      []Result[int]
		want    []int
		wantErr bool
	}{
		{"all ok", []Result[int]{Ok(1), Ok(2)}, []int{1, 2}, false},
		{"empty", nil, []int{}, false},
		{"one error", []Result[int]{Ok(1), Err[int](errBoom), Ok(3)}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Collect(tt.in).Unwrap()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThen(t *testing.T) {
	double := MapStage(func(n int) int { return n * 2 })
	format := MapStage(strconv.Itoa)
	failing := Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errBoom) })

	got, err := Then(double, format)(context.Background(), 21).Unwrap()
	if err != nil || got != "42" {
		t.Fatalf("Then = %q, %v", got, err)
	}

	var called bool
	tail := Stage[int, string](func(context.Context, int) Result[string] { called = true; return Ok("") })
	if _, err := Then(failing, tail)(context.Background(), 1).Unwrap(); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if called {
		t.Error("second stage ran after failure")
	}
}

func TestTapStage(t *testing.T) {
	var seen int
	got, _ := TapStage(func(_ context.Context, n int) { seen = n })(context.Background(), 5).Unwrap()
	if got != 5 || seen != 5 {
		t.Errorf("got %d seen %d", got, seen)
	}
}

func TestTracedStagePassesThrough(t *testing.T) {
	stage := TracedStage("test", MapStage(func(s string) int { return len(s) }))
	if got, _ := stage(context.Background(), "abc").Unwrap(); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	failing := TracedStage("test", Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errBoom) }))
	if _, err := failing(context.Background(), 1).Unwrap(); !errors.Is(err, errBoom) {
		t.Errorf("err = %v", err)
	}
}

func TestBatchStage(t *testing.T) {
	var inFlight, peak atomic.Int32
	square := Stage[int, int](func(_ context.Context, n int) Result[int] {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		if n < 0 {
			return Err[int](errBoom)
		}
		return Ok(n * n)
	})

	got, err := BatchStage(2, square)(context.Background(), []int{1, 2, 3, 4, 5}).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{1, 4, 9, 16, 25}) {
		t.Errorf("got %v", got)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d, want <= 2", peak.Load())
	}

	if _, err := BatchStage(2, square)(context.Background(), []int{1, -1, 3}).Unwrap(); !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestParMapResultCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := ParMapResult(ctx, []int{1, 2, 3}, 1, func(n int) Result[int] { return Ok(n) })
	if len(out) != 3 {
		t.Fatalf("len = %d", len(out))
	}
	for i, r := range out {
		if _, err := r.Unwrap(); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("out[%d] err = %v", i, err)
		}
	}
	if _, err := Collect(out).Unwrap(); !errors.Is(err, context.Canceled) {
		t.Errorf("Collect err = %v, want canceled", err)
	}
}

func TestRetry(t *testing.T) {
	fast := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	tests := []struct {
		name      string
		opts      RetryOpts
		failUntil int32
		wantCalls int32
		wantErr   bool
	}{
		{"first try", fast, 0, 1, false},
		{"succeeds on third", fast, 2, 3, false},
		{"exhausted", fast, 10, 3, true},
		{"zero attempts runs once", RetryOpts{}, 10, 1, true},
		{"not retryable", RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, Retryable: func(error) bool { return false }}, 10, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			_, err := Retry(context.Background(), tt.opts, func(context.Context) Result[int] {
				if calls.Add(1) <= tt.failUntil {
					return Err[int](errBoom)
				}
				return Ok(1)
			}).Unwrap()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}
	var calls int
	_, err := Retry(ctx, opts, func(context.Context) Result[int] {
		calls++
		cancel()
		return Err[int](errBoom)
	}).Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryStage(t *testing.T) {
	var calls int
	stage := RetryStage(RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, Stage[string, int](func(_ context.Context, s string) Result[int] {
		calls++
		if calls == 1 {
			return Err[int](errBoom)
		}
		return Ok(len(s))
	}))
	if got, err := stage(context.Background(), "abcd").Unwrap(); err != nil || got != 4 {
		t.Fatalf("got %d, %v", got, err)
	}
}

func TestSliceHelpers(t *testing.T) {
	if got := Map([]int{1, 2}, strconv.Itoa); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("Map = %v", got)
	}
	if got := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 }); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Errorf("Filter = %v", got)
	}

	tests := []struct {
		n    int
		want [][]int
	}{
		{2, [][]int{{1, 2}, {3, 4}, {5}}},
		{5, [][]int{{1, 2, 3, 4, 5}}},
		{10, [][]int{{1, 2, 3, 4, 5}}},
		{0, nil},
	}
	for _, tt := range tests {
		if got := Chunk([]int{1, 2, 3, 4, 5}, tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Chunk(n=%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}
