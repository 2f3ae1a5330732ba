package resilience

import (
	"context"
	"testing"
	"time"
)

func TestLimiterWait(t *testing.T) {
	tests := []struct {
		name    string
		opts    LimiterOpts
		calls   int
		wantErr bool
	}{
		{"burst passes immediately", LimiterOpts{Rate: 0.001, Burst: 3}, 3, false},
		{"empty bucket outlasts deadline", LimiterOpts{Rate: 0.001, Burst: 1}, 2, true},
		{"zero burst means one", LimiterOpts{Rate: 0.001}, 2, true},
		{"unlimited", LimiterOpts{}, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(tt.opts)
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			var err error
			for i := 0; i < tt.calls && err == nil; i++ {
				err = l.Wait(ctx)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLimiterRefills(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 200, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if el := time.Since(start); el < 5*time.Millisecond {
		t.Errorf("three tokens at 200/s took %v, expected some waiting", el)
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
