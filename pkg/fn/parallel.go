package fn

import (
	"context"
	"sync"
)

// ParMapResult applies f with at most workers calls in flight and returns
// the results in input order. Items not started before ctx is done get
// ctx.Err().
func ParMapResult[T, U any](ctx context.Context, items []T, workers int, f func(T) Result[U]) []Result[U] {
	out := make([]Result[U], len(items))
	if len(items) == 0 {
		return out
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, v := range items {
		if !acquire(ctx, sem) {
			for j := i; j < len(items); j++ {
				out[j] = Err[U](ctx.Err())
			}
			break
		}
		wg.Add(1)
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			out[i] = f(v)
		}(i, v)
	}
	wg.Wait()
	return out
}

func acquire(ctx context.Context, sem chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case sem <- struct{}{}:
		return true
	}
}
