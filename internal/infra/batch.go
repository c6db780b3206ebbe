package infra

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchOptions configures MapBatched.
type BatchOptions[K comparable] struct {
	// Size is the number of items fetched concurrently. Values < 1 mean one batch.
	Size int
	// Delay is the pause between consecutive batches. No pause follows the last batch.
	Delay time.Duration
	// Sleep waits for Delay. Defaults to SleepContext; tests inject a fake.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnError is called with the items of a batch whose fetch failed.
	// The whole batch is dropped from the result.
	OnError func(batch []K, err error)
}

// MapBatched applies fn to every item, running each batch concurrently and
// the batches one after another with a fixed delay in between. It is a
// fixed-rate limiter for upstreams that throttle bursts.
//
// A failing fn aborts only its own batch. The returned error is non-nil only
// when ctx ends; the map then holds the batches completed so far.
func MapBatched[K comparable, V any](ctx context.Context, items []K, opts BatchOptions[K], fn func(context.Context, K) (V, error)) (map[K]V, error) {
	size := opts.Size
	if size < 1 {
		size = len(items)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	out := make(map[K]V, len(items))
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		end := min(start+size, len(items))
		batch := items[start:end]
		results := make([]V, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, item := range batch {
			g.Go(func() error {
				v, err := fn(gctx, item)
				if err != nil {
					return err
				}
				results[i] = v
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if opts.OnError != nil {
				opts.OnError(batch, err)
			}
		} else {
			for i, item := range batch {
				out[item] = results[i]
			}
		}

		if end < len(items) && opts.Delay > 0 {
			if err := sleep(ctx, opts.Delay); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
