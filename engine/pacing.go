package engine

import (
	"context"
	"math/rand/v2"
	"time"
)

// PacingDelay draws the inter-call delay uniformly from [min, max].
// Randomized pacing models human reading cadence and avoids a
// fixed-interval signature on the target service.
func PacingDelay(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int64N(int64(max-min)+1))
}

// RetryBackoff returns the wait before retry n (1-based): base doubled
// per prior retry. Waits are non-decreasing across attempts of one
// iteration.
func RetryBackoff(base time.Duration, retry int) time.Duration {
	if retry <= 0 || base <= 0 {
		return 0
	}
	shift := uint(retry - 1)
	if shift > 30 {
		shift = 30 // backoff is already hours by here
	}
	return base << shift
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
