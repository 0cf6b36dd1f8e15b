package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a token-bucket limiter with rate and burst both set to the quota.
// Unlike Timely it refills continuously, so bursts at a window boundary are
// smoothed out.
type Bucket struct {
	lim *rate.Limiter
}

// NewBucket creates a token-bucket limiter. rps <= 0 selects the default quota.
func NewBucket(rps int) *Bucket {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	return &Bucket{lim: rate.NewLimiter(rate.Limit(rps), rps)}
}

// Wait implements Limiter.
func (b *Bucket) Wait(ctx context.Context) error {
	start := time.Now()
	if err := b.lim.Wait(ctx); err != nil {
		return err
	}
	admissionsTotal.WithLabelValues(string(StrategyBucket)).Inc()
	waitSeconds.WithLabelValues(string(StrategyBucket)).Observe(time.Since(start).Seconds())
	return nil
}
