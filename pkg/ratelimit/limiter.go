// Package ratelimit implements the outbound request admission strategies used
// by the UTS client. UTS allows at most 20 requests per second per API key;
// every call to the login endpoint, the ticket-granting resource, and the
// REST API passes through a Limiter first.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultRequestsPerSecond is the UTS terms-of-service quota.
const DefaultRequestsPerSecond = 20

// pollInterval is how long Timely sleeps between window checks.
const pollInterval = 20 * time.Millisecond

// Prometheus metrics for request admission.
var (
	admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uts_ratelimit_admissions_total",
		Help: "Total requests admitted by the rate limiter by strategy",
	}, []string{"strategy"})

	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uts_ratelimit_wait_seconds",
		Help:    "Time spent waiting for admission by strategy",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"strategy"})
)

// Limiter admits or delays outbound calls.
//
// Wait blocks until the next call may proceed. It only returns an error when
// ctx is done before admission.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Strategy names a Limiter implementation.
type Strategy string

const (
	// StrategyTimely is a fixed one-second window counter.
	StrategyTimely Strategy = "timely"

	// StrategySleepy sleeps 1s/N before every call.
	StrategySleepy Strategy = "sleepy"

	// StrategyForgetful admits everything immediately.
	StrategyForgetful Strategy = "forgetful"

	// StrategyBucket is a token bucket (golang.org/x/time/rate).
	StrategyBucket Strategy = "bucket"

	// StrategyShared is a fixed window shared through Redis.
	StrategyShared Strategy = "shared"
)

// ParseStrategy converts a configuration string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyTimely, nil
	case StrategyTimely, StrategySleepy, StrategyForgetful, StrategyBucket, StrategyShared:
		return st, nil
	default:
		return "", fmt.Errorf("unknown rate limit strategy %q", s)
	}
}

// Timely is a fixed-window limiter. It counts admissions and, once the quota
// for the current window is used up, holds the next caller until the window
// end has passed. It can under-use capacity at window boundaries but never
// admits more than the quota inside one window.
type Timely struct {
	mu        sync.Mutex
	quota     int
	count     int
	windowEnd time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewTimely creates a fixed-window limiter. rps <= 0 selects the default quota.
func NewTimely(rps int) *Timely {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	return &Timely{
		quota:     rps,
		windowEnd: time.Now().Add(time.Second),
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Wait implements Limiter.
func (l *Timely) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.now()

	// A window that elapsed while idle starts over.
	if !start.Before(l.windowEnd) {
		l.count = 0
		l.windowEnd = start.Add(time.Second)
	}

	if l.count >= l.quota {
		for l.now().Before(l.windowEnd) {
			if err := ctx.Err(); err != nil {
				return err
			}
			l.sleep(pollInterval)
		}
		l.count = 0
		l.windowEnd = l.now().Add(time.Second)
	}

	l.count++
	admissionsTotal.WithLabelValues(string(StrategyTimely)).Inc()
	waitSeconds.WithLabelValues(string(StrategyTimely)).Observe(l.now().Sub(start).Seconds())
	return nil
}

// Sleepy spaces every call by 1s/N. Latency is uniform and throughput
// slightly below the quota.
type Sleepy struct {
	interval time.Duration
}

// NewSleepy creates a limiter that sleeps before every call.
func NewSleepy(rps int) *Sleepy {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	return &Sleepy{interval: time.Second / time.Duration(rps)}
}

// Interval returns the pause applied before every call.
func (l *Sleepy) Interval() time.Duration {
	return l.interval
}

// Wait implements Limiter.
func (l *Sleepy) Wait(ctx context.Context) error {
	t := time.NewTimer(l.interval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	admissionsTotal.WithLabelValues(string(StrategySleepy)).Inc()
	waitSeconds.WithLabelValues(string(StrategySleepy)).Observe(l.interval.Seconds())
	return nil
}

// Forgetful performs no limiting. Intended for tests against local servers.
type Forgetful struct{}

// Wait implements Limiter.
func (Forgetful) Wait(ctx context.Context) error {
	admissionsTotal.WithLabelValues(string(StrategyForgetful)).Inc()
	return nil
}
