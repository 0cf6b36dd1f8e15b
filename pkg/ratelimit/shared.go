package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisKeyPrefix namespaces the shared window counters.
const DefaultRedisKeyPrefix = "uts:rate_limit"

// Shared is a fixed-window limiter whose counter lives in Redis, so several
// processes using the same API key share one quota. Windows are aligned to
// wall-clock seconds; each window has its own key that expires shortly after
// the window ends.
//
// If Redis is unreachable the call is admitted through a process-local Timely
// limiter instead, so the quota is still honored per process.
type Shared struct {
	redis    *redis.Client
	prefix   string
	quota    int
	fallback *Timely
	logger   zerolog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// SharedOption configures a Shared limiter.
type SharedOption func(*Shared)

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) SharedOption {
	return func(s *Shared) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger used for Redis failures.
func WithLogger(logger zerolog.Logger) SharedOption {
	return func(s *Shared) {
		s.logger = logger
	}
}

// NewShared creates a Redis-backed fixed-window limiter.
func NewShared(redisClient *redis.Client, rps int, opts ...SharedOption) *Shared {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	s := &Shared{
		redis:    redisClient,
		prefix:   DefaultRedisKeyPrefix,
		quota:    rps,
		fallback: NewTimely(rps),
		logger:   zerolog.Nop(),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// windowKey returns the counter key for the window containing t.
func (s *Shared) windowKey(t time.Time) string {
	return fmt.Sprintf("%s:%d", s.prefix, t.Unix())
}

// Wait implements Limiter.
func (s *Shared) Wait(ctx context.Context) error {
	start := s.now()

	for {
		now := s.now()
		count, err := s.incr(ctx, s.windowKey(now))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.Warn().Err(err).Msg("Shared rate window unavailable, using local limiter")
			return s.fallback.Wait(ctx)
		}

		if count <= int64(s.quota) {
			admissionsTotal.WithLabelValues(string(StrategyShared)).Inc()
			waitSeconds.WithLabelValues(string(StrategyShared)).Observe(s.now().Sub(start).Seconds())
			return nil
		}

		// Quota used up: hold until the next wall-clock second.
		next := now.Truncate(time.Second).Add(time.Second)
		s.logger.Debug().
			Int64("count", count).
			Dur("wait", next.Sub(now)).
			Msg("Shared rate window full")
		if err := s.sleep(ctx, next.Sub(now)); err != nil {
			return err
		}
	}
}

func (s *Shared) incr(ctx context.Context, key string) (int64, error) {
	pipe := s.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment rate window: %w", err)
	}
	return incr.Val(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
