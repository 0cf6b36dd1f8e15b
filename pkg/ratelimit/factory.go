package ratelimit

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config selects and parameterizes a Limiter.
type Config struct {
	// Strategy is the admission strategy (default timely).
	Strategy Strategy

	// RequestsPerSecond is the quota (default 20).
	RequestsPerSecond int

	// Redis is required for StrategyShared and ignored otherwise.
	Redis *redis.Client

	// Logger receives Redis fallback warnings.
	Logger zerolog.Logger
}

// DefaultConfig returns the UTS default: a fixed window of 20 requests.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyTimely,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Logger:            zerolog.Nop(),
	}
}

// New builds the Limiter described by cfg.
func New(cfg Config) (Limiter, error) {
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %d)", cfg.RequestsPerSecond)
	}

	switch cfg.Strategy {
	case StrategyTimely, "":
		return NewTimely(cfg.RequestsPerSecond), nil
	case StrategySleepy:
		return NewSleepy(cfg.RequestsPerSecond), nil
	case StrategyForgetful:
		return Forgetful{}, nil
	case StrategyBucket:
		return NewBucket(cfg.RequestsPerSecond), nil
	case StrategyShared:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis client is required for %s strategy", StrategyShared)
		}
		return NewShared(cfg.Redis, cfg.RequestsPerSecond, WithLogger(cfg.Logger)), nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", cfg.Strategy)
	}
}
