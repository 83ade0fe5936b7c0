package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/inspira/internal/config"
	"github.com/smallbiznis/inspira/internal/observability/metrics"
	"go.uber.org/fx"
)

const keyWriteLimit = "inspira:ratelimit:%s:%s"

var ErrRateLimited = errors.New("rate_limited")

// WriteLimiter throttles per-user writes such as applying and voting.
type WriteLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	metrics *metrics.Metrics
}

type WriteLimiterParams struct {
	fx.In

	Config  config.Config
	Client  *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

func NewWriteLimiter(p WriteLimiterParams) (*WriteLimiter, error) {
	limitCfg := p.Config.RateLimit
	if !limitCfg.Enabled || p.Client == nil {
		return &WriteLimiter{metrics: p.Metrics}, nil
	}
	if limitCfg.WriteRate <= 0 || limitCfg.WriteBurst <= 0 {
		return nil, errors.New("write rate limit must be positive")
	}
	return &WriteLimiter{
		bucket:  NewTokenBucket(p.Client),
		rate:    limitCfg.WriteRate,
		burst:   limitCfg.WriteBurst,
		metrics: p.Metrics,
	}, nil
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow returns ErrRateLimited when the user's bucket for endpoint is empty.
func (l *WriteLimiter) Allow(ctx context.Context, endpoint string, userID snowflake.ID) (*Decision, error) {
	if !l.Enabled() {
		return &Decision{Allowed: true}, nil
	}
	endpoint = strings.TrimSpace(endpoint)
	result, err := l.bucket.Take(ctx, fmt.Sprintf(keyWriteLimit, endpoint, userID.String()), l.rate, l.burst)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, endpoint, "write_bucket_empty")
		return result, ErrRateLimited
	}
	l.metrics.RecordRateLimitAllowed(ctx, endpoint)
	return result, nil
}
