// Package ratelimit paces outbound calls to external data providers. The
// in-process Pacer is the correctness layer (deterministic minimum interval
// per provider); the redis token bucket adds a best-effort cross-process cap
// when redis is configured.
package ratelimit

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/hmoscout/hmoscout/internal/config"
	obsmetrics "github.com/hmoscout/hmoscout/internal/observability/metrics"
)

const keyProviderBucket = "provider:rate:"

// ProviderLimiter gates every outbound provider call. Acquire never fails the
// call on redis trouble: the bucket is advisory, the pacer is authoritative.
type ProviderLimiter struct {
	pacer  *Pacer
	bucket *TokenBucket
	rate   float64
	burst  int
	obs    *obsmetrics.Metrics
}

func NewProviderLimiter(cfg config.Config, client *redis.Client, obs *obsmetrics.Metrics) *ProviderLimiter {
	interval := time.Duration(cfg.ProviderMinIntervalMillis) * time.Millisecond
	l := &ProviderLimiter{
		pacer: NewPacer(interval),
		obs:   obs,
	}
	if client != nil && interval > 0 {
		l.bucket = NewTokenBucket(client)
		l.rate = float64(time.Second) / float64(interval)
		l.burst = 1
	}
	return l
}

// Acquire blocks until the caller may hit the named provider.
func (l *ProviderLimiter) Acquire(ctx context.Context, provider string) error {
	if l == nil {
		return ctx.Err()
	}
	provider = strings.TrimSpace(provider)

	paceStart := time.Now()
	if err := l.pacer.Wait(ctx, provider); err != nil {
		return err
	}
	if time.Since(paceStart) > time.Millisecond {
		l.obs.RecordRateLimitWait(ctx, provider)
	}
	if l.bucket == nil {
		return nil
	}

	for {
		decision, err := l.bucket.Allow(ctx, keyProviderBucket+provider, l.rate, l.burst)
		if err != nil {
			return nil
		}
		if decision.Allowed {
			return nil
		}
		l.obs.RecordRateLimitDenied(ctx, provider, "bucket_empty")

		wait := decision.RetryAfter
		if wait <= 0 {
			wait = 100 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
