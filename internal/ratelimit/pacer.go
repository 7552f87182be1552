package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a minimum interval between consecutive calls to the same
// provider inside this process. Each call reserves the next free slot under
// the lock, so concurrent workers are serialized deterministically instead of
// racing for the same slot.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     map[string]time.Time
}

func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		next:     make(map[string]time.Time),
	}
}

// Wait blocks until the caller may hit the provider, or until ctx is done.
func (p *Pacer) Wait(ctx context.Context, provider string) error {
	if p == nil || p.interval <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	slot := p.next[provider]
	if slot.Before(now) {
		slot = now
	}
	p.next[provider] = slot.Add(p.interval)
	p.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
