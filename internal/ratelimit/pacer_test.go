package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hmoscout/hmoscout/internal/config"
)

func configWithInterval(ms int) config.Config {
	return config.Config{ProviderMinIntervalMillis: ms}
}

func TestPacerZeroIntervalNeverBlocks(t *testing.T) {
	p := NewPacer(0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		assert.NoError(t, p.Wait(context.Background(), "epc-register"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacerSpacesConsecutiveCalls(t *testing.T) {
	p := NewPacer(50 * time.Millisecond)

	assert.NoError(t, p.Wait(context.Background(), "epc-register"))
	start := time.Now()
	assert.NoError(t, p.Wait(context.Background(), "epc-register"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPacerProvidersAreIndependent(t *testing.T) {
	p := NewPacer(200 * time.Millisecond)

	assert.NoError(t, p.Wait(context.Background(), "epc-register"))
	start := time.Now()
	assert.NoError(t, p.Wait(context.Background(), "land-registry"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPacerHonorsCancellation(t *testing.T) {
	p := NewPacer(time.Minute)
	assert.NoError(t, p.Wait(context.Background(), "epc-register"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Wait(ctx, "epc-register")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNilPacerIsPassive(t *testing.T) {
	var p *Pacer
	assert.NoError(t, p.Wait(context.Background(), "epc-register"))
}

func TestProviderLimiterWithoutRedis(t *testing.T) {
	l := NewProviderLimiter(configWithInterval(0), nil, nil)
	assert.NoError(t, l.Acquire(context.Background(), "epc-register"))

	var nilLimiter *ProviderLimiter
	assert.NoError(t, nilLimiter.Acquire(context.Background(), "epc-register"))
}
