// Package scheduler fires full ingestion runs on a fixed interval. The run
// lock inside the manager keeps overlapping ticks and concurrent manual runs
// from racing; a tick that finds the lock held simply skips.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/ingestion"
)

type Scheduler struct {
	cron    *cron.Cron
	manager *ingestion.Manager
	log     *zap.Logger

	interval time.Duration
	timeout  time.Duration
}

func New(cfg config.Config, manager *ingestion.Manager, log *zap.Logger) *Scheduler {
	intervalHours := cfg.IngestIntervalHours
	if intervalHours < 1 {
		intervalHours = 1
	}
	timeoutMinutes := cfg.RunTimeoutMinutes
	if timeoutMinutes < 1 {
		timeoutMinutes = 1
	}
	return &Scheduler{
		cron:     cron.New(),
		manager:  manager,
		log:      log.Named("scheduler"),
		interval: time.Duration(intervalHours) * time.Hour,
		timeout:  time.Duration(timeoutMinutes) * time.Minute,
	}
}

func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return fmt.Errorf("register ingestion schedule: %w", err)
	}
	s.cron.Start()
	s.log.Info("ingestion schedule registered", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the ticker and waits for an in-flight run to return, bounded by
// the caller's context.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	results, err := s.manager.Run(ctx, "")
	if errors.Is(err, ingestion.ErrRunInProgress) {
		s.log.Info("scheduled run skipped, another run holds the lock")
		return
	}
	if err != nil {
		s.log.Error("scheduled ingestion run failed", zap.Error(err))
		return
	}

	var total, created, updated, failed int
	for _, r := range results {
		total += r.Total
		created += r.Created
		updated += r.Updated
		failed += len(r.Errors)
	}
	s.log.Info("scheduled ingestion run finished",
		zap.Int("total", total),
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("errors", failed),
		zap.Duration("duration", time.Since(started)),
	)
}
