// Package ingestion orchestrates the pipeline: fetch listings from sources,
// upsert them by natural key, run the enrichment chain over the backlog, and
// sweep unseen rows into staleness.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hmoscout/hmoscout/internal/analyzer"
	"github.com/hmoscout/hmoscout/internal/clock"
	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/enrichment"
	obscontext "github.com/hmoscout/hmoscout/internal/observability/context"
	"github.com/hmoscout/hmoscout/internal/observability/metrics"
	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/internal/ratelimit"
	"github.com/hmoscout/hmoscout/pkg/db"
	"github.com/hmoscout/hmoscout/pkg/telemetry/correlation"
)

const (
	runLockKey             = "ingestion:run:lock"
	enrichmentResultSource = "enrichment"

	triggerFull   = "full"
	triggerSource = "single_source"
)

var (
	ErrRunInProgress = errors.New("ingestion_run_in_progress")
	ErrUnknownSource = errors.New("unknown_source")
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     propertydomain.Repository
	Registry *Registry
	Analyzer *analyzer.Analyzer
	Clock    clock.Clock
	Config   config.Config
	Locker   *ratelimit.Locker `optional:"true"`
	Obs      *metrics.Metrics  `optional:"true"`
}

// Manager runs the pipeline end to end. One run at a time per deployment,
// enforced by the redis run lock when redis is configured.
type Manager struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     propertydomain.Repository
	registry *Registry
	chain    *enrichment.Chain
	analyzer *analyzer.Analyzer
	clock    clock.Clock
	locker   *ratelimit.Locker
	metrics  *metrics.IngestionMetrics
	obs      *metrics.Metrics

	batchSize int
	workers   int
	retention time.Duration
	lockTTL   time.Duration
}

func NewManager(p Params) *Manager {
	workers := p.Config.SourceWorkers
	if workers < 1 {
		workers = 1
	}
	lockTTL := time.Duration(p.Config.RunTimeoutMinutes)*time.Minute + 5*time.Minute
	return &Manager{
		db:        p.DB,
		log:       p.Log.Named("ingestion.manager"),
		genID:     p.GenID,
		repo:      p.Repo,
		registry:  p.Registry,
		chain:     enrichment.NewChain(p.Registry.Enrichers(), p.Log, p.Obs),
		analyzer:  p.Analyzer,
		clock:     p.Clock,
		locker:    p.Locker,
		metrics:   metrics.Ingestion(),
		obs:       p.Obs,
		batchSize: p.Config.EnrichmentBatchSize,
		workers:   workers,
		retention: time.Duration(p.Config.RetentionDays) * 24 * time.Hour,
		lockTTL:   lockTTL,
	}
}

// Run executes one ingestion run. With an empty sourceFilter every registered
// source is fetched, then the enrichment backlog is worked and the staleness
// sweep runs; with a filter only the named source's phase-1 runs. Per-listing
// failures land in the results, not in the error return: only a held run
// lock, an unknown source, or an unreachable property store abort the run.
func (m *Manager) Run(ctx context.Context, sourceFilter string) ([]RunResult, error) {
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	ctx = obscontext.WithRunID(ctx, runID)
	log := m.log.With(zap.String("run_id", runID))

	if m.locker != nil {
		token, ok, err := m.locker.TryLock(ctx, runLockKey, m.lockTTL)
		if err != nil {
			log.Warn("run lock unavailable, continuing without it", zap.Error(err))
		} else if !ok {
			return nil, ErrRunInProgress
		} else {
			defer func() {
				if rerr := m.locker.Release(context.WithoutCancel(ctx), runLockKey, token); rerr != nil {
					log.Warn("run lock release failed", zap.Error(rerr))
				}
			}()
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return nil, fmt.Errorf("acquire sql connection: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("property store unreachable: %w", err)
	}

	filter := strings.TrimSpace(sourceFilter)
	sources := m.registry.Sources()
	trigger := triggerFull
	if filter != "" {
		trigger = triggerSource
		var matched []SourceAdapter
		for _, src := range sources {
			if src.Name() == filter {
				matched = append(matched, src)
			}
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, filter)
		}
		sources = matched
	}
	m.metrics.IncRun(trigger)
	log.Info("ingestion run started",
		zap.String("trigger", trigger),
		zap.Int("sources", len(sources)),
	)

	results := make([]RunResult, len(sources))
	seen := newDedupSet()
	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, src SourceAdapter) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = m.runSource(ctx, log, src, seen)
		}(i, src)
	}
	wg.Wait()

	if filter == "" {
		results = append(results, m.runEnrichment(ctx, log))
		m.sweepStale(ctx, log)
	}

	log.Info("ingestion run finished", zap.Int("phases", len(results)))
	return results, nil
}

func (m *Manager) runSource(ctx context.Context, log *zap.Logger, src SourceAdapter, seen *dedupSet) RunResult {
	started := m.clock.Now()
	res := RunResult{Source: src.Name(), Timestamp: started}

	listings, err := src.Fetch(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("fetch: %v", err))
		m.metrics.IncRunError(src.Name(), err)
		m.obs.RecordSourceFetch(ctx, src.Name(), "error")
	} else {
		m.obs.RecordSourceFetch(ctx, src.Name(), "ok")
	}

	for i := range listings {
		res.Total++
		outcome, perr := m.processListing(ctx, listings[i], seen)
		switch outcome {
		case metrics.ListingOutcomeCreated:
			res.Created++
		case metrics.ListingOutcomeUpdated:
			res.Updated++
		case metrics.ListingOutcomeSkipped:
			res.Skipped++
		}
		if perr != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", listings[i].NaturalKey(), perr))
			m.metrics.IncRunError(src.Name(), perr)
		}
		m.metrics.AddListings(src.Name(), outcome, 1)
	}

	res.Duration = m.clock.Now().Sub(started)
	m.metrics.ObserveRunDuration(src.Name(), res.Duration)
	log.Info("source ingested",
		zap.String("source", src.Name()),
		zap.Int("total", res.Total),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (m *Manager) processListing(ctx context.Context, l propertydomain.Listing, seen *dedupSet) (string, error) {
	if strings.TrimSpace(l.Postcode) == "" || strings.TrimSpace(l.ExternalID) == "" {
		return metrics.ListingOutcomeError, propertydomain.ErrInvalidKey
	}
	if !seen.add(l.NaturalKey()) {
		return metrics.ListingOutcomeSkipped, nil
	}

	now := m.clock.Now()
	existing, err := m.repo.FindByNaturalKey(ctx, m.db, l.Postcode, l.ExternalID)
	if err != nil {
		return metrics.ListingOutcomeError, err
	}
	if existing != nil {
		existing.Absorb(l, now)
		if err := m.repo.Save(ctx, m.db, existing); err != nil {
			return metrics.ListingOutcomeError, err
		}
		return metrics.ListingOutcomeUpdated, nil
	}

	p := propertydomain.NewProperty(m.genID.Generate(), l, now)
	if err := m.repo.Insert(ctx, m.db, p); err != nil {
		// The unique constraint is the authoritative guard: a concurrent
		// worker can beat the FindByNaturalKey above, in which case the
		// observation folds into the winner's row.
		if db.IsDuplicateKeyErr(err) {
			winner, ferr := m.repo.FindByNaturalKey(ctx, m.db, l.Postcode, l.ExternalID)
			if ferr == nil && winner != nil {
				winner.Absorb(l, now)
				if serr := m.repo.Save(ctx, m.db, winner); serr == nil {
					return metrics.ListingOutcomeUpdated, nil
				}
			}
		}
		return metrics.ListingOutcomeError, err
	}
	return metrics.ListingOutcomeCreated, nil
}

func (m *Manager) runEnrichment(ctx context.Context, log *zap.Logger) RunResult {
	started := m.clock.Now()
	res := RunResult{Source: enrichmentResultSource, Timestamp: started}

	backlog, err := m.repo.ListEnrichmentBacklog(ctx, m.db, m.batchSize)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list backlog: %v", err))
		m.metrics.IncRunError(enrichmentResultSource, err)
		res.Duration = m.clock.Now().Sub(started)
		return res
	}
	m.metrics.SetBacklogDepth(len(backlog))

	for _, p := range backlog {
		// Cancellation is honored between properties so a row is never left
		// half-enriched and half-scored.
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, ctx.Err().Error())
			break
		}
		res.Total++
		if err := m.enrichOne(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s|%s: %v", p.Postcode, p.ExternalID, err))
			m.metrics.IncRunError(enrichmentResultSource, err)
			continue
		}
		res.Updated++
	}

	res.Duration = m.clock.Now().Sub(started)
	m.metrics.AddEnriched(res.Updated)
	m.metrics.ObserveRunDuration(enrichmentResultSource, res.Duration)
	log.Info("enrichment pass finished",
		zap.Int("backlog", len(backlog)),
		zap.Int("enriched", res.Updated),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (m *Manager) enrichOne(ctx context.Context, p *propertydomain.Property) error {
	enriched := m.chain.Run(ctx, p.Draft())
	now := m.clock.Now()
	// Enrichment output is derived data, not an upstream sighting, so it must
	// not refresh LastSeenAt or the staleness sweep could never catch rows
	// that linger in the backlog.
	p.AbsorbEnrichment(enriched, now)
	if err := m.applyAnalysis(p); err != nil {
		return err
	}
	return m.repo.Save(ctx, m.db, p)
}

// applyAnalysis rescores the property from scratch and writes every derived
// field back onto the row.
func (m *Manager) applyAnalysis(p *propertydomain.Property) error {
	result := m.analyzer.Analyze(p)

	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal score breakdown: %w", err)
	}

	p.DealScore = result.Score
	p.ScoreBreakdown = datatypes.JSON(breakdown)
	classification := result.Classification
	p.Classification = &classification
	isPotential := result.IsPotentialHMO
	p.IsPotentialHMO = &isPotential
	p.ExclusionReasons = datatypes.NewJSONSlice(result.ExclusionReasons)
	if result.RequiresMandatoryLicensing {
		p.RequiresMandatoryLicensing = true
	}
	return nil
}

func (m *Manager) sweepStale(ctx context.Context, log *zap.Logger) {
	now := m.clock.Now()
	cutoff := now.Add(-m.retention)
	staled, err := m.repo.MarkStaleBefore(ctx, m.db, cutoff, now)
	if err != nil {
		log.Error("staleness sweep failed", zap.Error(err))
		m.metrics.IncRunError("staleness", err)
		return
	}
	m.metrics.AddStaled(staled)
	log.Info("staleness sweep finished",
		zap.Int64("staled", staled),
		zap.Time("cutoff", cutoff),
	)
}

// dedupSet is the per-run in-memory guard against the same natural key being
// processed twice; the DB unique constraint remains the source of truth.
type dedupSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newDedupSet() *dedupSet {
	return &dedupSet{keys: make(map[string]struct{})}
}

// add returns false when the key was already present.
func (s *dedupSet) add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}
