package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Listing outcomes recorded per source.
const (
	ListingOutcomeCreated = "created"
	ListingOutcomeUpdated = "updated"
	ListingOutcomeSkipped = "skipped"
	ListingOutcomeError   = "error"
)

const (
	RunErrorReasonDeadlineExceeded = "deadline_exceeded"
	RunErrorReasonUniqueViolation  = "unique_violation"
	RunErrorReasonDB               = "db"
	RunErrorReasonProvider         = "provider"
	RunErrorReasonUnknown          = "unknown"
)

// IngestionMetrics captures ingestion pipeline health signals.
type IngestionMetrics struct {
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	listings     *prometheus.CounterVec
	runErrors    *prometheus.CounterVec
	enriched     prometheus.Counter
	staled       prometheus.Counter
	backlogDepth prometheus.Gauge
}

var (
	ingestionMetricsOnce sync.Once
	ingestionMetrics     *IngestionMetrics
)

// Ingestion returns the singleton ingestion metrics registry.
func Ingestion() *IngestionMetrics {
	return IngestionWithConfig(Config{})
}

// IngestionWithConfig returns the singleton ingestion metrics registry using config labels.
func IngestionWithConfig(cfg Config) *IngestionMetrics {
	ingestionMetricsOnce.Do(func() {
		ingestionMetrics = newIngestionMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ingestionMetrics
}

// ResetIngestionMetricsForTest resets the ingestion metrics singleton for tests.
func ResetIngestionMetricsForTest() {
	ingestionMetricsOnce = sync.Once{}
	ingestionMetrics = nil
}

func newIngestionMetrics(registerer prometheus.Registerer, cfg Config) *IngestionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "hmoscout"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "hmoscout_ingestion_runs_total",
		Help:        "Ingestion runs by trigger.",
		ConstLabels: constLabels,
	}, []string{"trigger"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "hmoscout_ingestion_run_duration_seconds",
		Help:        "Per-source ingestion phase latency.",
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"source"})
	listings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "hmoscout_ingestion_listings_total",
		Help:        "Listings processed by source and outcome.",
		ConstLabels: constLabels,
	}, []string{"source", "outcome"})
	runErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "hmoscout_ingestion_run_errors_total",
		Help:        "Ingestion run errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"source", "reason"})
	enriched := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "hmoscout_enrichment_properties_total",
		Help:        "Properties run through the enrichment chain and rescored.",
		ConstLabels: constLabels,
	})
	staled := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "hmoscout_properties_staled_total",
		Help:        "Properties marked stale by the retention sweep.",
		ConstLabels: constLabels,
	})
	backlogDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "hmoscout_enrichment_backlog_depth",
		Help:        "Enrichment backlog size observed at the start of the pass.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		runs,
		runDuration,
		listings,
		runErrors,
		enriched,
		staled,
		backlogDepth,
	)

	return &IngestionMetrics{
		runs:         runs,
		runDuration:  runDuration,
		listings:     listings,
		runErrors:    runErrors,
		enriched:     enriched,
		staled:       staled,
		backlogDepth: backlogDepth,
	}
}

// IncRun increments the run counter for a trigger ("scheduled" or "manual").
func (m *IngestionMetrics) IncRun(trigger string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(trigger).Inc()
}

// ObserveRunDuration records one source's ingestion phase latency.
func (m *IngestionMetrics) ObserveRunDuration(source string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// AddListings adds to the per-source listing outcome counter.
func (m *IngestionMetrics) AddListings(source, outcome string, count int) {
	if m == nil || m.listings == nil || count <= 0 {
		return
	}
	m.listings.WithLabelValues(source, outcome).Add(float64(count))
}

// IncRunError increments the run error counter with classification.
func (m *IngestionMetrics) IncRunError(source string, err error) {
	if m == nil || m.runErrors == nil || err == nil {
		return
	}
	m.runErrors.WithLabelValues(source, classifyRunError(err)).Inc()
}

// AddEnriched adds to the enriched-property counter.
func (m *IngestionMetrics) AddEnriched(count int) {
	if m == nil || m.enriched == nil || count <= 0 {
		return
	}
	m.enriched.Add(float64(count))
}

// AddStaled adds to the staled-property counter.
func (m *IngestionMetrics) AddStaled(count int64) {
	if m == nil || m.staled == nil || count <= 0 {
		return
	}
	m.staled.Add(float64(count))
}

// SetBacklogDepth records the backlog size at the start of an enrichment pass.
func (m *IngestionMetrics) SetBacklogDepth(depth int) {
	if m == nil || m.backlogDepth == nil {
		return
	}
	m.backlogDepth.Set(float64(depth))
}

func classifyRunError(err error) string {
	if err == nil {
		return RunErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return RunErrorReasonDeadlineExceeded
	}
	if isUniqueViolation(err) {
		return RunErrorReasonUniqueViolation
	}
	if isDBError(err) {
		return RunErrorReasonDB
	}
	return RunErrorReasonProvider
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
