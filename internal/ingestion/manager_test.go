package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hmoscout/hmoscout/internal/analyzer"
	"github.com/hmoscout/hmoscout/internal/clock"
	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/enrichment"
	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/internal/property/repository"
)

type stubSource struct {
	name     string
	listings []propertydomain.Listing
	err      error
	calls    int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context) ([]propertydomain.Listing, error) {
	s.calls++
	return s.listings, s.err
}

type testHarness struct {
	db      *gorm.DB
	manager *Manager
	clock   *clock.FakeClock
	repo    propertydomain.Repository
}

func newTestHarness(t *testing.T, sources []SourceAdapter, enrichers []enrichment.Adapter) *testHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, conn.AutoMigrate(&propertydomain.Property{}))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)
	holder, err := config.NewScoringConfigHolder()
	assert.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	repo := repository.Provide()

	mgr := NewManager(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repo,
		Registry: NewRegistry(sources, enrichers),
		Analyzer: analyzer.New(holder),
		Clock:    clk,
		Config: config.Config{
			EnrichmentBatchSize: 200,
			RetentionDays:       7,
			RunTimeoutMinutes:   30,
			SourceWorkers:       2,
		},
	})

	return &testHarness{db: conn, manager: mgr, clock: clk, repo: repo}
}

func feedListingFixture(externalID, postcode string) propertydomain.Listing {
	price := 300000.0
	area := 130.0
	return propertydomain.Listing{
		ExternalID:           externalID,
		Source:               "listings-feed",
		Postcode:             postcode,
		Address:              "12 High Street",
		City:                 "Manchester",
		Bedrooms:             6,
		Bathrooms:            2,
		GrossInternalAreaSqm: &area,
		ListingType:          propertydomain.ListingTypePurchase,
		PurchasePrice:        &price,
	}
}

func rentListingFixture(externalID, postcode string) propertydomain.Listing {
	l := feedListingFixture(externalID, postcode)
	rent := 550.0
	l.ListingType = propertydomain.ListingTypeRent
	l.PurchasePrice = nil
	l.PricePCM = &rent
	return l
}

func phaseResult(t *testing.T, results []RunResult, source string) RunResult {
	t.Helper()
	for _, r := range results {
		if r.Source == source {
			return r
		}
	}
	t.Fatalf("no result for phase %q", source)
	return RunResult{}
}

func TestRunCreatesEnrichesAndScores(t *testing.T) {
	src := &stubSource{name: "listings-feed", listings: []propertydomain.Listing{
		feedListingFixture("ext-1", "M14 5TQ"),
		feedListingFixture("ext-2", "M14 5TR"),
	}}
	h := newTestHarness(t, []SourceAdapter{src}, nil)

	results, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)
	assert.Len(t, results, 2)

	feed := phaseResult(t, results, "listings-feed")
	assert.Equal(t, 2, feed.Total)
	assert.Equal(t, 2, feed.Created)
	assert.Empty(t, feed.Errors)

	enrich := phaseResult(t, results, "enrichment")
	assert.Equal(t, 2, enrich.Updated)

	p, err := h.repo.FindByNaturalKey(context.Background(), h.db, "M14 5TQ", "ext-1")
	assert.NoError(t, err)
	if assert.NotNil(t, p) {
		// 15 area + 8 unknown EPC + 10 licensing + 15 rooms + 10 compliance
		// + 15 yield + 0 contact.
		assert.Equal(t, 73, p.DealScore)
		if assert.NotNil(t, p.Classification) {
			assert.Equal(t, propertydomain.ClassificationValueAdd, *p.Classification)
		}
		assert.True(t, p.RequiresMandatoryLicensing)
		assert.NotEmpty(t, p.ScoreBreakdown)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	src := &stubSource{name: "listings-feed", listings: []propertydomain.Listing{
		feedListingFixture("ext-1", "M14 5TQ"),
	}}
	h := newTestHarness(t, []SourceAdapter{src}, nil)

	_, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	h.clock.Advance(time.Hour)
	results, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	feed := phaseResult(t, results, "listings-feed")
	assert.Equal(t, 0, feed.Created)
	assert.Equal(t, 1, feed.Updated)

	var count int64
	assert.NoError(t, h.db.Model(&propertydomain.Property{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRunSkipsDuplicateKeysWithinARun(t *testing.T) {
	src := &stubSource{name: "listings-feed", listings: []propertydomain.Listing{
		feedListingFixture("ext-1", "M14 5TQ"),
		feedListingFixture("ext-1", "m14  5tq"),
	}}
	h := newTestHarness(t, []SourceAdapter{src}, nil)

	results, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	feed := phaseResult(t, results, "listings-feed")
	assert.Equal(t, 1, feed.Created)
	assert.Equal(t, 1, feed.Skipped)
}

func TestRunRejectsListingsWithoutNaturalKey(t *testing.T) {
	src := &stubSource{name: "listings-feed", listings: []propertydomain.Listing{
		feedListingFixture("", "M14 5TQ"),
		feedListingFixture("ext-2", "  "),
	}}
	h := newTestHarness(t, []SourceAdapter{src}, nil)

	results, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	feed := phaseResult(t, results, "listings-feed")
	assert.Equal(t, 2, feed.Total)
	assert.Equal(t, 0, feed.Created)
	assert.Len(t, feed.Errors, 2)
}

func TestRunUnknownSourceFilter(t *testing.T) {
	src := &stubSource{name: "listings-feed"}
	h := newTestHarness(t, []SourceAdapter{src}, nil)

	_, err := h.manager.Run(context.Background(), "no-such-source")
	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.Equal(t, 0, src.calls)
}

func TestRunSingleSourceFilterSkipsOtherPhases(t *testing.T) {
	a := &stubSource{name: "feed-a", listings: []propertydomain.Listing{feedListingFixture("ext-1", "M14 5TQ")}}
	b := &stubSource{name: "feed-b", listings: []propertydomain.Listing{feedListingFixture("ext-2", "LS6 1AA")}}
	h := newTestHarness(t, []SourceAdapter{a, b}, nil)

	results, err := h.manager.Run(context.Background(), "feed-a")
	assert.NoError(t, err)

	// Only the named source runs: no second source, no enrichment pass, no
	// staleness sweep.
	assert.Len(t, results, 1)
	assert.Equal(t, "feed-a", results[0].Source)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 0, b.calls)
}

func TestRunRecordsSourceFetchFailure(t *testing.T) {
	src := &stubSource{name: "listings-feed", err: errors.New("upstream 503")}
	h := newTestHarness(t, []SourceAdapter{src}, nil)

	results, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	feed := phaseResult(t, results, "listings-feed")
	assert.Equal(t, 0, feed.Total)
	if assert.Len(t, feed.Errors, 1) {
		assert.Contains(t, feed.Errors[0], "fetch")
	}
}

func TestStalenessSweep(t *testing.T) {
	src := &stubSource{name: "listings-feed", listings: []propertydomain.Listing{
		feedListingFixture("ext-1", "M14 5TQ"),
		feedListingFixture("ext-2", "M14 5TR"),
	}}
	h := newTestHarness(t, []SourceAdapter{src}, nil)

	_, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	// Eight days later only ext-1 is still advertised.
	h.clock.Advance(8 * 24 * time.Hour)
	src.listings = []propertydomain.Listing{feedListingFixture("ext-1", "M14 5TQ")}

	_, err = h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	kept, err := h.repo.FindByNaturalKey(context.Background(), h.db, "M14 5TQ", "ext-1")
	assert.NoError(t, err)
	if assert.NotNil(t, kept) {
		assert.False(t, kept.IsStale)
	}

	staled, err := h.repo.FindByNaturalKey(context.Background(), h.db, "M14 5TR", "ext-2")
	assert.NoError(t, err)
	if assert.NotNil(t, staled) {
		assert.True(t, staled.IsStale)
		assert.NotNil(t, staled.StaleAt)
	}

	// The moment the listing reappears the row is revived.
	h.clock.Advance(time.Hour)
	src.listings = []propertydomain.Listing{feedListingFixture("ext-2", "M14 5TR")}

	_, err = h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	revived, err := h.repo.FindByNaturalKey(context.Background(), h.db, "M14 5TR", "ext-2")
	assert.NoError(t, err)
	if assert.NotNil(t, revived) {
		assert.False(t, revived.IsStale)
		assert.Nil(t, revived.StaleAt)
	}
}

func TestStalenessSweepCatchesBacklogRows(t *testing.T) {
	// A rent-only listing has no purchase price and never leaves the
	// enrichment backlog, so the enrichment pass must not count as a sighting.
	src := &stubSource{name: "listings-feed", listings: []propertydomain.Listing{
		rentListingFixture("ext-1", "M14 5TQ"),
	}}
	h := newTestHarness(t, []SourceAdapter{src}, nil)

	_, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	h.clock.Advance(8 * 24 * time.Hour)
	src.listings = nil

	_, err = h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	p, err := h.repo.FindByNaturalKey(context.Background(), h.db, "M14 5TQ", "ext-1")
	assert.NoError(t, err)
	if assert.NotNil(t, p) {
		assert.True(t, p.IsStale)
		assert.NotNil(t, p.StaleAt)
	}
}

func TestStalenessSweepLeavesRecentRowsAlone(t *testing.T) {
	src := &stubSource{name: "listings-feed", listings: []propertydomain.Listing{
		feedListingFixture("ext-1", "M14 5TQ"),
	}}
	h := newTestHarness(t, []SourceAdapter{src}, nil)

	_, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	// Six days is inside the retention window.
	h.clock.Advance(6 * 24 * time.Hour)
	src.listings = nil

	_, err = h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	p, err := h.repo.FindByNaturalKey(context.Background(), h.db, "M14 5TQ", "ext-1")
	assert.NoError(t, err)
	if assert.NotNil(t, p) {
		assert.False(t, p.IsStale)
	}
}

func TestRunAppliesEnrichmentPatches(t *testing.T) {
	src := &stubSource{name: "listings-feed", listings: []propertydomain.Listing{
		feedListingFixture("ext-1", "M14 5TQ"),
	}}
	email := "owner@example.com"
	name := "Acme Property Ltd"
	rating := "C"
	enricher := &stubEnricher{patch: enrichment.Patch{
		Owner: propertydomain.OwnerDetails{Name: &name, Email: &email},
		EPC:   propertydomain.EPCDetails{Rating: &rating},
	}}
	h := newTestHarness(t, []SourceAdapter{src}, []enrichment.Adapter{enricher})

	_, err := h.manager.Run(context.Background(), "")
	assert.NoError(t, err)

	p, err := h.repo.FindByNaturalKey(context.Background(), h.db, "M14 5TQ", "ext-1")
	assert.NoError(t, err)
	if assert.NotNil(t, p) {
		assert.Equal(t, &name, p.OwnerName)
		assert.Equal(t, &email, p.OwnerEmail)
		// Owner identity plus a direct channel lifts the row to ready_to_go.
		if assert.NotNil(t, p.Classification) {
			assert.Equal(t, propertydomain.ClassificationReadyToGo, *p.Classification)
		}
	}
}

type stubEnricher struct {
	patch enrichment.Patch
}

func (s *stubEnricher) Name() string { return "stub-enricher" }

func (s *stubEnricher) Enrich(ctx context.Context, l propertydomain.Listing) (enrichment.Patch, error) {
	return s.patch, nil
}
