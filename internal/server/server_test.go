package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hmoscout/hmoscout/internal/analyzer"
	"github.com/hmoscout/hmoscout/internal/clock"
	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/ingestion"
	"github.com/hmoscout/hmoscout/internal/intelligence"
	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/internal/property/repository"
)

type stubSource struct {
	name     string
	listings []propertydomain.Listing
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context) ([]propertydomain.Listing, error) {
	return s.listings, nil
}

type serverHarness struct {
	server *Server
	db     *gorm.DB
	node   *snowflake.Node
	repo   propertydomain.Repository
	clock  *clock.FakeClock
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	scorer := analyzer.New(holder)
	cfg := config.Config{
		EnrichmentBatchSize: 200,
		RetentionDays:       7,
		RunTimeoutMinutes:   30,
		SourceWorkers:       1,
	}

	price := 300000.0
	manager := ingestion.NewManager(ingestion.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
		Registry: ingestion.NewRegistry([]ingestion.SourceAdapter{&stubSource{
			name: "listings-feed",
			listings: []propertydomain.Listing{{
				ExternalID:    "ext-run",
				Source:        "listings-feed",
				Postcode:      "M14 5TQ",
				City:          "Manchester",
				Bedrooms:      5,
				Bathrooms:     2,
				PurchasePrice: &price,
			}},
		}}, nil),
		Analyzer: scorer,
		Clock:    clk,
		Config:   cfg,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		DB:              conn,
		Repo:            repo,
		Manager:         manager,
		IntelligenceSvc: intelligence.New(clk, scorer),
	})

	return &serverHarness{server: srv, db: conn, node: node, repo: repo, clock: clk}
}

func (h *serverHarness) seedProperty(t *testing.T, externalID string, score int, cls propertydomain.Classification) *propertydomain.Property {
	t.Helper()
	p := propertydomain.NewProperty(h.node.Generate(), propertydomain.Listing{
		ExternalID: externalID,
		Source:     "listings-feed",
		Postcode:   "M14 5TQ",
		City:       "Manchester",
		Bedrooms:   5,
		Bathrooms:  2,
	}, h.clock.Now())
	p.DealScore = score
	p.Classification = &cls
	assert.NoError(t, h.repo.Insert(context.Background(), h.db, p))
	return p
}

func (h *serverHarness) request(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	h.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestListProperties(t *testing.T) {
	h := newServerHarness(t)
	h.seedProperty(t, "ext-1", 85, propertydomain.ClassificationReadyToGo)
	h.seedProperty(t, "ext-2", 55, propertydomain.ClassificationValueAdd)
	h.seedProperty(t, "ext-3", 20, propertydomain.ClassificationNotSuitable)

	rec := h.request(http.MethodGet, "/v1/properties")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp listPropertiesResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	if assert.Len(t, resp.Properties, 3) {
		// Highest score first.
		assert.Equal(t, "ext-1", resp.Properties[0].ExternalID)
		assert.Equal(t, "ext-3", resp.Properties[2].ExternalID)
	}
	if assert.NotNil(t, resp.PageInfo) {
		assert.False(t, resp.PageInfo.HasMore)
	}
}

func TestListPropertiesFilters(t *testing.T) {
	h := newServerHarness(t)
	h.seedProperty(t, "ext-1", 85, propertydomain.ClassificationReadyToGo)
	h.seedProperty(t, "ext-2", 55, propertydomain.ClassificationValueAdd)

	rec := h.request(http.MethodGet, "/v1/properties?min_score=60")
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp listPropertiesResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Properties, 1)

	rec = h.request(http.MethodGet, "/v1/properties?classification=value_add")
	assert.Equal(t, http.StatusOK, rec.Code)
	resp = listPropertiesResponse{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	if assert.Len(t, resp.Properties, 1) {
		assert.Equal(t, "ext-2", resp.Properties[0].ExternalID)
	}
}

func TestListPropertiesExcludesStaleByDefault(t *testing.T) {
	h := newServerHarness(t)
	h.seedProperty(t, "ext-1", 85, propertydomain.ClassificationReadyToGo)
	stale := h.seedProperty(t, "ext-2", 55, propertydomain.ClassificationValueAdd)
	staleAt := h.clock.Now()
	stale.IsStale = true
	stale.StaleAt = &staleAt
	assert.NoError(t, h.repo.Save(context.Background(), h.db, stale))

	rec := h.request(http.MethodGet, "/v1/properties")
	var resp listPropertiesResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Properties, 1)

	rec = h.request(http.MethodGet, "/v1/properties?include_stale=true")
	resp = listPropertiesResponse{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Properties, 2)
}

func TestListPropertiesPagination(t *testing.T) {
	h := newServerHarness(t)
	for i := 0; i < 3; i++ {
		h.seedProperty(t, fmt.Sprintf("ext-%d", i), 50+i, propertydomain.ClassificationValueAdd)
	}

	rec := h.request(http.MethodGet, "/v1/properties?page_size=2")
	assert.Equal(t, http.StatusOK, rec.Code)
	var first listPropertiesResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Len(t, first.Properties, 2)
	if assert.NotNil(t, first.PageInfo) {
		assert.True(t, first.PageInfo.HasMore)
		assert.NotEmpty(t, first.PageInfo.NextPageToken)
	}

	rec = h.request(http.MethodGet, "/v1/properties?page_size=2&page_token="+first.PageInfo.NextPageToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	var second listPropertiesResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	if assert.Len(t, second.Properties, 1) {
		assert.Equal(t, "ext-0", second.Properties[0].ExternalID)
	}
}

func TestListPropertiesValidation(t *testing.T) {
	h := newServerHarness(t)

	rec := h.request(http.MethodGet, "/v1/properties?classification=premium")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "invalid_classification", payload.Errors[0].Code)
	}

	rec = h.request(http.MethodGet, "/v1/properties?min_score=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.request(http.MethodGet, "/v1/properties?include_stale=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPropertyByID(t *testing.T) {
	h := newServerHarness(t)
	p := h.seedProperty(t, "ext-1", 85, propertydomain.ClassificationReadyToGo)

	rec := h.request(http.MethodGet, "/v1/properties/"+p.ID.String())
	assert.Equal(t, http.StatusOK, rec.Code)

	var got propertydomain.Property
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ext-1", got.ExternalID)
	assert.Equal(t, 85, got.DealScore)

	rec = h.request(http.MethodGet, "/v1/properties/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.request(http.MethodGet, "/v1/properties/"+h.node.Generate().String())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestGetPropertyIntelligence(t *testing.T) {
	h := newServerHarness(t)
	p := h.seedProperty(t, "ext-1", 85, propertydomain.ClassificationReadyToGo)

	rec := h.request(http.MethodGet, "/v1/properties/"+p.ID.String()+"/intelligence")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp intelligenceResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, p.ID.String(), resp.PropertyID)
	assert.Equal(t, 85, resp.DealScore)

	// A ready_to_go five-bed with no licence is flagged both ways.
	codes := make([]string, 0, len(resp.Risks))
	for _, r := range resp.Risks {
		codes = append(codes, r.Code)
	}
	assert.Contains(t, codes, "unlicensed_mandatory_scope")

	oppCodes := make([]string, 0, len(resp.Opportunities))
	for _, o := range resp.Opportunities {
		oppCodes = append(oppCodes, o.Code)
	}
	assert.Contains(t, oppCodes, "conversion_ready")

	assert.Contains(t, resp.EnrichmentSteps, intelligence.StepGeocodeToUPRN)
}

func TestTriggerIngestionRun(t *testing.T) {
	h := newServerHarness(t)

	rec := h.request(http.MethodPost, "/v1/ingestion/runs")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp triggerRunResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 2)

	p, err := h.repo.FindByNaturalKey(context.Background(), h.db, "M14 5TQ", "ext-run")
	assert.NoError(t, err)
	assert.NotNil(t, p)
}

func TestTriggerIngestionRunUnknownSource(t *testing.T) {
	h := newServerHarness(t)

	rec := h.request(http.MethodPost, "/v1/ingestion/runs?source=no-such-source")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)
}
