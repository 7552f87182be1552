package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hmoscout/hmoscout/internal/intelligence"
	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/pkg/db/pagination"
)

type listPropertiesRequest struct {
	pagination.Pagination

	Classification string `form:"classification"`
	MinScore       string `form:"min_score"`
	IncludeStale   string `form:"include_stale"`
	City           string `form:"city"`
}

type listPropertiesResponse struct {
	Properties []*propertydomain.Property `json:"properties"`
	PageInfo   *pagination.PageInfo       `json:"page_info"`
}

func (s *Server) ListProperties(c *gin.Context) {
	var req listPropertiesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, newValidationError("query", "invalid_request", "invalid query parameters"))
		return
	}

	filter := propertydomain.ListFilter{
		City: req.City,
	}
	if req.Classification != "" {
		cls, ok := propertydomain.ParseClassification(req.Classification)
		if !ok {
			AbortWithError(c, newValidationError("classification", "invalid_classification", "unknown classification"))
			return
		}
		filter.Classification = cls
	}
	if minScore, err := parseOptionalInt(req.MinScore); err != nil {
		AbortWithError(c, newValidationError("min_score", "invalid_min_score", "min_score must be an integer"))
		return
	} else if minScore != nil {
		filter.MinScore = *minScore
	}
	if includeStale, err := parseOptionalBool(req.IncludeStale); err != nil {
		AbortWithError(c, newValidationError("include_stale", "invalid_include_stale", "include_stale must be a boolean"))
		return
	} else if includeStale != nil {
		filter.IncludeStale = *includeStale
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.repo.List(c.Request.Context(), s.db, filter, req.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, limit, func(p *propertydomain.Property) string {
		score := p.DealScore
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:    p.ID.String(),
			Score: &score,
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	c.JSON(http.StatusOK, listPropertiesResponse{
		Properties: rows,
		PageInfo:   pageInfo,
	})
}

func (s *Server) GetPropertyByID(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "id must be a numeric identifier"))
		return
	}

	p, err := s.repo.FindByID(c.Request.Context(), s.db, int64(id))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if p == nil {
		AbortWithError(c, propertydomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, p)
}

type intelligenceResponse struct {
	PropertyID      string                     `json:"property_id"`
	DealScore       int                        `json:"deal_score"`
	Risks           []intelligence.Risk        `json:"risks"`
	Opportunities   []intelligence.Opportunity `json:"opportunities"`
	EnrichmentSteps []intelligence.Step        `json:"enrichment_steps"`
}

func (s *Server) GetPropertyIntelligence(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "id must be a numeric identifier"))
		return
	}

	p, err := s.repo.FindByID(c.Request.Context(), s.db, int64(id))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if p == nil {
		AbortWithError(c, propertydomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, intelligenceResponse{
		PropertyID:      strconv.FormatInt(int64(p.ID), 10),
		DealScore:       p.DealScore,
		Risks:           s.intelligenceSvc.Risks(p),
		Opportunities:   s.intelligenceSvc.Opportunities(p),
		EnrichmentSteps: s.intelligenceSvc.PlanEnrichment(p),
	})
}
