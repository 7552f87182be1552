// Package compliance resolves licensing-scheme applicability and Article-4
// planning status for a single address or UPRN against the licensing
// registry, and derives the compliance complexity tier.
package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hmoscout/hmoscout/internal/compliance/domain"
	"github.com/hmoscout/hmoscout/internal/config"
	"go.uber.org/zap"
)

const httpTimeout = 10 * time.Second

// HTTPClient talks to the licensing/planning registry. A missing API key is a
// configuration failure, not a per-property one: the client logs a single
// warning and returns empty, unverified determinations.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger

	warnOnce sync.Once
}

func NewHTTPClient(cfg config.Config, log *zap.Logger) domain.Client {
	return &HTTPClient{
		baseURL: cfg.Providers.LicensingBaseURL,
		apiKey:  cfg.Providers.LicensingKey,
		client:  &http.Client{Timeout: httpTimeout},
		log:     log.Named("compliance.client"),
	}
}

type schemeResponse struct {
	Type               string  `json:"type"`
	OccupantThreshold  *int    `json:"occupant_threshold,omitempty"`
	HouseholdThreshold *int    `json:"household_threshold,omitempty"`
	ValidFrom          string  `json:"valid_from"`
	ValidTo            *string `json:"valid_to,omitempty"`
}

type determinationResponse struct {
	Schemes  []schemeResponse `json:"schemes"`
	Article4 bool             `json:"article4"`
	Advice   string           `json:"advice,omitempty"`
}

// Determine resolves the licensing determination for one property. UPRN is
// preferred when present, address is the fallback. Failures degrade to an
// empty, unverified determination rather than an error that would halt a
// batch; the error return is reserved for context cancellation.
func (c *HTTPClient) Determine(ctx context.Context, req domain.Request) (domain.Determination, error) {
	if c.baseURL == "" || c.apiKey == "" {
		c.warnOnce.Do(func() {
			c.log.Warn("licensing registry credentials not set, determinations will be empty")
		})
		return domain.Determination{}, nil
	}

	params := url.Values{}
	params.Set("postcode", req.Postcode)
	if req.UPRN != nil {
		params.Set("uprn", strconv.FormatInt(*req.UPRN, 10))
	} else if req.Address != "" {
		params.Set("address", req.Address)
	}

	reqURL := c.baseURL + "/v1/determinations?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Determination{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Determination{}, ctx.Err()
		}
		c.log.Warn("licensing determination failed", zap.String("postcode", req.Postcode), zap.Error(err))
		return domain.Determination{}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warn("licensing determination read failed", zap.Error(err))
		return domain.Determination{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("licensing registry returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.String("postcode", req.Postcode),
		)
		return domain.Determination{}, nil
	}

	var payload determinationResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		c.log.Warn("licensing determination unmarshal failed", zap.Error(err))
		return domain.Determination{}, nil
	}

	det := domain.Determination{
		Article4: payload.Article4,
		Advice:   payload.Advice,
		Verified: true,
	}
	for _, s := range payload.Schemes {
		scheme, err := parseScheme(s)
		if err != nil {
			c.log.Warn("skipping malformed scheme", zap.String("type", s.Type), zap.Error(err))
			continue
		}
		det.Schemes = append(det.Schemes, scheme)
	}
	return det, nil
}

func parseScheme(s schemeResponse) (domain.Scheme, error) {
	var t domain.SchemeType
	switch s.Type {
	case string(domain.SchemeMandatory):
		t = domain.SchemeMandatory
	case string(domain.SchemeAdditional):
		t = domain.SchemeAdditional
	case string(domain.SchemeSelective):
		t = domain.SchemeSelective
	default:
		return domain.Scheme{}, fmt.Errorf("unknown scheme type %q", s.Type)
	}

	validFrom, err := time.Parse(time.RFC3339, s.ValidFrom)
	if err != nil {
		return domain.Scheme{}, fmt.Errorf("valid_from: %w", err)
	}

	scheme := domain.Scheme{
		Type:               t,
		OccupantThreshold:  s.OccupantThreshold,
		HouseholdThreshold: s.HouseholdThreshold,
		ValidFrom:          validFrom,
	}
	if s.ValidTo != nil {
		validTo, err := time.Parse(time.RFC3339, *s.ValidTo)
		if err != nil {
			return domain.Scheme{}, fmt.Errorf("valid_to: %w", err)
		}
		scheme.ValidTo = &validTo
	}
	return scheme, nil
}
