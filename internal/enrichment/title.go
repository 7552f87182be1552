package enrichment

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/internal/ratelimit"
)

// TitleAdapter resolves the registered proprietor from the land-registry
// ownership dataset: title number, proprietor name, and the company number
// when the owner is a corporate body.
type TitleAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *ratelimit.ProviderLimiter
	log     *zap.Logger

	warnOnce sync.Once
}

func NewTitleAdapter(cfg config.Config, limiter *ratelimit.ProviderLimiter, log *zap.Logger) *TitleAdapter {
	return &TitleAdapter{
		baseURL: cfg.Providers.LandRegistryBaseURL,
		apiKey:  cfg.Providers.LandRegistryKey,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		limiter: limiter,
		log:     log.Named("enrichment.title"),
	}
}

func (t *TitleAdapter) Name() string { return "land-registry" }

type titleResponse struct {
	TitleNumber string `json:"title_number"`
	Proprietor  struct {
		Name          string `json:"name"`
		CompanyNumber string `json:"company_registration_no,omitempty"`
		Address       string `json:"address,omitempty"`
	} `json:"proprietor"`
}

func (t *TitleAdapter) Enrich(ctx context.Context, l domain.Listing) (Patch, error) {
	if l.Owner.TitleNumber != nil && l.Owner.Name != nil {
		return Patch{}, nil
	}
	if t.baseURL == "" || t.apiKey == "" {
		t.warnOnce.Do(func() {
			t.log.Warn("land registry credentials not set, ownership will not be fetched")
		})
		return Patch{}, nil
	}

	if err := t.limiter.Acquire(ctx, t.Name()); err != nil {
		return Patch{}, err
	}

	params := url.Values{}
	if l.UPRN != nil {
		params.Set("uprn", strconv.FormatInt(*l.UPRN, 10))
	} else {
		params.Set("postcode", l.Postcode)
		if l.Address != "" {
			params.Set("address", l.Address)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.baseURL+"/v1/titles?"+params.Encode(), nil)
	if err != nil {
		return Patch{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	var payload titleResponse
	found, err := doJSON(t.client, req, &payload)
	if err != nil {
		if ctx.Err() != nil {
			return Patch{}, ctx.Err()
		}
		t.log.Warn("title lookup failed", zap.String("postcode", l.Postcode), zap.Error(err))
		return Patch{}, nil
	}
	if !found || payload.TitleNumber == "" {
		return Patch{}, nil
	}

	patch := Patch{}
	patch.Owner.TitleNumber = &payload.TitleNumber
	if payload.Proprietor.Name != "" {
		name := payload.Proprietor.Name
		patch.Owner.Name = &name
	}
	if payload.Proprietor.CompanyNumber != "" {
		number := payload.Proprietor.CompanyNumber
		patch.Owner.CompanyNumber = &number
	}
	if payload.Proprietor.Address != "" {
		addr := payload.Proprietor.Address
		patch.Owner.CorrespondenceAddress = &addr
	}
	return patch, nil
}
