package ingestion

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

// SourceAdapter produces raw phase-1 listings. Fetch returns the full page
// set for one run; per-listing problems are the manager's concern, a Fetch
// error means the whole source produced nothing this run.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Listing, error)
}

const feedTimeout = 30 * time.Second

// ListingsFeedSource pulls the portal listings feed page by page. With no
// credentials configured it degrades to an empty fetch with a single warning,
// so a partially configured environment still runs its other sources.
type ListingsFeedSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *ratelimit.ProviderLimiter
	log     *zap.Logger

	warnOnce sync.Once
}

func NewListingsFeedSource(cfg config.Config, limiter *ratelimit.ProviderLimiter, log *zap.Logger) *ListingsFeedSource {
	return &ListingsFeedSource{
		baseURL: cfg.Providers.ListingsFeedURL,
		apiKey:  cfg.Providers.ListingsFeedKey,
		client:  &http.Client{Timeout: feedTimeout},
		limiter: limiter,
		log:     log.Named("ingestion.listingsfeed"),
	}
}

func (s *ListingsFeedSource) Name() string { return "listings-feed" }

type feedResponse struct {
	Listings []feedListing `json:"listings"`
	NextPage *int          `json:"next_page,omitempty"`
}

type feedListing struct {
	ID            string         `json:"id"`
	Postcode      string         `json:"postcode"`
	Address       string         `json:"address"`
	City          string         `json:"city"`
	Bedrooms      int            `json:"bedrooms"`
	Bathrooms     int            `json:"bathrooms"`
	AreaSqm       *float64       `json:"area_sqm,omitempty"`
	ListingType   string         `json:"listing_type"`
	PricePCM      *float64       `json:"price_pcm,omitempty"`
	PurchasePrice *float64       `json:"purchase_price,omitempty"`
	HMOCandidate  *bool          `json:"hmo_candidate,omitempty"`
	Raw           map[string]any `json:"raw,omitempty"`
}

func (s *ListingsFeedSource) Fetch(ctx context.Context) ([]domain.Listing, error) {
	if s.baseURL == "" || s.apiKey == "" {
		s.warnOnce.Do(func() {
			s.log.Warn("listings feed credentials not set, source disabled")
		})
		return nil, nil
	}

	var out []domain.Listing
	page := 1
	for {
		if err := s.limiter.Acquire(ctx, s.Name()); err != nil {
			return out, err
		}

		payload, err := s.fetchPage(ctx, page)
		if err != nil {
			return out, err
		}
		for _, raw := range payload.Listings {
			out = append(out, s.toListing(raw))
		}
		if payload.NextPage == nil {
			return out, nil
		}
		page = *payload.NextPage
	}
}

func (s *ListingsFeedSource) fetchPage(ctx context.Context, page int) (feedResponse, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/v1/listings?"+params.Encode(), nil)
	if err != nil {
		return feedResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	var payload feedResponse
	if err := getJSON(s.client, req, &payload); err != nil {
		return feedResponse{}, err
	}
	return payload, nil
}

func (s *ListingsFeedSource) toListing(raw feedListing) domain.Listing {
	l := domain.Listing{
		ExternalID:           raw.ID,
		Source:               s.Name(),
		Postcode:             raw.Postcode,
		Address:              raw.Address,
		City:                 raw.City,
		Bedrooms:             raw.Bedrooms,
		Bathrooms:            raw.Bathrooms,
		GrossInternalAreaSqm: raw.AreaSqm,
		PricePCM:             raw.PricePCM,
		PurchasePrice:        raw.PurchasePrice,
		HMOCandidate:         raw.HMOCandidate,
		Raw:                  raw.Raw,
	}
	switch raw.ListingType {
	case string(domain.ListingTypePurchase):
		l.ListingType = domain.ListingTypePurchase
	default:
		l.ListingType = domain.ListingTypeRent
	}
	return l
}
