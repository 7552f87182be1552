package enrichment

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hmoscout/hmoscout/internal/cache"
	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/internal/ratelimit"
)

// Geocoder resolves a postcode plus address line to a UPRN, the key the
// ownership and licensing registers prefer. It runs first in the chain so the
// expensive adapters behind it can query by UPRN.
type Geocoder struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *ratelimit.ProviderLimiter
	cache   cache.AddressCache
	log     *zap.Logger

	warnOnce sync.Once
}

func NewGeocoder(cfg config.Config, limiter *ratelimit.ProviderLimiter, addresses cache.AddressCache, log *zap.Logger) *Geocoder {
	return &Geocoder{
		baseURL: cfg.Providers.GeocoderBaseURL,
		apiKey:  cfg.Providers.GeocoderKey,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		limiter: limiter,
		cache:   addresses,
		log:     log.Named("enrichment.geocoder"),
	}
}

func (g *Geocoder) Name() string { return "geocoder" }

type geocodeResponse struct {
	UPRN *int64 `json:"uprn"`
	City string `json:"post_town"`
}

func (g *Geocoder) Enrich(ctx context.Context, l domain.Listing) (Patch, error) {
	if l.UPRN != nil && l.City != "" {
		return Patch{}, nil
	}
	if g.baseURL == "" || g.apiKey == "" {
		g.warnOnce.Do(func() {
			g.log.Warn("geocoder credentials not set, UPRN resolution disabled")
		})
		return Patch{}, nil
	}

	if rec, ok := g.cache.GetAddress(l.Postcode, l.Address); ok {
		return addressPatch(rec), nil
	}

	if err := g.limiter.Acquire(ctx, g.Name()); err != nil {
		return Patch{}, err
	}

	params := url.Values{}
	params.Set("postcode", l.Postcode)
	if l.Address != "" {
		params.Set("address", l.Address)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/v1/addresses?"+params.Encode(), nil)
	if err != nil {
		return Patch{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", g.apiKey)

	var payload geocodeResponse
	found, err := doJSON(g.client, req, &payload)
	if err != nil {
		if ctx.Err() != nil {
			return Patch{}, ctx.Err()
		}
		g.log.Warn("geocode lookup failed", zap.String("postcode", l.Postcode), zap.Error(err))
		return Patch{}, nil
	}
	if !found {
		return Patch{}, nil
	}

	rec := cache.AddressRecord{UPRN: payload.UPRN, City: payload.City}
	g.cache.SetAddress(l.Postcode, l.Address, rec)
	return addressPatch(rec), nil
}

func addressPatch(rec cache.AddressRecord) Patch {
	patch := Patch{UPRN: rec.UPRN}
	if rec.City != "" {
		city := rec.City
		patch.City = &city
	}
	return patch
}
