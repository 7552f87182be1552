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

// HMORegisterAdapter checks the public licensed-HMO register. An existing
// licence is a strong signal: it carries the licence holder's name and often
// a direct contact channel.
type HMORegisterAdapter struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.ProviderLimiter
	log     *zap.Logger

	warnOnce sync.Once
}

func NewHMORegisterAdapter(cfg config.Config, limiter *ratelimit.ProviderLimiter, log *zap.Logger) *HMORegisterAdapter {
	return &HMORegisterAdapter{
		baseURL: cfg.Providers.HMORegisterBaseURL,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		limiter: limiter,
		log:     log.Named("enrichment.hmoregister"),
	}
}

func (h *HMORegisterAdapter) Name() string { return "hmo-register" }

type licenceResponse struct {
	Licences []struct {
		LicenceID string  `json:"licence_id"`
		Holder    string  `json:"holder"`
		Email     *string `json:"email,omitempty"`
		Phone     *string `json:"phone,omitempty"`
		ExpiresAt string  `json:"expires_at"`
	} `json:"licences"`
}

func (h *HMORegisterAdapter) Enrich(ctx context.Context, l domain.Listing) (Patch, error) {
	if l.Licensing.LicenceID != nil {
		return Patch{}, nil
	}
	if h.baseURL == "" {
		h.warnOnce.Do(func() {
			h.log.Warn("HMO register URL not set, licence lookups disabled")
		})
		return Patch{}, nil
	}

	if err := h.limiter.Acquire(ctx, h.Name()); err != nil {
		return Patch{}, err
	}

	params := url.Values{}
	params.Set("postcode", l.Postcode)
	if l.UPRN != nil {
		params.Set("uprn", strconv.FormatInt(*l.UPRN, 10))
	} else if l.Address != "" {
		params.Set("address", l.Address)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.baseURL+"/v1/licences?"+params.Encode(), nil)
	if err != nil {
		return Patch{}, err
	}
	req.Header.Set("Accept", "application/json")

	var payload licenceResponse
	found, err := doJSON(h.client, req, &payload)
	if err != nil {
		if ctx.Err() != nil {
			return Patch{}, ctx.Err()
		}
		h.log.Warn("HMO register lookup failed", zap.String("postcode", l.Postcode), zap.Error(err))
		return Patch{}, nil
	}
	if !found || len(payload.Licences) == 0 {
		return Patch{}, nil
	}

	lic := payload.Licences[0]
	licensed := true
	patch := Patch{}
	patch.Licensing.LicensedHMO = &licensed
	if lic.LicenceID != "" {
		id := lic.LicenceID
		patch.Licensing.LicenceID = &id
	}
	if lic.Holder != "" {
		holder := lic.Holder
		patch.Licensing.Holder = &holder
	}
	if expires, err := time.Parse("2006-01-02", lic.ExpiresAt); err == nil {
		patch.Licensing.ExpiresAt = &expires
	}
	patch.Owner.Email = lic.Email
	patch.Owner.Phone = lic.Phone
	return patch, nil
}
