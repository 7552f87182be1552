package enrichment

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/internal/ratelimit"
)

// CompaniesAdapter expands a corporate owner into its active directors and
// registered office via the Companies House API. It only runs once an earlier
// adapter has surfaced a company number.
type CompaniesAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *ratelimit.ProviderLimiter
	log     *zap.Logger

	warnOnce sync.Once
}

func NewCompaniesAdapter(cfg config.Config, limiter *ratelimit.ProviderLimiter, log *zap.Logger) *CompaniesAdapter {
	return &CompaniesAdapter{
		baseURL: cfg.Providers.CompaniesHouseBaseURL,
		apiKey:  cfg.Providers.CompaniesHouseKey,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		limiter: limiter,
		log:     log.Named("enrichment.companies"),
	}
}

func (c *CompaniesAdapter) Name() string { return "companies-house" }

type officersResponse struct {
	Items []struct {
		Name        string  `json:"name"`
		OfficerRole string  `json:"officer_role"`
		ResignedOn  *string `json:"resigned_on,omitempty"`
	} `json:"items"`
}

type companyProfileResponse struct {
	RegisteredOfficeAddress struct {
		AddressLine1 string `json:"address_line_1"`
		Locality     string `json:"locality"`
		PostalCode   string `json:"postal_code"`
	} `json:"registered_office_address"`
}

func (c *CompaniesAdapter) Enrich(ctx context.Context, l domain.Listing) (Patch, error) {
	if l.Owner.CompanyNumber == nil || len(l.Owner.Directors) > 0 {
		return Patch{}, nil
	}
	if c.baseURL == "" || c.apiKey == "" {
		c.warnOnce.Do(func() {
			c.log.Warn("Companies House credentials not set, directors will not be fetched")
		})
		return Patch{}, nil
	}

	if err := c.limiter.Acquire(ctx, c.Name()); err != nil {
		return Patch{}, err
	}

	number := *l.Owner.CompanyNumber
	patch := Patch{}

	req, err := c.newRequest(ctx, "/company/"+number+"/officers")
	if err != nil {
		return Patch{}, err
	}
	var officers officersResponse
	found, err := doJSON(c.client, req, &officers)
	if err != nil {
		if ctx.Err() != nil {
			return Patch{}, ctx.Err()
		}
		c.log.Warn("officers lookup failed", zap.String("company", number), zap.Error(err))
		return Patch{}, nil
	}
	if found {
		for _, item := range officers.Items {
			if item.OfficerRole == "director" && item.ResignedOn == nil {
				patch.Owner.Directors = append(patch.Owner.Directors, item.Name)
			}
		}
	}

	if l.Owner.CorrespondenceAddress == nil {
		req, err := c.newRequest(ctx, "/company/"+number)
		if err != nil {
			return Patch{}, err
		}
		var profile companyProfileResponse
		found, err := doJSON(c.client, req, &profile)
		if err != nil {
			if ctx.Err() != nil {
				return Patch{}, ctx.Err()
			}
			c.log.Warn("company profile lookup failed", zap.String("company", number), zap.Error(err))
			return patch, nil
		}
		if found {
			if addr := joinAddress(
				profile.RegisteredOfficeAddress.AddressLine1,
				profile.RegisteredOfficeAddress.Locality,
				profile.RegisteredOfficeAddress.PostalCode,
			); addr != "" {
				patch.Owner.CorrespondenceAddress = &addr
			}
		}
	}

	return patch, nil
}

func (c *CompaniesAdapter) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	// Companies House uses the API key as a basic-auth username.
	req.SetBasicAuth(c.apiKey, "")
	return req, nil
}

func joinAddress(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}
