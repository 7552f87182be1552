package compliance

import (
	"context"

	"github.com/hmoscout/hmoscout/internal/compliance/domain"
	"github.com/hmoscout/hmoscout/internal/config"
	"github.com/hmoscout/hmoscout/internal/enrichment"
	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
	"github.com/hmoscout/hmoscout/internal/ratelimit"
)

// Adapter plugs the licensing determination into the enrichment chain. It
// runs last so the assessment sees the bedroom count and UPRN the earlier
// adapters may have filled in.
type Adapter struct {
	client  domain.Client
	scoring *config.ScoringConfigHolder
	limiter *ratelimit.ProviderLimiter
}

func NewAdapter(client domain.Client, scoring *config.ScoringConfigHolder, limiter *ratelimit.ProviderLimiter) *Adapter {
	return &Adapter{
		client:  client,
		scoring: scoring,
		limiter: limiter,
	}
}

func (a *Adapter) Name() string { return "licensing-register" }

func (a *Adapter) Enrich(ctx context.Context, l propertydomain.Listing) (enrichment.Patch, error) {
	if err := a.limiter.Acquire(ctx, a.Name()); err != nil {
		return enrichment.Patch{}, err
	}

	det, err := a.client.Determine(ctx, domain.Request{
		Postcode: l.Postcode,
		UPRN:     l.UPRN,
		Address:  l.Address,
	})
	if err != nil {
		return enrichment.Patch{}, err
	}

	mandatoryOccupants := a.scoring.Get().SpaceStandards.MandatoryOccupants
	assessment := domain.Assess(det, l.Bedrooms, mandatoryOccupants)

	patch := enrichment.Patch{}
	if det.Verified {
		article4 := det.Article4
		patch.Planning.Article4 = &article4
		patch.Planning.Verified = true
	}
	// The national mandatory-licensing override holds even when the registry
	// could not be reached, so the flag is patched regardless of Verified.
	// Complexity from an unverified determination would conflate "unknown"
	// with "no schemes", so it is only patched when verified or forced.
	if det.Verified || assessment.RequiresMandatoryLicensing {
		required := assessment.RequiresMandatoryLicensing
		complexity := assessment.Complexity
		patch.Compliance.RequiresMandatoryLicensing = &required
		patch.Compliance.Complexity = &complexity
	}
	return patch, nil
}
