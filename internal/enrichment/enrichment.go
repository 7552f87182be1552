// Package enrichment augments sparse property listings with data from
// external providers. Adapters run as an ordered chain over a shared draft:
// each one sees the output of the adapters before it and contributes a typed
// patch that can add fields but never clear them.
package enrichment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	obsmetrics "github.com/hmoscout/hmoscout/internal/observability/metrics"
	"github.com/hmoscout/hmoscout/internal/property/domain"
)

// Adapter augments a listing draft. A failure to reach or parse a provider is
// not an error condition for the chain: adapters log it and return a zero
// Patch. The error return is reserved for context cancellation.
type Adapter interface {
	Name() string
	Enrich(ctx context.Context, l domain.Listing) (Patch, error)
}

// Patch is a sparse set of fields learned from one provider. Nil means "this
// provider had nothing to say", never "clear the field".
type Patch struct {
	City                 *string
	UPRN                 *int64
	Bedrooms             *int
	Bathrooms            *int
	GrossInternalAreaSqm *float64

	PricePCM      *float64
	PurchasePrice *float64
	HMOCandidate  *bool

	Owner      domain.OwnerDetails
	EPC        domain.EPCDetails
	Licensing  domain.LicensingDetails
	Planning   domain.PlanningDetails
	Compliance domain.ComplianceDetails
}

// Apply merges the patch onto dst with non-nil-wins semantics.
func (p Patch) Apply(dst *domain.Listing) {
	l := domain.Listing{
		UPRN:                 p.UPRN,
		GrossInternalAreaSqm: p.GrossInternalAreaSqm,
		PricePCM:             p.PricePCM,
		PurchasePrice:        p.PurchasePrice,
		HMOCandidate:         p.HMOCandidate,
		Owner:                p.Owner,
		EPC:                  p.EPC,
		Licensing:            p.Licensing,
		Planning:             p.Planning,
		Compliance:           p.Compliance,
	}
	if p.City != nil {
		l.City = *p.City
	}
	if p.Bedrooms != nil {
		l.Bedrooms = *p.Bedrooms
	}
	if p.Bathrooms != nil {
		l.Bathrooms = *p.Bathrooms
	}
	domain.Merge(dst, l)
}

// Chain runs adapters in registration order, threading the accumulated draft
// through so later adapters can skip work already done.
type Chain struct {
	adapters []Adapter
	log      *zap.Logger
	obs      *obsmetrics.Metrics
}

func NewChain(adapters []Adapter, log *zap.Logger, obs *obsmetrics.Metrics) *Chain {
	return &Chain{
		adapters: adapters,
		log:      log.Named("enrichment.chain"),
		obs:      obs,
	}
}

// Run enriches one draft to completion. Individual adapter failures are
// absorbed; only cancellation stops the chain early.
func (c *Chain) Run(ctx context.Context, draft domain.Listing) domain.Listing {
	for _, a := range c.adapters {
		started := time.Now()
		patch, err := c.enrichOne(ctx, a, draft)
		if err != nil {
			if ctx.Err() != nil {
				return draft
			}
			c.obs.RecordAdapterCall(ctx, a.Name(), "error", time.Since(started))
			c.log.Warn("enrichment adapter failed",
				zap.String("adapter", a.Name()),
				zap.String("postcode", draft.Postcode),
				zap.Error(err),
			)
			continue
		}
		c.obs.RecordAdapterCall(ctx, a.Name(), "applied", time.Since(started))
		patch.Apply(&draft)
	}
	return draft
}

// enrichOne converts a panicking adapter into an adapter error so one bad
// provider response cannot take down a whole run.
func (c *Chain) enrichOne(ctx context.Context, a Adapter, l domain.Listing) (patch Patch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panicked: %v", r)
		}
	}()
	return a.Enrich(ctx, l)
}
