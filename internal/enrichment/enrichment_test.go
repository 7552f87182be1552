package enrichment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/hmoscout/hmoscout/internal/property/domain"
)

type stubAdapter struct {
	name  string
	patch Patch
	err   error
	panic bool

	calls int
	seen  domain.Listing
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Enrich(ctx context.Context, l domain.Listing) (Patch, error) {
	a.calls++
	a.seen = l
	if a.panic {
		panic("provider returned garbage")
	}
	if a.err != nil {
		return Patch{}, a.err
	}
	if err := ctx.Err(); err != nil {
		return Patch{}, err
	}
	return a.patch, nil
}

func TestChainAccumulatesPatches(t *testing.T) {
	city := "Manchester"
	uprn := int64(100023336956)
	rating := "C"

	first := &stubAdapter{name: "geocoder", patch: Patch{City: &city, UPRN: &uprn}}
	second := &stubAdapter{name: "epc-register", patch: Patch{EPC: domain.EPCDetails{Rating: &rating}}}

	chain := NewChain([]Adapter{first, second}, zap.NewNop(), nil)
	out := chain.Run(context.Background(), domain.Listing{Postcode: "M14 5TQ", ExternalID: "ext-1"})

	assert.Equal(t, "Manchester", out.City)
	assert.Equal(t, &uprn, out.UPRN)
	assert.Equal(t, "C", *out.EPC.Rating)

	// The second adapter sees the first adapter's contribution.
	assert.Equal(t, "Manchester", second.seen.City)
	assert.Equal(t, &uprn, second.seen.UPRN)
}

func TestChainAbsorbsAdapterErrors(t *testing.T) {
	city := "Leeds"
	failing := &stubAdapter{name: "land-registry", err: errors.New("upstream 503")}
	healthy := &stubAdapter{name: "geocoder", patch: Patch{City: &city}}

	chain := NewChain([]Adapter{failing, healthy}, zap.NewNop(), nil)
	out := chain.Run(context.Background(), domain.Listing{Postcode: "LS6 1AA", ExternalID: "ext-1"})

	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls)
	assert.Equal(t, "Leeds", out.City)
}

func TestChainAbsorbsPanics(t *testing.T) {
	city := "Bristol"
	panicking := &stubAdapter{name: "companies-house", panic: true}
	healthy := &stubAdapter{name: "geocoder", patch: Patch{City: &city}}

	chain := NewChain([]Adapter{panicking, healthy}, zap.NewNop(), nil)
	out := chain.Run(context.Background(), domain.Listing{Postcode: "BS7 8AA", ExternalID: "ext-1"})

	assert.Equal(t, "Bristol", out.City)
}

func TestChainStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := &stubAdapter{name: "geocoder"}
	second := &stubAdapter{name: "epc-register"}

	chain := NewChain([]Adapter{first, second}, zap.NewNop(), nil)
	out := chain.Run(ctx, domain.Listing{Postcode: "M14 5TQ", ExternalID: "ext-1"})

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
	assert.Equal(t, "M14 5TQ", out.Postcode)
}

func TestPatchApplyNeverClears(t *testing.T) {
	email := "owner@example.com"
	dst := domain.Listing{
		Postcode: "M14 5TQ",
		City:     "Manchester",
		Bedrooms: 5,
		Owner:    domain.OwnerDetails{Email: &email},
	}

	Patch{}.Apply(&dst)
	assert.Equal(t, "Manchester", dst.City)
	assert.Equal(t, 5, dst.Bedrooms)
	assert.Equal(t, &email, dst.Owner.Email)

	beds := 6
	area := 130.0
	Patch{Bedrooms: &beds, GrossInternalAreaSqm: &area}.Apply(&dst)
	assert.Equal(t, 6, dst.Bedrooms)
	assert.Equal(t, 130.0, *dst.GrossInternalAreaSqm)
}
