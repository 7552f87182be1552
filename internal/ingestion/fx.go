package ingestion

import (
	"go.uber.org/fx"

	"github.com/hmoscout/hmoscout/internal/compliance"
	"github.com/hmoscout/hmoscout/internal/enrichment"
)

// NewDefaultRegistry wires the production adapter set. Enricher order
// matters: the geocoder resolves the UPRN the registers behind it query by,
// the title lookup surfaces the company number Companies House expands, and
// the licensing determination runs last so it sees the final bedroom count.
func NewDefaultRegistry(
	feed *ListingsFeedSource,
	geocoder *enrichment.Geocoder,
	epc *enrichment.EPCAdapter,
	title *enrichment.TitleAdapter,
	companies *enrichment.CompaniesAdapter,
	hmoRegister *enrichment.HMORegisterAdapter,
	licensing *compliance.Adapter,
) *Registry {
	return NewRegistry(
		[]SourceAdapter{feed},
		[]enrichment.Adapter{geocoder, epc, title, companies, hmoRegister, licensing},
	)
}

var Module = fx.Module("ingestion",
	fx.Provide(
		NewListingsFeedSource,
		NewDefaultRegistry,
		NewManager,
	),
)
