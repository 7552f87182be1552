package enrichment

import (
	"go.uber.org/fx"

	"github.com/hmoscout/hmoscout/internal/cache"
)

var Module = fx.Module("enrichment",
	fx.Provide(
		cache.NewAddressCache,
		NewGeocoder,
		NewEPCAdapter,
		NewTitleAdapter,
		NewCompaniesAdapter,
		NewHMORegisterAdapter,
	),
)
