package analyzer

import "go.uber.org/fx"

var Module = fx.Module("analyzer",
	fx.Provide(New),
)
