package rate

import (
	"go.uber.org/fx"
)

var Module = fx.Module("rate.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

var Headless = fx.Module("rate.headless",
	fx.Provide(NewService),
)
