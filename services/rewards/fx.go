package rewards

import (
	"go.uber.org/fx"
)

var Module = fx.Module("rewards.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

var Headless = fx.Module("rewards.headless",
	fx.Provide(NewService),
)
