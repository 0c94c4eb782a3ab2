package ledger

import (
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

// Headless wires the service without HTTP routes, for worker processes.
var Headless = fx.Module("ledger.headless",
	fx.Provide(NewService),
)
