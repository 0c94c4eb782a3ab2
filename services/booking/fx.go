package booking

import (
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

var Headless = fx.Module("booking.headless",
	fx.Provide(NewService),
)

// Worker wires the expiry sweep into an asynq worker process.
var WorkerModule = fx.Module("booking.worker",
	fx.Provide(NewService, NewWorker, NewScheduler),
	fx.Invoke(RegisterTaskHandlers, StartScheduler),
)
