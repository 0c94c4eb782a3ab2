package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"racestay-engine/pkg/config"
	"racestay-engine/pkg/db"
	"racestay-engine/pkg/event"
	"racestay-engine/pkg/logger"
	"racestay-engine/pkg/redis"
	"racestay-engine/pkg/task"
	"racestay-engine/services/booking"
	"racestay-engine/services/ledger"
	"racestay-engine/services/rate"
	"racestay-engine/services/rewards"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		event.Module,
		fx.Provide(provideSnowflakeNode),
		ledger.Headless,
		rate.Headless,
		rewards.Headless,
		booking.WorkerModule,
		fx.Invoke(event.RegisterHandlers),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
