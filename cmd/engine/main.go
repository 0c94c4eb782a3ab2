package main

import (
	"context"
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"racestay-engine/pkg/config"
	"racestay-engine/pkg/db"
	"racestay-engine/pkg/event"
	"racestay-engine/pkg/health"
	"racestay-engine/pkg/logger"
	"racestay-engine/pkg/redis"
	"racestay-engine/pkg/server"
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
		event.Module,
		fx.Provide(provideSnowflakeNode),
		server.ProvideHTTPServer,
		health.Module,
		ledger.Module,
		rate.Module,
		rewards.Module,
		booking.Module,
		fx.Invoke(registerDBTelemetry, migrate),
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

func registerDBTelemetry(cfg *config.Config, gormDB *gorm.DB) error {
	if err := db.Otel(gormDB); err != nil {
		return err
	}
	return db.Metric(gormDB, cfg.Database.DBNAME)
}

func migrate(lc fx.Lifecycle, gormDB *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return gormDB.WithContext(ctx).AutoMigrate(
				&ledger.Transaction{},
				&ledger.Balance{},
				&rate.Rate{},
				&booking.Booking{},
			)
		},
	})
}
