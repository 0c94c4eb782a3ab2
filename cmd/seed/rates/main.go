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
	"racestay-engine/pkg/logger"
	"racestay-engine/services/rate"
)

// defaultRates is the starting provincial rate table. Operators adjust
// individual regions afterwards through the rate admin endpoint.
var defaultRates = map[string]int64{
	"Madrid":    25,
	"Barcelona": 25,
	"Valencia":  20,
	"Sevilla":   20,
	"Zaragoza":  15,
	"Malaga":    20,
	"Bilbao":    20,
	"Granada":   15,
	"Asturias":  15,
	"Navarra":   15,
}

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		fx.Provide(provideSnowflakeNode),
		rate.Headless,
		fx.Invoke(seed),
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

func seed(lc fx.Lifecycle, shutdowner fx.Shutdowner, gormDB *gorm.DB, svc *rate.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := gormDB.WithContext(ctx).AutoMigrate(&rate.Rate{}); err != nil {
				return err
			}

			for region, pointsPerNight := range defaultRates {
				if _, err := svc.Upsert(ctx, region, pointsPerNight); err != nil {
					zap.L().Error("failed to seed rate",
						zap.String("region", region), zap.Error(err))
					return err
				}
			}

			zap.L().Info("seeded provincial rates", zap.Int("regions", len(defaultRates)))
			return shutdowner.Shutdown()
		},
	})
}
