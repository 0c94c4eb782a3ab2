package db

import (
	"context"
	"time"

	"racestay-engine/pkg/config"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(RegisterConnectionPool),
)

func New(cfg *config.Config, dialector gorm.Dialector, opts ...gorm.Option) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	var logLevel logger.LogLevel
	var showSQL bool

	if cfg.AppEnv == "production" {
		logLevel = logger.Warn
		showSQL = false
	} else {
		logLevel = logger.Info
		showSQL = true
	}

	gormLogger := NewZapGormLogger(zap.L(), logLevel, showSQL)

	for i := 0; i < 5; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: gormLogger,
		})
		if err == nil {
			break
		}
		zap.L().Warn("[DB] Database not ready, retrying in 3 seconds...", zap.Int("retry", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}

	if err != nil {
		zap.L().Error("[DB] Failed to connect to database", zap.Error(err))
		return nil, err
	}

	zap.L().Info("[DB] Database connection successfully configured.")

	return db, nil
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		zap.L().Error("[DB] Failed to get sql.DB from gorm", zap.Error(err))
		return err
	}

	cp := p.Config.Database.ConnectionPool
	if cp.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cp.MaxIdleConn)
	}
	if cp.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cp.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cp.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cp.ConnMaxIdleTime)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] Closing connection pool...")
			return sqlDB.Close()
		},
	})

	return nil
}

// Otel registers the OpenTelemetry plugin so queries carry spans.
func Otel(db *gorm.DB) error {
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		zap.L().Error("[DB] Failed to register db telemetry", zap.Error(err))
		return err
	}

	return nil
}

// Metric registers the gorm prometheus plugin exposing pool metrics.
func Metric(db *gorm.DB, dbName string) error {
	if err := db.Use(prometheus.New(prometheus.Config{
		DBName:          dbName,
		RefreshInterval: 15,
	})); err != nil {
		zap.L().Error("[DB] Failed to register db metrics", zap.Error(err))
		return err
	}
	return nil
}
