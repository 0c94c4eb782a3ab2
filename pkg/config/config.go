package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Booking BookingPolicy `mapstructure:"BOOKING"`
}

// BookingPolicy holds the tunable parts of the cancellation and expiry rules.
// Amounts awarded by the reward dispatcher are fixed and live in code.
type BookingPolicy struct {
	// FreeCancelDays is the minimum number of days before check-in for a
	// guest-initiated cancellation to receive a full refund.
	FreeCancelDays int `mapstructure:"FREE_CANCEL_DAYS"`
	// PenaltyMode selects how a host-cancellation penalty is computed:
	// "full_cost" charges the booking's frozen points cost, "flat" charges
	// PenaltyFlatAmount.
	PenaltyMode       string `mapstructure:"PENALTY_MODE"`
	PenaltyFlatAmount int64  `mapstructure:"PENALTY_FLAT_AMOUNT"`
	// PendingExpiryDays cancels booking requests that stay pending longer
	// than this many days. Zero disables the sweep.
	PendingExpiryDays int `mapstructure:"PENDING_EXPIRY_DAYS"`
	// MaxNights caps the length of a single stay.
	MaxNights int `mapstructure:"MAX_NIGHTS"`
}

const (
	PenaltyModeFullCost = "full_cost"
	PenaltyModeFlat     = "flat"

	DefaultFreeCancelDays    = 7
	DefaultPenaltyFlatAmount = 100
	DefaultPendingExpiryDays = 14
	DefaultMaxNights         = 30
)

// Normalize fills unset policy knobs with their defaults.
func (p *BookingPolicy) Normalize() {
	if p.FreeCancelDays <= 0 {
		p.FreeCancelDays = DefaultFreeCancelDays
	}
	if p.PenaltyMode != PenaltyModeFlat {
		p.PenaltyMode = PenaltyModeFullCost
	}
	if p.PenaltyFlatAmount <= 0 {
		p.PenaltyFlatAmount = DefaultPenaltyFlatAmount
	}
	if p.PendingExpiryDays < 0 {
		p.PendingExpiryDays = DefaultPendingExpiryDays
	}
	if p.MaxNights <= 0 {
		p.MaxNights = DefaultMaxNights
	}
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		zap.L().Warn("config file not found, relying on environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Booking.Normalize()

	return &cfg, nil
}
