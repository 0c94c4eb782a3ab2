package db

import (
	"fmt"

	"racestay-engine/pkg/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect builds the gorm dialector for the configured database type.
// Postgres is the default; sqlite is intended for local development.
func Dialect(cfg *config.Config) gorm.Dialector {
	d := cfg.Database

	switch d.Type {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			d.User, d.Password, d.Host, d.Port, d.DBNAME)
		return mysql.Open(dsn)
	case "sqlite":
		return sqlite.Open(d.DBNAME)
	default:
		sslmode := d.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		timezone := d.Timezone
		if timezone == "" {
			timezone = "UTC"
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			d.Host, d.User, d.Password, d.DBNAME, d.Port, sslmode, timezone)
		return postgres.Open(dsn)
	}
}
