package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/hmoscout/hmoscout/internal/config"
	propertydomain "github.com/hmoscout/hmoscout/internal/property/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations target postgres; other dialects (sqlite in
		// local setups) fall back to the model-driven schema.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(&propertydomain.Property{})
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
