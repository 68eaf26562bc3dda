package migration

import (
	"errors"

	"github.com/smallbiznis/utilitybill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

var ErrAutoMigrateInProduction = errors.New("auto_migrate_disabled_in_production")

// Apply brings the schema up to date. Postgres runs the SQL migrations; the
// other dialects use AutoMigrate, which production deployments refuse.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType != "postgres" {
		if cfg.IsProduction() {
			return ErrAutoMigrateInProduction
		}
		log.Info("auto-migrating schema", zap.String("type", cfg.DBType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
