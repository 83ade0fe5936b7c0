package migration

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/inspira/internal/config"
	"github.com/smallbiznis/inspira/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
		case db.TypePostgres:
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		case db.TypeSQLite:
			log.Info("running gorm auto migration", zap.String("db_type", cfg.DBType))
			return AutoMigrate(conn)
		case db.TypeMySQL:
			// The pending-application partial index has no MySQL equivalent.
			log.Warn("mysql schema is not managed, expecting it to be provisioned externally")
			return nil
		default:
			return fmt.Errorf("unsupported %s type", cfg.DBType)
		}
	}),
)
