package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"verifyflow.backend/internal/config"
)

var (
	openDialector = func(dsn string) gorm.Dialector {
		return postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})
	}
	pingTimeout = 5 * time.Second
)

// NewConnection opens the GORM pool and verifies the server is reachable
func NewConnection(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(openDialector(cfg.URL()), &gorm.Config{
		PrepareStmt: false,
		Logger:      gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := Ping(context.Background(), db, pingTimeout); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Ping checks the underlying pool within timeout
func Ping(ctx context.Context, db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}
