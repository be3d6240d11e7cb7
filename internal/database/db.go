package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"transport-backend/internal/config"
	"transport-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to Postgres, retrying the initial ping on transient failures,
// and migrates the schema.
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.DBConnectRetries)*(cfg.DBRetryBackoff+5*time.Second))
	defer cancel()
	if err := PingWithRetry(ctx, sqlDB, cfg.DBConnectRetries, cfg.DBRetryBackoff, log); err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database connected, migration completed")
	return db, nil
}

// GormConfig is shared by production and test connections. TranslateError
// turns driver specific unique and foreign key violations into
// gorm.ErrDuplicatedKey and gorm.ErrForeignKeyViolated.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

type pinger interface {
	PingContext(ctx context.Context) error
}

var _ pinger = (*sql.DB)(nil)

// PingWithRetry pings up to attempts times, sleeping backoff between tries.
func PingWithRetry(ctx context.Context, db pinger, attempts int, backoff time.Duration, log *zap.Logger) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		log.Warn("database ping failed", zap.Int("attempt", i), zap.Int("max_attempts", attempts), zap.Error(err))
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("database ping: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("database unreachable after %d attempts: %w", attempts, err)
}

// Migrate creates or updates every table. Notification tables share one row
// type, so their indexes are created by hand with per-table names.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.LoadType{},
		&models.District{},
		&models.Order{},
		&models.OrderSubmission{},
		&models.SupplierDocument{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	for _, table := range models.NotificationTables {
		if err := db.Table(table).AutoMigrate(&models.Notification{}); err != nil {
			return fmt.Errorf("auto migrate %s: %w", table, err)
		}
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_recipient ON %s (recipient_id, created_at)", table, table)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index %s: %w", table, err)
		}
	}
	return nil
}
