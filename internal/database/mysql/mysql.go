package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"docstack/internal/config"
	"docstack/internal/models"
)

// New connects to MySQL and returns a configured GORM instance. The caller
// owns the lifecycle: construct once at startup, inject everywhere, Close at
// shutdown.
func New(cfg *config.MySQLConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Address,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unable to get underlying SQL DB instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	return db, nil
}

// Migrate creates or updates the schema for every entity table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Organization{},
		&models.OrgMembership{},
		&models.DocumentCollection{},
		&models.Document{},
		&models.DocumentToCollection{},
		&models.Chat{},
		&models.ChatMessage{},
		&models.Citation{},
	)
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unable to get underlying SQL DB instance: %w", err)
	}
	return sqlDB.Close()
}

// HealthCheck pings the database.
func HealthCheck(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unable to get underlying SQL DB instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
