package database

import (
	"context"
	"errors"
	"time"

	"github.com/thereayou/quipe/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect открывает Postgres по DSN
func Connect(dsn string, log *zap.Logger) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info("database connected")
	return NewDatabase(db), nil
}

// Migrate создаёт и обновляет схему
func (d *Database) Migrate(ctx context.Context) error {
	return d.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.UserPhoto{},
		&models.SocialLink{},
		&models.Chat{},
		&models.Message{},
		&models.Document{},
	)
}
