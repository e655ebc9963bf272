package database

import (
	"fmt"
	"strings"

	"github.com/arnold/kumbara-api/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to PostgreSQL when the URL starts with postgres, otherwise
// to a SQLite file or DSN.
func Open(databaseURL string, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, "postgres") {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if !strings.HasPrefix(databaseURL, "postgres") {
		// SQLite allows a single writer; serialize through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Connect opens the database and stores it in DB.
func Connect(databaseURL string, logLevel logger.LogLevel) error {
	db, err := Open(databaseURL, logLevel)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Account{},
		&models.Goal{},
		&models.Transaction{},
		&models.Notification{},
	)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
