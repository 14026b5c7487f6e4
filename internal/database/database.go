package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"domain-renewer/internal/config"
	"domain-renewer/internal/models"
)

var DB *gorm.DB

// InitDB initializes the run-history database
func InitDB(cfg *config.DatabaseConfig) error {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Use pure Go SQLite driver (modernc.org/sqlite)
	sqlDB, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	DB, err = gorm.Open(sqlite.Dialector{
		Conn: sqlDB,
	}, &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to initialize GORM: %w", err)
	}

	// Auto migrate the schema
	if err := DB.AutoMigrate(
		&models.RunRecord{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// SaveRun persists one run's history row.
func SaveRun(record *models.RunRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return DB.Create(record).Error
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(limit int) ([]models.RunRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	var records []models.RunRecord
	err := DB.Order("started_at desc").Limit(limit).Find(&records).Error
	return records, err
}

// LatestRun returns the most recent run, or nil when no run has happened.
func LatestRun() (*models.RunRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	var record models.RunRecord
	err := DB.Order("started_at desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
