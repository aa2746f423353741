package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open initializes a SQLite database at the given path and migrates the
// schema. The parent directory is created when missing.
func Open(path string) (*gorm.DB, error) {
	if path == "" {
		path = filepath.Join("data", "cleancity.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&Report{}, &LifecycleEvent{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

// OpenInMemory returns a throwaway database for tests.
func OpenInMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	if err := db.AutoMigrate(&Report{}, &LifecycleEvent{}); err != nil {
		return nil, fmt.Errorf("migrate in-memory database: %w", err)
	}
	return db, nil
}

// Report is the persisted ledger entry for a submitted garbage report.
// Records are only ever inserted and flagged verified; nothing deletes them.
type Report struct {
	ID         uint           `gorm:"primaryKey"`
	ReportID   string         `gorm:"type:varchar(32);uniqueIndex;not null" json:"report_id"`
	CreatedAt  time.Time      `gorm:"index"                                 json:"created_at"`
	Latitude   float64        `                                             json:"latitude"`
	Longitude  float64        `                                             json:"longitude"`
	Details    string         `gorm:"type:text"                             json:"details"`
	Verified   bool           `gorm:"default:false"                         json:"verified"`
	VerifiedAt *time.Time     `                                             json:"verified_at,omitempty"`
	Metadata   datatypes.JSON `                                             json:"metadata,omitempty"`
}

// LifecycleEvent stores a session state transition for auditing.
type LifecycleEvent struct {
	ID        uint           `gorm:"primaryKey"`
	EventType string         `gorm:"index;not null"`
	SessionID string         `gorm:"index"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}
