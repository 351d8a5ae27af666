package db

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Token struct {
	ID        uint   `gorm:"primaryKey"`
	Value     string `gorm:"size:8192"`
	CreatedAt time.Time
}

// AppliedOp records every operation this agent has applied, keyed by
// (folder, seq). The unique index makes redelivered operations no-ops.
type AppliedOp struct {
	ID        uint   `gorm:"primaryKey"`
	FolderID  string `gorm:"size:64;uniqueIndex:idx_folder_seq"`
	Seq       uint64 `gorm:"uniqueIndex:idx_folder_seq"`
	Kind      string `gorm:"size:32"`
	Path      string
	AppliedAt time.Time
}

var gdb *gorm.DB

func Init(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	opened, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	gdb = opened
	return gdb, nil
}

func Get() *gorm.DB { return gdb }
