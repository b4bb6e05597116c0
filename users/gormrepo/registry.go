package gormrepo

import (
	"fmt"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DialectorFunc opens a gorm dialector for a DSN
type DialectorFunc func(dsn string) gorm.Dialector

var (
	driversMu sync.RWMutex
	drivers   = map[string]DialectorFunc{}
)

func init() {
	Register("sqlite", sqlite.Open)
}

// Register makes a database driver available to Open under name
func Register(name string, fn DialectorFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = fn
}

// Open connects with a registered driver and migrates the credential tables
func Open(driver, dsn string) (*Repository, error) {
	driversMu.RLock()
	fn, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("[gormrepo Open] unknown driver %q", driver)
	}

	db, err := gorm.Open(fn(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("[gormrepo Open] gorm.Open: %w", err)
	}

	repo := NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		return nil, err
	}
	return repo, nil
}
