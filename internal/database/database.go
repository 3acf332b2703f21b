// Package database opens the GORM connections used by the sqlite and postgres
// run stores.
package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Postgres describes a PostgreSQL server.
type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	// SSLMode defaults to "disable".
	SSLMode      string
	MaxOpenConns int
}

// DSN returns the libpq keyword/value connection string.
func (p Postgres) DSN() string {
	mode := p.SSLMode
	if mode == "" {
		mode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, mode)
}

// sqlitePragmas favour write speed; durability comes from periodic dumps.
var sqlitePragmas = []string{
	"PRAGMA journal_mode = MEMORY",
	"PRAGMA synchronous = OFF",
	"PRAGMA cache_size = -32000",
	"PRAGMA temp_store = MEMORY",
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// OpenPostgres connects to p and pings it.
func OpenPostgres(p Postgres) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  p.DSN(),
		PreferSimpleProtocol: true,
	}), gormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to reach %s:%s: %w", p.Host, p.Port, err)
	}
	if p.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(p.MaxOpenConns)
	}
	return db, nil
}

// OpenSQLite opens a SQLite database file. An empty path opens a private
// in-memory database on a single connection so every query sees the same
// data.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	if path == "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql interface: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// DumpSQLite writes a consistent copy of db to path with VACUUM INTO,
// replacing any existing file.
func DumpSQLite(db *gorm.DB, path string) error {
	if path == "" {
		return errors.New("no dump path configured")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old dump: %w", err)
	}
	if err := db.Exec("VACUUM INTO ?", "file:"+path).Error; err != nil {
		return fmt.Errorf("failed to dump database: %w", err)
	}
	return nil
}
