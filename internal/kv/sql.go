package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DBType 數據庫類型
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypeMySQL    DBType = "mysql"
	DBTypePostgres DBType = "postgres"
)

// SQLConfig describes how to open the database behind a SQLStore.
type SQLConfig struct {
	Type       DBType
	SQLitePath string
	DSN        string
	LogLevel   string
}

type record struct {
	Key       string `gorm:"column:entry_key;primaryKey;type:varchar(255)"`
	Value     string `gorm:"column:entry_value;type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (record) TableName() string {
	return "kv_entries"
}

// SQLStore persists entries in a single table through gorm.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQL connects to the configured database and migrates the entry table.
func OpenSQL(cfg SQLConfig) (*SQLStore, error) {
	var (
		dialector gorm.Dialector
		inMemory  bool
	)

	switch cfg.Type {
	case DBTypeSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			path = ":memory:"
		}
		inMemory = path == ":memory:"
		if !inMemory {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		dialector = sqlite.Open(path)
	case DBTypeMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DBTypePostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database [%s]: %w", cfg.Type, err)
	}

	// every connection to :memory: opens a distinct database
	if inMemory {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewSQLStore(db)
}

// NewSQLStore wraps an existing gorm connection.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Silent
	}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var r record
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", storageErr("get", err)
	}
	return r.Value, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	r := record{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
	}).Create(&r).Error
	if err != nil {
		return storageErr("set", err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&record{}).Error; err != nil {
		return storageErr("remove", err)
	}
	return nil
}

func (s *SQLStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&record{}).
		Order("created_at ASC").Order("entry_key ASC").
		Pluck("entry_key", &keys).Error
	if err != nil {
		return nil, storageErr("keys", err)
	}
	return keys, nil
}

func (s *SQLStore) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("entry_key IN ?", keys).Delete(&record{}).Error; err != nil {
		return storageErr("remove many", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
