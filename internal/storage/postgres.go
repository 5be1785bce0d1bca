package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	logx "newsbot/pkg/logx"
)

// CooldownRecord is the postgres row for one user.
type CooldownRecord struct {
	UserID        string    `gorm:"primaryKey;size:64"`
	LastRequestAt time.Time `gorm:"not null"`
	UpdatedAt     time.Time
}

func (CooldownRecord) TableName() string { return "users" }

type postgresStore struct {
	db *gorm.DB
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	st, err := newPostgresStore(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}
	log.Debug("postgres ledger ready")
	return st, nil
}

// newPostgresStore opens the pool and migrates the table. The pool is
// closed again if migration fails.
func newPostgresStore(d gorm.Dialector) (*postgresStore, error) {
	db, err := gorm.Open(d, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.AutoMigrate(&CooldownRecord{}); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &postgresStore{db: db}, nil
}

func (s *postgresStore) LastRequest(ctx context.Context, userID string) (time.Time, bool, error) {
	var rec CooldownRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return rec.LastRequestAt, true, nil
}

func (s *postgresStore) PutLastRequest(ctx context.Context, userID string, at time.Time) error {
	rec := CooldownRecord{UserID: userID, LastRequestAt: at.UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_request_at", "updated_at"}),
	}).Create(&rec).Error
}

func (s *postgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
