// Package sqlitestore backs admission counting with a SQLite table, for
// deployments small enough to run without a cache server. A single gateway
// process owns the database file.
package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Admission is one recorded admission timestamp for a partition key.
type Admission struct {
	ID  uint   `gorm:"primaryKey"`
	Key string `gorm:"column:part_key;index:idx_admissions_key_at"`
	At  int64  `gorm:"index:idx_admissions_key_at"`
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Admission{}); err != nil {
		return nil, fmt.Errorf("migrate admissions: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) RemoveBefore(ctx context.Context, key string, cutoff int64) error {
	err := s.db.WithContext(ctx).
		Where("part_key = ? AND at < ?", key, cutoff).
		Delete(&Admission{}).Error
	if err != nil {
		return fmt.Errorf("prune %s: %w", key, err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Admission{}).
		Where("part_key = ?", key).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) Record(ctx context.Context, key string, at int64, _ time.Duration) error {
	// Per-key TTL is covered by RemoveBefore on every check plus Sweep for
	// abandoned keys, so the ttl argument carries no extra work here.
	if err := s.db.WithContext(ctx).Create(&Admission{Key: key, At: at}).Error; err != nil {
		return fmt.Errorf("record %s: %w", key, err)
	}
	return nil
}

// Sweep deletes rows older than ttl across all keys. Run it periodically so
// keys that stopped receiving traffic don't accumulate stale rows.
func (s *Store) Sweep(ctx context.Context, ttl time.Duration) error {
	cutoff := time.Now().Add(-ttl).Unix()
	err := s.db.WithContext(ctx).
		Where("at < ?", cutoff).
		Delete(&Admission{}).Error
	if err != nil {
		return fmt.Errorf("sweep admissions: %w", err)
	}
	return nil
}
