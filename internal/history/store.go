// Package history persists protected-trade records for the dashboard
// history view.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mevshield/mevshield/pkg/models"
)

// Store persists and queries protected-trade records
type Store struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewStore creates a store and migrates its schema
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&models.TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate trade records: %w", err)
	}
	return &Store{logger: logger.Named("history"), db: db}, nil
}

// Save persists one protected-trade record
func (s *Store) Save(ctx context.Context, record *models.TradeRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to save trade record: %w", err)
	}
	return nil
}

// List returns the most recent records, optionally filtered by user
func (s *Store) List(ctx context.Context, user string, limit int) ([]*models.TradeRecord, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Model(&models.TradeRecord{})
	if user != "" {
		query = query.Where(`"user" = ?`, user)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count trade records: %w", err)
	}

	var records []*models.TradeRecord
	if err := query.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find trade records: %w", err)
	}
	return records, count, nil
}

// TotalSavings sums the estimated savings over all records
func (s *Store) TotalSavings(ctx context.Context) (float64, error) {
	var total *float64
	err := s.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Select("SUM(savings_usd)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum savings: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
