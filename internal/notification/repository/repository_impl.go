package repository

import (
	"context"

	"github.com/smallbiznis/inspira/internal/notification/domain"
	"gorm.io/gorm"
)

const insertBatchSize = 200

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) InsertBatch(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(notifications, insertBatchSize).Error
}
