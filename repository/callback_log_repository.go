package repository

import (
	"context"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	"gorm.io/gorm"
)

// CallbackLogRepository stores raw provider notifications.
type CallbackLogRepository interface {
	Create(ctx context.Context, entry *models.CallbackLog) error
}

type gormCallbackLogRepo struct {
	db *gorm.DB
}

func NewGormCallbackLogRepository(db *gorm.DB) CallbackLogRepository {
	return &gormCallbackLogRepo{db: db}
}

func (r *gormCallbackLogRepo) Create(ctx context.Context, entry *models.CallbackLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
