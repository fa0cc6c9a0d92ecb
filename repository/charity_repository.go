package repository

import (
	"context"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CharityRepository looks up charities owned by the charity service.
type CharityRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Charity, error)
}

type gormCharityRepo struct {
	db *gorm.DB
}

func NewGormCharityRepository(db *gorm.DB) CharityRepository {
	return &gormCharityRepo{db: db}
}

func (r *gormCharityRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Charity, error) {
	var c models.Charity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
