package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DonationRepository defines persistence operations for the donation ledger.
type DonationRepository interface {
	Create(ctx context.Context, d *models.Donation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Donation, error)
	// ApplyOutcome locks the row for checkoutRequestID, runs transition on it and
	// saves the result. When transition returns models.ErrDonationFinalized
	// nothing is written and the current row is returned with that error.
	ApplyOutcome(ctx context.Context, checkoutRequestID string, transition func(*models.Donation) error) (*models.Donation, error)
	// ListStalePending pages through PENDING rows created before createdBefore,
	// oldest first, starting after the given cursor.
	ListStalePending(ctx context.Context, createdBefore time.Time, after PendingCursor, limit int) ([]models.Donation, error)
}

// PendingCursor is the position of the last row of a ListStalePending page.
// The zero value starts from the oldest row.
type PendingCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// IsZero reports whether the cursor points at the start.
func (c PendingCursor) IsZero() bool { return c.CreatedAt.IsZero() }

// CursorAfter returns the cursor positioned at d.
func CursorAfter(d models.Donation) PendingCursor {
	return PendingCursor{CreatedAt: d.CreatedAt, ID: d.ID}
}

type gormDonationRepo struct {
	db *gorm.DB
}

// NewGormDonationRepository creates a gorm-backed DonationRepository.
func NewGormDonationRepository(db *gorm.DB) DonationRepository {
	return &gormDonationRepo{db: db}
}

func (r *gormDonationRepo) Create(ctx context.Context, d *models.Donation) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *gormDonationRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	var d models.Donation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *gormDonationRepo) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Donation, error) {
	var d models.Donation
	if err := r.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *gormDonationRepo) ApplyOutcome(ctx context.Context, checkoutRequestID string, transition func(*models.Donation) error) (*models.Donation, error) {
	var d models.Donation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("checkout_request_id = ?", checkoutRequestID).
			First(&d).Error; err != nil {
			return err
		}
		if err := transition(&d); err != nil {
			return err
		}
		return tx.Save(&d).Error
	})
	if err != nil {
		if errors.Is(err, models.ErrDonationFinalized) {
			return &d, err
		}
		return nil, err
	}
	return &d, nil
}

func (r *gormDonationRepo) ListStalePending(ctx context.Context, createdBefore time.Time, after PendingCursor, limit int) ([]models.Donation, error) {
	var out []models.Donation
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.DonationPending, createdBefore)
	if !after.IsZero() {
		q = q.Where("(created_at, id) > (?, ?)", after.CreatedAt, after.ID)
	}
	err := q.Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
