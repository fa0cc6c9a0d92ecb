package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DonationStatus is the payment state of a donation.
type DonationStatus string

// Donation status constants. PENDING moves to SUCCESS or FAILED exactly once.
const (
	DonationPending DonationStatus = "PENDING"
	DonationSuccess DonationStatus = "SUCCESS"
	DonationFailed  DonationStatus = "FAILED"
)

// ErrDonationFinalized is returned when a terminal donation is asked to transition again.
var ErrDonationFinalized = errors.New("donation already finalized")

// IsTerminal reports whether no further transition is allowed from s.
func (s DonationStatus) IsTerminal() bool {
	return s == DonationSuccess || s == DonationFailed
}

// Donation is the ledger entry for a single M-Pesa payment attempt.
type Donation struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Amount             int64          `gorm:"not null;check:amount > 0" json:"amount"` // in cents
	DonorID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"donor_id"`
	CharityID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"charity_id"`
	PhoneNumber        string         `gorm:"type:varchar(12);not null" json:"phone_number"`
	Status             DonationStatus `gorm:"type:varchar(10);not null;default:'PENDING';index" json:"status"`
	CheckoutRequestID  string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"checkout_request_id"`
	MerchantRequestID  string         `gorm:"type:varchar(64)" json:"merchant_request_id"`
	MpesaReceiptNumber *string        `gorm:"type:varchar(32)" json:"mpesa_receipt_number"`
	FailureReason      *string        `gorm:"type:text" json:"failure_reason"`
	IsAnonymous        bool           `gorm:"not null;default:false" json:"is_anonymous"`
	Message            *string        `gorm:"type:text" json:"message,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// AmountKES returns the amount in whole shillings.
func (d *Donation) AmountKES() float64 {
	return float64(d.Amount) / 100
}

// MarkSucceeded records a confirmed payment.
func (d *Donation) MarkSucceeded(receipt string, at time.Time) error {
	if d.Status.IsTerminal() {
		return ErrDonationFinalized
	}
	d.Status = DonationSuccess
	d.MpesaReceiptNumber = &receipt
	d.FailureReason = nil
	d.CompletedAt = &at
	return nil
}

// MarkFailed records a declined, cancelled or expired payment.
func (d *Donation) MarkFailed(reason string, at time.Time) error {
	if d.Status.IsTerminal() {
		return ErrDonationFinalized
	}
	d.Status = DonationFailed
	d.FailureReason = &reason
	d.MpesaReceiptNumber = nil
	d.CompletedAt = &at
	return nil
}
