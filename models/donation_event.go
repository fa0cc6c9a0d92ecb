package models

import "time"

// Donation event types.
const (
	EventDonationInitiated = "donation_initiated"
	EventDonationSucceeded = "donation_succeeded"
	EventDonationFailed    = "donation_failed"
)

// DonationEvent is published whenever a donation is created or finalized.
type DonationEvent struct {
	Type              string    `json:"type"`
	DonationID        string    `json:"donation_id"`
	DonorID           string    `json:"donor_id"`
	CharityID         string    `json:"charity_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	Status            string    `json:"status"`
	Amount            int64     `json:"amount"` // in cents
	Currency          string    `json:"currency"`
	ReceiptNumber     string    `json:"mpesa_receipt_number,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	IsAnonymous       bool      `json:"is_anonymous"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewDonationEvent builds an event from the donation's current state.
func NewDonationEvent(eventType string, d *Donation) DonationEvent {
	ev := DonationEvent{
		Type:              eventType,
		DonationID:        d.ID.String(),
		DonorID:           d.DonorID.String(),
		CharityID:         d.CharityID.String(),
		CheckoutRequestID: d.CheckoutRequestID,
		Status:            string(d.Status),
		Amount:            d.Amount,
		Currency:          "KES",
		IsAnonymous:       d.IsAnonymous,
		Timestamp:         time.Now().UTC(),
	}
	if d.MpesaReceiptNumber != nil {
		ev.ReceiptNumber = *d.MpesaReceiptNumber
	}
	if d.FailureReason != nil {
		ev.FailureReason = *d.FailureReason
	}
	return ev
}
