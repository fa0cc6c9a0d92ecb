package models

import (
	"time"

	"github.com/google/uuid"
)

// Callback log kinds.
const (
	CallbackKindResult  = "callback"
	CallbackKindTimeout = "timeout"
)

// CallbackLog keeps every provider notification exactly as received.
type CallbackLog struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Kind              string    `gorm:"type:varchar(16);not null" json:"kind"`
	CheckoutRequestID string    `gorm:"type:varchar(64);index" json:"checkout_request_id"`
	ResultCode        *int      `json:"result_code,omitempty"`
	Outcome           string    `gorm:"type:varchar(32)" json:"outcome"`
	Payload           string    `gorm:"type:jsonb" json:"-"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CallbackLog) TableName() string { return "mpesa_callback_logs" }
