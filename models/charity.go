package models

import "github.com/google/uuid"

// Charity is the read-only view of a charity owned by the charity service.
// The table is not migrated here.
type Charity struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
}

func (Charity) TableName() string { return "charities" }
