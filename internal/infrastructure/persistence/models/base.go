package models

import "time"

// Timestamps are the audit columns shared by mutable tables.
type Timestamps struct {
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
