package models

import (
	"time"
)

// Domain is a receiving mail domain owned by one organization
type Domain struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	OrganizationID string    `gorm:"not null;size:128;index" json:"organization_id"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Domain
func (Domain) TableName() string {
	return "domains"
}
