package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Assignment actions recorded in the history
const (
	AssignmentAssigned   = "assigned"
	AssignmentReassigned = "reassigned"
	AssignmentUnassigned = "unassigned"
)

// ThreadAssignment records one change of a thread's assignee
type ThreadAssignment struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ThreadID       string    `gorm:"not null;size:64;index" json:"thread_id"`
	OrganizationID string    `gorm:"not null;size:128;index" json:"organization_id"`
	FromUserID     *string   `gorm:"size:128" json:"from_user_id"`
	ToUserID       *string   `gorm:"size:128" json:"to_user_id"`
	AssignedBy     string    `gorm:"size:128" json:"assigned_by"`
	Action         string    `gorm:"size:16" json:"action"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for ThreadAssignment
func (ThreadAssignment) TableName() string {
	return "thread_assignments"
}

// BeforeCreate fills the primary key
func (a *ThreadAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
