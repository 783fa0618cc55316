package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Matching strategies recorded on a thread
const (
	StrategyHeaders  = "headers"
	StrategySubject  = "subject"
	StrategyNew      = "new"
	StrategyDeferred = "deferred"
)

// Thread statuses
const (
	ThreadStatusActive   = "active"
	ThreadStatusWaiting  = "waiting"
	ThreadStatusResolved = "resolved"
	ThreadStatusArchived = "archived"
)

// Thread priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Thread is a conversation aggregate. Version is bumped on every activity
// update and guards concurrent read-modify-write cycles.
type Thread struct {
	ID                string          `gorm:"primaryKey;size:64" json:"id"`
	OrganizationID    string          `gorm:"not null;size:128;index:idx_threads_org_subject,priority:1;index:idx_threads_org_assignee,priority:1" json:"organization_id"`
	Subject           string          `gorm:"type:text" json:"subject"`
	NormalizedSubject string          `gorm:"type:text;index:idx_threads_org_subject,priority:2" json:"normalized_subject"`
	Participants      Participants    `gorm:"type:text" json:"participants"`
	MessageCount      int             `gorm:"not null;default:0" json:"message_count"`
	UnreadCount       int             `gorm:"not null;default:0" json:"unread_count"`
	LastMessageAt     time.Time       `gorm:"index" json:"last_message_at"`
	Confidence        int             `json:"confidence"`
	Strategy          string          `gorm:"size:16" json:"strategy"`
	Status            string          `gorm:"size:16;default:active;index" json:"status"`
	Priority          string          `gorm:"size:16;default:normal" json:"priority"`
	ContactIDs        StringList      `gorm:"type:text" json:"contact_ids"`
	WasDeferred       bool            `gorm:"default:false" json:"was_deferred"`
	AssignedTo        *string         `gorm:"size:128;index:idx_threads_org_assignee,priority:2" json:"assigned_to,omitempty"`
	AssignedBy        *string         `gorm:"size:128" json:"assigned_by,omitempty"`
	AssignedAt        *time.Time      `json:"assigned_at,omitempty"`
	Analysis          *ThreadAnalysis `gorm:"type:text" json:"analysis,omitempty"`
	Version           int             `gorm:"not null;default:0" json:"-"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Thread
func (Thread) TableName() string {
	return "threads"
}

// ThreadAnalysis is an externally produced annotation. Nothing in matching
// reads it.
type ThreadAnalysis struct {
	Summary     string    `json:"summary,omitempty"`
	Sentiment   string    `json:"sentiment,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Urgency     string    `json:"urgency,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
	GeneratedBy string    `json:"generated_by,omitempty"`
}

// Value implements driver.Valuer
func (a ThreadAnalysis) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (a *ThreadAnalysis) Scan(value interface{}) error {
	return scanJSON(value, a)
}

// ThreadListItem is the lightweight row returned by list queries
type ThreadListItem struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	MessageCount  int       `json:"message_count"`
	UnreadCount   int       `json:"unread_count"`
	LastMessageAt time.Time `json:"last_message_at"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	Strategy      string    `json:"strategy"`
	AssignedTo    *string   `json:"assigned_to,omitempty"`
}

// ValidThreadStatus reports whether status is a known thread status
func ValidThreadStatus(status string) bool {
	switch status {
	case ThreadStatusActive, ThreadStatusWaiting, ThreadStatusResolved, ThreadStatusArchived:
		return true
	}
	return false
}

// ValidPriority reports whether priority is a known thread priority
func ValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// WorkloadStat summarizes open threads per assignee
type WorkloadStat struct {
	UserID         string `gorm:"column:assigned_to" json:"user_id"`
	OpenThreads    int64  `json:"open_threads"`
	UnreadMessages int64  `json:"unread_messages"`
}

// OpenStatuses are the statuses counted as an assignee's workload
var OpenStatuses = []string{ThreadStatusActive, ThreadStatusWaiting}
