package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message represents a stored email message. ThreadID is assigned when the
// row is inserted and is never rewritten.
type Message struct {
	ID             string       `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string       `gorm:"not null;size:128;uniqueIndex:idx_messages_org_message_id;index:idx_messages_org_thread" json:"organization_id"`
	MessageID      string       `gorm:"type:text;not null;uniqueIndex:idx_messages_org_message_id" json:"message_id"`
	InReplyTo      string       `gorm:"type:text" json:"in_reply_to,omitempty"`
	References     StringList   `gorm:"type:text" json:"references,omitempty"`
	Subject        string       `gorm:"type:text" json:"subject"`
	FromEmail      string       `gorm:"type:text;not null" json:"from_email"`
	FromName       string       `gorm:"type:text" json:"from_name,omitempty"`
	To             Participants `gorm:"type:text" json:"to"`
	ReceivedAt     time.Time    `gorm:"not null;index" json:"received_at"`
	IsRead         bool         `gorm:"default:false" json:"is_read"`
	ThreadID       string       `gorm:"size:64;index:idx_messages_org_thread" json:"thread_id,omitempty"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate fills the primary key and receive time
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now().UTC()
	}
	return nil
}

// From returns the sender as a Participant
func (m *Message) From() Participant {
	return Participant{Email: m.FromEmail, Name: m.FromName}
}
