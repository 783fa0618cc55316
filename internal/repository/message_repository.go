package repository

import (
	"context"
	"fmt"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for message data access.
// Messages are append-only; no method rewrites a stored thread id.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, orgID, id string) (*models.Message, error)
	GetByMessageID(ctx context.Context, orgID, messageID string) (*models.Message, error)
	FindByMessageIDs(ctx context.Context, orgID string, messageIDs []string) ([]models.Message, error)
	FindByThreadID(ctx context.Context, orgID, threadID string) ([]models.Message, error)
	ListThreaded(ctx context.Context, orgID string) ([]models.Message, error)
	ListByThread(ctx context.Context, orgID, threadID string, limit, offset int) ([]models.Message, int64, error)
	MarkAsRead(ctx context.Context, orgID, id string) error
}

// messageRepository implements MessageRepository using GORM
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository instance
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create inserts a message. A second message with the same protocol id in
// the same organization returns ErrDuplicateEntry.
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	result := r.db.WithContext(ctx).Create(message)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("message '%s' already stored: %w", message.MessageID, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create message: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a message by its ID
func (r *messageRepository) GetByID(ctx context.Context, orgID, id string) (*models.Message, error) {
	var message models.Message
	result := r.db.WithContext(ctx).Where("organization_id = ? AND id = ?", orgID, id).First(&message)
	if result.Error != nil {
		return nil, lookupError(result.Error, "get message by ID")
	}
	return &message, nil
}

// GetByMessageID retrieves a message by its protocol id
func (r *messageRepository) GetByMessageID(ctx context.Context, orgID, messageID string) (*models.Message, error) {
	var message models.Message
	result := r.db.WithContext(ctx).Where("organization_id = ? AND message_id = ?", orgID, messageID).First(&message)
	if result.Error != nil {
		return nil, lookupError(result.Error, "get message by message ID")
	}
	return &message, nil
}

// FindByMessageIDs returns the stored messages whose protocol id is in
// messageIDs. Order is unspecified.
func (r *messageRepository) FindByMessageIDs(ctx context.Context, orgID string, messageIDs []string) ([]models.Message, error) {
	var messages []models.Message
	if len(messageIDs) == 0 {
		return messages, nil
	}
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND message_id IN ?", orgID, messageIDs).
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find messages by message IDs: %w", result.Error)
	}
	return messages, nil
}

// FindByThreadID returns every message of a thread, oldest first
func (r *messageRepository) FindByThreadID(ctx context.Context, orgID, threadID string) ([]models.Message, error) {
	var messages []models.Message
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND thread_id = ?", orgID, threadID).
		Order("received_at ASC, id ASC").
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find messages by thread ID: %w", result.Error)
	}
	return messages, nil
}

// ListThreaded returns every message of the organization that carries a
// thread id, oldest first
func (r *messageRepository) ListThreaded(ctx context.Context, orgID string) ([]models.Message, error) {
	var messages []models.Message
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND thread_id IS NOT NULL AND thread_id <> ''", orgID).
		Order("received_at ASC, id ASC").
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list threaded messages: %w", result.Error)
	}
	return messages, nil
}

// ListByThread retrieves a page of a thread's messages, newest first
func (r *messageRepository) ListByThread(ctx context.Context, orgID, threadID string, limit, offset int) ([]models.Message, int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.Message{}).Where("organization_id = ? AND thread_id = ?", orgID, threadID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var messages []models.Message
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND thread_id = ?", orgID, threadID).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", result.Error)
	}
	return messages, total, nil
}

// MarkAsRead marks a message as read
func (r *messageRepository) MarkAsRead(ctx context.Context, orgID, id string) error {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("organization_id = ? AND id = ?", orgID, id).
		Update("is_read", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark message as read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
