package repository

import (
	"context"
	"fmt"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"gorm.io/gorm"
)

// AssignmentRepository reads thread assignment history. Rows are written by
// ThreadRepository.UpdateAssignment together with the thread change.
type AssignmentRepository interface {
	ListByThread(ctx context.Context, orgID, threadID string, limit int) ([]models.ThreadAssignment, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new AssignmentRepository instance
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// ListByThread returns the latest assignment changes, newest first
func (r *assignmentRepository) ListByThread(ctx context.Context, orgID, threadID string, limit int) ([]models.ThreadAssignment, error) {
	var history []models.ThreadAssignment
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND thread_id = ?", orgID, threadID).
		Order("created_at DESC").
		Limit(limit).
		Find(&history)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list assignment history: %w", result.Error)
	}
	return history, nil
}
