package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThreadFilter narrows List results
type ThreadFilter struct {
	Status     string
	AssignedTo string
	UnreadOnly bool
}

// ThreadRepository defines the interface for thread data access. Every
// method is scoped to one organization.
type ThreadRepository interface {
	GetByID(ctx context.Context, orgID, id string) (*models.Thread, error)
	GetByIDs(ctx context.Context, orgID string, ids []string) ([]models.Thread, error)
	FindBySubject(ctx context.Context, orgID, normalizedSubject string, limit int) ([]models.Thread, error)
	FindSuccessor(ctx context.Context, orgID, baseID string) (*models.Thread, error)
	ListUnbacked(ctx context.Context, orgID string) ([]models.Thread, error)
	CreateIfAbsent(ctx context.Context, thread *models.Thread) (bool, error)
	UpdateVersioned(ctx context.Context, thread *models.Thread) (bool, error)
	ResetUnread(ctx context.Context, orgID, id string) error
	UpdateAnalysis(ctx context.Context, orgID, id string, analysis *models.ThreadAnalysis) error
	UpdateStatus(ctx context.Context, orgID, id, status string) error
	UpdatePriority(ctx context.Context, orgID, id, priority string) error
	UpdateAssignment(ctx context.Context, thread *models.Thread, history *models.ThreadAssignment) error
	List(ctx context.Context, orgID string, filter ThreadFilter, limit, offset int) ([]models.ThreadListItem, int64, error)
	CountAssigned(ctx context.Context, orgID, userID string) (int64, error)
	WorkloadStats(ctx context.Context, orgID string) ([]models.WorkloadStat, error)
}

// threadRepository implements ThreadRepository using GORM
type threadRepository struct {
	db *gorm.DB
}

// NewThreadRepository creates a new ThreadRepository instance
func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

// GetByID retrieves a thread by its ID
func (r *threadRepository) GetByID(ctx context.Context, orgID, id string) (*models.Thread, error) {
	var thread models.Thread
	result := r.db.WithContext(ctx).Where("organization_id = ? AND id = ?", orgID, id).First(&thread)
	if result.Error != nil {
		return nil, lookupError(result.Error, "get thread by ID")
	}
	return &thread, nil
}

// GetByIDs retrieves the threads that exist among ids
func (r *threadRepository) GetByIDs(ctx context.Context, orgID string, ids []string) ([]models.Thread, error) {
	var threads []models.Thread
	if len(ids) == 0 {
		return threads, nil
	}
	result := r.db.WithContext(ctx).Where("organization_id = ? AND id IN ?", orgID, ids).Find(&threads)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get threads by IDs: %w", result.Error)
	}
	return threads, nil
}

// FindBySubject returns non-archived threads with the given normalized
// subject, most recently active first
func (r *threadRepository) FindBySubject(ctx context.Context, orgID, normalizedSubject string, limit int) ([]models.Thread, error) {
	var threads []models.Thread
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND normalized_subject = ? AND status <> ?", orgID, normalizedSubject, models.ThreadStatusArchived).
		Order("last_message_at DESC").
		Limit(limit).
		Find(&threads)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find threads by subject: %w", result.Error)
	}
	return threads, nil
}

// FindSuccessor returns the most recently active non-archived thread whose
// id was minted from baseID
func (r *threadRepository) FindSuccessor(ctx context.Context, orgID, baseID string) (*models.Thread, error) {
	var thread models.Thread
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND id LIKE ? ESCAPE '\\' AND status <> ?", orgID, escapeLike(baseID)+`\_%`, models.ThreadStatusArchived).
		Order("last_message_at DESC").
		Order("id").
		First(&thread)
	if result.Error != nil {
		return nil, lookupError(result.Error, "find successor thread")
	}
	return &thread, nil
}

// ListUnbacked returns threads that still count messages although none of
// the organization's stored messages carry their id
func (r *threadRepository) ListUnbacked(ctx context.Context, orgID string) ([]models.Thread, error) {
	var threads []models.Thread
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND (message_count > 0 OR unread_count > 0)", orgID).
		Where("NOT EXISTS (SELECT 1 FROM messages WHERE messages.organization_id = threads.organization_id AND messages.thread_id = threads.id)").
		Order("id").
		Find(&threads)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list unbacked threads: %w", result.Error)
	}
	return threads, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// CreateIfAbsent inserts thread unless a thread with the same ID exists.
// It reports false when another writer got there first.
func (r *threadRepository) CreateIfAbsent(ctx context.Context, thread *models.Thread) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(thread)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create thread: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// UpdateVersioned writes the activity fields of thread if its stored version
// still equals thread.Version, then bumps the version. It reports false when
// the row changed underneath the caller.
func (r *threadRepository) UpdateVersioned(ctx context.Context, thread *models.Thread) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("organization_id = ? AND id = ? AND version = ?", thread.OrganizationID, thread.ID, thread.Version).
		Updates(map[string]interface{}{
			"participants":    thread.Participants,
			"message_count":   thread.MessageCount,
			"unread_count":    thread.UnreadCount,
			"last_message_at": thread.LastMessageAt,
			"strategy":        thread.Strategy,
			"confidence":      thread.Confidence,
			"version":         thread.Version + 1,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update thread: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	thread.Version++
	return true, nil
}

// ResetUnread sets the unread count to zero
func (r *threadRepository) ResetUnread(ctx context.Context, orgID, id string) error {
	return r.updateColumns(ctx, orgID, id, "reset unread count", map[string]interface{}{
		"unread_count": 0,
		"version":      gorm.Expr("version + 1"),
	})
}

// UpdateAnalysis stores an external annotation
func (r *threadRepository) UpdateAnalysis(ctx context.Context, orgID, id string, analysis *models.ThreadAnalysis) error {
	return r.updateColumns(ctx, orgID, id, "update thread analysis", map[string]interface{}{
		"analysis": analysis,
	})
}

// UpdateStatus sets the thread status
func (r *threadRepository) UpdateStatus(ctx context.Context, orgID, id, status string) error {
	return r.updateColumns(ctx, orgID, id, "update thread status", map[string]interface{}{
		"status": status,
	})
}

// UpdatePriority sets the thread priority
func (r *threadRepository) UpdatePriority(ctx context.Context, orgID, id, priority string) error {
	return r.updateColumns(ctx, orgID, id, "update thread priority", map[string]interface{}{
		"priority": priority,
	})
}

func (r *threadRepository) updateColumns(ctx context.Context, orgID, id, op string, columns map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("organization_id = ? AND id = ?", orgID, id).
		Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("failed to %s: %w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAssignment stores the assignee fields of thread and appends the
// history row in one transaction
func (r *threadRepository) UpdateAssignment(ctx context.Context, thread *models.Thread, history *models.ThreadAssignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Thread{}).
			Where("organization_id = ? AND id = ?", thread.OrganizationID, thread.ID).
			Updates(map[string]interface{}{
				"assigned_to": thread.AssignedTo,
				"assigned_by": thread.AssignedBy,
				"assigned_at": thread.AssignedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update thread assignment: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Create(history).Error; err != nil {
			return fmt.Errorf("failed to record assignment history: %w", err)
		}
		return nil
	})
}

// List retrieves threads with pagination, most recently active first
func (r *threadRepository) List(ctx context.Context, orgID string, filter ThreadFilter, limit, offset int) ([]models.ThreadListItem, int64, error) {
	filtered := func(db *gorm.DB) *gorm.DB {
		db = db.Where("organization_id = ?", orgID)
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.AssignedTo != "" {
			db = db.Where("assigned_to = ?", filter.AssignedTo)
		}
		if filter.UnreadOnly {
			db = db.Where("unread_count > 0")
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Thread{}).Scopes(filtered).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count threads: %w", err)
	}

	var items []models.ThreadListItem
	result := r.db.WithContext(ctx).Model(&models.Thread{}).Scopes(filtered).
		Select("id, subject, message_count, unread_count, last_message_at, status, priority, strategy, assigned_to").
		Order("last_message_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(&items)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list threads: %w", result.Error)
	}
	return items, total, nil
}

// CountAssigned counts the open threads assigned to userID
func (r *threadRepository) CountAssigned(ctx context.Context, orgID, userID string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("organization_id = ? AND assigned_to = ? AND status IN ?", orgID, userID, models.OpenStatuses).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count assigned threads: %w", result.Error)
	}
	return count, nil
}

// WorkloadStats returns open thread and unread message totals per assignee
func (r *threadRepository) WorkloadStats(ctx context.Context, orgID string) ([]models.WorkloadStat, error) {
	var stats []models.WorkloadStat
	result := r.db.WithContext(ctx).Model(&models.Thread{}).
		Select("assigned_to, COUNT(*) AS open_threads, COALESCE(SUM(unread_count), 0) AS unread_messages").
		Where("organization_id = ? AND assigned_to IS NOT NULL AND status IN ?", orgID, models.OpenStatuses).
		Group("assigned_to").
		Order("assigned_to ASC").
		Scan(&stats)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to compute workload stats: %w", result.Error)
	}
	return stats, nil
}
