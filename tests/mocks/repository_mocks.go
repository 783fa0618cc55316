package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
)

// MockDomainRepository implements repository.DomainRepository
type MockDomainRepository struct {
	mock.Mock
}

// Create creates a new domain
func (m *MockDomainRepository) Create(ctx context.Context, domain *models.Domain) error {
	args := m.Called(ctx, domain)
	return args.Error(0)
}

// GetByName retrieves a domain by its name
func (m *MockDomainRepository) GetByName(ctx context.Context, name string) (*models.Domain, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Domain), args.Error(1)
}

// ResolveOrganization returns the organization of an active domain
func (m *MockDomainRepository) ResolveOrganization(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// List retrieves an organization's domains
func (m *MockDomainRepository) List(ctx context.Context, orgID string, activeOnly bool) ([]models.Domain, error) {
	args := m.Called(ctx, orgID, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Domain), args.Error(1)
}

// Delete deletes a domain
func (m *MockDomainRepository) Delete(ctx context.Context, orgID string, id uint) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

// MockMessageRepository implements repository.MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Create creates a new message
func (m *MockMessageRepository) Create(ctx context.Context, message *models.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// GetByID retrieves a message by its ID
func (m *MockMessageRepository) GetByID(ctx context.Context, orgID, id string) (*models.Message, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// GetByMessageID retrieves a message by its protocol id
func (m *MockMessageRepository) GetByMessageID(ctx context.Context, orgID, messageID string) (*models.Message, error) {
	args := m.Called(ctx, orgID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// FindByMessageIDs returns stored messages among messageIDs
func (m *MockMessageRepository) FindByMessageIDs(ctx context.Context, orgID string, messageIDs []string) ([]models.Message, error) {
	args := m.Called(ctx, orgID, messageIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

// FindByThreadID returns a thread's messages
func (m *MockMessageRepository) FindByThreadID(ctx context.Context, orgID, threadID string) ([]models.Message, error) {
	args := m.Called(ctx, orgID, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

// ListThreaded returns messages carrying a thread id
func (m *MockMessageRepository) ListThreaded(ctx context.Context, orgID string) ([]models.Message, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

// ListByThread returns a page of a thread's messages
func (m *MockMessageRepository) ListByThread(ctx context.Context, orgID, threadID string, limit, offset int) ([]models.Message, int64, error) {
	args := m.Called(ctx, orgID, threadID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Message), args.Get(1).(int64), args.Error(2)
}

// MarkAsRead marks a message as read
func (m *MockMessageRepository) MarkAsRead(ctx context.Context, orgID, id string) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

// MockThreadRepository implements repository.ThreadRepository
type MockThreadRepository struct {
	mock.Mock
}

// GetByID retrieves a thread by its ID
func (m *MockThreadRepository) GetByID(ctx context.Context, orgID, id string) (*models.Thread, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

// GetByIDs retrieves existing threads among ids
func (m *MockThreadRepository) GetByIDs(ctx context.Context, orgID string, ids []string) ([]models.Thread, error) {
	args := m.Called(ctx, orgID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Thread), args.Error(1)
}

// FindBySubject returns same-subject threads
func (m *MockThreadRepository) FindBySubject(ctx context.Context, orgID, normalizedSubject string, limit int) ([]models.Thread, error) {
	args := m.Called(ctx, orgID, normalizedSubject, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Thread), args.Error(1)
}

// FindSuccessor returns the live thread minted from baseID
func (m *MockThreadRepository) FindSuccessor(ctx context.Context, orgID, baseID string) (*models.Thread, error) {
	args := m.Called(ctx, orgID, baseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

// ListUnbacked returns threads counting messages that are not stored
func (m *MockThreadRepository) ListUnbacked(ctx context.Context, orgID string) ([]models.Thread, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Thread), args.Error(1)
}

// CreateIfAbsent inserts a thread unless its ID exists
func (m *MockThreadRepository) CreateIfAbsent(ctx context.Context, thread *models.Thread) (bool, error) {
	args := m.Called(ctx, thread)
	return args.Bool(0), args.Error(1)
}

// UpdateVersioned writes a thread guarded by its version
func (m *MockThreadRepository) UpdateVersioned(ctx context.Context, thread *models.Thread) (bool, error) {
	args := m.Called(ctx, thread)
	return args.Bool(0), args.Error(1)
}

// ResetUnread sets the unread count to zero
func (m *MockThreadRepository) ResetUnread(ctx context.Context, orgID, id string) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

// UpdateAnalysis stores an annotation
func (m *MockThreadRepository) UpdateAnalysis(ctx context.Context, orgID, id string, analysis *models.ThreadAnalysis) error {
	args := m.Called(ctx, orgID, id, analysis)
	return args.Error(0)
}

// UpdateStatus sets the status
func (m *MockThreadRepository) UpdateStatus(ctx context.Context, orgID, id, status string) error {
	args := m.Called(ctx, orgID, id, status)
	return args.Error(0)
}

// UpdatePriority sets the priority
func (m *MockThreadRepository) UpdatePriority(ctx context.Context, orgID, id, priority string) error {
	args := m.Called(ctx, orgID, id, priority)
	return args.Error(0)
}

// UpdateAssignment stores assignee fields and history
func (m *MockThreadRepository) UpdateAssignment(ctx context.Context, thread *models.Thread, history *models.ThreadAssignment) error {
	args := m.Called(ctx, thread, history)
	return args.Error(0)
}

// List returns a page of threads
func (m *MockThreadRepository) List(ctx context.Context, orgID string, filter repository.ThreadFilter, limit, offset int) ([]models.ThreadListItem, int64, error) {
	args := m.Called(ctx, orgID, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.ThreadListItem), args.Get(1).(int64), args.Error(2)
}

// CountAssigned counts open threads of a user
func (m *MockThreadRepository) CountAssigned(ctx context.Context, orgID, userID string) (int64, error) {
	args := m.Called(ctx, orgID, userID)
	return args.Get(0).(int64), args.Error(1)
}

// WorkloadStats returns per-assignee totals
func (m *MockThreadRepository) WorkloadStats(ctx context.Context, orgID string) ([]models.WorkloadStat, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WorkloadStat), args.Error(1)
}

// MockAssignmentRepository implements repository.AssignmentRepository
type MockAssignmentRepository struct {
	mock.Mock
}

// ListByThread returns assignment history
func (m *MockAssignmentRepository) ListByThread(ctx context.Context, orgID, threadID string, limit int) ([]models.ThreadAssignment, error) {
	args := m.Called(ctx, orgID, threadID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ThreadAssignment), args.Error(1)
}

var (
	_ repository.DomainRepository     = (*MockDomainRepository)(nil)
	_ repository.MessageRepository    = (*MockMessageRepository)(nil)
	_ repository.ThreadRepository     = (*MockThreadRepository)(nil)
	_ repository.AssignmentRepository = (*MockAssignmentRepository)(nil)
)
