package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/services"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

// MockThreadService implements services.ThreadService
type MockThreadService struct {
	mock.Mock
}

func (m *MockThreadService) GetThread(ctx context.Context, orgID, threadID string) (*models.Thread, error) {
	args := m.Called(ctx, orgID, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

func (m *MockThreadService) ListThreads(ctx context.Context, orgID string, filter repository.ThreadFilter, limit, offset int) ([]models.ThreadListItem, int64, error) {
	args := m.Called(ctx, orgID, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.ThreadListItem), args.Get(1).(int64), args.Error(2)
}

func (m *MockThreadService) ListMessages(ctx context.Context, orgID, threadID string, limit, offset int) ([]models.Message, int64, error) {
	args := m.Called(ctx, orgID, threadID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockThreadService) MarkThreadAsRead(ctx context.Context, orgID, threadID string) error {
	args := m.Called(ctx, orgID, threadID)
	return args.Error(0)
}

func (m *MockThreadService) MarkMessageAsRead(ctx context.Context, orgID, messageID string) error {
	args := m.Called(ctx, orgID, messageID)
	return args.Error(0)
}

func (m *MockThreadService) UpdateThreadAnalysis(ctx context.Context, orgID, threadID string, analysis models.ThreadAnalysis) (*models.ThreadAnalysis, error) {
	args := m.Called(ctx, orgID, threadID, analysis)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ThreadAnalysis), args.Error(1)
}

func (m *MockThreadService) UpdateStatus(ctx context.Context, orgID, threadID, status string) error {
	args := m.Called(ctx, orgID, threadID, status)
	return args.Error(0)
}

func (m *MockThreadService) UpdatePriority(ctx context.Context, orgID, threadID, priority string) error {
	args := m.Called(ctx, orgID, threadID, priority)
	return args.Error(0)
}

func (m *MockThreadService) AssignThread(ctx context.Context, orgID, threadID, assignee, assignedBy string) (*models.Thread, error) {
	args := m.Called(ctx, orgID, threadID, assignee, assignedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

func (m *MockThreadService) AssignmentHistory(ctx context.Context, orgID, threadID string) ([]models.ThreadAssignment, error) {
	args := m.Called(ctx, orgID, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ThreadAssignment), args.Error(1)
}

func (m *MockThreadService) AssignedThreadsCount(ctx context.Context, orgID, userID string) (int64, error) {
	args := m.Called(ctx, orgID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockThreadService) WorkloadStats(ctx context.Context, orgID string) ([]models.WorkloadStat, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WorkloadStat), args.Error(1)
}

// MockIngestor implements services.Ingestor
type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Ingest(ctx context.Context, c threading.Criteria) (*services.IngestResult, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.IngestResult), args.Error(1)
}

// MockThreadLookup implements services.ThreadLookup
type MockThreadLookup struct {
	mock.Mock
}

func (m *MockThreadLookup) LookupThread(ctx context.Context, c threading.Criteria) (*threading.MatchResult, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*threading.MatchResult), args.Error(1)
}

// MockReconciler implements services.Reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ResolveDeferredThreads(ctx context.Context, orgID string) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

// MockNotifier implements services.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) MessageThreaded(orgID string, result *threading.MatchResult, message *models.Message) {
	m.Called(orgID, result, message)
}

var (
	_ services.ThreadService = (*MockThreadService)(nil)
	_ services.Ingestor      = (*MockIngestor)(nil)
	_ services.Reconciler    = (*MockReconciler)(nil)
	_ services.Notifier      = (*MockNotifier)(nil)
	_ services.ThreadLookup  = (*MockThreadLookup)(nil)
)
