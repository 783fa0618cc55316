package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

// AssignmentHistoryLimit is how many history rows AssignmentHistory returns
const AssignmentHistoryLimit = 10

// ThreadService defines the inbox-facing thread operations
type ThreadService interface {
	// GetThread retrieves a thread of the organization
	GetThread(ctx context.Context, orgID, threadID string) (*models.Thread, error)

	// ListThreads returns a page of threads, most recently active first
	ListThreads(ctx context.Context, orgID string, filter repository.ThreadFilter, limit, offset int) ([]models.ThreadListItem, int64, error)

	// ListMessages returns a page of a thread's messages, newest first
	ListMessages(ctx context.Context, orgID, threadID string, limit, offset int) ([]models.Message, int64, error)

	// MarkThreadAsRead resets the unread count without touching anything else
	MarkThreadAsRead(ctx context.Context, orgID, threadID string) error

	// MarkMessageAsRead marks one message read and decrements its thread's unread count
	MarkMessageAsRead(ctx context.Context, orgID, messageID string) error

	// UpdateThreadAnalysis attaches an external annotation to a thread
	UpdateThreadAnalysis(ctx context.Context, orgID, threadID string, analysis models.ThreadAnalysis) (*models.ThreadAnalysis, error)

	UpdateStatus(ctx context.Context, orgID, threadID, status string) error
	UpdatePriority(ctx context.Context, orgID, threadID, priority string) error

	// AssignThread sets or clears the assignee. An empty assignee unassigns.
	AssignThread(ctx context.Context, orgID, threadID, assignee, assignedBy string) (*models.Thread, error)

	AssignmentHistory(ctx context.Context, orgID, threadID string) ([]models.ThreadAssignment, error)
	AssignedThreadsCount(ctx context.Context, orgID, userID string) (int64, error)
	WorkloadStats(ctx context.Context, orgID string) ([]models.WorkloadStat, error)
}

// threadService implements ThreadService
type threadService struct {
	threads     repository.ThreadRepository
	messages    repository.MessageRepository
	assignments repository.AssignmentRepository
	updater     *ActivityUpdater
	policy      *bluemonday.Policy
	logger      *slog.Logger
}

// NewThreadService creates a new ThreadService instance
func NewThreadService(
	threads repository.ThreadRepository,
	messages repository.MessageRepository,
	assignments repository.AssignmentRepository,
	updater *ActivityUpdater,
	logger *slog.Logger,
) ThreadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &threadService{
		threads:     threads,
		messages:    messages,
		assignments: assignments,
		updater:     updater,
		policy:      bluemonday.StrictPolicy(),
		logger:      logger,
	}
}

func threadError(err error, threadID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("thread %s: %w", threadID, apperrors.ErrThreadNotFound)
	}
	return err
}

// GetThread retrieves a thread of the organization
func (s *threadService) GetThread(ctx context.Context, orgID, threadID string) (*models.Thread, error) {
	thread, err := s.threads.GetByID(ctx, orgID, threadID)
	if err != nil {
		return nil, threadError(err, threadID)
	}
	return thread, nil
}

// ListThreads returns a page of threads
func (s *threadService) ListThreads(ctx context.Context, orgID string, filter repository.ThreadFilter, limit, offset int) ([]models.ThreadListItem, int64, error) {
	if filter.Status != "" && !models.ValidThreadStatus(filter.Status) {
		return nil, 0, fmt.Errorf("unknown status %q: %w", filter.Status, apperrors.ErrInvalidInput)
	}
	return s.threads.List(ctx, orgID, filter, limit, offset)
}

// ListMessages returns a page of a thread's messages
func (s *threadService) ListMessages(ctx context.Context, orgID, threadID string, limit, offset int) ([]models.Message, int64, error) {
	if _, err := s.GetThread(ctx, orgID, threadID); err != nil {
		return nil, 0, err
	}
	return s.messages.ListByThread(ctx, orgID, threadID, limit, offset)
}

// MarkThreadAsRead resets the unread count
func (s *threadService) MarkThreadAsRead(ctx context.Context, orgID, threadID string) error {
	if err := s.threads.ResetUnread(ctx, orgID, threadID); err != nil {
		return threadError(err, threadID)
	}
	return nil
}

// MarkMessageAsRead marks one message read and decrements its thread's
// unread count. Messages whose thread is not materialized yet are only
// marked; reconciliation picks them up.
func (s *threadService) MarkMessageAsRead(ctx context.Context, orgID, messageID string) error {
	msg, err := s.messages.GetByID(ctx, orgID, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("message %s: %w", messageID, apperrors.ErrMessageNotFound)
		}
		return err
	}
	if msg.IsRead {
		return nil
	}
	if err := s.messages.MarkAsRead(ctx, orgID, messageID); err != nil {
		return err
	}
	if msg.ThreadID == "" {
		return nil
	}

	thread, err := s.threads.GetByID(ctx, orgID, msg.ThreadID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.updater.Update(ctx, thread, func(current *models.Thread) threading.Activity {
		if current.UnreadCount == 0 {
			return threading.Activity{}
		}
		return threading.Activity{UnreadDelta: -1}
	})
	return err
}

// UpdateThreadAnalysis stores a sanitized copy of analysis
func (s *threadService) UpdateThreadAnalysis(ctx context.Context, orgID, threadID string, analysis models.ThreadAnalysis) (*models.ThreadAnalysis, error) {
	clean := models.ThreadAnalysis{
		Summary:     s.sanitize(analysis.Summary),
		Sentiment:   s.sanitize(analysis.Sentiment),
		Intent:      s.sanitize(analysis.Intent),
		Urgency:     s.sanitize(analysis.Urgency),
		GeneratedBy: s.sanitize(analysis.GeneratedBy),
		AnalyzedAt:  analysis.AnalyzedAt.UTC(),
	}
	for _, topic := range analysis.Topics {
		if topic = s.sanitize(topic); topic != "" {
			clean.Topics = append(clean.Topics, topic)
		}
	}
	if clean.AnalyzedAt.IsZero() {
		clean.AnalyzedAt = time.Now().UTC()
	}

	if err := s.threads.UpdateAnalysis(ctx, orgID, threadID, &clean); err != nil {
		return nil, threadError(err, threadID)
	}
	return &clean, nil
}

func (s *threadService) sanitize(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}

// UpdateStatus sets the thread status
func (s *threadService) UpdateStatus(ctx context.Context, orgID, threadID, status string) error {
	if !models.ValidThreadStatus(status) {
		return fmt.Errorf("unknown status %q: %w", status, apperrors.ErrInvalidInput)
	}
	if err := s.threads.UpdateStatus(ctx, orgID, threadID, status); err != nil {
		return threadError(err, threadID)
	}
	return nil
}

// UpdatePriority sets the thread priority
func (s *threadService) UpdatePriority(ctx context.Context, orgID, threadID, priority string) error {
	if !models.ValidPriority(priority) {
		return fmt.Errorf("unknown priority %q: %w", priority, apperrors.ErrInvalidInput)
	}
	if err := s.threads.UpdatePriority(ctx, orgID, threadID, priority); err != nil {
		return threadError(err, threadID)
	}
	return nil
}

// AssignThread sets, changes or clears the assignee and records the change
func (s *threadService) AssignThread(ctx context.Context, orgID, threadID, assignee, assignedBy string) (*models.Thread, error) {
	assignee = strings.TrimSpace(assignee)
	thread, err := s.GetThread(ctx, orgID, threadID)
	if err != nil {
		return nil, err
	}

	var action string
	switch {
	case assignee == "" && thread.AssignedTo == nil:
		return thread, nil
	case assignee == "":
		action = models.AssignmentUnassigned
	case thread.AssignedTo == nil:
		action = models.AssignmentAssigned
	case *thread.AssignedTo == assignee:
		return thread, nil
	default:
		action = models.AssignmentReassigned
	}

	history := &models.ThreadAssignment{
		ThreadID:       thread.ID,
		OrganizationID: orgID,
		FromUserID:     thread.AssignedTo,
		AssignedBy:     assignedBy,
		Action:         action,
	}

	now := time.Now().UTC()
	if assignee == "" {
		thread.AssignedTo = nil
		thread.AssignedBy = nil
		thread.AssignedAt = nil
	} else {
		thread.AssignedTo = &assignee
		thread.AssignedBy = &assignedBy
		thread.AssignedAt = &now
		history.ToUserID = &assignee
	}

	if err := s.threads.UpdateAssignment(ctx, thread, history); err != nil {
		return nil, threadError(err, threadID)
	}

	s.logger.Info("thread assignment changed",
		slog.String("organization_id", orgID),
		slog.String("thread_id", threadID),
		slog.String("action", action),
		slog.String("assigned_by", assignedBy))
	return thread, nil
}

// AssignmentHistory returns the latest assignment changes, newest first
func (s *threadService) AssignmentHistory(ctx context.Context, orgID, threadID string) ([]models.ThreadAssignment, error) {
	return s.assignments.ListByThread(ctx, orgID, threadID, AssignmentHistoryLimit)
}

// AssignedThreadsCount counts a user's active and waiting threads
func (s *threadService) AssignedThreadsCount(ctx context.Context, orgID, userID string) (int64, error) {
	return s.threads.CountAssigned(ctx, orgID, userID)
}

// WorkloadStats returns per-assignee totals
func (s *threadService) WorkloadStats(ctx context.Context, orgID string) ([]models.WorkloadStat, error) {
	return s.threads.WorkloadStats(ctx, orgID)
}
