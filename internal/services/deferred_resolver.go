package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/lock"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

// DefaultResolverLockTTL bounds how long one reconciliation pass may hold
// the organization lock
const DefaultResolverLockTTL = 2 * time.Minute

// Reconciler runs deferred thread reconciliation for an organization
type Reconciler interface {
	ResolveDeferredThreads(ctx context.Context, orgID string) (int, error)
}

var _ Reconciler = (*DeferredResolver)(nil)

// DeferredResolver materializes threads for messages that were stored with
// a deterministic thread id but no thread record, and repairs thread
// aggregates that disagree with their messages.
type DeferredResolver struct {
	messages repository.MessageRepository
	threads  repository.ThreadRepository
	updater  *ActivityUpdater
	locker   lock.Locker
	lockTTL  time.Duration
	group    singleflight.Group
	logger   *slog.Logger
}

// NewDeferredResolver creates a new DeferredResolver. locker may be nil, in
// which case runs are only coalesced within this process.
func NewDeferredResolver(
	messages repository.MessageRepository,
	threads repository.ThreadRepository,
	updater *ActivityUpdater,
	locker lock.Locker,
	lockTTL time.Duration,
	logger *slog.Logger,
) *DeferredResolver {
	if lockTTL <= 0 {
		lockTTL = DefaultResolverLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeferredResolver{
		messages: messages,
		threads:  threads,
		updater:  updater,
		locker:   locker,
		lockTTL:  lockTTL,
		logger:   logger,
	}
}

// ResolveDeferredThreads reconciles one organization and returns the number
// of threads it created. Running it again without new orphans writes nothing.
func (r *DeferredResolver) ResolveDeferredThreads(ctx context.Context, orgID string) (int, error) {
	if strings.TrimSpace(orgID) == "" {
		return 0, apperrors.InvalidCriteria("organizationId", "is required")
	}

	v, err, shared := r.group.Do(orgID, func() (interface{}, error) {
		return r.resolveLocked(ctx, orgID)
	})
	if shared {
		r.logger.Debug("joined in-flight reconciliation", slog.String("organization_id", orgID))
	}
	created, _ := v.(int)
	return created, err
}

func (r *DeferredResolver) resolveLocked(ctx context.Context, orgID string) (int, error) {
	if r.locker != nil {
		unlock, ok, err := r.locker.TryLock(ctx, "threads:resolve:"+orgID, r.lockTTL)
		if err != nil {
			return 0, fmt.Errorf("failed to acquire reconciliation lock: %w", err)
		}
		if !ok {
			r.logger.Info("reconciliation already running elsewhere",
				slog.String("organization_id", orgID))
			return 0, nil
		}
		defer unlock()
	}
	return r.resolve(ctx, orgID)
}

func (r *DeferredResolver) resolve(ctx context.Context, orgID string) (int, error) {
	start := time.Now()

	messages, err := r.messages.ListThreaded(ctx, orgID)
	if err != nil {
		return 0, err
	}

	var order []string
	groups := make(map[string][]models.Message)
	for _, msg := range messages {
		if threading.IsSentThreadID(msg.ThreadID) {
			continue
		}
		if _, ok := groups[msg.ThreadID]; !ok {
			order = append(order, msg.ThreadID)
		}
		groups[msg.ThreadID] = append(groups[msg.ThreadID], msg)
	}

	existing, err := r.threads.GetByIDs(ctx, orgID, order)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*models.Thread, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
	}

	created, repaired := 0, 0
	for _, threadID := range order {
		group := groups[threadID]
		if thread, ok := byID[threadID]; ok {
			_, changed, err := r.repair(ctx, thread, group)
			if err != nil {
				return created, err
			}
			if changed {
				repaired++
			}
			continue
		}

		_, wasCreated, err := r.materialize(ctx, orgID, threadID, group)
		if err != nil {
			return created, err
		}
		if wasCreated {
			created++
		}
	}

	// Threads whose messages were never stored keep counting them until
	// they are zeroed here.
	unbacked, err := r.threads.ListUnbacked(ctx, orgID)
	if err != nil {
		return created, err
	}
	for i := range unbacked {
		if threading.IsSentThreadID(unbacked[i].ID) {
			continue
		}
		_, changed, err := r.repair(ctx, &unbacked[i], nil)
		if err != nil {
			return created, err
		}
		if changed {
			repaired++
		}
	}

	r.logger.Info("deferred threads reconciled",
		slog.String("organization_id", orgID),
		slog.Int("threads_seen", len(order)),
		slog.Int("threads_created", created),
		slog.Int("threads_repaired", repaired),
		slog.Duration("duration", time.Since(start)))
	return created, nil
}

// ResolveThread reconciles a single thread id. It returns the stored or
// newly materialized thread, or nil when neither a record nor any message
// carries the id.
func (r *DeferredResolver) ResolveThread(ctx context.Context, orgID, threadID string) (*models.Thread, error) {
	thread, err := r.threads.GetByID(ctx, orgID, threadID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	group, err := r.messages.FindByThreadID(ctx, orgID, threadID)
	if err != nil {
		return nil, err
	}

	if thread != nil {
		if len(group) == 0 {
			return thread, nil
		}
		repaired, _, err := r.repair(ctx, thread, group)
		return repaired, err
	}

	if len(group) == 0 {
		return nil, nil
	}
	thread, _, err = r.materialize(ctx, orgID, threadID, group)
	return thread, err
}

// materialize creates the thread from its messages. When another writer
// created it first, the winner is repaired instead.
func (r *DeferredResolver) materialize(ctx context.Context, orgID, threadID string, group []models.Message) (*models.Thread, bool, error) {
	stats := summarize(group)
	first := group[0]

	thread := &models.Thread{
		ID:                threadID,
		OrganizationID:    orgID,
		Subject:           threading.ThreadSubject(first.Subject),
		NormalizedSubject: threading.NormalizeSubject(first.Subject),
		Participants:      stats.participants,
		MessageCount:      stats.count,
		UnreadCount:       stats.unread,
		LastMessageAt:     stats.last,
		Confidence:        threading.ConfidenceDeferred,
		Strategy:          models.StrategyDeferred,
		Status:            models.ThreadStatusActive,
		Priority:          models.PriorityNormal,
		ContactIDs:        models.StringList{},
		WasDeferred:       true,
	}

	created, err := r.threads.CreateIfAbsent(ctx, thread)
	if err != nil {
		return nil, false, err
	}
	if created {
		r.logger.Info("materialized deferred thread",
			slog.String("organization_id", orgID),
			slog.String("thread_id", threadID),
			slog.Int("message_count", stats.count))
		return thread, true, nil
	}

	winner, err := r.threads.GetByID(ctx, orgID, threadID)
	if err != nil {
		return nil, false, err
	}
	r.logger.Debug("deferred thread created concurrently, repairing winner",
		slog.String("organization_id", orgID),
		slog.String("thread_id", threadID))
	repaired, _, err := r.repair(ctx, winner, group)
	return repaired, false, err
}

// repair brings counts and participants in line with the thread's messages.
// Unread only grows by newly found messages and never exceeds the unread
// messages, so an explicit mark-as-read survives reconciliation.
func (r *DeferredResolver) repair(ctx context.Context, thread *models.Thread, group []models.Message) (*models.Thread, bool, error) {
	stats := summarize(group)
	changed := false

	updated, err := r.updater.Update(ctx, thread, func(current *models.Thread) threading.Activity {
		delta := stats.count - current.MessageCount
		unread := min(current.UnreadCount+max(delta, 0), stats.unread)
		activity := threading.Activity{
			Participants: stats.participants,
			MessageAt:    stats.last,
			MessageDelta: delta,
			UnreadDelta:  unread - current.UnreadCount,
		}
		snapshot := *current
		changed = activity.Apply(&snapshot)
		return activity
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		r.logger.Info("repaired thread aggregate",
			slog.String("organization_id", thread.OrganizationID),
			slog.String("thread_id", thread.ID),
			slog.Int("message_count", stats.count))
	}
	return updated, changed, nil
}

type groupStats struct {
	count        int
	unread       int
	last         time.Time
	participants models.Participants
}

func summarize(group []models.Message) groupStats {
	stats := groupStats{count: len(group)}
	for _, msg := range group {
		if !msg.IsRead {
			stats.unread++
		}
		if msg.ReceivedAt.After(stats.last) {
			stats.last = msg.ReceivedAt
		}
		stats.participants, _ = threading.MergeParticipants(stats.participants, threading.BuildParticipants(msg.From(), msg.To))
	}
	return stats
}
