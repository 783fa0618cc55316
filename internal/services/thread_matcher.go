package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

// ThreadLookup reports the thread a message would be filed into without
// filing it
type ThreadLookup interface {
	LookupThread(ctx context.Context, c threading.Criteria) (*threading.MatchResult, error)
}

var (
	_ threading.Matcher = (*ThreadMatcher)(nil)
	_ ThreadLookup      = (*ThreadMatcher)(nil)
)

// ThreadMatcher is the full-access threading.Matcher. It tries header
// references, then subject and participants, then the deterministic id, and
// creates a thread only when all of them miss. Store errors are returned,
// never turned into a new thread.
type ThreadMatcher struct {
	headers  *HeaderMatcher
	subjects *SubjectMatcher
	resolver *DeferredResolver
	threads  repository.ThreadRepository
	updater  *ActivityUpdater
	logger   *slog.Logger
}

// NewThreadMatcher creates a new ThreadMatcher
func NewThreadMatcher(
	headers *HeaderMatcher,
	subjects *SubjectMatcher,
	resolver *DeferredResolver,
	threads repository.ThreadRepository,
	updater *ActivityUpdater,
	logger *slog.Logger,
) *ThreadMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThreadMatcher{
		headers:  headers,
		subjects: subjects,
		resolver: resolver,
		threads:  threads,
		updater:  updater,
		logger:   logger,
	}
}

// FindOrCreateThread assigns the message described by c to a thread and
// records the message on that thread's aggregate
func (m *ThreadMatcher) FindOrCreateThread(ctx context.Context, c threading.Criteria) (*threading.MatchResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	activity := c.Activity()

	if c.HasReferences() {
		thread, err := m.headers.Match(ctx, c)
		if err != nil {
			return nil, err
		}
		if thread != nil {
			return m.record(ctx, c, thread, activity, threading.ConfidenceHeaders, models.StrategyHeaders)
		}
	}

	thread, err := m.subjects.Match(ctx, c)
	if err != nil {
		return nil, err
	}
	if thread != nil {
		return m.record(ctx, c, thread, activity, threading.ConfidenceSubject, models.StrategySubject)
	}

	threadID := c.ThreadID()
	thread, err = m.resolver.ResolveThread(ctx, c.OrganizationID, threadID)
	if err != nil {
		return nil, err
	}
	if thread != nil {
		if thread.Status != models.ThreadStatusArchived {
			return m.record(ctx, c, thread, activity, threading.ConfidenceDeferred, models.StrategyDeferred)
		}
		successor, err := m.successor(ctx, c.OrganizationID, threadID)
		if err != nil {
			return nil, err
		}
		if successor != nil {
			return m.record(ctx, c, successor, activity, threading.ConfidenceDeferred, models.StrategyDeferred)
		}
		threadID = threading.MintThreadID(threadID)
		m.logger.Info("deterministic thread is archived, opening a new one",
			slog.String("organization_id", c.OrganizationID),
			slog.String("archived_thread_id", thread.ID),
			slog.String("thread_id", threadID))
	}

	return m.create(ctx, c, threadID, activity)
}

func (m *ThreadMatcher) create(ctx context.Context, c threading.Criteria, threadID string, activity threading.Activity) (*threading.MatchResult, error) {
	thread := &models.Thread{
		ID:                threadID,
		OrganizationID:    c.OrganizationID,
		Subject:           threading.ThreadSubject(c.Subject),
		NormalizedSubject: c.NormalizedSubject(),
		Participants:      activity.Participants,
		MessageCount:      1,
		UnreadCount:       1,
		LastMessageAt:     activity.MessageAt,
		Confidence:        threading.ConfidenceNew,
		Strategy:          models.StrategyNew,
		Status:            models.ThreadStatusActive,
		Priority:          models.PriorityNormal,
		ContactIDs:        models.StringList{},
	}

	created, err := m.threads.CreateIfAbsent(ctx, thread)
	if err != nil {
		return nil, err
	}
	if created {
		m.logger.Info("created thread",
			slog.String("organization_id", c.OrganizationID),
			slog.String("thread_id", thread.ID),
			slog.String("message_id", c.MessageID))
		return threading.Matched(thread, true, threading.ConfidenceNew, models.StrategyNew), nil
	}

	// Another writer created the same id between our lookup and insert.
	winner, err := m.threads.GetByID(ctx, c.OrganizationID, threadID)
	if err != nil {
		return nil, err
	}
	return m.record(ctx, c, winner, activity, threading.ConfidenceDeferred, models.StrategyDeferred)
}

func (m *ThreadMatcher) record(
	ctx context.Context,
	c threading.Criteria,
	thread *models.Thread,
	activity threading.Activity,
	confidence int,
	strategy string,
) (*threading.MatchResult, error) {
	activity.Strategy = strategy
	activity.Confidence = confidence

	updated, err := m.updater.Apply(ctx, thread, activity)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("matched thread",
		slog.String("organization_id", c.OrganizationID),
		slog.String("thread_id", updated.ID),
		slog.String("message_id", c.MessageID),
		slog.String("strategy", strategy),
		slog.Int("confidence", confidence))
	return threading.Matched(updated, false, confidence, strategy), nil
}

// LookupThread runs the same strategies as FindOrCreateThread but records
// nothing: no thread is created and no count changes. A referenced thread
// that exists only as stored messages may still be materialized from them.
// A message that would open a conversation gets IsNew and the id it would
// be filed under; that id is empty when it is only minted on ingest.
func (m *ThreadMatcher) LookupThread(ctx context.Context, c threading.Criteria) (*threading.MatchResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.HasReferences() {
		thread, err := m.headers.Match(ctx, c)
		if err != nil {
			return nil, err
		}
		if thread != nil {
			return threading.Matched(thread, false, threading.ConfidenceHeaders, models.StrategyHeaders), nil
		}
	}

	thread, err := m.subjects.Match(ctx, c)
	if err != nil {
		return nil, err
	}
	if thread != nil {
		return threading.Matched(thread, false, threading.ConfidenceSubject, models.StrategySubject), nil
	}

	threadID := c.ThreadID()
	thread, err = m.threads.GetByID(ctx, c.OrganizationID, threadID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if thread != nil {
		if thread.Status != models.ThreadStatusArchived {
			return threading.Matched(thread, false, threading.ConfidenceDeferred, models.StrategyDeferred), nil
		}
		successor, err := m.successor(ctx, c.OrganizationID, threadID)
		if err != nil {
			return nil, err
		}
		if successor != nil {
			return threading.Matched(successor, false, threading.ConfidenceDeferred, models.StrategyDeferred), nil
		}
		return opening(""), nil
	}

	pending, err := m.resolver.messages.FindByThreadID(ctx, c.OrganizationID, threadID)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return &threading.MatchResult{
			Success:    true,
			ThreadID:   threadID,
			Confidence: threading.ConfidenceDeferred,
			Strategy:   models.StrategyDeferred,
		}, nil
	}
	return opening(threadID), nil
}

// successor returns the live thread minted from an archived deterministic
// id, or nil
func (m *ThreadMatcher) successor(ctx context.Context, orgID, baseID string) (*models.Thread, error) {
	thread, err := m.threads.FindSuccessor(ctx, orgID, baseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return thread, err
}

func opening(threadID string) *threading.MatchResult {
	return &threading.MatchResult{
		Success:    true,
		ThreadID:   threadID,
		IsNew:      true,
		Confidence: threading.ConfidenceNew,
		Strategy:   models.StrategyNew,
	}
}
