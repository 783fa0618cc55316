package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

// DefaultMaxActivityRetries bounds optimistic update attempts per thread
const DefaultMaxActivityRetries = 5

// ActivityUpdater applies aggregate mutations to one thread as a single
// compare-and-swap on the thread version. A lost race reloads the thread and
// recomputes the activity against the fresh state.
type ActivityUpdater struct {
	threads    repository.ThreadRepository
	maxRetries int
	logger     *slog.Logger
}

// NewActivityUpdater creates a new ActivityUpdater
func NewActivityUpdater(threads repository.ThreadRepository, maxRetries int, logger *slog.Logger) *ActivityUpdater {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxActivityRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityUpdater{
		threads:    threads,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Apply adds activity to current. current is not modified.
func (u *ActivityUpdater) Apply(ctx context.Context, current *models.Thread, activity threading.Activity) (*models.Thread, error) {
	return u.Update(ctx, current, func(*models.Thread) threading.Activity {
		return activity
	})
}

// Update computes an activity from the latest stored state and applies it.
// build may be called once per attempt. Nothing is written when the
// activity leaves the thread unchanged.
func (u *ActivityUpdater) Update(ctx context.Context, current *models.Thread, build func(*models.Thread) threading.Activity) (*models.Thread, error) {
	orgID, threadID := current.OrganizationID, current.ID
	thread := *current

	for attempt := 1; attempt <= u.maxRetries; attempt++ {
		if !build(&thread).Apply(&thread) {
			return &thread, nil
		}

		ok, err := u.threads.UpdateVersioned(ctx, &thread)
		if err != nil {
			return nil, err
		}
		if ok {
			return &thread, nil
		}

		u.logger.Debug("thread version changed, retrying activity update",
			slog.String("organization_id", orgID),
			slog.String("thread_id", threadID),
			slog.Int("attempt", attempt))

		fresh, err := u.threads.GetByID(ctx, orgID, threadID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("thread %s: %w", threadID, apperrors.ErrThreadNotFound)
			}
			return nil, err
		}
		thread = *fresh
	}

	u.logger.Warn("giving up on thread activity update",
		slog.String("organization_id", orgID),
		slog.String("thread_id", threadID),
		slog.Int("attempts", u.maxRetries))
	return nil, fmt.Errorf("thread %s: %w", threadID, apperrors.ErrConcurrentUpdate)
}
