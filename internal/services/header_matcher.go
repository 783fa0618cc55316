package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

// DefaultReferenceLookupLimit caps how many ancestor ids are looked up
const DefaultReferenceLookupLimit = 10

// threadResolver materializes a thread from messages already tagged with
// its id
type threadResolver interface {
	ResolveThread(ctx context.Context, orgID, threadID string) (*models.Thread, error)
}

// HeaderMatcher resolves a thread through In-Reply-To and References
type HeaderMatcher struct {
	messages repository.MessageRepository
	threads  repository.ThreadRepository
	resolver threadResolver
	limit    int
	logger   *slog.Logger
}

// NewHeaderMatcher creates a new HeaderMatcher
func NewHeaderMatcher(
	messages repository.MessageRepository,
	threads repository.ThreadRepository,
	resolver threadResolver,
	limit int,
	logger *slog.Logger,
) *HeaderMatcher {
	if limit <= 0 {
		limit = DefaultReferenceLookupLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HeaderMatcher{
		messages: messages,
		threads:  threads,
		resolver: resolver,
		limit:    limit,
		logger:   logger,
	}
}

// Match returns the thread of the most specific referenced message that is
// stored in the same organization, or nil. A referenced thread without a
// record yet is materialized from its messages.
func (m *HeaderMatcher) Match(ctx context.Context, c threading.Criteria) (*models.Thread, error) {
	ids := c.ReferenceIDs(m.limit)
	if len(ids) == 0 {
		return nil, nil
	}

	found, err := m.messages.FindByMessageIDs(ctx, c.OrganizationID, ids)
	if err != nil {
		return nil, fmt.Errorf("header match: %w", err)
	}
	byMessageID := make(map[string]string, len(found))
	for _, msg := range found {
		byMessageID[msg.MessageID] = msg.ThreadID
	}

	for _, id := range ids {
		threadID := byMessageID[id]
		if threadID == "" {
			continue
		}

		thread, err := m.threads.GetByID(ctx, c.OrganizationID, threadID)
		if err == nil {
			return thread, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("header match: %w", err)
		}
		if threading.IsSentThreadID(threadID) {
			continue
		}

		m.logger.Info("referenced thread has no record, materializing",
			slog.String("organization_id", c.OrganizationID),
			slog.String("thread_id", threadID),
			slog.String("reference", id))
		thread, err = m.resolver.ResolveThread(ctx, c.OrganizationID, threadID)
		if err != nil {
			return nil, fmt.Errorf("header match: %w", err)
		}
		if thread != nil {
			return thread, nil
		}
	}
	return nil, nil
}
