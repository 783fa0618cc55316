package threading

import (
	"context"
	"log/slog"

	"github.com/welldanyogia/infinimail-threads/internal/models"
)

// DeferredMatcher is the matcher for contexts without store access. Its
// result is provisional: the caller persists the message under the returned
// id and the deferred resolver materializes the thread later.
type DeferredMatcher struct {
	logger *slog.Logger
}

// NewDeferredMatcher creates a new DeferredMatcher
func NewDeferredMatcher(logger *slog.Logger) *DeferredMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeferredMatcher{logger: logger}
}

// FindOrCreateThread returns the deterministic id with strategy deferred and
// confidence 50. It never uses a randomized id.
func (m *DeferredMatcher) FindOrCreateThread(ctx context.Context, c Criteria) (*MatchResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	threadID := c.ThreadID()
	m.logger.Debug("deferred thread id computed",
		slog.String("organization_id", c.OrganizationID),
		slog.String("message_id", c.MessageID),
		slog.String("thread_id", threadID),
	)

	return &MatchResult{
		Success:    true,
		ThreadID:   threadID,
		IsNew:      true,
		Confidence: ConfidenceProvisional,
		Strategy:   models.StrategyDeferred,
	}, nil
}
