package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

// Notifier is told about every message filed into a thread
type Notifier interface {
	MessageThreaded(orgID string, result *threading.MatchResult, message *models.Message)
}

// Ingestor files messages into threads
type Ingestor interface {
	Ingest(ctx context.Context, c threading.Criteria) (*IngestResult, error)
}

var _ Ingestor = (*MessageIngestor)(nil)

// IngestResult describes a filed message. Match is nil for a redelivered
// message that was already stored.
type IngestResult struct {
	Message   *models.Message         `json:"message"`
	Match     *threading.MatchResult `json:"match,omitempty"`
	Duplicate bool                   `json:"duplicate"`
}

// FilingTx runs fn in one transaction with a matcher and a message store
// bound to it. An error from fn rolls back the thread update together with
// the message insert.
type FilingTx func(ctx context.Context, fn func(matcher threading.Matcher, messages repository.MessageRepository) error) error

// MessageIngestor files a message: it matches it with a Matcher and stores
// it under the resulting thread id.
type MessageIngestor struct {
	matcher  threading.Matcher
	messages repository.MessageRepository
	transact FilingTx
	notifier Notifier
	readback bool
	logger   *slog.Logger
}

// NewMessageIngestor creates the full-access ingestor. Redelivered messages
// are detected before matching so they are not counted twice. notifier may
// be nil.
func NewMessageIngestor(matcher threading.Matcher, messages repository.MessageRepository, notifier Notifier, logger *slog.Logger) *MessageIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageIngestor{
		matcher:  matcher,
		messages: messages,
		notifier: notifier,
		readback: true,
		logger:   logger,
	}
}

// NewTransactionalIngestor creates the full-access ingestor that matches
// and stores each message inside transact. messages serves the redelivery
// check, which runs outside the transaction.
func NewTransactionalIngestor(transact FilingTx, messages repository.MessageRepository, notifier Notifier, logger *slog.Logger) *MessageIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageIngestor{
		messages: messages,
		transact: transact,
		notifier: notifier,
		readback: true,
		logger:   logger,
	}
}

// NewDeferredIngestor creates the ingestor for the constrained path. It
// computes the deterministic thread id and only inserts; it never reads.
func NewDeferredIngestor(messages repository.MessageRepository, notifier Notifier, logger *slog.Logger) *MessageIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageIngestor{
		matcher:  threading.NewDeferredMatcher(logger),
		messages: messages,
		notifier: notifier,
		logger:   logger,
	}
}

// Ingest matches and stores one message
func (i *MessageIngestor) Ingest(ctx context.Context, c threading.Criteria) (*IngestResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = time.Now().UTC()
	}

	messageID := threading.StripAngleBrackets(c.MessageID)
	if i.readback {
		existing, err := i.messages.GetByMessageID(ctx, c.OrganizationID, messageID)
		if err == nil {
			i.logger.Info("message already filed",
				slog.String("organization_id", c.OrganizationID),
				slog.String("message_id", messageID),
				slog.String("thread_id", existing.ThreadID))
			return &IngestResult{Message: existing, Duplicate: true}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	match, msg, err := i.file(ctx, c)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			i.logger.Warn("message filed concurrently",
				slog.String("organization_id", c.OrganizationID),
				slog.String("message_id", messageID))
			if !i.readback {
				return &IngestResult{Message: msg, Duplicate: true}, nil
			}
			stored, getErr := i.messages.GetByMessageID(ctx, c.OrganizationID, messageID)
			if getErr != nil {
				return nil, fmt.Errorf("failed to load concurrently filed message: %w", getErr)
			}
			return &IngestResult{Message: stored, Duplicate: true}, nil
		}
		return nil, err
	}

	i.logger.Info("message filed",
		slog.String("organization_id", c.OrganizationID),
		slog.String("message_id", messageID),
		slog.String("thread_id", match.ThreadID),
		slog.String("strategy", match.Strategy),
		slog.Int("confidence", match.Confidence),
		slog.Bool("new_thread", match.IsNew))

	if i.notifier != nil {
		i.notifier.MessageThreaded(c.OrganizationID, match, msg)
	}
	return &IngestResult{Message: msg, Match: match}, nil
}

// file matches c and inserts its message. Without a transaction a failed
// insert leaves the thread counting the message until reconciliation.
func (i *MessageIngestor) file(ctx context.Context, c threading.Criteria) (*threading.MatchResult, *models.Message, error) {
	var (
		match *threading.MatchResult
		msg   *models.Message
	)
	run := func(matcher threading.Matcher, messages repository.MessageRepository) error {
		result, err := matcher.FindOrCreateThread(ctx, c)
		if err != nil {
			return err
		}
		msg = c.Message(result.ThreadID)
		if err := messages.Create(ctx, msg); err != nil {
			return err
		}
		match = result
		return nil
	}

	var err error
	if i.transact == nil {
		err = run(i.matcher, i.messages)
	} else {
		err = i.transact(ctx, run)
	}
	return match, msg, err
}
