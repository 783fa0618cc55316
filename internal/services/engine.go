package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/welldanyogia/infinimail-threads/internal/lock"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
	"gorm.io/gorm"
)

// EngineConfig tunes the threading engine. Zero values select defaults.
type EngineConfig struct {
	Locker                lock.Locker
	LockTTL               time.Duration
	SubjectCandidateLimit int
	ReferenceLookupLimit  int
	MaxActivityRetries    int
	Notifier              Notifier
	Logger                *slog.Logger
}

// Engine is the wired set of repositories and services behind the hosts
type Engine struct {
	Messages    repository.MessageRepository
	Threads     repository.ThreadRepository
	Assignments repository.AssignmentRepository
	Domains     repository.DomainRepository

	Updater  *ActivityUpdater
	Resolver *DeferredResolver
	Matcher  *ThreadMatcher
	Ingestor *MessageIngestor
	Service  ThreadService
}

// NewEngine wires the full-access engine on db. The ingestor matches and
// stores each message in one transaction on an engine bound to it.
func NewEngine(db *gorm.DB, cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocalLocker()
	}

	e := wire(db, cfg)
	e.Ingestor = NewTransactionalIngestor(func(ctx context.Context, fn func(threading.Matcher, repository.MessageRepository) error) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			scoped := wire(tx, cfg)
			return fn(scoped.Matcher, scoped.Messages)
		})
	}, e.Messages, cfg.Notifier, cfg.Logger)
	return e
}

func wire(db *gorm.DB, cfg EngineConfig) *Engine {
	e := &Engine{
		Messages:    repository.NewMessageRepository(db),
		Threads:     repository.NewThreadRepository(db),
		Assignments: repository.NewAssignmentRepository(db),
		Domains:     repository.NewDomainRepository(db),
	}
	e.Updater = NewActivityUpdater(e.Threads, cfg.MaxActivityRetries, cfg.Logger)
	e.Resolver = NewDeferredResolver(e.Messages, e.Threads, e.Updater, cfg.Locker, cfg.LockTTL, cfg.Logger)
	e.Matcher = NewThreadMatcher(
		NewHeaderMatcher(e.Messages, e.Threads, e.Resolver, cfg.ReferenceLookupLimit, cfg.Logger),
		NewSubjectMatcher(e.Threads, cfg.SubjectCandidateLimit),
		e.Resolver,
		e.Threads,
		e.Updater,
		cfg.Logger,
	)
	e.Service = NewThreadService(e.Threads, e.Messages, e.Assignments, e.Updater, cfg.Logger)
	return e
}
