package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/welldanyogia/infinimail-threads/internal/lock"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/services"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// engine wires the full threading stack on an in-memory SQLite database
type engine struct {
	db       *gorm.DB
	messages repository.MessageRepository
	threads  repository.ThreadRepository
	updater  *services.ActivityUpdater
	resolver *services.DeferredResolver
	matcher  *services.ThreadMatcher
	ingestor *services.MessageIngestor
	webhook  *services.MessageIngestor
	service  services.ThreadService
	locker   *lock.LocalLocker
	notifier *recordingNotifier
}

func newEngine(t *testing.T, maxRetries int) *engine {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Domain{}, &models.Message{}, &models.Thread{}, &models.ThreadAssignment{}))
	return wireEngine(db, maxRetries)
}

func wireEngine(db *gorm.DB, maxRetries int) *engine {
	locker := lock.NewLocalLocker()
	notifier := &recordingNotifier{}
	wired := services.NewEngine(db, services.EngineConfig{
		Locker:             locker,
		LockTTL:            time.Minute,
		MaxActivityRetries: maxRetries,
		Notifier:           notifier,
	})
	return &engine{
		db:       db,
		messages: wired.Messages,
		threads:  wired.Threads,
		locker:   locker,
		notifier: notifier,
		updater:  wired.Updater,
		resolver: wired.Resolver,
		matcher:  wired.Matcher,
		ingestor: wired.Ingestor,
		webhook:  services.NewDeferredIngestor(wired.Messages, nil, nil),
		service:  wired.Service,
	}
}

func (e *engine) thread(t *testing.T, org, id string) *models.Thread {
	thread, err := e.threads.GetByID(context.Background(), org, id)
	require.NoError(t, err)
	return thread
}

func (e *engine) threadCount(t *testing.T, org string) int64 {
	var count int64
	require.NoError(t, e.db.Model(&models.Thread{}).Where("organization_id = ?", org).Count(&count).Error)
	return count
}

// requireCountsConsistent checks every thread of org against its messages
func (e *engine) requireCountsConsistent(t *testing.T, org string) {
	var threads []models.Thread
	require.NoError(t, e.db.Where("organization_id = ?", org).Find(&threads).Error)
	for _, thread := range threads {
		var count, unread int64
		require.NoError(t, e.db.Model(&models.Message{}).
			Where("organization_id = ? AND thread_id = ?", org, thread.ID).Count(&count).Error)
		require.NoError(t, e.db.Model(&models.Message{}).
			Where("organization_id = ? AND thread_id = ? AND is_read = ?", org, thread.ID, false).Count(&unread).Error)
		require.Equal(t, int(count), thread.MessageCount, "message count of %s", thread.ID)
		require.LessOrEqual(t, thread.UnreadCount, int(unread), "unread count of %s", thread.ID)
	}
}

func criteria(org, messageID, subject, from string, to ...string) threading.Criteria {
	c := threading.Criteria{
		MessageID:      messageID,
		Subject:        subject,
		From:           models.Participant{Email: from},
		OrganizationID: org,
		ReceivedAt:     time.Now().UTC(),
	}
	for _, addr := range to {
		c.To = append(c.To, models.Participant{Email: addr})
	}
	return c
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*threading.MatchResult
}

func (n *recordingNotifier) MessageThreaded(orgID string, result *threading.MatchResult, message *models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, result)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}
