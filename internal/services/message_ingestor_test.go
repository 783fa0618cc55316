package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/services"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
	"github.com/welldanyogia/infinimail-threads/tests/mocks"
	"gorm.io/gorm"
)

type stubMatcher struct {
	result *threading.MatchResult
	err    error
	calls  int
}

func (m *stubMatcher) FindOrCreateThread(ctx context.Context, c threading.Criteria) (*threading.MatchResult, error) {
	m.calls++
	return m.result, m.err
}

func TestMessageIngestor_StoresMessageUnderMatchedThread(t *testing.T) {
	e := newEngine(t, 0)
	c := criteria("T1", "<M1@X.com>", "Quote request", "Alice@X.com", "b@x.com")
	c.References = []string{"<older@x.com>"}

	result, err := e.ingestor.Ingest(context.Background(), c)

	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	stored, err := e.messages.GetByMessageID(context.Background(), "T1", "M1@X.com")
	require.NoError(t, err)
	assert.Equal(t, result.Match.ThreadID, stored.ThreadID)
	assert.Equal(t, "alice@x.com", stored.FromEmail)
	assert.Equal(t, models.StringList{"older@x.com"}, stored.References)
	assert.Equal(t, 1, e.notifier.count())
}

func TestMessageIngestor_RedeliveryIsNotCountedTwice(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	c := criteria("T1", "m1@x.com", "Quote request", "a@x.com", "b@x.com")

	first, err := e.ingestor.Ingest(ctx, c)
	require.NoError(t, err)
	second, err := e.ingestor.Ingest(ctx, c)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Nil(t, second.Match)
	assert.Equal(t, first.Message.ID, second.Message.ID)
	assert.Equal(t, 1, e.thread(t, "T1", first.Match.ThreadID).MessageCount)
	assert.Equal(t, 1, e.notifier.count())
}

func TestMessageIngestor_DeferredRedeliveryKeepsFirstCopy(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	c := criteria("T1", "w1@x.com", "Quote request", "a@x.com", "b@x.com")

	first, err := e.webhook.Ingest(ctx, c)
	require.NoError(t, err)
	second, err := e.webhook.Ingest(ctx, c)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	messages, err := e.messages.FindByThreadID(ctx, "T1", first.Match.ThreadID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestMessageIngestor_RejectsInvalidCriteria(t *testing.T) {
	matcher := &stubMatcher{}
	ingestor := services.NewMessageIngestor(matcher, new(mocks.MockMessageRepository), nil, nil)

	_, err := ingestor.Ingest(context.Background(), criteria("T1", "", "Hello", "a@x.com", "b@x.com"))

	assert.ErrorIs(t, err, apperrors.ErrInvalidCriteria)
	assert.Equal(t, 0, matcher.calls)
}

func TestMessageIngestor_MatchErrorStoresNothing(t *testing.T) {
	messages := new(mocks.MockMessageRepository)
	matcher := &stubMatcher{err: errStoreDown}
	notifier := &recordingNotifier{}
	ingestor := services.NewMessageIngestor(matcher, messages, notifier, nil)
	messages.On("GetByMessageID", mock.Anything, "T1", "m1@x.com").Return(nil, repository.ErrNotFound)

	_, err := ingestor.Ingest(context.Background(), criteria("T1", "m1@x.com", "Hello", "a@x.com", "b@x.com"))

	assert.ErrorIs(t, err, errStoreDown)
	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Equal(t, 0, notifier.count())
}

func TestMessageIngestor_StoreErrorIsReturned(t *testing.T) {
	messages := new(mocks.MockMessageRepository)
	matcher := &stubMatcher{result: &threading.MatchResult{Success: true, ThreadID: "thread_abc"}}
	notifier := &recordingNotifier{}
	ingestor := services.NewMessageIngestor(matcher, messages, notifier, nil)
	messages.On("GetByMessageID", mock.Anything, "T1", "m1@x.com").Return(nil, repository.ErrNotFound)
	messages.On("Create", mock.Anything, mock.MatchedBy(func(m *models.Message) bool {
		return m.ThreadID == "thread_abc" && m.MessageID == "m1@x.com"
	})).Return(errors.New("disk full"))

	_, err := ingestor.Ingest(context.Background(), criteria("T1", "m1@x.com", "Hello", "a@x.com", "b@x.com"))

	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 0, notifier.count())
	messages.AssertExpectations(t)
}

// failMessageInserts makes every insert into messages fail with err
func failMessageInserts(t *testing.T, db *gorm.DB, err error) {
	t.Helper()
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_messages", func(tx *gorm.DB) {
		if tx.Statement.Table == "messages" {
			tx.AddError(err)
		}
	}))
}

func TestMessageIngestor_FailedInsertLeavesNoThread(t *testing.T) {
	e := newEngine(t, 0)
	errDisk := errors.New("disk I/O error")
	failMessageInserts(t, e.db, errDisk)

	_, err := e.ingestor.Ingest(context.Background(), criteria("T1", "m1@x.com", "Quote request", "a@x.com", "b@x.com"))

	assert.ErrorIs(t, err, errDisk)
	assert.Equal(t, int64(0), e.threadCount(t, "T1"))
	assert.Equal(t, 0, e.notifier.count())
}

func TestMessageIngestor_FailedInsertKeepsThreadCount(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	root, err := e.ingestor.Ingest(ctx, criteria("T1", "m1@x.com", "Quote request", "a@x.com", "b@x.com"))
	require.NoError(t, err)

	errDisk := errors.New("disk I/O error")
	failMessageInserts(t, e.db, errDisk)
	reply := criteria("T1", "m2@x.com", "Re: Quote request", "b@x.com", "a@x.com", "c@x.com")
	reply.InReplyTo = "m1@x.com"

	_, err = e.ingestor.Ingest(ctx, reply)

	assert.ErrorIs(t, err, errDisk)
	thread := e.thread(t, "T1", root.Match.ThreadID)
	assert.Equal(t, 1, thread.MessageCount)
	assert.Equal(t, 1, thread.UnreadCount)
	assert.NotContains(t, thread.Participants.Emails(), "c@x.com")
	e.requireCountsConsistent(t, "T1")
}

func TestMessageIngestor_TransactionalDuplicateRollsBack(t *testing.T) {
	messages := new(mocks.MockMessageRepository)
	scoped := new(mocks.MockMessageRepository)
	matcher := &stubMatcher{result: &threading.MatchResult{Success: true, ThreadID: "thread_abc"}}
	rolledBack := false
	transact := func(ctx context.Context, fn func(threading.Matcher, repository.MessageRepository) error) error {
		err := fn(matcher, scoped)
		rolledBack = err != nil
		return err
	}
	ingestor := services.NewTransactionalIngestor(transact, messages, nil, nil)

	stored := &models.Message{ID: "msg-1", MessageID: "m1@x.com", ThreadID: "thread_abc"}
	messages.On("GetByMessageID", mock.Anything, "T1", "m1@x.com").Return(nil, repository.ErrNotFound).Once()
	scoped.On("Create", mock.Anything, mock.Anything).
		Return(fmt.Errorf("message 'm1@x.com' already stored: %w", repository.ErrDuplicateEntry))
	messages.On("GetByMessageID", mock.Anything, "T1", "m1@x.com").Return(stored, nil).Once()

	result, err := ingestor.Ingest(context.Background(), criteria("T1", "m1@x.com", "Hello", "a@x.com", "b@x.com"))

	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, "msg-1", result.Message.ID)
	assert.True(t, rolledBack)
	assert.Equal(t, 1, matcher.calls)
	messages.AssertExpectations(t)
	scoped.AssertExpectations(t)
}

func TestMessageIngestor_ReadbackErrorIsReturned(t *testing.T) {
	messages := new(mocks.MockMessageRepository)
	matcher := &stubMatcher{}
	ingestor := services.NewMessageIngestor(matcher, messages, nil, nil)
	messages.On("GetByMessageID", mock.Anything, "T1", "m1@x.com").Return(nil, errStoreDown)

	_, err := ingestor.Ingest(context.Background(), criteria("T1", "m1@x.com", "Hello", "a@x.com", "b@x.com"))

	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 0, matcher.calls)
}
