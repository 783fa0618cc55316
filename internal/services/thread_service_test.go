package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
)

func ingestThread(t *testing.T, e *engine, org, messageID, subject string) string {
	result, err := e.ingestor.Ingest(context.Background(), criteria(org, messageID, subject, "a@x.com", "b@x.com"))
	require.NoError(t, err)
	return result.Match.ThreadID
}

func TestThreadService_GetThreadIsScopedToOrganization(t *testing.T) {
	e := newEngine(t, 0)
	threadID := ingestThread(t, e, "T1", "m1@x.com", "Onboarding")

	thread, err := e.service.GetThread(context.Background(), "T1", threadID)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", thread.Subject)

	_, err = e.service.GetThread(context.Background(), "T2", threadID)
	assert.ErrorIs(t, err, apperrors.ErrThreadNotFound)
}

func TestThreadService_ListThreadsAndMessages(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	onboarding := ingestThread(t, e, "T1", "m1@x.com", "Onboarding")
	ingestThread(t, e, "T1", "m2@x.com", "Re: Onboarding")
	ingestThread(t, e, "T1", "m3@x.com", "Invoice overdue")

	items, total, err := e.service.ListThreads(ctx, "T1", repository.ThreadFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	_, _, err = e.service.ListThreads(ctx, "T1", repository.ThreadFilter{Status: "bogus"}, 10, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	messages, total, err := e.service.ListMessages(ctx, "T1", onboarding, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "m2@x.com", messages[0].MessageID)

	_, _, err = e.service.ListMessages(ctx, "T1", "thread_missing", 10, 0)
	assert.ErrorIs(t, err, apperrors.ErrThreadNotFound)
}

func TestThreadService_MarkThreadAsRead(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	threadID := ingestThread(t, e, "T1", "m1@x.com", "Onboarding")
	before := e.thread(t, "T1", threadID)

	require.NoError(t, e.service.MarkThreadAsRead(ctx, "T1", threadID))

	after := e.thread(t, "T1", threadID)
	assert.Equal(t, 0, after.UnreadCount)
	assert.Equal(t, before.MessageCount, after.MessageCount)
	assert.Equal(t, before.Subject, after.Subject)
	assert.Greater(t, after.Version, before.Version)

	err := e.service.MarkThreadAsRead(ctx, "T2", threadID)
	assert.ErrorIs(t, err, apperrors.ErrThreadNotFound)
}

func TestThreadService_MarkMessageAsRead(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	first, err := e.ingestor.Ingest(ctx, criteria("T1", "m1@x.com", "Onboarding", "a@x.com", "b@x.com"))
	require.NoError(t, err)
	_, err = e.ingestor.Ingest(ctx, criteria("T1", "m2@x.com", "Re: Onboarding", "b@x.com", "a@x.com"))
	require.NoError(t, err)

	require.NoError(t, e.service.MarkMessageAsRead(ctx, "T1", first.Message.ID))
	assert.Equal(t, 1, e.thread(t, "T1", first.Match.ThreadID).UnreadCount)

	// marking the same message twice does not decrement again
	require.NoError(t, e.service.MarkMessageAsRead(ctx, "T1", first.Message.ID))
	assert.Equal(t, 1, e.thread(t, "T1", first.Match.ThreadID).UnreadCount)

	err = e.service.MarkMessageAsRead(ctx, "T2", first.Message.ID)
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
	e.requireCountsConsistent(t, "T1")
}

func TestThreadService_MarkDeferredMessageAsRead(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	hooked, err := e.webhook.Ingest(ctx, criteria("T1", "w1@x.com", "Onboarding", "a@x.com", "b@x.com"))
	require.NoError(t, err)

	require.NoError(t, e.service.MarkMessageAsRead(ctx, "T1", hooked.Message.ID))

	_, err = e.resolver.ResolveDeferredThreads(ctx, "T1")
	require.NoError(t, err)
	thread := e.thread(t, "T1", hooked.Match.ThreadID)
	assert.Equal(t, 1, thread.MessageCount)
	assert.Equal(t, 0, thread.UnreadCount)
}

func TestThreadService_UpdateThreadAnalysisSanitizes(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	threadID := ingestThread(t, e, "T1", "m1@x.com", "Onboarding")

	analysis, err := e.service.UpdateThreadAnalysis(ctx, "T1", threadID, models.ThreadAnalysis{
		Summary:   `Customer <script>alert(1)</script>wants a <b>refund</b>`,
		Sentiment: "negative",
		Topics:    []string{"billing", "<img src=x onerror=alert(1)>", " refunds "},
	})

	require.NoError(t, err)
	assert.Equal(t, "Customer wants a refund", analysis.Summary)
	assert.Equal(t, []string{"billing", "refunds"}, analysis.Topics)
	assert.False(t, analysis.AnalyzedAt.IsZero())

	stored := e.thread(t, "T1", threadID)
	require.NotNil(t, stored.Analysis)
	assert.Equal(t, "Customer wants a refund", stored.Analysis.Summary)
	assert.Equal(t, "negative", stored.Analysis.Sentiment)
	assert.Equal(t, 1, stored.MessageCount)

	_, err = e.service.UpdateThreadAnalysis(ctx, "T1", "thread_missing", models.ThreadAnalysis{Summary: "x"})
	assert.ErrorIs(t, err, apperrors.ErrThreadNotFound)
}

func TestThreadService_StatusAndPriority(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	threadID := ingestThread(t, e, "T1", "m1@x.com", "Onboarding")

	require.NoError(t, e.service.UpdateStatus(ctx, "T1", threadID, models.ThreadStatusWaiting))
	require.NoError(t, e.service.UpdatePriority(ctx, "T1", threadID, models.PriorityUrgent))
	thread := e.thread(t, "T1", threadID)
	assert.Equal(t, models.ThreadStatusWaiting, thread.Status)
	assert.Equal(t, models.PriorityUrgent, thread.Priority)

	assert.ErrorIs(t, e.service.UpdateStatus(ctx, "T1", threadID, "closed"), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, e.service.UpdatePriority(ctx, "T1", threadID, "critical"), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, e.service.UpdateStatus(ctx, "T2", threadID, models.ThreadStatusResolved), apperrors.ErrThreadNotFound)
}

func TestThreadService_AssignmentLifecycle(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	threadID := ingestThread(t, e, "T1", "m1@x.com", "Onboarding")
	other := ingestThread(t, e, "T1", "m2@x.com", "Invoice overdue")

	thread, err := e.service.AssignThread(ctx, "T1", threadID, "alice", "lead")
	require.NoError(t, err)
	require.NotNil(t, thread.AssignedTo)
	assert.Equal(t, "alice", *thread.AssignedTo)

	// same assignee is a no-op
	_, err = e.service.AssignThread(ctx, "T1", threadID, "alice", "lead")
	require.NoError(t, err)

	_, err = e.service.AssignThread(ctx, "T1", threadID, "bob", "lead")
	require.NoError(t, err)
	_, err = e.service.AssignThread(ctx, "T1", other, "bob", "lead")
	require.NoError(t, err)

	count, err := e.service.AssignedThreadsCount(ctx, "T1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	stats, err := e.service.WorkloadStats(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "bob", stats[0].UserID)
	assert.Equal(t, int64(2), stats[0].OpenThreads)
	assert.Equal(t, int64(2), stats[0].UnreadMessages)

	thread, err = e.service.AssignThread(ctx, "T1", threadID, "", "lead")
	require.NoError(t, err)
	assert.Nil(t, thread.AssignedTo)

	history, err := e.service.AssignmentHistory(ctx, "T1", threadID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	actions := []string{history[0].Action, history[1].Action, history[2].Action}
	assert.ElementsMatch(t, []string{models.AssignmentAssigned, models.AssignmentReassigned, models.AssignmentUnassigned}, actions)

	// unassigning an unassigned thread writes no history
	_, err = e.service.AssignThread(ctx, "T1", threadID, "", "lead")
	require.NoError(t, err)
	history, err = e.service.AssignmentHistory(ctx, "T1", threadID)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	_, err = e.service.AssignThread(ctx, "T2", threadID, "alice", "lead")
	assert.ErrorIs(t, err, apperrors.ErrThreadNotFound)
}

func TestThreadService_AssignmentDoesNotTouchCounts(t *testing.T) {
	e := newEngine(t, 0)
	ctx := context.Background()
	threadID := ingestThread(t, e, "T1", "m1@x.com", "Onboarding")

	_, err := e.service.AssignThread(ctx, "T1", threadID, "alice", "lead")
	require.NoError(t, err)
	_, err = e.ingestor.Ingest(ctx, criteria("T1", "m2@x.com", "Re: Onboarding", "b@x.com", "a@x.com"))
	require.NoError(t, err)

	thread := e.thread(t, "T1", threadID)
	assert.Equal(t, 2, thread.MessageCount)
	require.NotNil(t, thread.AssignedTo)
	assert.Equal(t, "alice", *thread.AssignedTo)
	assert.WithinDuration(t, time.Now(), *thread.AssignedAt, time.Minute)
}
