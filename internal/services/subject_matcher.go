package services

import (
	"context"
	"fmt"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

// DefaultSubjectCandidateLimit is how many same-subject threads are compared
const DefaultSubjectCandidateLimit = 5

// SubjectMatcher resolves a thread by normalized subject plus participant
// overlap
type SubjectMatcher struct {
	threads repository.ThreadRepository
	limit   int
}

// NewSubjectMatcher creates a new SubjectMatcher
func NewSubjectMatcher(threads repository.ThreadRepository, limit int) *SubjectMatcher {
	if limit <= 0 {
		limit = DefaultSubjectCandidateLimit
	}
	return &SubjectMatcher{threads: threads, limit: limit}
}

// Match returns the most recently active non-archived thread with the same
// normalized subject that shares at least MinSharedParticipants addresses
// with the message, or nil.
func (m *SubjectMatcher) Match(ctx context.Context, c threading.Criteria) (*models.Thread, error) {
	normalized := c.NormalizedSubject()
	if !threading.UsableSubject(normalized) {
		return nil, nil
	}

	candidates, err := m.threads.FindBySubject(ctx, c.OrganizationID, normalized, m.limit)
	if err != nil {
		return nil, fmt.Errorf("subject match: %w", err)
	}

	incoming := c.Participants()
	for i := range candidates {
		if threading.SharedCount(candidates[i].Participants, incoming) >= threading.MinSharedParticipants {
			return &candidates[i], nil
		}
	}
	return nil, nil
}
