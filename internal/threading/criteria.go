package threading

import (
	"strings"
	"time"

	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/models"
)

// Criteria is everything the matchers know about an incoming message
type Criteria struct {
	MessageID      string               `json:"messageId"`
	InReplyTo      string               `json:"inReplyTo,omitempty"`
	References     []string             `json:"references,omitempty"`
	Subject        string               `json:"subject"`
	From           models.Participant   `json:"from"`
	To             []models.Participant `json:"to"`
	OrganizationID string               `json:"organizationId"`
	ReceivedAt     time.Time            `json:"receivedAt,omitempty"`
}

// Validate rejects criteria that cannot be scoped to a tenant or that have no
// participant identity. It runs before any store access.
func (c Criteria) Validate() error {
	if strings.TrimSpace(c.OrganizationID) == "" {
		return apperrors.InvalidCriteria("organizationId", "is required")
	}
	if strings.TrimSpace(c.MessageID) == "" {
		return apperrors.InvalidCriteria("messageId", "is required")
	}
	if NormalizeEmail(c.From.Email) == "" {
		return apperrors.InvalidCriteria("from", "is required")
	}
	if len(c.To) == 0 {
		return apperrors.InvalidCriteria("to", "must not be empty")
	}
	for _, p := range c.To {
		if NormalizeEmail(p.Email) == "" {
			return apperrors.InvalidCriteria("to", "contains an empty address")
		}
	}
	return nil
}

// NormalizedSubject returns the lookup key for the criteria's subject
func (c Criteria) NormalizedSubject() string {
	return NormalizeSubject(c.Subject)
}

// Participants returns the deduplicated from+to set
func (c Criteria) Participants() models.Participants {
	return BuildParticipants(c.From, c.To)
}

// ThreadID returns the deterministic id for the criteria
func (c Criteria) ThreadID() string {
	return DeterministicThreadID(c.OrganizationID, c.Subject, c.Participants().Emails())
}

// ReferenceIDs returns the ancestor message ids to look up, most specific
// first: In-Reply-To, then References newest to oldest. Angle brackets are
// stripped, duplicates dropped and the list is capped at limit (0 = no cap).
func (c Criteria) ReferenceIDs(limit int) []string {
	ids := make([]string, 0, len(c.References)+1)
	seen := make(map[string]struct{}, len(c.References)+1)
	add := func(raw string) {
		id := StripAngleBrackets(raw)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	add(c.InReplyTo)
	for i := len(c.References) - 1; i >= 0; i-- {
		add(c.References[i])
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// HasReferences reports whether header matching applies
func (c Criteria) HasReferences() bool {
	return len(c.ReferenceIDs(1)) > 0
}

// MessageTime returns ReceivedAt, or now when unset
func (c Criteria) MessageTime() time.Time {
	if c.ReceivedAt.IsZero() {
		return time.Now().UTC()
	}
	return c.ReceivedAt.UTC()
}

// Activity returns the aggregate mutation for one new unread message
func (c Criteria) Activity() Activity {
	return Activity{
		Participants: c.Participants(),
		MessageAt:    c.MessageTime(),
		MessageDelta: 1,
		UnreadDelta:  1,
	}
}

// StripAngleBrackets trims whitespace and the protocol <> delimiters
func StripAngleBrackets(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimSpace(id)
}

// Activity is a delta applied to a thread aggregate in one atomic update.
// Strategy and Confidence, when set, record the match that produced it.
type Activity struct {
	Participants models.Participants
	MessageAt    time.Time
	MessageDelta int
	UnreadDelta  int
	Strategy     string
	Confidence   int
}

// IsZero reports whether applying the activity would change nothing
func (a Activity) IsZero() bool {
	return len(a.Participants) == 0 && a.MessageAt.IsZero() &&
		a.MessageDelta == 0 && a.UnreadDelta == 0 && a.Strategy == ""
}

// Apply mutates thread with the activity and reports whether anything
// changed. Counts never drop below zero and unread never exceeds the
// message count.
func (a Activity) Apply(thread *models.Thread) bool {
	changed := false

	if merged, ok := MergeParticipants(thread.Participants, a.Participants); ok {
		thread.Participants = merged
		changed = true
	}
	if !a.MessageAt.IsZero() && a.MessageAt.After(thread.LastMessageAt) {
		thread.LastMessageAt = a.MessageAt
		changed = true
	}
	if a.MessageDelta != 0 {
		thread.MessageCount = max(thread.MessageCount+a.MessageDelta, 0)
		changed = true
	}
	if a.UnreadDelta != 0 {
		thread.UnreadCount = max(thread.UnreadCount+a.UnreadDelta, 0)
		changed = true
	}
	if thread.UnreadCount > thread.MessageCount {
		thread.UnreadCount = thread.MessageCount
		changed = true
	}
	if a.Strategy != "" && (thread.Strategy != a.Strategy || thread.Confidence != a.Confidence) {
		thread.Strategy = a.Strategy
		thread.Confidence = a.Confidence
		changed = true
	}
	return changed
}

// Message builds the record stored for the criteria under threadID
func (c Criteria) Message(threadID string) *models.Message {
	refs := make(models.StringList, 0, len(c.References))
	for _, ref := range c.References {
		if id := StripAngleBrackets(ref); id != "" {
			refs = append(refs, id)
		}
	}
	to := make(models.Participants, 0, len(c.To))
	for _, p := range c.To {
		to = append(to, models.Participant{Email: NormalizeEmail(p.Email), Name: strings.TrimSpace(p.Name)})
	}
	return &models.Message{
		OrganizationID: c.OrganizationID,
		MessageID:      StripAngleBrackets(c.MessageID),
		InReplyTo:      StripAngleBrackets(c.InReplyTo),
		References:     refs,
		Subject:        c.Subject,
		FromEmail:      NormalizeEmail(c.From.Email),
		FromName:       strings.TrimSpace(c.From.Name),
		To:             to,
		ReceivedAt:     c.MessageTime(),
		ThreadID:       threadID,
	}
}
