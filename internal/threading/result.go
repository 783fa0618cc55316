package threading

import "github.com/welldanyogia/infinimail-threads/internal/models"

// Confidence scores reported per strategy
const (
	ConfidenceHeaders     = 100
	ConfidenceSubject     = 85
	ConfidenceDeferred    = 100
	ConfidenceNew         = 100
	ConfidenceProvisional = 50
)

// MatchResult is the outcome of FindOrCreateThread. Thread is only set by
// the full-access matcher. ThreadID is always set, except by a lookup for a
// conversation whose id is minted on ingest.
type MatchResult struct {
	Success    bool           `json:"success"`
	Thread     *models.Thread `json:"thread,omitempty"`
	ThreadID   string         `json:"threadId"`
	IsNew      bool           `json:"isNew"`
	Confidence int            `json:"confidence"`
	Strategy   string         `json:"strategy"`
}

// Matched builds a successful result around a stored thread
func Matched(thread *models.Thread, isNew bool, confidence int, strategy string) *MatchResult {
	return &MatchResult{
		Success:    true,
		Thread:     thread,
		ThreadID:   thread.ID,
		IsNew:      isNew,
		Confidence: confidence,
		Strategy:   strategy,
	}
}
