// Package threading holds the store-free half of conversation threading:
// subject normalization, participant sets, deterministic thread ids and the
// matcher used where no store is reachable.
package threading

import "context"

// Matcher assigns a message to a thread. Implementations differ in what they
// may touch: services.ThreadMatcher reads and writes the stores,
// DeferredMatcher only computes the deterministic id.
type Matcher interface {
	FindOrCreateThread(ctx context.Context, c Criteria) (*MatchResult, error)
}
