package threading

import (
	"strings"

	"github.com/welldanyogia/infinimail-threads/internal/models"
)

// MinSharedParticipants is the overlap required before two messages with the
// same normalized subject are treated as one conversation. A single shared
// address (a support mailbox, say) is not enough.
const MinSharedParticipants = 2

// NormalizeEmail lower-cases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BuildParticipants returns from followed by to, deduplicated by lower-cased
// address in first-seen order. Entries without an address are dropped.
func BuildParticipants(from models.Participant, to []models.Participant) models.Participants {
	all := make([]models.Participant, 0, len(to)+1)
	all = append(all, from)
	all = append(all, to...)
	merged, _ := MergeParticipants(nil, all)
	return merged
}

// MergeParticipants adds incoming to base. A non-empty display name replaces
// an empty one whichever side it comes from; otherwise the existing entry is
// kept. The second return value reports whether the result differs from base.
func MergeParticipants(base models.Participants, incoming []models.Participant) (models.Participants, bool) {
	merged := make(models.Participants, 0, len(base)+len(incoming))
	index := make(map[string]int, len(base)+len(incoming))
	changed := false

	add := func(p models.Participant, fromBase bool) {
		email := NormalizeEmail(p.Email)
		if email == "" {
			if fromBase {
				changed = true
			}
			return
		}
		name := strings.TrimSpace(p.Name)
		if i, ok := index[email]; ok {
			if merged[i].Name == "" && name != "" {
				merged[i].Name = name
				changed = true
			} else if fromBase {
				// duplicate inside the stored set
				changed = true
			}
			return
		}
		if fromBase && (email != p.Email || name != p.Name) {
			changed = true
		}
		if !fromBase {
			changed = true
		}
		index[email] = len(merged)
		merged = append(merged, models.Participant{Email: email, Name: name})
	}

	for _, p := range base {
		add(p, true)
	}
	for _, p := range incoming {
		add(p, false)
	}
	return merged, changed
}

// SharedCount returns how many distinct addresses appear in both sets
func SharedCount(a, b models.Participants) int {
	seen := make(map[string]struct{}, len(a))
	for _, p := range a {
		seen[NormalizeEmail(p.Email)] = struct{}{}
	}
	shared := 0
	for _, p := range b {
		email := NormalizeEmail(p.Email)
		if _, ok := seen[email]; ok && email != "" {
			shared++
			delete(seen, email)
		}
	}
	return shared
}
