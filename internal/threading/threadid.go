package threading

import (
	"encoding/base32"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	// ThreadIDPrefix marks ids produced by DeterministicThreadID
	ThreadIDPrefix = "thread_"

	// SentThreadPrefix marks ids the outbound pipeline assigns to sent mail.
	// Those never get a backing thread from reconciliation.
	SentThreadPrefix = "sent_"

	// threadIDVersion is hashed into every id. Changing it, the separator, or
	// the digest length orphans every id already written by the webhook path.
	threadIDVersion = "v1"
	threadIDBytes   = 20
)

var threadIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// DeterministicThreadID derives the stable thread id for a conversation:
//
//	"thread_" + base32(blake2b-256("v1" 0x00 org 0x00 normalizedSubject 0x00 emails)[:20])
//
// where emails is the sorted, deduplicated, lower-cased address list joined
// with ",". The subject is normalized again, so callers may pass it raw.
func DeterministicThreadID(organizationID, subject string, emails []string) string {
	unique := make(map[string]struct{}, len(emails))
	sorted := make([]string, 0, len(emails))
	for _, e := range emails {
		e = NormalizeEmail(e)
		if e == "" {
			continue
		}
		if _, ok := unique[e]; ok {
			continue
		}
		unique[e] = struct{}{}
		sorted = append(sorted, e)
	}
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString(threadIDVersion)
	b.WriteByte(0)
	b.WriteString(organizationID)
	b.WriteByte(0)
	b.WriteString(NormalizeSubject(subject))
	b.WriteByte(0)
	b.WriteString(strings.Join(sorted, ","))

	sum := blake2b.Sum256([]byte(b.String()))
	return ThreadIDPrefix + strings.ToLower(threadIDEncoding.EncodeToString(sum[:threadIDBytes]))
}

// MintThreadID appends a random suffix to a deterministic id. Only the
// full-access matcher uses it, when the deterministic id is held by an
// archived thread and a fresh conversation has to be opened.
func MintThreadID(base string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return base + "_" + suffix
}

// IsSentThreadID reports whether id belongs to the outbound pipeline
func IsSentThreadID(id string) bool {
	return strings.HasPrefix(id, SentThreadPrefix)
}
