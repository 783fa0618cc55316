package threading

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MinSubjectLength is the shortest normalized subject the subject matcher
// will match on.
const MinSubjectLength = 3

// DefaultSubject is stored on threads created from messages without a subject.
const DefaultSubject = "(no subject)"

// replyPrefix matches one leading reply/forward marker, including localized
// variants and counters such as "Re[2]:" or "AW (3):".
var replyPrefix = regexp.MustCompile(`(?i)^\s*(re|fwd?|aw|wg|sv|vs|antw|tr|rif|enc|r)\s*(\[\d+\]|\(\d+\))?\s*:\s*`)

// NormalizeSubject strips reply/forward markers, collapses whitespace and
// trims punctuation from both ends. The result is a fixed point:
// NormalizeSubject(NormalizeSubject(s)) == NormalizeSubject(s).
func NormalizeSubject(subject string) string {
	s := subject
	for {
		next := normalizePass(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizePass(s string) string {
	for {
		stripped := replyPrefix.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return norm.NFC.String(s)
}

// UsableSubject reports whether a normalized subject is specific enough to
// match threads on.
func UsableSubject(normalized string) bool {
	return utf8.RuneCountInString(normalized) >= MinSubjectLength
}

// ThreadSubject returns the subject a new thread is created with.
func ThreadSubject(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return DefaultSubject
	}
	return strings.TrimSpace(subject)
}
