// Package validator checks the identifiers that cross the HTTP and SMTP
// boundaries before they reach matching or storage. Every error wraps
// errors.ErrInvalidInput.
package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
)

var (
	ErrEmptyInput       = invalid("input cannot be empty")
	ErrInputTooLong     = invalid("input exceeds maximum length")
	ErrInvalidEmail     = invalid("invalid email format")
	ErrInvalidDomain    = invalid("invalid domain format")
	ErrInvalidOrgID     = invalid("invalid organization id")
	ErrInvalidMessageID = invalid("invalid message id")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, msg)
}

// Length limits follow RFC 5321 for addresses, RFC 1035 for domains and
// the column sizes of the schema for the rest.
const (
	maxEmailLength     = 254
	maxDomainLength    = 253
	maxOrgIDLength     = 128
	maxMessageIDLength = 512
)

var (
	// lowercase labels of at most 63 characters, no leading or trailing hyphen
	domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)
	orgIDPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)
)

func required(s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", ErrEmptyInput
	case utf8.RuneCountInString(s) > max:
		return "", ErrInputTooLong
	}
	return s, nil
}

// ValidateEmail accepts a bare address. Display names are rejected; they
// travel in their own field.
func ValidateEmail(email string) error {
	email, err := required(strings.ToLower(email), maxEmailLength)
	if err != nil {
		return err
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateDomain checks a DNS name in its lowercase form
func ValidateDomain(domain string) error {
	domain, err := required(strings.ToLower(domain), maxDomainLength)
	if err != nil {
		return err
	}
	if !domainPattern.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

// ValidateOrganizationID checks a tenant identifier
func ValidateOrganizationID(orgID string) error {
	orgID, err := required(orgID, maxOrgIDLength)
	if err != nil {
		return err
	}
	if !orgIDPattern.MatchString(orgID) {
		return ErrInvalidOrgID
	}
	return nil
}

// ValidateMessageID checks a protocol message id, with or without its angle
// brackets
func ValidateMessageID(messageID string) error {
	id := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(messageID), "<"), ">")
	id, err := required(id, maxMessageIDLength)
	if err != nil {
		return err
	}
	if strings.ContainsFunc(id, func(r rune) bool {
		return r <= ' ' || r == 0x7f || r == '<' || r == '>'
	}) {
		return ErrInvalidMessageID
	}
	return nil
}

// Page size bounds for list endpoints
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ValidatePagination clamps limit to [1, MaxLimit], defaulting to
// DefaultLimit, and offset to zero or more
func ValidatePagination(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return limit, max(offset, 0)
}

// SanitizeString strips control characters, trims whitespace and truncates
// to maxLength runes when maxLength is positive.
func SanitizeString(input string, maxLength int) string {
	input = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, input))

	if maxLength > 0 && utf8.RuneCountInString(input) > maxLength {
		input = string([]rune(input)[:maxLength])
	}
	return input
}
