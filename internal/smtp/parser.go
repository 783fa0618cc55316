package smtp

import (
	"io"
	"net/mail"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/welldanyogia/infinimail-threads/internal/models"
)

// ParsedEmail holds the headers threading cares about. Bodies and
// attachments are not kept.
type ParsedEmail struct {
	MessageID  string
	InReplyTo  string
	References []string
	Subject    string
	From       models.Participant
	To         []models.Participant
}

var fromHeaderPattern = regexp.MustCompile(`^(?:"?([^"<]*)"?\s*)?<?([^<>]+@[^<>]+)>?$`)

// ParseEmail parses an RFC 5322 message from an io.Reader
func ParseEmail(r io.Reader) (*ParsedEmail, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, err
	}

	parsed := &ParsedEmail{
		MessageID:  strings.TrimSpace(env.GetHeader("Message-ID")),
		InReplyTo:  firstMessageID(env.GetHeader("In-Reply-To")),
		References: splitMessageIDs(env.GetHeader("References")),
		Subject:    env.GetHeader("Subject"),
	}

	if from, err := env.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = participant(from[0])
	} else {
		parsed.From.Name, parsed.From.Email = parseFromHeader(env.GetHeader("From"))
	}

	for _, header := range []string{"To", "Cc"} {
		list, err := env.AddressList(header)
		if err != nil {
			continue
		}
		for _, addr := range list {
			parsed.To = append(parsed.To, participant(addr))
		}
	}

	return parsed, nil
}

func participant(addr *mail.Address) models.Participant {
	return models.Participant{Email: addr.Address, Name: addr.Name}
}

// splitMessageIDs splits a References header into its ids. Some clients
// separate ids with commas instead of whitespace.
func splitMessageIDs(header string) []string {
	fields := strings.FieldsFunc(header, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// firstMessageID returns the first id of an In-Reply-To header, which may
// carry several
func firstMessageID(header string) string {
	ids := splitMessageIDs(header)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// parseFromHeader extracts name and email from a From header that
// net/mail rejects
func parseFromHeader(from string) (name, email string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	matches := fromHeaderPattern.FindStringSubmatch(from)
	if len(matches) >= 3 {
		name = strings.Trim(strings.TrimSpace(matches[1]), `"`)
		email = strings.TrimSpace(matches[2])
	} else {
		email = from
	}

	return name, email
}
