package smtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

var (
	errTemporary = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Temporary error",
	}
	errUnparsable = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 6, 0},
		Message:      "Failed to parse email",
	}
)

// Session implements the go-smtp Session interface. Recipients are grouped
// by the organization that owns their domain.
type Session struct {
	backend       *Backend
	remoteAddr    string
	from          string
	organizations []string
	recipients    map[string][]models.Participant
}

// NewSession creates a new SMTP session
func NewSession(backend *Backend, remoteAddr string) *Session {
	return &Session{
		backend:    backend,
		remoteAddr: remoteAddr,
		recipients: make(map[string][]models.Participant),
	}
}

// Mail handles the MAIL FROM command
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	s.backend.logger.Debug("MAIL FROM", slog.String("from", from))
	return nil
}

// Rcpt handles the RCPT TO command
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	address, domainName, err := parseEmailAddress(to)
	if err != nil {
		s.backend.security.MailRejected(s.remoteAddr, to, "invalid_address")
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Invalid recipient address",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.backend.ingestTimeout)
	defer cancel()

	orgID, err := s.backend.domains.ResolveOrganization(ctx, domainName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.backend.security.MailRejected(s.remoteAddr, address, "unknown_domain")
			return &smtp.SMTPError{
				Code:         550,
				EnhancedCode: smtp.EnhancedCode{5, 1, 1},
				Message:      "Domain not found",
			}
		}
		s.backend.logger.Error("failed to resolve recipient domain",
			slog.String("domain", domainName),
			slog.Any("error", err))
		return errTemporary
	}

	if _, seen := s.recipients[orgID]; !seen {
		s.organizations = append(s.organizations, orgID)
	}
	s.recipients[orgID] = append(s.recipients[orgID], models.Participant{Email: address})
	s.backend.logger.Debug("RCPT TO", slog.String("to", address), slog.String("organization_id", orgID))
	return nil
}

// Data handles the DATA command. The message is ingested once for every
// organization that had a recipient in this transaction.
func (s *Session) Data(r io.Reader) error {
	if len(s.organizations) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	parsed, err := ParseEmail(r)
	if err != nil {
		s.backend.logger.Warn("failed to parse email", slog.Any("error", err))
		return errUnparsable
	}

	if parsed.MessageID == "" {
		parsed.MessageID = fmt.Sprintf("<%s@%s>", uuid.NewString(), s.backend.hostname)
	}
	if parsed.From.Email == "" {
		if sender, _, envErr := parseEmailAddress(s.from); envErr == nil {
			parsed.From.Email = sender
		}
	}

	receivedAt := time.Now().UTC()
	var temporary, permanent error
	for _, orgID := range s.organizations {
		to := parsed.To
		if len(to) == 0 {
			to = s.recipients[orgID]
		}
		criteria := threading.Criteria{
			MessageID:      parsed.MessageID,
			InReplyTo:      parsed.InReplyTo,
			References:     parsed.References,
			Subject:        parsed.Subject,
			From:           parsed.From,
			To:             to,
			OrganizationID: orgID,
			ReceivedAt:     receivedAt,
		}
		if err := s.ingest(criteria); err != nil {
			if apperrors.IsInvalidInput(err) {
				permanent = err
			} else {
				temporary = err
			}
		}
	}

	// A retry is safe because redelivered Message-IDs are deduplicated
	if temporary != nil {
		return errTemporary
	}
	if permanent != nil {
		return errUnparsable
	}
	return nil
}

func (s *Session) ingest(criteria threading.Criteria) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.backend.ingestTimeout)
	defer cancel()

	result, err := s.backend.ingestor.Ingest(ctx, criteria)
	if err != nil {
		s.backend.logger.Error("failed to ingest email",
			slog.String("organization_id", criteria.OrganizationID),
			slog.String("message_id", criteria.MessageID),
			slog.Any("error", err))
		return err
	}

	attrs := []any{
		slog.String("organization_id", criteria.OrganizationID),
		slog.String("message_id", criteria.MessageID),
		slog.Bool("duplicate", result.Duplicate),
	}
	if result.Match != nil {
		attrs = append(attrs,
			slog.String("thread_id", result.Match.ThreadID),
			slog.String("strategy", result.Match.Strategy))
	}
	s.backend.logger.Info("email received", attrs...)
	return nil
}

// Reset resets the session state
func (s *Session) Reset() {
	s.from = ""
	s.organizations = nil
	s.recipients = make(map[string][]models.Participant)
}

// Logout handles the end of the session
func (s *Session) Logout() error {
	return nil
}

// parseEmailAddress returns the lower-cased address and its domain
func parseEmailAddress(address string) (normalized, domain string, err error) {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "<")
	address = strings.TrimSuffix(address, ">")
	address = strings.ToLower(strings.TrimSpace(address))

	parts := strings.Split(address, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid email address: %s", address)
	}

	return address, parts[1], nil
}
