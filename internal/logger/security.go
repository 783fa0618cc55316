package logger

import (
	"context"
	"log/slog"
	"time"
)

// SecurityLogger records security events for the API, websocket and SMTP
// hosts as one warn-level line each, tagged with event_type. A nil
// *SecurityLogger discards events.
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLoggerFrom wraps an existing logger
func NewSecurityLoggerFrom(logger *slog.Logger) *SecurityLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityLogger{logger: logger}
}

// Logger returns the underlying slog.Logger
func (s *SecurityLogger) Logger() *slog.Logger {
	if s == nil {
		return slog.Default()
	}
	return s.logger
}

func (s *SecurityLogger) event(msg, eventType string, attrs ...slog.Attr) {
	if s == nil {
		return
	}
	all := make([]slog.Attr, 0, len(attrs)+2)
	all = append(all, slog.String("event_type", eventType))
	for _, a := range attrs {
		if isSensitiveKey(a.Key) {
			continue
		}
		all = append(all, a)
	}
	all = append(all, slog.Time("timestamp", time.Now().UTC()))
	s.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, all...)
}

// AuthFailure logs a rejected API key. The presented key is never logged.
func (s *SecurityLogger) AuthFailure(ip, path, reason string) {
	s.event("authentication_failure", "auth_failure",
		slog.String("ip", ip),
		slog.String("path", path),
		slog.String("reason", reason),
	)
}

// RateLimitExceeded logs when an organization exceeds its request budget
func (s *SecurityLogger) RateLimitExceeded(ip, organizationID, path string) {
	s.event("rate_limit_exceeded", "rate_limit",
		slog.String("ip", ip),
		slog.String("organization_id", organizationID),
		slog.String("path", path),
	)
}

// TenantMismatch logs a request whose organization scope was rejected
func (s *SecurityLogger) TenantMismatch(ip, path, organizationID, reason string) {
	s.event("tenant_mismatch", "tenant_mismatch",
		slog.String("ip", ip),
		slog.String("path", path),
		slog.String("organization_id", organizationID),
		slog.String("reason", reason),
	)
}

// OriginRejected logs a websocket upgrade refused for its Origin header
func (s *SecurityLogger) OriginRejected(ip, origin string) {
	s.event("invalid_origin", "invalid_origin",
		slog.String("ip", ip),
		slog.String("origin", origin),
	)
}

// MailRejected logs an SMTP recipient refused permanently
func (s *SecurityLogger) MailRejected(remoteAddr, recipient, reason string) {
	s.event("mail_rejected", "mail_rejected",
		slog.String("ip", remoteAddr),
		slog.String("recipient", recipient),
		slog.String("reason", reason),
	)
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"api_key":       true,
	"apikey":        true,
	"token":         true,
	"secret":        true,
	"authorization": true,
	"auth":          true,
	"credential":    true,
	"credentials":   true,
	"session":       true,
	"cookie":        true,
}

// isSensitiveKey checks if a key might contain sensitive data
func isSensitiveKey(key string) bool {
	return sensitiveKeys[key]
}
