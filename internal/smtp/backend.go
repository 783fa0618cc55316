package smtp

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/welldanyogia/infinimail-threads/internal/logger"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/services"
)

// Server limits
const (
	DefaultMaxMessageSize = 25 * 1024 * 1024 // 25 MB
	DefaultMaxRecipients  = 100
	DefaultReadTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 60 * time.Second
	DefaultMaxLineLength  = 2000
	DefaultIngestTimeout  = 30 * time.Second
)

// Backend implements the go-smtp Backend interface. Recipient domains are
// resolved to organizations and every accepted message is handed to the
// threading ingestor once per organization.
type Backend struct {
	domains       repository.DomainRepository
	ingestor      services.Ingestor
	hostname      string
	ingestTimeout time.Duration
	logger        *slog.Logger
	security      *logger.SecurityLogger
}

// BackendConfig holds configuration for the SMTP backend
type BackendConfig struct {
	Domains  repository.DomainRepository
	Ingestor services.Ingestor
	// Hostname is used to mint a Message-ID for mail that arrives without one
	Hostname      string
	IngestTimeout time.Duration
	Logger        *slog.Logger
}

// NewBackend creates a new SMTP backend
func NewBackend(cfg *BackendConfig) *Backend {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	hostname := cfg.Hostname
	if hostname == "" {
		hostname = "localhost"
	}
	timeout := cfg.IngestTimeout
	if timeout <= 0 {
		timeout = DefaultIngestTimeout
	}
	return &Backend{
		domains:       cfg.Domains,
		ingestor:      cfg.Ingestor,
		hostname:      hostname,
		ingestTimeout: timeout,
		logger:        log,
		security:      logger.NewSecurityLoggerFrom(log),
	}
}

// NewSession creates a new SMTP session
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	var remoteAddr string
	if conn := c.Conn(); conn != nil {
		remoteAddr = conn.RemoteAddr().String()
	}
	b.logger.Debug("new SMTP connection", slog.String("remote_addr", remoteAddr))
	return NewSession(b, remoteAddr), nil
}

// ServerConfig holds security configuration for the SMTP server
type ServerConfig struct {
	Addr           string
	Domain         string
	MaxMessageSize int64
	MaxRecipients  int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowInsecure  bool
	TLSConfig      *tls.Config
}

func orDefault[T int | int64 | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// NewSecureServer builds the go-smtp server with bounded message size,
// recipient count, line length and IO timeouts. Zero values take the
// package defaults.
func NewSecureServer(backend *Backend, cfg *ServerConfig) *smtp.Server {
	s := smtp.NewServer(backend)
	s.Addr = cfg.Addr
	s.Domain = cfg.Domain
	s.MaxMessageBytes = orDefault(cfg.MaxMessageSize, DefaultMaxMessageSize)
	s.MaxRecipients = orDefault(cfg.MaxRecipients, DefaultMaxRecipients)
	s.ReadTimeout = orDefault(cfg.ReadTimeout, DefaultReadTimeout)
	s.WriteTimeout = orDefault(cfg.WriteTimeout, DefaultWriteTimeout)
	s.MaxLineLength = DefaultMaxLineLength
	s.AllowInsecureAuth = cfg.AllowInsecure
	s.TLSConfig = cfg.TLSConfig
	return s
}

// LoadTLSConfig loads a STARTTLS certificate pair. Both paths empty means
// STARTTLS is not offered.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load SMTP TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
