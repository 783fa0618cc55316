//go:build e2e

package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/welldanyogia/infinimail-threads/internal/api"
	"github.com/welldanyogia/infinimail-threads/internal/api/middleware"
	"github.com/welldanyogia/infinimail-threads/internal/database"
	"github.com/welldanyogia/infinimail-threads/internal/services"
	"github.com/welldanyogia/infinimail-threads/internal/smtp"
	"gorm.io/gorm"
)

const apiKey = "e2e-key"

// ConversationFlowSuite delivers mail over SMTP and reads the resulting
// threads back through the HTTP API, both backed by PostgreSQL
type ConversationFlowSuite struct {
	suite.Suite
	container  testcontainers.Container
	db         *gorm.DB
	echo       *echo.Echo
	smtpServer *gosmtp.Server
	smtpAddr   string
}

// SetupSuite starts PostgreSQL, the SMTP server, and the router
func (s *ConversationFlowSuite) SetupSuite() {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "threads_e2e_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T(), err)
	s.container = container

	host, err := container.Host(ctx)
	require.NoError(s.T(), err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(s.T(), err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=threads_e2e_test sslmode=disable",
		host, port.Port())
	db, err := database.Connect(dsn)
	require.NoError(s.T(), err)
	require.NoError(s.T(), database.Migrate(db))
	s.db = db

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := services.NewEngine(db, services.EngineConfig{Logger: quiet})

	s.echo = api.NewRouter(&api.RouterConfig{
		DB:         db,
		Logger:     quiet,
		Threads:    engine.Service,
		Lookup:     engine.Matcher,
		Reconciler: engine.Resolver,
		Ingestor:   engine.Ingestor,
		Messages:   engine.Messages,
		Domains:    engine.Domains,
		APIKey:     apiKey,
	})

	backend := smtp.NewBackend(&smtp.BackendConfig{
		Domains:  engine.Domains,
		Ingestor: engine.Ingestor,
		Hostname: "mx.e2e.test",
		Logger:   quiet,
	})
	s.smtpServer = smtp.NewSecureServer(backend, &smtp.ServerConfig{Domain: "mx.e2e.test"})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(s.T(), err)
	s.smtpAddr = listener.Addr().String()
	go func() {
		_ = s.smtpServer.Serve(listener)
	}()
}

// TearDownSuite stops all services
func (s *ConversationFlowSuite) TearDownSuite() {
	if s.smtpServer != nil {
		s.smtpServer.Close()
	}
	if s.db != nil {
		database.Close(s.db)
	}
	if s.container != nil {
		s.container.Terminate(context.Background())
	}
}

// SetupTest cleans up data before each test
func (s *ConversationFlowSuite) SetupTest() {
	s.db.Exec("TRUNCATE TABLE thread_assignments, messages, threads, domains RESTART IDENTITY CASCADE")
}

func TestConversationFlowSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}
	suite.Run(t, new(ConversationFlowSuite))
}

// ==================== Helpers ====================

func (s *ConversationFlowSuite) call(method, path, org, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+apiKey)
	req.Header.Set(middleware.OrganizationHeader, org)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *ConversationFlowSuite) registerDomain(org, name string) {
	rec := s.call(http.MethodPost, "/api/domains", org, fmt.Sprintf(`{"name": %q}`, name))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
}

type threadRow struct {
	ID           string `json:"id"`
	Subject      string `json:"subject"`
	MessageCount int    `json:"message_count"`
	UnreadCount  int    `json:"unread_count"`
	Strategy     string `json:"strategy"`
}

func (s *ConversationFlowSuite) listThreads(org string) []threadRow {
	rec := s.call(http.MethodGet, "/api/threads", org, "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data []threadRow `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func (s *ConversationFlowSuite) connectSMTP() (net.Conn, *bufio.Reader) {
	conn, err := net.DialTimeout("tcp", s.smtpAddr, 5*time.Second)
	s.Require().NoError(err)
	reader := bufio.NewReader(conn)
	s.expect(reader, "220")
	return conn, reader
}

// expect reads one reply, skipping EHLO continuation lines
func (s *ConversationFlowSuite) expect(reader *bufio.Reader, code string) string {
	for {
		line, err := reader.ReadString('\n')
		s.Require().NoError(err)
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, code+"-") {
			continue
		}
		s.Require().True(strings.HasPrefix(line, code), "expected %s, got %q", code, line)
		return line
	}
}

func (s *ConversationFlowSuite) send(conn net.Conn, cmd string) {
	_, err := conn.Write([]byte(cmd + "\r\n"))
	s.Require().NoError(err)
}

// deliver runs a full SMTP transaction and requires it to be accepted
func (s *ConversationFlowSuite) deliver(from string, rcpts []string, message string) {
	conn, reader := s.connectSMTP()
	defer conn.Close()

	s.send(conn, "EHLO client.e2e.test")
	s.expect(reader, "250")
	s.send(conn, "MAIL FROM:<"+from+">")
	s.expect(reader, "250")
	for _, rcpt := range rcpts {
		s.send(conn, "RCPT TO:<"+rcpt+">")
		s.expect(reader, "250")
	}
	s.send(conn, "DATA")
	s.expect(reader, "354")
	s.send(conn, strings.ReplaceAll(message, "\n", "\r\n")+"\r\n.")
	s.expect(reader, "250")
	s.send(conn, "QUIT")
	s.expect(reader, "221")
}

// ==================== Flow Tests ====================

func (s *ConversationFlowSuite) TestE2E_ReplyChainBecomesOneThread() {
	s.registerDomain("acme", "acme.test")

	s.deliver("alice@example.com", []string{"support@acme.test"}, `From: Alice <alice@example.com>
To: support@acme.test
Subject: Order 42 is late
Message-ID: <root-42@example.com>

Where is my order?`)

	s.deliver("alice@example.com", []string{"support@acme.test"}, `From: Alice <alice@example.com>
To: support@acme.test
Subject: Re: Order 42 is late
Message-ID: <reply-42@example.com>
In-Reply-To: <root-42@example.com>
References: <root-42@example.com>

Any news?`)

	threads := s.listThreads("acme")
	s.Require().Len(threads, 1)
	s.Equal(2, threads[0].MessageCount)
	s.Equal(2, threads[0].UnreadCount)
	s.Equal("Order 42 is late", threads[0].Subject)

	messages := s.call(http.MethodGet, "/api/threads/"+threads[0].ID+"/messages", "acme", "")
	s.Equal(http.StatusOK, messages.Code)
	s.Contains(messages.Body.String(), "root-42@example.com")
	s.Contains(messages.Body.String(), "reply-42@example.com")
}

func (s *ConversationFlowSuite) TestE2E_SubjectFollowUpJoinsThread() {
	s.registerDomain("acme", "acme.test")

	s.deliver("bob@example.com", []string{"billing@acme.test"}, `From: bob@example.com
To: billing@acme.test
Subject: Invoice 7
Message-ID: <inv-7@example.com>

Please resend.`)

	// no reply headers; same participants and subject
	s.deliver("bob@example.com", []string{"billing@acme.test"}, `From: bob@example.com
To: billing@acme.test
Subject: RE: Invoice 7
Message-ID: <inv-7-followup@example.com>

Still waiting.`)

	threads := s.listThreads("acme")
	s.Require().Len(threads, 1)
	s.Equal(2, threads[0].MessageCount)
}

func (s *ConversationFlowSuite) TestE2E_RedeliveryIsNotCountedTwice() {
	s.registerDomain("acme", "acme.test")
	message := `From: carol@example.com
To: support@acme.test
Subject: Hello
Message-ID: <hello@example.com>

hi`

	s.deliver("carol@example.com", []string{"support@acme.test"}, message)
	s.deliver("carol@example.com", []string{"support@acme.test"}, message)

	threads := s.listThreads("acme")
	s.Require().Len(threads, 1)
	s.Equal(1, threads[0].MessageCount)
}

func (s *ConversationFlowSuite) TestE2E_OneMessageTwoOrganizations() {
	s.registerDomain("acme", "acme.test")
	s.registerDomain("globex", "globex.test")

	s.deliver("dave@example.com", []string{"sales@acme.test", "sales@globex.test"}, `From: dave@example.com
To: sales@acme.test, sales@globex.test
Subject: Partnership
Message-ID: <partner@example.com>

Let's talk.`)

	acme := s.listThreads("acme")
	globex := s.listThreads("globex")
	s.Require().Len(acme, 1)
	s.Require().Len(globex, 1)
	s.NotEqual(acme[0].ID, globex[0].ID)

	s.Equal(http.StatusNotFound, s.call(http.MethodGet, "/api/threads/"+acme[0].ID, "globex", "").Code)
}

func (s *ConversationFlowSuite) TestE2E_SMTPRejectsUnknownDomain() {
	conn, reader := s.connectSMTP()
	defer conn.Close()

	s.send(conn, "EHLO client.e2e.test")
	s.expect(reader, "250")
	s.send(conn, "MAIL FROM:<eve@example.com>")
	s.expect(reader, "250")
	s.send(conn, "RCPT TO:<someone@unregistered.test>")
	s.expect(reader, "550")
	s.send(conn, "QUIT")
}

func (s *ConversationFlowSuite) TestE2E_InactiveDomainIsRejected() {
	rec := s.call(http.MethodPost, "/api/domains", "acme", `{"name": "paused.test", "is_active": false}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	conn, reader := s.connectSMTP()
	defer conn.Close()

	s.send(conn, "EHLO client.e2e.test")
	s.expect(reader, "250")
	s.send(conn, "MAIL FROM:<eve@example.com>")
	s.expect(reader, "250")
	s.send(conn, "RCPT TO:<ops@paused.test>")
	s.expect(reader, "550")
}
