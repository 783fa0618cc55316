package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/welldanyogia/infinimail-threads/internal/logger"
)

// originPolicy is the CheckOrigin allow-list. Browsers always send Origin
// on a websocket handshake, so an empty header means a non-browser client.
type originPolicy struct {
	any      bool
	allowed  map[string]struct{}
	security *logger.SecurityLogger
}

func (p originPolicy) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p.any {
		return true
	}
	if _, ok := p.allowed[origin]; ok {
		return true
	}
	p.security.OriginRejected(r.RemoteAddr, origin)
	return false
}

// NewSecureUpgrader creates a websocket upgrader that only accepts the
// given origins. A "*" entry accepts any origin.
func NewSecureUpgrader(allowedOrigins []string, security *logger.SecurityLogger) websocket.Upgrader {
	policy := originPolicy{allowed: make(map[string]struct{}, len(allowedOrigins)), security: security}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			policy.any = true
		}
		policy.allowed[origin] = struct{}{}
	}

	return websocket.Upgrader{
		CheckOrigin:     policy.check,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}
