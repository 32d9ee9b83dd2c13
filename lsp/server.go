package lsp

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	glspserver "github.com/tliron/glsp/server"
	"go.uber.org/zap"

	"github.com/teranos/storyline/logger"
)

// DefaultAllowedOrigins are accepted for browser WebSocket clients.
var DefaultAllowedOrigins = []string{
	"http://localhost:*",
	"https://localhost:*",
	"http://127.0.0.1:*",
	"http://[::1]:*",
}

// RunStdio serves one client over stdin/stdout until it disconnects.
func RunStdio(h *Handler) error {
	server := glspserver.NewServer(h.Protocol(), ServerName, false)
	return server.RunStdio()
}

// WebSocketHandler upgrades HTTP requests and serves LSP over each
// connection. newHandler is called once per connection so every client gets
// its own document cache.
func WebSocketHandler(newHandler func() *Handler, allowedOrigins []string, log *zap.SugaredLogger) http.Handler {
	log = logger.OrGlobal(log, "lsp.ws")
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: originChecker(allowedOrigins, log),
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Infow("LSP WebSocket connection request", "remote", r.RemoteAddr)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorw("Failed to upgrade WebSocket", logger.FieldError, err)
			return
		}

		h := newHandler()
		server := glspserver.NewServer(h.Protocol(), ServerName, false)

		// Blocks until the connection closes
		server.ServeWebSocket(conn)
		_ = h.Shutdown(nil)

		log.Infow("LSP WebSocket connection closed", "remote", r.RemoteAddr)
	})
}

// originChecker accepts browser origins matching an allowed pattern and,
// from loopback addresses only, clients that send no Origin (editors, CLI
// tools).
func originChecker(allowed []string, log *zap.SugaredLogger) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil || !isLoopback(host) {
				log.Warnw("WebSocket rejected - empty origin from remote host", "remote", r.RemoteAddr)
				return false
			}
			return true
		}
		if originAllowed(origin, allowed) {
			return true
		}
		log.Warnw("WebSocket origin rejected",
			"origin", origin,
			"remote", r.RemoteAddr,
			"allowed_origins", allowed)
		return false
	}
}

// originAllowed matches origin against patterns of the form
// scheme://host[:port], where a port of "*" accepts any port or none. The
// pattern "*" accepts every origin.
func originAllowed(origin string, allowed []string) bool {
	o, err := url.Parse(origin)
	if err != nil || o.Scheme == "" || o.Host == "" || o.User != nil ||
		(o.Path != "" && o.Path != "/") || o.RawQuery != "" || o.Fragment != "" {
		return false
	}
	for _, pattern := range allowed {
		if pattern == "*" {
			return true
		}
		scheme, host, port, ok := parseOriginPattern(pattern)
		if !ok {
			continue
		}
		if !strings.EqualFold(scheme, o.Scheme) || !strings.EqualFold(host, o.Hostname()) {
			continue
		}
		if port == "*" || port == o.Port() {
			return true
		}
	}
	return false
}

// parseOriginPattern splits scheme://host[:port]; url.Parse rejects the
// "*" port, so it is taken off first.
func parseOriginPattern(pattern string) (scheme, host, port string, ok bool) {
	rest := pattern
	if strings.HasSuffix(rest, ":*") {
		rest = strings.TrimSuffix(rest, ":*")
		port = "*"
	}
	u, err := url.Parse(rest)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", "", false
	}
	if port == "" {
		port = u.Port()
	}
	return u.Scheme, u.Hostname(), port, true
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}
