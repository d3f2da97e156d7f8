// Package wstransport implements transport.Transport over a single
// WebSocket connection, one binary WS message per SPDM message -- no
// JSON envelope, no message-ID correlation, since an SPDM connection is
// strictly synchronous request/response (spec.md §5).
package wstransport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport wraps a single *websocket.Conn as a transport.Transport.
type Transport struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// New wraps an already-established connection (client-dialed or
// server-upgraded) with the default timeouts.
func New(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn, readTimeout: 60 * time.Second, writeTimeout: 30 * time.Second}
}

// Dial opens a client-side connection to url.
func Dial(ctx context.Context, url string) (*Transport, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wstransport: dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wstransport: dial failed: %w", err)
	}
	return New(conn), nil
}

// Send writes msg as one binary WebSocket frame.
func (t *Transport) Send(msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return fmt.Errorf("wstransport: set write deadline: %w", err)
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, msg)
}

// Receive reads the next binary WebSocket frame into buf.
func (t *Transport) Receive(buf []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return 0, fmt.Errorf("wstransport: set read deadline: %w", err)
	}
	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("wstransport: read: %w", err)
	}
	if kind != websocket.BinaryMessage {
		return 0, fmt.Errorf("wstransport: unexpected frame type %d", kind)
	}
	if len(data) > len(buf) {
		return 0, fmt.Errorf("wstransport: message larger than receive buffer")
	}
	return copy(buf, data), nil
}

// Close sends a normal-closure control frame and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}

// ConnHandler is invoked once per accepted server connection with a
// Transport wrapping it; typically it runs a responder.Engine loop until
// the transport errors or the handler returns.
type ConnHandler func(ctx context.Context, t *Transport)

// Server upgrades incoming HTTP connections to WebSocket and dispatches
// each one to a ConnHandler, one goroutine per connection.
type Server struct {
	handler  ConnHandler
	upgrader websocket.Upgrader
}

// NewServer builds a Server that upgrades requests and runs handler on
// each accepted connection.
func NewServer(handler ConnHandler) *Server {
	return &Server{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns an http.Handler suitable for mounting on a mux.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("wstransport: upgrade failed: %v", err), http.StatusBadRequest)
			return
		}
		t := New(conn)
		defer func() { _ = t.Close() }()
		s.handler(r.Context(), t)
	})
}
