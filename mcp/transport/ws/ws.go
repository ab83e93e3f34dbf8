// Package ws implements the WebSocket transport for remote tool
// providers: one JSON-RPC message per text frame.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport"
	"github.com/effective-security/xlog"
	"github.com/gorilla/websocket"
)

var logger = xlog.NewPackageLogger("github.com/coyaSONG/coya-mcp-client", "ws")

// DefaultHandshakeTimeout bounds the dial when the caller's context has
// no deadline.
const DefaultHandshakeTimeout = 15 * time.Second

// Transport connects to a provider over a WebSocket endpoint.
type Transport struct {
	url    string
	dialer *websocket.Dialer

	mu             sync.Mutex
	conn           *websocket.Conn
	closed         bool
	messageHandler func(ctx context.Context, message *transport.Message)
	errorHandler   func(error)
	closeHandler   func()
}

// Option configures the transport.
type Option func(*Transport)

// WithDialer overrides the default dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) {
		t.dialer = d
	}
}

// New creates a WebSocket transport for the given ws:// or wss:// URL.
func New(url string, ops ...Option) *Transport {
	t := &Transport{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
	}
	for _, op := range ops {
		op(t)
	}
	return t
}

// Start dials the endpoint and begins reading frames.
func (t *Transport) Start(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", t.url)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(ctx, conn)
	return nil
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, body, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.reportError(errors.Wrap(err, "websocket read failed"))
			}
			t.notifyClosed()
			return
		}

		msg, err := transport.Decode(body)
		if err != nil {
			t.reportError(errors.WithMessage(err, "discarding malformed frame"))
			continue
		}

		t.mu.Lock()
		handler := t.messageHandler
		t.mu.Unlock()
		if handler != nil {
			handler(ctx, msg)
		}
	}
}

// Send writes one message as a text frame. Writes are serialized; the
// websocket package allows only one concurrent writer.
func (t *Transport) Send(_ context.Context, message *transport.Message) error {
	bs, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closed {
		return errors.New("transport not started or already closed")
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, bs); err != nil {
		return errors.Wrap(err, "failed to write websocket frame")
	}
	return nil
}

// Close sends a close frame and tears the connection down.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		err := conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		if err != nil {
			logger.KV(xlog.DEBUG, "status", "close_frame_failed", "err", err.Error())
		}
		_ = conn.Close()
	}
	t.notifyClosed()
	return nil
}

func (t *Transport) notifyClosed() {
	t.mu.Lock()
	handler := t.closeHandler
	t.closeHandler = nil
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (t *Transport) reportError(err error) {
	t.mu.Lock()
	handler := t.errorHandler
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// SetMessageHandler implements transport.Transport.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements transport.Transport.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements transport.Transport.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

var _ transport.Transport = (*Transport)(nil)
