// Package local provides an in-process transport pair: two endpoints
// whose sends are delivered directly to the peer's message handler. It
// backs in-process tool providers and protocol tests.
package local

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport"
)

// Endpoint is one side of an in-process transport pair.
type Endpoint struct {
	mu             sync.Mutex
	peer           *Endpoint
	started        bool
	closed         bool
	messageHandler func(ctx context.Context, message *transport.Message)
	errorHandler   func(error)
	closeHandler   func()
}

// Pipe creates a connected pair of endpoints. Messages sent on one are
// delivered to the other.
func Pipe() (*Endpoint, *Endpoint) {
	a := &Endpoint{}
	b := &Endpoint{}
	a.peer = b
	b.peer = a
	return a, b
}

// Start marks the endpoint ready to deliver messages.
func (e *Endpoint) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("endpoint already closed")
	}
	e.started = true
	return nil
}

// Send delivers the message to the peer's handler on a new goroutine,
// mirroring the asynchrony of the wire transports.
func (e *Endpoint) Send(ctx context.Context, message *transport.Message) error {
	e.mu.Lock()
	if !e.started || e.closed {
		e.mu.Unlock()
		return errors.New("endpoint not started or already closed")
	}
	peer := e.peer
	e.mu.Unlock()

	peer.mu.Lock()
	handler := peer.messageHandler
	ready := peer.started && !peer.closed
	peer.mu.Unlock()

	if !ready {
		return errors.New("peer not ready")
	}
	if handler != nil {
		go handler(ctx, message)
	}
	return nil
}

// Close closes both sides of the pair.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	peer := e.peer
	handler := e.closeHandler
	e.closeHandler = nil
	e.mu.Unlock()

	if handler != nil {
		handler()
	}
	if peer != nil {
		peer.closeFromPeer()
	}
	return nil
}

func (e *Endpoint) closeFromPeer() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	handler := e.closeHandler
	e.closeHandler = nil
	e.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// SetMessageHandler implements transport.Transport.
func (e *Endpoint) SetMessageHandler(handler func(ctx context.Context, message *transport.Message)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messageHandler = handler
}

// SetErrorHandler implements transport.Transport.
func (e *Endpoint) SetErrorHandler(handler func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorHandler = handler
}

// SetCloseHandler implements transport.Transport.
func (e *Endpoint) SetCloseHandler(handler func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeHandler = handler
}

var _ transport.Transport = (*Endpoint)(nil)
