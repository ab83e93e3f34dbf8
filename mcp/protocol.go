// Package mcp implements the client side of the tool-provider protocol:
// JSON-RPC request/response correlation over a pluggable transport, and
// the capability-discovery and invocation operations built on top of it.
package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/coyaSONG/coya-mcp-client", "mcp")

// DefaultRequestTimeout bounds a single request when the caller supplies
// no deadline of its own.
const DefaultRequestTimeout = 60 * time.Second

type responseEnvelope struct {
	result json.RawMessage
	err    error
}

// Protocol provides request/response correlation on top of a Transport.
// Concurrent requests are matched to their responses by request ID.
type Protocol struct {
	tr transport.Transport

	mu        sync.Mutex
	nextID    transport.RequestID
	pending   map[transport.RequestID]chan *responseEnvelope
	connected bool

	// OnNotification, if set, receives server-initiated notifications.
	OnNotification func(method string, params json.RawMessage)
}

// NewProtocol creates a protocol instance bound to the transport.
func NewProtocol(tr transport.Transport) *Protocol {
	return &Protocol{
		tr:      tr,
		pending: make(map[transport.RequestID]chan *responseEnvelope),
	}
}

// Connect attaches the handlers and starts the transport.
func (p *Protocol) Connect(ctx context.Context) error {
	p.tr.SetMessageHandler(p.handleMessage)
	p.tr.SetErrorHandler(func(err error) {
		logger.KV(xlog.WARNING, "status", "transport_error", "err", err.Error())
	})
	p.tr.SetCloseHandler(p.handleClose)

	if err := p.tr.Start(ctx); err != nil {
		return errors.WithMessage(err, "failed to start transport")
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Close closes the underlying transport.
func (p *Protocol) Close() error {
	return p.tr.Close()
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connected = false
	for id, ch := range p.pending {
		ch <- &responseEnvelope{err: errors.New("connection closed")}
		delete(p.pending, id)
	}
}

func (p *Protocol) handleMessage(ctx context.Context, msg *transport.Message) {
	switch msg.Type {
	case transport.MessageTypeResponse:
		p.settle(msg.Response.ID, &responseEnvelope{result: msg.Response.Result})
	case transport.MessageTypeError:
		p.settle(msg.Error.ID, &responseEnvelope{
			err: errors.Newf("RPC error %d: %s", msg.Error.Error.Code, msg.Error.Error.Message),
		})
	case transport.MessageTypeNotification:
		p.mu.Lock()
		handler := p.OnNotification
		p.mu.Unlock()
		if handler != nil {
			handler(msg.Notification.Method, msg.Notification.Params)
		}
	case transport.MessageTypeRequest:
		// The client does not serve requests.
		logger.KV(xlog.DEBUG, "status", "ignored_server_request", "method", msg.Request.Method)
	}
}

func (p *Protocol) settle(id transport.RequestID, env *responseEnvelope) {
	p.mu.Lock()
	ch := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()

	if ch != nil {
		ch <- env
	}
}

// Call sends one request and waits for the matching response. The wait
// is bounded by the context and by DefaultRequestTimeout; on expiry a
// cancellation notification is sent best-effort and an error returned.
func (p *Protocol) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal params")
		}
		raw = bs
	}

	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil, errors.New("not connected")
	}
	id := p.nextID
	p.nextID++
	ch := make(chan *responseEnvelope, 1)
	p.pending[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	req := &transport.Request{
		Jsonrpc: "2.0",
		ID:      id,
		Method:  method,
		Params:  raw,
	}
	if err := p.tr.Send(ctx, transport.NewRequestMessage(req)); err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	timer := time.NewTimer(DefaultRequestTimeout)
	defer timer.Stop()

	select {
	case env := <-ch:
		if env.err != nil {
			return nil, env.err
		}
		return env.result, nil
	case <-ctx.Done():
		p.cancelRequest(id, ctx.Err().Error())
		return nil, errors.WithStack(ctx.Err())
	case <-timer.C:
		p.cancelRequest(id, "request timeout")
		return nil, errors.Newf("request %s timed out after %v", method, DefaultRequestTimeout)
	}
}

// Notify emits a one-way notification.
func (p *Protocol) Notify(method string, params any) error {
	var raw json.RawMessage
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return errors.Wrap(err, "failed to marshal params")
		}
		raw = bs
	}
	n := &transport.Notification{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  raw,
	}
	return p.tr.Send(context.Background(), transport.NewNotificationMessage(n))
}

func (p *Protocol) cancelRequest(id transport.RequestID, reason string) {
	err := p.Notify("notifications/cancelled", map[string]any{
		"requestId": id,
		"reason":    reason,
	})
	if err != nil {
		logger.KV(xlog.DEBUG, "status", "cancel_notification_failed", "err", err.Error())
	}
}
