// Package registry owns the set of connected tool providers: connect
// and disconnect lifecycle, cached capability catalogs, and tool
// invocation on behalf of a conversation.
package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/mcp"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport/stdio"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport/ws"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

var logger = xlog.NewPackageLogger("github.com/coyaSONG/coya-mcp-client", "registry")

var (
	// ErrUnknownProvider is returned for operations on a provider id
	// that is not connected.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnknownTool is returned when the tool name is absent from the
	// provider's catalog. Produced locally, without contacting the
	// provider.
	ErrUnknownTool = errors.New("unknown tool")
)

// ConnectionError reports a failed connect: the transport could not be
// opened, the handshake failed, or discovery failed after the transport
// was up.
type ConnectionError struct {
	ProviderID string
	Err        error
}

func (e *ConnectionError) Error() string {
	return "failed to connect provider " + e.ProviderID + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProviderError reports an invocation that reached the provider but
// failed there: a transport error mid-call or an application-level
// error result.
type ProviderError struct {
	ProviderID string
	Tool       string
	Reason     string
}

func (e *ProviderError) Error() string {
	return "tool " + e.Tool + " on provider " + e.ProviderID + " failed: " + e.Reason
}

// TransportKind selects how a provider is reached.
type TransportKind string

const (
	// KindLocalProcess spawns the provider as a subprocess and talks
	// over its stdio.
	KindLocalProcess TransportKind = "local-process"
	// KindRemoteEndpoint connects to a provider over a WebSocket URL.
	KindRemoteEndpoint TransportKind = "remote-endpoint"
	// KindInProcess uses a caller-supplied transport, typically a local
	// pipe to an in-process tool server.
	KindInProcess TransportKind = "in-process"
)

// TransportSpec describes how to reach one provider.
type TransportSpec struct {
	Kind       TransportKind `json:"kind" yaml:"kind" validate:"required,oneof=local-process remote-endpoint in-process"`
	ServerPath string        `json:"server_path,omitempty" yaml:"server_path,omitempty" validate:"required_if=Kind local-process"`
	Args       []string      `json:"args,omitempty" yaml:"args,omitempty"`
	URL        string        `json:"url,omitempty" yaml:"url,omitempty" validate:"required_if=Kind remote-endpoint,omitempty,uri"`

	// Transport carries the endpoint for KindInProcess. Never
	// serialized.
	Transport transport.Transport `json:"-" yaml:"-"`
}

var validate = validator.New()

// Validate checks the spec for structural completeness.
func (s *TransportSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.Wrap(err, "invalid transport spec")
	}
	if s.Kind == KindInProcess && s.Transport == nil {
		return errors.New("invalid transport spec: in-process kind requires a transport")
	}
	return nil
}

// State is the connection state of one provider session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Session is one provider the registry tracks. Fields are guarded by
// the registry's lock; callers receive copies of the catalog.
type Session struct {
	ID   string
	Kind TransportKind

	state   State
	client  *mcp.Client
	catalog []mcp.ToolDescriptor
	byName  map[string]mcp.ToolDescriptor
}

// State returns the session's connection state at the time of the last
// registry operation that observed it.
func (s *Session) State() State {
	return s.state
}

// Registry tracks provider sessions and serves tool resolution and
// invocation. Safe for concurrent use.
type Registry struct {
	clientInfo mcp.Implementation

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates an empty registry identifying itself to providers as
// info.
func New(info mcp.Implementation) *Registry {
	return &Registry{
		clientInfo: info,
		sessions:   make(map[string]*Session),
	}
}

func (r *Registry) newTransport(spec TransportSpec) (transport.Transport, error) {
	switch spec.Kind {
	case KindLocalProcess:
		return stdio.New(spec.ServerPath, spec.Args...)
	case KindRemoteEndpoint:
		return ws.New(spec.URL), nil
	case KindInProcess:
		return spec.Transport, nil
	}
	return nil, errors.Newf("unsupported transport kind: %q", spec.Kind)
}

// Connect establishes a session with the provider, discovers its tool
// catalog, and returns the session. Connecting an already-connected id
// returns the existing session unchanged. Fails closed: if discovery
// fails after the transport is open, the transport is torn down, the
// session is marked failed, and no partial catalog is exposed.
func (r *Registry) Connect(ctx context.Context, providerID string, spec TransportSpec) (*Session, error) {
	if providerID == "" {
		return nil, errors.New("provider id is required")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing := r.sessions[providerID]; existing != nil {
		switch existing.state {
		case StateConnected:
			r.mu.Unlock()
			return existing, nil
		case StateConnecting:
			r.mu.Unlock()
			return nil, errors.Newf("provider %s: connect already in progress", providerID)
		}
		// A failed or disconnected entry is replaced.
	}
	sess := &Session{
		ID:    providerID,
		Kind:  spec.Kind,
		state: StateConnecting,
	}
	r.sessions[providerID] = sess
	r.mu.Unlock()

	client, catalog, err := r.dial(ctx, spec)
	if err != nil {
		r.mu.Lock()
		sess.state = StateFailed
		r.mu.Unlock()
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "connect_failed",
			"provider", providerID,
			"err", err.Error())
		return nil, &ConnectionError{ProviderID: providerID, Err: err}
	}

	byName := make(map[string]mcp.ToolDescriptor, len(catalog))
	for _, td := range catalog {
		byName[td.Name] = td
	}

	r.mu.Lock()
	sess.client = client
	sess.catalog = catalog
	sess.byName = byName
	sess.state = StateConnected
	r.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"provider", providerID,
		"tools", len(catalog))
	return sess, nil
}

func (r *Registry) dial(ctx context.Context, spec TransportSpec) (*mcp.Client, []mcp.ToolDescriptor, error) {
	tr, err := r.newTransport(spec)
	if err != nil {
		return nil, nil, err
	}
	client := mcp.NewClient(tr, r.clientInfo)
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	catalog, err := client.ListTools(ctx)
	if err != nil {
		_ = client.Close()
		return nil, nil, errors.WithMessage(err, "tool discovery failed")
	}
	return client, catalog, nil
}

// Disconnect tears down the provider's transport and removes the
// session. Unknown ids are a no-op.
func (r *Registry) Disconnect(providerID string) {
	r.mu.Lock()
	sess := r.sessions[providerID]
	delete(r.sessions, providerID)
	r.mu.Unlock()

	if sess == nil || sess.client == nil {
		return
	}
	if err := sess.client.Close(); err != nil {
		logger.KV(xlog.DEBUG, "status", "close_failed", "provider", providerID, "err", err.Error())
	}
}

// Close disconnects every provider.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for id, sess := range sessions {
		if sess.client == nil {
			continue
		}
		if err := sess.client.Close(); err != nil {
			logger.KV(xlog.DEBUG, "status", "close_failed", "provider", id, "err", err.Error())
		}
	}
}

// ListTools returns a copy of the cached catalog for the provider. It
// never re-queries the provider.
func (r *Registry) ListTools(providerID string) ([]mcp.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess := r.sessions[providerID]
	if sess == nil || sess.state != StateConnected {
		return nil, errors.WithMessagef(ErrUnknownProvider, "%s", providerID)
	}
	catalog := make([]mcp.ToolDescriptor, len(sess.catalog))
	copy(catalog, sess.catalog)
	return catalog, nil
}

// Providers returns the ids of connected providers.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id, sess := range r.sessions {
		if sess.state == StateConnected {
			ids = append(ids, id)
		}
	}
	return ids
}

// Invoke calls the named tool on the provider with raw JSON arguments
// and returns the textual result. Resolution failures are returned as
// ErrUnknownProvider or ErrUnknownTool without any transport I/O;
// failures past resolution come back as *ProviderError.
func (r *Registry) Invoke(ctx context.Context, providerID, toolName string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	sess := r.sessions[providerID]
	if sess == nil || sess.state != StateConnected {
		r.mu.RUnlock()
		return "", errors.WithMessagef(ErrUnknownProvider, "%s", providerID)
	}
	if _, ok := sess.byName[toolName]; !ok {
		r.mu.RUnlock()
		return "", errors.WithMessagef(ErrUnknownTool, "%s on provider %s", toolName, providerID)
	}
	client := sess.client
	r.mu.RUnlock()

	res, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		return "", &ProviderError{ProviderID: providerID, Tool: toolName, Reason: err.Error()}
	}
	if res.IsError {
		return "", &ProviderError{ProviderID: providerID, Tool: toolName, Reason: res.Text()}
	}
	return res.Text(), nil
}
