// Package toolserver serves a set of tools over a transport endpoint,
// answering the discovery and invocation requests a client issues. It
// backs in-process providers and end-to-end tests.
package toolserver

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/mcp"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport"
	"github.com/coyaSONG/coya-mcp-client/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/coyaSONG/coya-mcp-client", "toolserver")

// JSON-RPC error codes.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Server answers protocol requests for a fixed tool set.
type Server struct {
	info mcp.Implementation
	tr   transport.Transport

	mu    sync.Mutex
	tools map[string]tools.Tool
	order []string
}

// New creates a server with the given identity over the transport.
func New(tr transport.Transport, info mcp.Implementation, served ...tools.Tool) *Server {
	s := &Server{
		info:  info,
		tr:    tr,
		tools: make(map[string]tools.Tool),
	}
	for _, t := range served {
		s.AddTool(t)
	}
	return s
}

// AddTool registers a tool. A tool with the same name is replaced.
func (s *Server) AddTool(t tools.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[t.Name()]; !ok {
		s.order = append(s.order, t.Name())
	}
	s.tools[t.Name()] = t
}

// Start attaches the request handler and starts the transport.
func (s *Server) Start(ctx context.Context) error {
	s.tr.SetMessageHandler(s.handleMessage)
	s.tr.SetErrorHandler(func(err error) {
		logger.KV(xlog.WARNING, "status", "transport_error", "err", err.Error())
	})
	return s.tr.Start(ctx)
}

// Close shuts the transport down.
func (s *Server) Close() error {
	return s.tr.Close()
}

func (s *Server) handleMessage(ctx context.Context, msg *transport.Message) {
	switch msg.Type {
	case transport.MessageTypeRequest:
		s.handleRequest(ctx, msg.Request)
	case transport.MessageTypeNotification:
		logger.KV(xlog.DEBUG, "status", "notification", "method", msg.Notification.Method)
	default:
		logger.KV(xlog.DEBUG, "status", "ignored_message", "type", msg.Type)
	}
}

func (s *Server) handleRequest(ctx context.Context, req *transport.Request) {
	var result any
	var err error
	code := codeInternalError

	switch req.Method {
	case "initialize":
		result = mcp.InitializeResult{
			ProtocolVersion: mcp.ProtocolVersion,
			ServerInfo:      s.info,
		}
	case "tools/list":
		result, err = s.listTools()
	case "tools/call":
		result, code, err = s.callTool(ctx, req.Params)
	default:
		code = codeMethodNotFound
		err = errors.Newf("method not found: %s", req.Method)
	}

	if err != nil {
		s.respondError(ctx, req.ID, code, err)
		return
	}
	s.respond(ctx, req.ID, result)
}

func (s *Server) listTools() (*listToolsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &listToolsResult{Tools: make([]mcp.ToolDescriptor, 0, len(s.order))}
	for _, name := range s.order {
		t := s.tools[name]
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal schema for tool %s", name)
		}
		res.Tools = append(res.Tools, mcp.ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: schema,
		})
	}
	return res, nil
}

type listToolsResult struct {
	Tools []mcp.ToolDescriptor `json:"tools"`
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (*mcp.CallToolResult, int, error) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, codeInvalidParams, errors.Wrap(err, "invalid tools/call params")
	}

	s.mu.Lock()
	t := s.tools[p.Name]
	s.mu.Unlock()
	if t == nil {
		return nil, codeInvalidParams, errors.Newf("unknown tool: %s", p.Name)
	}

	input := "{}"
	if len(p.Arguments) > 0 {
		input = string(p.Arguments)
	}
	out, err := t.Call(ctx, input)
	if err != nil {
		// Tool failures are results, not protocol errors.
		return &mcp.CallToolResult{
			Content: []mcp.Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, 0, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{{Type: "text", Text: out}},
	}, 0, nil
}

func (s *Server) respond(ctx context.Context, id transport.RequestID, result any) {
	bs, err := json.Marshal(result)
	if err != nil {
		s.respondError(ctx, id, codeInternalError, errors.Wrap(err, "failed to marshal result"))
		return
	}
	err = s.tr.Send(ctx, transport.NewResponseMessage(&transport.Response{
		Jsonrpc: "2.0",
		ID:      id,
		Result:  bs,
	}))
	if err != nil {
		logger.KV(xlog.WARNING, "status", "send_failed", "err", err.Error())
	}
}

func (s *Server) respondError(ctx context.Context, id transport.RequestID, code int, cause error) {
	err := s.tr.Send(ctx, transport.NewErrorMessage(&transport.ErrorResponse{
		Jsonrpc: "2.0",
		ID:      id,
		Error: transport.ErrorDetail{
			Code:    code,
			Message: cause.Error(),
		},
	}))
	if err != nil {
		logger.KV(xlog.WARNING, "status", "send_failed", "err", err.Error())
	}
}
