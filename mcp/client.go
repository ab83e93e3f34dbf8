package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport"
)

// ProtocolVersion is the provider protocol revision this client speaks.
const ProtocolVersion = "2024-11-05"

// ToolDescriptor is one capability advertised by a provider.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Content is one content item of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the provider's answer to one invocation. IsError
// marks an application-level failure; the content then carries the
// failure text.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text joins the textual content items of the result.
func (r *CallToolResult) Text() string {
	var sb strings.Builder
	for _, c := range r.Content {
		if c.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// Implementation identifies a protocol party in the initialize handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult is the provider's half of the handshake.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      Implementation `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Client speaks the tool-provider protocol over one transport.
type Client struct {
	proto *Protocol
	info  Implementation

	serverInfo Implementation
}

// NewClient creates a client for the given transport.
func NewClient(tr transport.Transport, info Implementation) *Client {
	return &Client{
		proto: NewProtocol(tr),
		info:  info,
	}
}

// Connect starts the transport and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.proto.Connect(ctx); err != nil {
		return err
	}

	raw, err := c.proto.Call(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ClientInfo:      c.info,
	})
	if err != nil {
		return errors.WithMessage(err, "initialize failed")
	}

	var res InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return errors.Wrap(err, "failed to unmarshal initialize result")
	}
	c.serverInfo = res.ServerInfo

	if err := c.proto.Notify("notifications/initialized", map[string]any{}); err != nil {
		return errors.WithMessage(err, "failed to confirm initialization")
	}
	return nil
}

// ServerInfo returns the provider identity from the handshake.
func (c *Client) ServerInfo() Implementation {
	return c.serverInfo
}

// ListTools queries the provider's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	raw, err := c.proto.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var res listToolsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tool catalog")
	}
	return res.Tools, nil
}

// CallTool invokes one tool by name with a raw JSON arguments payload.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*CallToolResult, error) {
	raw, err := c.proto.Call(ctx, "tools/call", callToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}
	var res CallToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tool result")
	}
	return &res, nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	return c.proto.Close()
}
