// Package backend implements the completion client for the model
// backend: one chat-completions request per call, mapping the
// transcript and tool catalog to the wire format and the response back
// to content or requested tool calls. The client holds no state between
// calls and never retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/chatmodel"
	"github.com/coyaSONG/coya-mcp-client/mcp"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/coyaSONG/coya-mcp-client", "backend")

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

var (
	// ErrEmptyResponse is returned when the backend answers without any
	// choices.
	ErrEmptyResponse = errors.New("backend returned empty response")
	// ErrMissingToken is returned when no API key is configured.
	ErrMissingToken = errors.New("missing API key")
)

// Error is a backend failure: the request did not produce a usable
// completion. It terminates the current turn.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend error, status code: %d, message: %s", e.StatusCode, e.Message)
	}
	return "backend error: " + e.Message
}

// Doer performs an HTTP request. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one chat-completions backend.
type Client struct {
	token      string
	baseURL    string
	referer    string
	title      string
	httpClient Doer
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithAttribution sets the HTTP-Referer and X-Title identification
// headers sent with completion requests.
func WithAttribution(referer, title string) Option {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

// New creates a client authenticated with the given API key.
func New(token string, ops ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.WithStack(ErrMissingToken)
	}
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, op := range ops {
		op(c)
	}
	return c, nil
}

// ToolSchema is one callable function offered to the model.
type ToolSchema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes the function's name and argument schema.
type FunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolSchemas translates a provider catalog into the backend's
// function-schema shape.
func ToolSchemas(catalog []mcp.ToolDescriptor) []ToolSchema {
	if len(catalog) == 0 {
		return nil
	}
	schemas := make([]ToolSchema, 0, len(catalog))
	for _, td := range catalog {
		schemas = append(schemas, ToolSchema{
			Type: "function",
			Function: FunctionSchema{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.InputSchema,
			},
		})
	}
	return schemas
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	// Tools is omitted entirely when nil; an empty list means something
	// different to the backend than its absence.
	Tools []ToolSchema `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Usage is the token accounting the backend reports per request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the outcome of one request: plain content, or one or
// more requested tool calls with optional content.
type Completion struct {
	Content    string
	ToolCalls  []chatmodel.ToolCall
	StopReason string
	Usage      Usage
}

func encodeMessages(messages []chatmodel.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

// Complete sends the transcript and tool schemas to the backend and
// returns one completion. Any failure is a *Error.
func (c *Client) Complete(ctx context.Context, model string, messages []chatmodel.Message, tools []ToolSchema) (*Completion, error) {
	req := chatRequest{
		Model:    model,
		Messages: encodeMessages(messages),
		Tools:    tools,
	}

	var res chatResponse
	if err := c.post(ctx, "/chat/completions", req, &res); err != nil {
		return nil, err
	}
	if len(res.Choices) == 0 {
		return nil, &Error{Message: ErrEmptyResponse.Error()}
	}

	choice := res.Choices[0]
	comp := &Completion{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage:      res.Usage,
	}
	for _, tc := range choice.Message.ToolCalls {
		comp.ToolCalls = append(comp.ToolCalls, chatmodel.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", model,
		"stop", comp.StopReason,
		"tool_calls", len(comp.ToolCalls),
		"tokens", comp.Usage.TotalTokens)
	return comp, nil
}

// Model is one backend model listing entry.
type Model struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ContextLength int     `json:"context_length"`
	Pricing       Pricing `json:"pricing"`
}

// Pricing carries the backend's per-token prices as decimal strings.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

type listModelsResponse struct {
	Data []Model `json:"data"`
}

// ListModels fetches the models available to the configured key.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	c.setHeaders(req)

	var res listModelsResponse
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	c.setHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &Error{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Message: "malformed response: " + err.Error()}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
}

// errorMessage extracts the backend's error text from a failed
// response body, falling back to the raw body.
func errorMessage(body io.Reader) string {
	bs, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return "unable to read error response"
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(bs, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return values.StringsCoalesce(string(bs), "unknown error")
}
