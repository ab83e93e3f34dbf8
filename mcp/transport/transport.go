// Package transport defines the JSON-RPC 2.0 wire types and the
// pluggable transport boundary used to reach tool providers.
package transport

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// RequestID identifies one in-flight request on a connection.
type RequestID int64

// Request is an outgoing or incoming JSON-RPC request.
type Request struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a one-way JSON-RPC message.
type Notification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a successful JSON-RPC response.
type Response struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// ErrorDetail is the error member of a JSON-RPC error response.
type ErrorDetail struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse is a failed JSON-RPC response.
type ErrorResponse struct {
	Jsonrpc string      `json:"jsonrpc"`
	ID      RequestID   `json:"id"`
	Error   ErrorDetail `json:"error"`
}

// MessageType discriminates the variants of Message.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeNotification MessageType = "notification"
	MessageTypeResponse     MessageType = "response"
	MessageTypeError        MessageType = "error"
)

// Message is the tagged union of the four JSON-RPC message kinds.
// Exactly one of the pointers matching Type is set.
type Message struct {
	Type         MessageType
	Request      *Request
	Notification *Notification
	Response     *Response
	Error        *ErrorResponse
}

func NewRequestMessage(req *Request) *Message {
	return &Message{Type: MessageTypeRequest, Request: req}
}

func NewNotificationMessage(n *Notification) *Message {
	return &Message{Type: MessageTypeNotification, Notification: n}
}

func NewResponseMessage(resp *Response) *Message {
	return &Message{Type: MessageTypeResponse, Response: resp}
}

func NewErrorMessage(resp *ErrorResponse) *Message {
	return &Message{Type: MessageTypeError, Error: resp}
}

// MarshalJSON encodes the active variant.
func (m *Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case MessageTypeRequest:
		return json.Marshal(m.Request)
	case MessageTypeNotification:
		return json.Marshal(m.Notification)
	case MessageTypeResponse:
		return json.Marshal(m.Response)
	case MessageTypeError:
		return json.Marshal(m.Error)
	}
	return nil, errors.Newf("unknown message type: %q", m.Type)
}

// Decode classifies a raw JSON-RPC frame and returns the typed message.
// The kind is sniffed from the present members: a method with an id is a
// request, a method without an id is a notification, an error member is
// an error response, anything else with an id is a response.
func Decode(body []byte) (*Message, error) {
	var probe struct {
		ID     *RequestID      `json:"id"`
		Method string          `json:"method"`
		Error  *ErrorDetail    `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, errors.Wrap(err, "failed to decode JSON-RPC frame")
	}

	switch {
	case probe.Method != "" && probe.ID != nil:
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, errors.Wrap(err, "failed to decode request")
		}
		return NewRequestMessage(&req), nil
	case probe.Method != "":
		var n Notification
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, errors.Wrap(err, "failed to decode notification")
		}
		return NewNotificationMessage(&n), nil
	case probe.Error != nil:
		var er ErrorResponse
		if err := json.Unmarshal(body, &er); err != nil {
			return nil, errors.Wrap(err, "failed to decode error response")
		}
		return NewErrorMessage(&er), nil
	case probe.ID != nil:
		var resp Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrap(err, "failed to decode response")
		}
		return NewResponseMessage(&resp), nil
	}
	return nil, errors.New("frame is not a JSON-RPC message")
}

// Transport moves JSON-RPC messages between this process and one tool
// provider. Implementations deliver incoming messages to the handler set
// with SetMessageHandler.
type Transport interface {
	// Start establishes the connection and begins delivering messages.
	Start(ctx context.Context) error
	// Send transmits one message.
	Send(ctx context.Context, message *Message) error
	// Close tears the connection down. The close handler is invoked.
	Close() error

	// SetMessageHandler sets the callback for incoming messages.
	SetMessageHandler(handler func(ctx context.Context, message *Message))
	// SetErrorHandler sets the callback for out-of-band errors.
	// Errors reported here are not necessarily fatal.
	SetErrorHandler(handler func(error))
	// SetCloseHandler sets the callback for when the connection is closed
	// for any reason, including Close itself.
	SetCloseHandler(handler func())
}
