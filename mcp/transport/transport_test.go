package transport_test

import (
	"encoding/json"
	"testing"

	"github.com/coyaSONG/coya-mcp-client/mcp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Decode(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name    string
		body    string
		expType transport.MessageType
		expErr  bool
	}{
		{
			name:    "request",
			body:    `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
			expType: transport.MessageTypeRequest,
		},
		{
			name:    "notification",
			body:    `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			expType: transport.MessageTypeNotification,
		},
		{
			name:    "response",
			body:    `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`,
			expType: transport.MessageTypeResponse,
		},
		{
			name:    "error",
			body:    `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`,
			expType: transport.MessageTypeError,
		},
		{name: "not_jsonrpc", body: `{"foo":"bar"}`, expErr: true},
		{name: "malformed", body: `{`, expErr: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := transport.Decode([]byte(tc.body))
			if tc.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expType, msg.Type)
		})
	}
}

func Test_MessageMarshal(t *testing.T) {
	t.Parallel()

	req := &transport.Request{
		Jsonrpc: "2.0",
		ID:      7,
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"search"}`),
	}
	bs, err := json.Marshal(transport.NewRequestMessage(req))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"search"}}`, string(bs))

	// round-trip through Decode yields the same request
	msg, err := transport.Decode(bs)
	require.NoError(t, err)
	require.Equal(t, transport.MessageTypeRequest, msg.Type)
	assert.Equal(t, *req, *msg.Request)

	_, err = json.Marshal(&transport.Message{Type: "bogus"})
	assert.Error(t, err)
}

func Test_ErrorDetailRoundTrip(t *testing.T) {
	t.Parallel()

	er := &transport.ErrorResponse{
		Jsonrpc: "2.0",
		ID:      3,
		Error:   transport.ErrorDetail{Code: -32602, Message: "unknown tool"},
	}
	bs, err := json.Marshal(transport.NewErrorMessage(er))
	require.NoError(t, err)

	msg, err := transport.Decode(bs)
	require.NoError(t, err)
	require.Equal(t, transport.MessageTypeError, msg.Type)
	assert.Equal(t, -32602, msg.Error.Error.Code)
	assert.Equal(t, "unknown tool", msg.Error.Error.Message)
}
