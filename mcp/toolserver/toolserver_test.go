package toolserver_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/mcp"
	"github.com/coyaSONG/coya-mcp-client/mcp/transport/local"
	"github.com/coyaSONG/coya-mcp-client/mcp/toolserver"
	"github.com/coyaSONG/coya-mcp-client/schema"
	"github.com/coyaSONG/coya-mcp-client/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Text string `json:"text"`
}

func newEchoTool(t *testing.T) *tools.Func[echoInput] {
	t.Helper()
	tool, err := tools.NewFunc("echo", "Echoes the input back",
		func(_ context.Context, in echoInput) (string, error) {
			return in.Text, nil
		})
	require.NoError(t, err)
	return tool
}

type failTool struct{}

func (failTool) Name() string        { return "fail" }
func (failTool) Description() string { return "Always fails" }
func (failTool) Parameters() any     { return schema.MustNew(reflect.TypeOf(echoInput{})) }

func (failTool) Call(context.Context, string) (string, error) {
	return "", errors.New("boom")
}

func startPair(t *testing.T) (*mcp.Client, *toolserver.Server) {
	t.Helper()
	ctx := context.Background()

	clientEnd, serverEnd := local.Pipe()
	srv := toolserver.New(serverEnd, mcp.Implementation{Name: "test-provider", Version: "0.1.0"},
		newEchoTool(t), failTool{})
	require.NoError(t, srv.Start(ctx))

	client := mcp.NewClient(clientEnd, mcp.Implementation{Name: "test-client", Version: "0.1.0"})
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, srv
}

func Test_Handshake(t *testing.T) {
	t.Parallel()

	client, _ := startPair(t)
	assert.Equal(t, "test-provider", client.ServerInfo().Name)
}

func Test_ListTools(t *testing.T) {
	t.Parallel()

	client, _ := startPair(t)
	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)

	// catalog order follows registration order
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "fail", tools[1].Name)
	assert.Equal(t, "Echoes the input back", tools[0].Description)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(tools[0].InputSchema, &doc))
	assert.Equal(t, "object", doc["type"])
}

func Test_CallTool(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, _ := startPair(t)

	res, err := client.CallTool(ctx, "echo", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "hi", res.Text())
}

func Test_CallTool_Failure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, _ := startPair(t)

	// a failing tool is an error result, not a protocol error
	res, err := client.CallTool(ctx, "fail", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "boom")
}

func Test_CallTool_Unknown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, _ := startPair(t)

	_, err := client.CallTool(ctx, "nope", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool: nope")
}

func Test_UnknownMethod(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clientEnd, serverEnd := local.Pipe()
	srv := toolserver.New(serverEnd, mcp.Implementation{Name: "test-provider", Version: "0.1.0"})
	require.NoError(t, srv.Start(ctx))

	proto := mcp.NewProtocol(clientEnd)
	require.NoError(t, proto.Connect(ctx))
	defer proto.Close()

	_, err := proto.Call(ctx, "resources/list", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}
