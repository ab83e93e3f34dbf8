package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetInput struct {
	Name string `json:"name" jsonschema:"title=Name,description=Who to greet."`
}

func Test_NewFunc(t *testing.T) {
	t.Parallel()

	tool, err := tools.NewFunc("greet", "Greets someone by name",
		func(_ context.Context, in greetInput) (string, error) {
			if in.Name == "" {
				return "", errors.New("empty name")
			}
			return "hello " + in.Name, nil
		})
	require.NoError(t, err)

	assert.Equal(t, "greet", tool.Name())
	assert.Equal(t, "Greets someone by name", tool.Description())

	// the advertised schema describes the input struct
	bs, err := json.Marshal(tool.Parameters())
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(bs, &doc))
	assert.Equal(t, "object", doc["type"])
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
}

func Test_NewFunc_Call(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tool, err := tools.NewFunc("greet", "Greets someone by name",
		func(_ context.Context, in greetInput) (string, error) {
			return "hello " + in.Name, nil
		})
	require.NoError(t, err)

	out, err := tool.Call(ctx, `{"name":"ana"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello ana", out)

	_, err = tool.Call(ctx, `{"name":`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments for tool greet")
}

func Test_NewFunc_NonStructInput(t *testing.T) {
	t.Parallel()

	_, err := tools.NewFunc("bad", "Input is not a struct",
		func(_ context.Context, in string) (string, error) {
			return in, nil
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a struct type")
}
