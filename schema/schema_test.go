package schema_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/coyaSONG/coya-mcp-client/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchInput struct {
	Query string `json:"query" jsonschema:"description=The search query"`
	Limit int    `json:"limit,omitempty"`
}

func Test_New(t *testing.T) {
	t.Parallel()

	s, err := schema.New(reflect.TypeOf(searchInput{}))
	require.NoError(t, err)

	bs, err := json.Marshal(s)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(bs, &doc))
	assert.Equal(t, "object", doc["type"])
	assert.NotContains(t, doc, "$schema")

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")
	assert.Equal(t, []any{"query"}, doc["required"])
}

func Test_New_Pointer(t *testing.T) {
	t.Parallel()

	s1, err := schema.New(reflect.TypeOf(&searchInput{}))
	require.NoError(t, err)
	require.NotNil(t, s1)
}

func Test_New_NotStruct(t *testing.T) {
	t.Parallel()

	_, err := schema.New(reflect.TypeOf("string"))
	assert.EqualError(t, err, "schema: expected a struct type, got string")
}

func Test_New_Cached(t *testing.T) {
	t.Parallel()

	s1 := schema.MustNew(reflect.TypeOf(searchInput{}))
	s2 := schema.MustNew(reflect.TypeOf(searchInput{}))
	assert.Same(t, s1, s2)
}
