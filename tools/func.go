package tools

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/coyaSONG/coya-mcp-client/schema"
)

// Func adapts a plain function into a Tool. The parameters schema is
// reflected from the function's input type.
type Func[I any] struct {
	name        string
	description string
	funcParams  any
	fn          func(ctx context.Context, input I) (string, error)
}

var _ Tool = (*Func[struct{}])(nil)

// NewFunc creates a tool backed by fn. The input type must be a struct;
// its jsonschema tags describe the accepted arguments.
func NewFunc[I any](name, description string, fn func(ctx context.Context, input I) (string, error)) (*Func[I], error) {
	var in I
	sc, err := schema.New(reflect.TypeOf(in))
	if err != nil {
		return nil, errors.WithMessagef(err, "tool %s", name)
	}
	return &Func[I]{
		name:        name,
		description: description,
		funcParams:  sc,
		fn:          fn,
	}, nil
}

func (t *Func[I]) Name() string {
	return t.name
}

func (t *Func[I]) Description() string {
	return t.description
}

func (t *Func[I]) Parameters() any {
	return t.funcParams
}

// Call decodes the arguments payload into the input type and runs the
// function.
func (t *Func[I]) Call(ctx context.Context, input string) (string, error) {
	var in I
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "", errors.Wrapf(err, "invalid arguments for tool %s", t.name)
	}
	return t.fn(ctx, in)
}
