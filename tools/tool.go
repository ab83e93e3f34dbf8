// Package tools defines the interface implemented by callable tools
// served to a model through a tool provider.
package tools

import (
	"context"
)

// Tool is a named, schema-described operation a model may invoke.
type Tool interface {
	// Name returns the name of the tool, unique within its catalog.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	Description() string
	// Parameters returns the JSON-Schema definition of the accepted arguments.
	Parameters() any

	// Call invokes the tool with a JSON-encoded arguments payload and
	// returns the textual result.
	Call(ctx context.Context, input string) (string, error)
}
