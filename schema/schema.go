// Package schema reflects Go types into the JSON-Schema parameter
// definitions advertised for callable tools.
package schema

import (
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
)

var (
	cache   = make(map[reflect.Type]*jsonschema.Schema)
	cacheMu sync.RWMutex
)

// New builds the function-parameters schema for the given struct type.
// Schemas are flattened (no $defs references) so they can be embedded
// verbatim into a tool catalog entry. Results are cached per type.
func New(t reflect.Type) (*jsonschema.Schema, error) {
	cacheMu.RLock()
	s, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Newf("schema: expected a struct type, got %s", t.Kind())
	}

	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s = r.ReflectFromType(t)
	// The reflector emits a versioned root; tool catalogs carry bare
	// object schemas.
	s.Version = ""

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()
	return s, nil
}

// MustNew is New for statically known types.
func MustNew(t reflect.Type) *jsonschema.Schema {
	s, err := New(t)
	if err != nil {
		panic(err)
	}
	return s
}
