package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Func wraps a typed Go function as a Callable, generating its JSON schema
// from struct tags. Grounded on the teacher's pkg/tool/functiontool
// (functiontool.New[Args]), adapted to this package's Definition/Scope
// metadata and stripped of the validation-hook/streaming variants (no
// caller in this core needs them yet).
type Func[Args any] struct {
	name        string
	description string
	scope       Scope
	readOnly    bool
	schema      map[string]any
	fn          func(Context, Args) (map[string]any, error)
}

// NewFunc builds a Callable from a typed function. Args must be a struct
// with json/jsonschema tags describing its parameters (teacher's
// convention, see functiontool/schema.go).
func NewFunc[Args any](name, description string, scope Scope, readOnly bool, fn func(Context, Args) (map[string]any, error)) (*Func[Args], error) {
	if name == "" {
		return nil, fmt.Errorf("functiontool: name is required")
	}
	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("functiontool: generating schema for %s: %w", name, err)
	}
	return &Func[Args]{
		name: name, description: description, scope: scope, readOnly: readOnly,
		schema: schema, fn: fn,
	}, nil
}

func (f *Func[Args]) Definition() Definition {
	return Definition{
		Name: f.name, Description: f.description,
		Schema: f.schema, Scope: f.scope, ReadOnly: f.readOnly,
	}
}

func (f *Func[Args]) Call(ctx Context, args map[string]any) (map[string]any, error) {
	var typed Args
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("functiontool %s: encoding arguments: %w", f.name, err)
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, &InvalidArgumentsError{ToolName: f.name, Message: err.Error()}
	}
	return f.fn(ctx, typed)
}

// generateSchema reflects Args into a JSON schema map, grounded on the
// teacher's pkg/tool/functiontool/schema.go (same reflector settings:
// required-from-tags, inlined definitions, no $schema/$id).
func generateSchema[Args any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(Args))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

var _ Callable = (*Func[struct{}])(nil)
