package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
)

// Schema describes a tool for the LLM-facing tool-use API.
type Schema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Registry holds the fixed set of tools available to a session and
// validates every dispatch against the tool's compiled JSON Schema before
// calling it (spec.md §4.4).
type Registry struct {
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
	order    []string
}

// NewRegistry builds a Registry from a list of tools. Registering two tools
// with the same name, or a tool whose schema fails to compile, is a
// programmer error and panics immediately rather than surfacing at dispatch
// time.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools:    make(map[string]Tool, len(tools)),
		compiled: make(map[string]*jsonschema.Schema, len(tools)),
	}
	for _, t := range tools {
		r.mustRegister(t)
	}
	return r
}

func (r *Registry) mustRegister(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tools: duplicate tool name %q", name))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", t.ParameterSchema()); err != nil {
		panic(fmt.Sprintf("tools: schema resource for %q: %v", name, err))
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %q does not compile: %v", name, err))
	}
	r.tools[name] = t
	r.compiled[name] = schema
	r.order = append(r.order, name)
}

// Schemas returns the registered tools' LLM-facing schemas in registration
// order, so the same tool list is always presented to the provider in a
// stable order.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Schema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParameterSchema(),
		})
	}
	return out
}

// Has reports whether a tool with this name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Dispatch validates raw against the tool's compiled schema and, if valid,
// calls it. A schema violation returns agenterrors.ErrSchemaInvalid wrapping
// a message prefixed "Invalid tool input: ", which the turn loop feeds back
// to the model as a recoverable tool result rather than aborting the run.
func (r *Registry) Dispatch(ctx context.Context, name string, raw json.RawMessage) (Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown tool %q", agenterrors.ErrToolRuntime, name)
	}

	var input map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &input); err != nil {
			return Result{}, fmt.Errorf("%w: Invalid tool input: %v", agenterrors.ErrSchemaInvalid, err)
		}
	}
	if input == nil {
		input = map[string]any{}
	}

	schema := r.compiled[name]
	if err := schema.Validate(input); err != nil {
		return Result{}, fmt.Errorf("%w: Invalid tool input: %v", agenterrors.ErrSchemaInvalid, err)
	}

	return t.Call(ctx, input)
}
