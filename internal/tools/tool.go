// Package tools implements the tool registry contract of spec.md §4.4: a
// fixed JSON Schema per tool, compiled once at registration time, and a
// dispatch call that validates input before the tool ever runs.
package tools

import "context"

// ResultPart is a single piece of a (possibly multi-part) tool result, e.g.
// a text block or a screenshot, mirroring history.ResultPart.
type ResultPart struct {
	Type           string
	Text           string
	MediaType      string
	Base64Data     string
}

// Result is what a Tool.Call returns: either a single text string or a
// sequence of parts (used by the browser family to return a screenshot
// alongside a text description).
type Result struct {
	Text  string
	Parts []ResultPart
}

// TextResult builds a plain-text Result.
func TextResult(text string) Result { return Result{Text: text} }

// Tool is an executable capability the agent can call. Name and
// ParameterSchema are fixed for the tool's lifetime; the Registry compiles
// ParameterSchema once at registration and caches the compiled form.
type Tool interface {
	Name() string
	Description() string
	ParameterSchema() map[string]any
	// Call executes the tool against already-schema-validated input.
	Call(ctx context.Context, input map[string]any) (Result, error)
}
