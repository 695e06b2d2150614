// Package llm defines the provider-agnostic contract the agent turn loop
// drives: a single Generate call per step taking a history snapshot and
// tool schemas, returning the content blocks of the next assistant turn.
// Concrete adapters (internal/llm/anthropic, internal/llm/openai) convert
// to and from each vendor's wire format.
package llm

import (
	"context"

	"github.com/usamanadeem786/iiagentd/internal/history"
	"github.com/usamanadeem786/iiagentd/internal/tools"
)

// Provider is the contract named `client` in spec.md §4.5: a single
// generation call returns the assistant's next content blocks, or an
// error wrapping agenterrors.ErrProvider on failure after internal
// retries.
type Provider interface {
	Generate(ctx context.Context, h *history.History, schemas []tools.Schema, model string, maxOutputTokens int, systemPrompt string) ([]history.ContentBlock, error)
}
