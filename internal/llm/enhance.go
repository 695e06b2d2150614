package llm

import (
	"context"
	"strings"

	"github.com/usamanadeem786/iiagentd/internal/history"
)

// EnhancePrompt implements the one-shot call behind spec.md §4.7's
// enhance_prompt handler: a single Generate with no tools and no prior
// history beyond the user's draft, returning the rewritten text.
func EnhancePrompt(ctx context.Context, provider Provider, model, metaPrompt, draft string) (string, error) {
	h := history.New()
	if err := h.AddUserPrompt(draft, nil); err != nil {
		return "", err
	}
	blocks, err := provider.Generate(ctx, h, nil, model, 2048, metaPrompt)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, b := range blocks {
		if t, ok := b.(history.AssistantText); ok {
			out.WriteString(t.Text)
		}
	}
	return strings.TrimSpace(out.String()), nil
}
