package web

import (
	"context"
	"fmt"

	"github.com/usamanadeem786/iiagentd/internal/tools"
)

const VisitWebpageName = "visit_webpage"

// VisitWebpageTool fetches a URL and returns its content as markdown.
type VisitWebpageTool struct {
	fetcher *Fetcher
}

func NewVisitWebpageTool(fetcher *Fetcher) *VisitWebpageTool {
	if fetcher == nil {
		fetcher = NewFetcher(FetchOptions{PreferReadable: true})
	}
	return &VisitWebpageTool{fetcher: fetcher}
}

func (*VisitWebpageTool) Name() string { return VisitWebpageName }

func (*VisitWebpageTool) Description() string {
	return "Fetch a web page and return its main content as markdown."
}

func (*VisitWebpageTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "format": "uri"},
		},
		"required":             []any{"url"},
		"additionalProperties": false,
	}
}

func (t *VisitWebpageTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	rawURL, _ := input["url"].(string)
	res, err := t.fetcher.FetchMarkdown(ctx, rawURL)
	if err != nil {
		return tools.Result{}, fmt.Errorf("visiting %s: %w", rawURL, err)
	}
	return tools.TextResult(res.Markdown), nil
}
