package web

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/usamanadeem786/iiagentd/internal/tools"
)

const DeepResearchName = "deep_research"

// DeepResearchTool runs a search, then visits each hit concurrently and
// concatenates the fetched markdown, giving the model a single research
// digest instead of requiring it to chain web_search and visit_webpage
// calls by hand.
type DeepResearchTool struct {
	search  SearchClient
	fetcher *Fetcher
	maxURLs int
}

func NewDeepResearchTool(search SearchClient, fetcher *Fetcher, maxURLs int) *DeepResearchTool {
	if maxURLs <= 0 {
		maxURLs = 5
	}
	if fetcher == nil {
		fetcher = NewFetcher(FetchOptions{PreferReadable: true})
	}
	return &DeepResearchTool{search: search, fetcher: fetcher, maxURLs: maxURLs}
}

func (*DeepResearchTool) Name() string { return DeepResearchName }

func (*DeepResearchTool) Description() string {
	return "Search the web for a query and read the top results, returning a combined markdown digest with sources."
}

func (*DeepResearchTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required":             []any{"query"},
		"additionalProperties": false,
	}
}

type fetchedSection struct {
	index int
	title string
	url   string
	body  string
	err   error
}

func (t *DeepResearchTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	query, _ := input["query"].(string)

	hits, err := t.search.Search(ctx, query, t.maxURLs)
	if err != nil {
		return tools.Result{}, fmt.Errorf("deep_research: search failed: %w", err)
	}
	if len(hits) == 0 {
		return tools.TextResult("No search results found for: " + query), nil
	}

	sections := make([]fetchedSection, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	for i, hit := range hits {
		i, hit := i, hit
		g.Go(func() error {
			page, ferr := t.fetcher.FetchMarkdown(gctx, hit.URL)
			s := fetchedSection{index: i, title: hit.Title, url: hit.URL}
			if ferr != nil {
				s.err = ferr
			} else {
				s.body = page.Markdown
			}
			sections[i] = s
			return nil
		})
	}
	_ = g.Wait()

	var out strings.Builder
	fmt.Fprintf(&out, "# Research: %s\n\n", query)
	for _, s := range sections {
		fmt.Fprintf(&out, "## %d. %s\n%s\n\n", s.index+1, s.title, s.url)
		if s.err != nil {
			fmt.Fprintf(&out, "_could not fetch this page: %v_\n\n", s.err)
			continue
		}
		out.WriteString(s.body)
		out.WriteString("\n\n")
	}
	return tools.TextResult(out.String()), nil
}
