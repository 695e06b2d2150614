package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/usamanadeem786/iiagentd/internal/tools"
)

const WebSearchName = "web_search"

// SearchHit is one organic result from a search provider.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearchClient is the pluggable interface behind the web_search tool;
// concrete implementations hit a specific provider's API.
type SearchClient interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error)
}

// SearXNGClient queries a self-hosted or public SearXNG instance's JSON API.
type SearXNGClient struct {
	BaseURL string
	client  *http.Client
}

func NewSearXNGClient(baseURL string) *SearXNGClient {
	return &SearXNGClient{BaseURL: baseURL, client: &http.Client{Timeout: 15 * time.Second}}
}

func (*SearXNGClient) Name() string { return "SearXNG" }

func (c *SearXNGClient) Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error) {
	u, err := url.Parse(c.BaseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("invalid searxng base url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying searxng: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng returned status %d", resp.StatusCode)
	}

	var body struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding searxng response: %w", err)
	}

	if maxResults <= 0 || maxResults > len(body.Results) {
		maxResults = len(body.Results)
	}
	hits := make([]SearchHit, 0, maxResults)
	for _, r := range body.Results[:maxResults] {
		hits = append(hits, SearchHit{Title: r.Title, URL: r.URL, Content: r.Content})
	}
	return hits, nil
}

// SelectSearchClient switches on a provider name, mirroring the original
// implementation's create_search_client factory; SearXNG is the only
// client, so every provider name returns a SearXNG client.
func SelectSearchClient(provider, searxngBaseURL string) SearchClient {
	switch provider {
	case "searxng", "":
		return NewSearXNGClient(searxngBaseURL)
	default:
		return NewSearXNGClient(searxngBaseURL)
	}
}

// SearchTool is the web_search tool backed by a SearchClient.
type SearchTool struct {
	client     SearchClient
	maxResults int
}

func NewSearchTool(client SearchClient, maxResults int) *SearchTool {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &SearchTool{client: client, maxResults: maxResults}
}

func (*SearchTool) Name() string { return WebSearchName }

func (t *SearchTool) Description() string {
	return fmt.Sprintf("Search the web via %s and return a list of titles, URLs and snippets.", t.client.Name())
}

func (*SearchTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required":             []any{"query"},
		"additionalProperties": false,
	}
}

func (t *SearchTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	query, _ := input["query"].(string)
	hits, err := t.client.Search(ctx, query, t.maxResults)
	if err != nil {
		return tools.Result{}, fmt.Errorf("web_search: %w", err)
	}
	b, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult("found " + strconv.Itoa(len(hits)) + " results:\n" + string(b)), nil
}
