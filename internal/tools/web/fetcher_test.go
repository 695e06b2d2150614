package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMarkdownConvertsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Example</title></head><body><article><h1>Hello</h1><p>World content that is long enough to be picked up by the readability extractor, padded with more filler text so the heuristic keeps it.</p></article></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(FetchOptions{PreferReadable: true})
	res, err := f.FetchMarkdown(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, res.Markdown, "World content")
}

func TestFetchMarkdownRejectsNonHTTPScheme(t *testing.T) {
	f := NewFetcher(FetchOptions{})
	_, err := f.FetchMarkdown(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}

func TestVisitWebpageTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain text body"))
	}))
	defer srv.Close()

	tool := NewVisitWebpageTool(nil)
	res, err := tool.Call(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "plain text body")
}
