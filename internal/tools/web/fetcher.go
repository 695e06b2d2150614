// Package web implements the retrieval tool family: visit_webpage (fetch +
// readability + markdown conversion), web_search (SearXNG), and
// deep_research (search fan-out followed by per-result visits).
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

// PageResult is the structured outcome of fetching and converting one URL.
type PageResult struct {
	InputURL     string
	FinalURL     string
	Status       int
	ContentType  string
	Title        string
	Markdown     string
	UsedReadable bool
	FetchedAt    time.Time
}

// FetchOptions tunes Fetcher behavior.
type FetchOptions struct {
	Timeout        time.Duration
	MaxBytes       int64
	PreferReadable bool
	UserAgent      string
	MaxRedirects   int
}

// Fetcher retrieves a URL and converts its body to markdown, preferring a
// readability-extracted main article over the raw page when available.
type Fetcher struct {
	client *http.Client
	opts   FetchOptions
	uaList []string
}

// NewFetcher builds a Fetcher with hardened defaults.
func NewFetcher(opts FetchOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 8 * 1000 * 1000
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}

	dialer := &net.Dialer{Timeout: 7 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   7 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	checkRedirect := func(req *http.Request, via []*http.Request) error {
		if len(via) > opts.MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", opts.MaxRedirects)
		}
		return nil
	}
	client := &http.Client{Transport: transport, CheckRedirect: checkRedirect, Timeout: opts.Timeout}

	return &Fetcher{
		client: client,
		opts:   opts,
		uaList: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
	}
}

// FetchMarkdown fetches rawURL and returns its content as markdown,
// preferring readability-extracted article text for HTML pages.
func (f *Fetcher) FetchMarkdown(ctx context.Context, rawURL string) (*PageResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	ua := f.opts.UserAgent
	if ua == "" {
		ua = f.uaList[int(time.Now().UnixNano()%int64(len(f.uaList)))]
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	ct, cs := parseContentType(resp.Header.Get("Content-Type"))

	limited := io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return nil, fmt.Errorf("response exceeds max bytes (%d)", f.opts.MaxBytes)
	}

	utf8Body, err := toUTF8(body, cs)
	if err != nil {
		return nil, fmt.Errorf("charset decode: %w", err)
	}

	res := &PageResult{InputURL: rawURL, FinalURL: finalURL, Status: resp.StatusCode, ContentType: ct}

	switch {
	case isHTML(ct):
		html := string(utf8Body)
		var articleHTML, title string
		var usedRead bool

		if f.opts.PreferReadable {
			base, _ := url.Parse(finalURL)
			art, rerr := readability.FromReader(strings.NewReader(html), base)
			if rerr == nil && strings.TrimSpace(art.Content) != "" {
				articleHTML = art.Content
				title = strings.TrimSpace(art.Title)
				usedRead = true
			}
		}
		if articleHTML == "" {
			articleHTML = html
		}

		md, mdErr := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(baseOrigin(finalURL)))
		if mdErr != nil {
			return nil, fmt.Errorf("html to markdown: %w", mdErr)
		}
		if title != "" && !strings.HasPrefix(strings.TrimLeft(md, "\n"), "# ") {
			md = "# " + title + "\n\n" + md
		}
		res.Markdown = strings.TrimSpace(md)
		res.Title = title
		res.UsedReadable = usedRead
		return res, nil

	case strings.HasPrefix(ct, "text/"):
		res.Markdown = fenced(string(utf8Body), guessFenceLanguage(ct))
		return res, nil

	default:
		name := ct
		if name == "" {
			name = "application/octet-stream"
		}
		res.Markdown = fmt.Sprintf("**Downloaded a non-text resource** (`%s`, %d bytes). [Original](%s)", name, len(body), finalURL)
		return res, nil
	}
}

func parseContentType(h string) (ctype, cs string) {
	if h == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(h)
	if err != nil {
		return h, ""
	}
	return strings.ToLower(mt), strings.ToLower(params["charset"])
}

func isHTML(ct string) bool {
	return ct == "text/html" || ct == "application/xhtml+xml" || strings.HasSuffix(ct, "html")
}

func toUTF8(b []byte, charsetLabel string) ([]byte, error) {
	if charsetLabel == "" || strings.EqualFold(charsetLabel, "utf-8") {
		return b, nil
	}
	r, err := charset.NewReaderLabel(charsetLabel, bytes.NewReader(b))
	if err != nil {
		return nil, errors.New("unsupported charset: " + charsetLabel)
	}
	return io.ReadAll(r)
}

func baseOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func guessFenceLanguage(ct string) string {
	switch ct {
	case "text/markdown":
		return "md"
	case "text/csv":
		return "csv"
	case "text/xml", "application/xml":
		return "xml"
	default:
		return ""
	}
}

func fenced(s, lang string) string {
	s = strings.TrimRight(s, "\n")
	return "```" + lang + "\n" + s + "\n```"
}
