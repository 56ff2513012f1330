// Package websearch queries DuckDuckGo's HTML endpoint and extracts results.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const defaultBaseURL = "https://html.duckduckgo.com/html/"

// ErrRateLimited is returned when DuckDuckGo throttles the caller.
var ErrRateLimited = errors.New("websearch: rate limited")

// Result is one search hit.
type Result struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Body  string `json:"body"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("websearch: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Client searches DuckDuckGo.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  "Mozilla/5.0 (compatible; customer-support-agent/1.0)",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns up to maxResults hits for keywords in region.
func (c *Client) Search(ctx context.Context, keywords, region string, maxResults int) ([]Result, error) {
	keywords = strings.TrimSpace(keywords)
	if keywords == "" {
		return nil, errors.New("websearch: keywords must not be empty")
	}

	form := url.Values{}
	form.Set("q", keywords)
	if region != "" {
		form.Set("kl", region)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("websearch: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	// DuckDuckGo answers throttled clients with 202 and a challenge page.
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusAccepted {
		return nil, ErrRateLimited
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: c.baseURL}
	}

	doc, err := html.Parse(io.LimitReader(res.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("websearch: parse response: %w", err)
	}
	return extractResults(doc, maxResults), nil
}

func extractResults(doc *html.Node, limit int) []Result {
	var out []Result
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if limit > 0 && len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if r, ok := parseResult(n); ok {
				out = append(out, r)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out
}

func parseResult(n *html.Node) (Result, bool) {
	var r Result
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				r.Title = textContent(n)
				r.Href = resolveHref(attr(n, "href"))
			case hasClass(n, "result__snippet"):
				r.Body = textContent(n)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return r, r.Href != ""
}

// resolveHref unwraps DuckDuckGo redirect links (//duckduckgo.com/l/?uddg=...).
func resolveHref(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
