package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// DefaultSearchURL is DuckDuckGo's HTML-only endpoint.
const DefaultSearchURL = "https://html.duckduckgo.com/html/"

// SearchResult is one web search hit.
type SearchResult struct {
	Title string
	URL   string
	Body  string
}

// Searcher runs DuckDuckGo HTML searches.
type Searcher struct {
	endpoint string
	client   *http.Client
}

// NewSearcher creates a Searcher. Empty endpoint and nil client select the
// defaults.
func NewSearcher(endpoint string, client *http.Client) *Searcher {
	if endpoint == "" {
		endpoint = DefaultSearchURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Searcher{endpoint: endpoint, client: client}
}

// Search returns up to max results for query.
func (s *Searcher) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint,
		strings.NewReader(url.Values{"q": {query}}.Encode()))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	results, err := ParseSearchResults(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if max > 0 && len(results) > max {
		results = results[:max]
	}
	return results, nil
}

// ParseSearchResults extracts hits from a DuckDuckGo HTML results page.
func ParseSearchResults(r io.Reader) ([]SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var results []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a"):
				results = append(results, SearchResult{
					Title: strings.TrimSpace(nodeText(n)),
					URL:   resolveRedirect(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet") && len(results) > 0:
				results[len(results)-1].Body = strings.TrimSpace(nodeText(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

// FormatResults renders hits as a numbered list.
func FormatResults(results []SearchResult) string {
	entries := make([]string, len(results))
	for i, r := range results {
		entries[i] = fmt.Sprintf("%d. %s\n    %s\n    %s", i+1, r.Title, r.URL, r.Body)
	}
	return strings.Join(entries, "\n\n")
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
