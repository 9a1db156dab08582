package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"
	"golang.org/x/net/html"
)

const userAgent = "Mozilla/5.0 (compatible; agentlab/1.0)"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// Fetcher downloads link content.
type Fetcher struct {
	client *http.Client
	logger Logger
}

// NewFetcher creates a Fetcher. A nil client selects one with a 10s timeout.
func NewFetcher(client *http.Client, logger Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

// RawURL rewrites GitHub and Hugging Face "blob" page URLs to the URL that
// serves the raw file. Other URLs are returned unchanged.
func RawURL(url string) string {
	switch {
	case strings.Contains(url, "huggingface.co") && strings.Contains(url, "/blob/"):
		return strings.Replace(url, "/blob/", "/resolve/", 1)
	case strings.Contains(url, "github.com") && strings.Contains(url, "/blob/"):
		url = strings.Replace(url, "github.com", "raw.githubusercontent.com", 1)
		return strings.Replace(url, "/blob/", "/", 1)
	}
	return url
}

func isRawHost(url string) bool {
	return url != RawURL(url)
}

// Fetch returns the text content of one link: notebooks are rendered cell by
// cell, raw files are kept as-is and HTML pages are reduced to visible text.
// Everything except notebooks is capped at MaxLinkChars.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	target := RawURL(url)
	body, err := f.get(ctx, target)
	if err != nil {
		return "", err
	}
	if isRawHost(url) {
		if strings.HasSuffix(url, ".ipynb") {
			if nb, err := ParseNotebook([]byte(body)); err == nil {
				return nb, nil
			}
		}
		return capText(body, MaxLinkChars), nil
	}
	text, err := HTMLText(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", url, err)
	}
	return capText(text, MaxLinkChars), nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(data), nil
}

// Links fetches every URL concurrently and formats the successful ones in
// input order. Failed links are logged and skipped.
func (f *Fetcher) Links(ctx context.Context, urls []string) string {
	contents := iter.Map(urls, func(u *string) string {
		text, err := f.Fetch(ctx, *u)
		if err != nil {
			f.logger.Warn("could not extract link content", "url", *u, "error", err)
			return ""
		}
		return text
	})

	var entries []string
	for i, c := range contents {
		if c == "" {
			continue
		}
		entries = append(entries, formatEntry("Link", urls[i], c))
	}
	return strings.Join(entries, "\n\n")
}

// HTMLText returns the visible text of an HTML document, skipping script and
// style elements.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}

type notebook struct {
	Cells []struct {
		CellType string          `json:"cell_type"`
		Source   json.RawMessage `json:"source"`
	} `json:"cells"`
}

// ParseNotebook renders the markdown and code cells of a Jupyter notebook.
func ParseNotebook(data []byte) (string, error) {
	var nb notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return "", fmt.Errorf("parse notebook: %w", err)
	}
	var parts []string
	for i, cell := range nb.Cells {
		text := cellSource(cell.Source)
		switch cell.CellType {
		case "markdown":
			parts = append(parts, fmt.Sprintf("## Cell %d (Markdown)\n%s\n", i+1, text))
		case "code":
			parts = append(parts, fmt.Sprintf("## Cell %d (Code)\n```python\n%s\n```\n", i+1, text))
		}
	}
	return strings.Join(parts, "\n"), nil
}

// cellSource accepts both the list-of-lines and the single-string encodings.
func cellSource(raw json.RawMessage) string {
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
