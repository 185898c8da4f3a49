package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/knownav/knownav/pkg/domain"
)

// Parser fetches and parses RSS/Atom feeds into raw entries
type Parser struct {
	client    *http.Client
	userAgent string
}

// NewParser creates a new feed parser
func NewParser(timeout time.Duration, userAgent string) *Parser {
	return &Parser{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
	}
}

// Parse fetches the feed at url and converts its items to raw entries.
// The feed body is taken from item content when present, description
// otherwise. Published time is left nil when the feed omits or malforms it;
// the normalizer applies the processing-time default.
func (p *Parser) Parse(ctx context.Context, url string) ([]domain.RawEntry, error) {
	body, err := p.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	parser := gofeed.NewParser()
	parsed, err := parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := make([]domain.RawEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entry := domain.RawEntry{
			Title:  item.Title,
			Body:   item.Description,
			URL:    item.Link,
			Source: url,
		}

		if item.Content != "" {
			entry.Body = item.Content
		}

		if item.PublishedParsed != nil {
			entry.Published = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			entry.Published = item.UpdatedParsed
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// fetch retrieves content from a URL
func (p *Parser) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)

	// add browser-like headers
	addBrowserHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
