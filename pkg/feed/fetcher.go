package feed

import (
	"context"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/knownav/knownav/pkg/config"
	"github.com/knownav/knownav/pkg/domain"
)

// EntryParser parses a single feed endpoint into raw entries
type EntryParser interface {
	Parse(ctx context.Context, url string) ([]domain.RawEntry, error)
}

// Fetcher collects raw entries from all configured feed endpoints.
// Endpoints are independent: a failing endpoint is logged and skipped,
// never aborting the batch.
type Fetcher struct {
	parser         EntryParser
	groups         []config.FeedGroup
	entriesPerFeed int
	maxWorkers     int
}

// FetchResult holds the entries of one batch together with source stats
type FetchResult struct {
	Entries       []domain.RawEntry
	SourcesTotal  int
	SourcesFailed int
}

// NewFetcher creates a fetcher over the configured feed groups
func NewFetcher(parser EntryParser, cfg config.FeedsConfig) *Fetcher {
	return &Fetcher{
		parser:         parser,
		groups:         cfg.Groups,
		entriesPerFeed: cfg.EntriesPerFeed,
		maxWorkers:     cfg.MaxWorkers,
	}
}

// FetchAll fetches every configured endpoint, bounded by maxWorkers.
// Output keeps endpoints in configured order and feed-provided order within
// an endpoint, regardless of fetch completion order.
func (f *Fetcher) FetchAll(ctx context.Context) FetchResult {
	type endpoint struct {
		url      string
		category string
	}

	var endpoints []endpoint
	for _, g := range f.groups {
		for _, u := range g.URLs {
			endpoints = append(endpoints, endpoint{url: u, category: g.Category})
		}
	}

	// fetch concurrently, keep per-endpoint slots for ordered flattening
	results := make([][]domain.RawEntry, len(endpoints))
	failed := make([]bool, len(endpoints))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxWorkers)

	for i, ep := range endpoints {
		g.Go(func() error {
			entries, err := f.parser.Parse(ctx, ep.url)
			if err != nil {
				srcErr := &domain.SourceError{Endpoint: ep.url, Err: err}
				lgr.Printf("[WARN] %v, skipping endpoint", srcErr)
				failed[i] = true
				return nil
			}

			if f.entriesPerFeed > 0 && len(entries) > f.entriesPerFeed {
				entries = entries[:f.entriesPerFeed]
			}
			for j := range entries {
				entries[j].Category = ep.category
			}
			results[i] = entries
			return nil
		})
	}

	_ = g.Wait() // per-endpoint errors never propagate

	res := FetchResult{SourcesTotal: len(endpoints)}
	for i, entries := range results {
		if failed[i] {
			res.SourcesFailed++
			continue
		}
		res.Entries = append(res.Entries, entries...)
	}

	lgr.Printf("[INFO] fetched %d entries from %d endpoints (%d failed)",
		len(res.Entries), res.SourcesTotal, res.SourcesFailed)
	return res
}
