package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/knownav/knownav/pkg/config"
	"github.com/knownav/knownav/pkg/domain"
	"github.com/knownav/knownav/pkg/feed"
)

// State names a pipeline stage. Any state may go straight to Done when its
// input set is empty.
type State string

// Pipeline states in execution order
const (
	StateFetching      State = "fetching"
	StateDeduplicating State = "deduplicating"
	StateNormalizing   State = "normalizing"
	StateEnriching     State = "enriching"
	StateClassifying   State = "classifying"
	StatePersisting    State = "persisting"
	StateIndexing      State = "indexing"
	StateDone          State = "done"
)

const maxSampleFailures = 3

// Fetcher produces the raw entry batch for a run
type Fetcher interface {
	FetchAll(ctx context.Context) feed.FetchResult
}

// Normalizer cleans raw entry bodies and resolves publish times
type Normalizer interface {
	Normalize(entry domain.RawEntry) (cleanedBody string, publishedAt time.Time)
}

// Extractor pulls full article text when the feed body is too short
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Enricher summarizes articles and extracts their concepts
type Enricher interface {
	ProcessBatch(ctx context.Context, articles []domain.Article) (succeeded []domain.Article, failed []domain.FailedEntry)
}

// Classifier assigns topic buckets
type Classifier interface {
	Classify(article domain.Article) string
	GroupByBucket(articles []domain.Article) []domain.TopicGroup
}

// ArticleStore persists deduplicated, enriched articles
type ArticleStore interface {
	Exists(ctx context.Context, url string) (bool, error)
	Create(ctx context.Context, article *domain.Article) (created bool, err error)
}

// ConceptIndex records concept mentions from enrichment events
type ConceptIndex interface {
	RecordMentions(ctx context.Context, names []string, observedAt time.Time) error
}

// Coordinator sequences one run: fetch, dedup, normalize, enrich, classify,
// persist, index. A run processes one batch to completion; concurrent runs
// against the same store are disallowed, callers serialize externally.
type Coordinator struct {
	fetcher    Fetcher
	normalizer Normalizer
	extractor  Extractor // nil when full-text extraction is disabled
	enricher   Enricher
	classifier Classifier
	articles   ArticleStore
	index      ConceptIndex
	extraction config.ExtractionConfig

	mu         sync.Mutex
	state      State
	lastResult *domain.RunResult
	lastGroups []domain.TopicGroup
}

// Deps bundles the coordinator's collaborators
type Deps struct {
	Fetcher    Fetcher
	Normalizer Normalizer
	Extractor  Extractor
	Enricher   Enricher
	Classifier Classifier
	Articles   ArticleStore
	Index      ConceptIndex
	Extraction config.ExtractionConfig
}

// NewCoordinator creates a pipeline coordinator
func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{
		fetcher:    deps.Fetcher,
		normalizer: deps.Normalizer,
		extractor:  deps.Extractor,
		enricher:   deps.Enricher,
		classifier: deps.Classifier,
		articles:   deps.Articles,
		index:      deps.Index,
		extraction: deps.Extraction,
		state:      StateDone,
	}
}

// State reports the current pipeline stage
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastResult returns the most recent run result, nil before the first run
func (c *Coordinator) LastResult() *domain.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// LastGroups returns the per-bucket grouping of the most recent run
func (c *Coordinator) LastGroups() []domain.TopicGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastGroups
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	lgr.Printf("[DEBUG] pipeline state: %s", s)
}

// Run executes one complete pipeline pass and returns its result. Per-entry
// and per-endpoint failures are recovered locally and surfaced only as
// counts and reasons; the returned error is reserved for run-level
// interruption (context cancellation).
func (c *Coordinator) Run(ctx context.Context) (domain.RunResult, error) {
	var result domain.RunResult

	// fetching
	c.setState(StateFetching)
	fetched := c.fetcher.FetchAll(ctx)
	result.Fetched = len(fetched.Entries)
	result.AllSourcesFailed = fetched.SourcesTotal > 0 && fetched.SourcesFailed == fetched.SourcesTotal
	if result.AllSourcesFailed {
		lgr.Printf("[WARN] all %d feed endpoints failed this run", fetched.SourcesTotal)
	}
	if len(fetched.Entries) == 0 {
		return c.finish(ctx, result, nil)
	}

	// deduplicating, before any expensive enrichment work
	c.setState(StateDeduplicating)
	fresh, err := c.dedup(ctx, fetched.Entries)
	if err != nil {
		return c.finish(ctx, result, err)
	}
	if len(fresh) == 0 {
		lgr.Printf("[INFO] no new articles after dedup")
		return c.finish(ctx, result, nil)
	}

	// normalizing
	c.setState(StateNormalizing)
	prepared := c.normalize(ctx, fresh)

	// enriching
	c.setState(StateEnriching)
	enriched, failed := c.enricher.ProcessBatch(ctx, prepared)
	result.Failed += len(failed)
	for _, f := range failed {
		if len(result.SampleFailures) < maxSampleFailures {
			result.SampleFailures = append(result.SampleFailures, f)
		}
	}
	if len(enriched) == 0 {
		return c.finish(ctx, result, ctx.Err())
	}

	// classifying
	c.setState(StateClassifying)
	now := time.Now()
	for i := range enriched {
		enriched[i].TopicBucket = c.classifier.Classify(enriched[i])
		enriched[i].ProcessedAt = now
	}

	// persisting
	c.setState(StatePersisting)
	persisted := c.persist(ctx, enriched, &result)
	if len(persisted) == 0 {
		return c.finish(ctx, result, ctx.Err())
	}

	// indexing
	c.setState(StateIndexing)
	for _, article := range persisted {
		if err := c.index.RecordMentions(ctx, article.Concepts, article.ProcessedAt); err != nil {
			lgr.Printf("[WARN] indexing interrupted: %v", err)
			return c.finish(ctx, result, err)
		}
	}

	c.mu.Lock()
	c.lastGroups = c.classifier.GroupByBucket(persisted)
	c.mu.Unlock()

	return c.finish(ctx, result, nil)
}

// dedup drops entries whose url is already ingested or repeated within the
// batch. Lookups failing are treated as already-seen so a flaky store never
// burns enrichment budget.
func (c *Coordinator) dedup(ctx context.Context, entries []domain.RawEntry) ([]domain.RawEntry, error) {
	seen := make(map[string]bool, len(entries))
	fresh := make([]domain.RawEntry, 0, len(entries))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.URL == "" {
			lgr.Printf("[WARN] dropping entry %q without url", entry.Title)
			continue
		}
		if seen[entry.URL] {
			continue
		}
		seen[entry.URL] = true

		exists, err := c.articles.Exists(ctx, entry.URL)
		if err != nil {
			lgr.Printf("[WARN] dedup check failed for %s, skipping entry: %v", entry.URL, err)
			continue
		}
		if exists {
			continue
		}
		fresh = append(fresh, entry)
	}

	lgr.Printf("[INFO] %d of %d entries are new", len(fresh), len(entries))
	return fresh, nil
}

// normalize converts surviving raw entries to articles with cleaned bodies
// and resolved publish times, pulling full text when the feed body is too
// short and extraction is enabled
func (c *Coordinator) normalize(ctx context.Context, entries []domain.RawEntry) []domain.Article {
	articles := make([]domain.Article, 0, len(entries))
	for _, entry := range entries {
		cleaned, publishedAt := c.normalizer.Normalize(entry)

		if c.extractor != nil && c.extraction.Enabled && len(cleaned) < c.extraction.MinTextLength {
			extractCtx, cancel := context.WithTimeout(ctx, c.extraction.Timeout)
			text, err := c.extractor.Extract(extractCtx, entry.URL)
			cancel()
			if err != nil {
				lgr.Printf("[WARN] full-text extraction failed for %s, keeping feed body: %v", entry.URL, err)
			} else {
				cleaned = text
			}
		}

		articles = append(articles, domain.Article{
			Title:       entry.Title,
			CleanedBody: cleaned,
			URL:         entry.URL,
			Source:      entry.Source,
			Category:    entry.Category,
			PublishedAt: publishedAt,
		})
	}
	return articles
}

// persist saves enriched articles; a url conflict at save time means
// already-ingested and is not an error. Store failures demote the article
// to a failure record.
func (c *Coordinator) persist(ctx context.Context, articles []domain.Article, result *domain.RunResult) []domain.Article {
	persisted := make([]domain.Article, 0, len(articles))
	for i := range articles {
		if ctx.Err() != nil {
			// leave the store with a clean prefix: remaining articles
			// are simply absent
			lgr.Printf("[WARN] persist canceled after %d of %d articles", i, len(articles))
			return persisted
		}

		created, err := c.articles.Create(ctx, &articles[i])
		if err != nil {
			lgr.Printf("[WARN] failed to persist article %s: %v", articles[i].URL, err)
			result.Failed++
			if len(result.SampleFailures) < maxSampleFailures {
				result.SampleFailures = append(result.SampleFailures, domain.FailedEntry{
					Title:  articles[i].Title,
					URL:    articles[i].URL,
					Reason: "persist: " + err.Error(),
				})
			}
			continue
		}
		if !created {
			lgr.Printf("[DEBUG] article %s already ingested", articles[i].URL)
		}

		result.Processed++
		persisted = append(persisted, articles[i])
	}
	return persisted
}

// finish records the result, enters the terminal state and logs the run
// triple
func (c *Coordinator) finish(ctx context.Context, result domain.RunResult, err error) (domain.RunResult, error) {
	c.mu.Lock()
	c.state = StateDone
	c.lastResult = &result
	c.mu.Unlock()

	lgr.Printf("[INFO] run completed: fetched %d, processed %d, failed %d",
		result.Fetched, result.Processed, result.Failed)
	for _, f := range result.SampleFailures {
		lgr.Printf("[WARN] sample failure: %s (%s)", f.Title, f.Reason)
	}

	if err == nil {
		err = ctx.Err()
	}
	return result, err
}
