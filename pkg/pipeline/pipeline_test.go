package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knownav/knownav/pkg/config"
	"github.com/knownav/knownav/pkg/domain"
	"github.com/knownav/knownav/pkg/feed"
)

type mockFetcher struct {
	result feed.FetchResult
}

func (m *mockFetcher) FetchAll(_ context.Context) feed.FetchResult { return m.result }

type mockNormalizer struct{}

func (m *mockNormalizer) Normalize(entry domain.RawEntry) (string, time.Time) {
	published := time.Now()
	if entry.Published != nil {
		published = *entry.Published
	}
	return strings.TrimSpace(entry.Body), published
}

type mockExtractor struct {
	text  string
	err   error
	calls []string
}

func (m *mockExtractor) Extract(_ context.Context, url string) (string, error) {
	m.calls = append(m.calls, url)
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

// mockEnricher marks every article enriched, failing the ones whose url is
// listed in failURLs
type mockEnricher struct {
	failURLs map[string]bool
	enriched []string
}

func (m *mockEnricher) ProcessBatch(_ context.Context, articles []domain.Article) ([]domain.Article, []domain.FailedEntry) {
	var succeeded []domain.Article
	var failed []domain.FailedEntry
	for _, a := range articles {
		m.enriched = append(m.enriched, a.URL)
		if m.failURLs[a.URL] {
			failed = append(failed, domain.FailedEntry{Title: a.Title, URL: a.URL, Reason: "llm request failed"})
			continue
		}
		a.Summary = "summary of " + a.Title
		a.Concepts = []string{"concept-a", "concept-b"}
		succeeded = append(succeeded, a)
	}
	return succeeded, failed
}

type mockClassifier struct{}

func (m *mockClassifier) Classify(_ domain.Article) string { return "Tech" }

func (m *mockClassifier) GroupByBucket(articles []domain.Article) []domain.TopicGroup {
	if len(articles) == 0 {
		return nil
	}
	return []domain.TopicGroup{{Bucket: "Tech", Articles: articles}}
}

type mockArticleStore struct {
	existing  map[string]bool
	createErr map[string]error
	created   []string
}

func (m *mockArticleStore) Exists(_ context.Context, url string) (bool, error) {
	return m.existing[url], nil
}

func (m *mockArticleStore) Create(_ context.Context, article *domain.Article) (bool, error) {
	if err, ok := m.createErr[article.URL]; ok {
		return false, err
	}
	if m.existing[article.URL] {
		return false, nil
	}
	m.created = append(m.created, article.URL)
	return true, nil
}

type mockIndex struct {
	mentions [][]string
	err      error
}

func (m *mockIndex) RecordMentions(_ context.Context, names []string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.mentions = append(m.mentions, names)
	return nil
}

func entriesFor(urls ...string) []domain.RawEntry {
	entries := make([]domain.RawEntry, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, domain.RawEntry{
			Title: "article " + u,
			Body:  "body of " + u,
			URL:   u,
		})
	}
	return entries
}

func newTestCoordinator(deps Deps) *Coordinator {
	if deps.Normalizer == nil {
		deps.Normalizer = &mockNormalizer{}
	}
	if deps.Classifier == nil {
		deps.Classifier = &mockClassifier{}
	}
	return NewCoordinator(deps)
}

func TestCoordinator_Run(t *testing.T) {
	store := &mockArticleStore{}
	index := &mockIndex{}
	enricher := &mockEnricher{}

	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{Entries: entriesFor("u1", "u2"), SourcesTotal: 1}},
		Enricher: enricher,
		Articles: store,
		Index:    index,
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.AllSourcesFailed)
	assert.Empty(t, result.SampleFailures)

	assert.Equal(t, []string{"u1", "u2"}, store.created)
	require.Len(t, index.mentions, 2)
	assert.Equal(t, []string{"concept-a", "concept-b"}, index.mentions[0])

	assert.Equal(t, StateDone, c.State())
	require.NotNil(t, c.LastResult())
	assert.Equal(t, 2, c.LastResult().Processed)
	require.Len(t, c.LastGroups(), 1)
	assert.Equal(t, "Tech", c.LastGroups()[0].Bucket)
}

func TestCoordinator_Run_DedupBeforeEnrichment(t *testing.T) {
	store := &mockArticleStore{existing: map[string]bool{"u2": true}}
	enricher := &mockEnricher{}

	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{Entries: entriesFor("u1", "u2", "u1"), SourcesTotal: 1}},
		Enricher: enricher,
		Articles: store,
		Index:    &mockIndex{},
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	// already-ingested and in-batch repeats never reach the enricher
	assert.Equal(t, []string{"u1"}, enricher.enriched)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 1, result.Processed)
}

func TestCoordinator_Run_EntryWithoutURLDropped(t *testing.T) {
	entries := entriesFor("u1")
	entries = append(entries, domain.RawEntry{Title: "no url entry", Body: "body"})
	enricher := &mockEnricher{}

	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{Entries: entries, SourcesTotal: 1}},
		Enricher: enricher,
		Articles: &mockArticleStore{},
		Index:    &mockIndex{},
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, enricher.enriched)
	assert.Equal(t, 1, result.Processed)
}

func TestCoordinator_Run_PartialEnrichmentFailure(t *testing.T) {
	urls := []string{"u1", "u2", "u3", "u4", "u5"}
	store := &mockArticleStore{}

	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{Entries: entriesFor(urls...), SourcesTotal: 1}},
		Enricher: &mockEnricher{failURLs: map[string]bool{"u3": true}},
		Articles: store,
		Index:    &mockIndex{},
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	// one failing article never aborts the rest
	assert.Equal(t, 5, result.Fetched)
	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"u1", "u2", "u4", "u5"}, store.created)

	require.Len(t, result.SampleFailures, 1)
	assert.Equal(t, "u3", result.SampleFailures[0].URL)
	assert.NotEmpty(t, result.SampleFailures[0].Reason)
}

func TestCoordinator_Run_SampleFailuresCapped(t *testing.T) {
	urls := []string{"u1", "u2", "u3", "u4", "u5"}
	failAll := make(map[string]bool, len(urls))
	for _, u := range urls {
		failAll[u] = true
	}

	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{Entries: entriesFor(urls...), SourcesTotal: 1}},
		Enricher: &mockEnricher{failURLs: failAll},
		Articles: &mockArticleStore{},
		Index:    &mockIndex{},
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Failed)
	assert.Equal(t, 0, result.Processed)
	assert.Len(t, result.SampleFailures, 3)
}

func TestCoordinator_Run_EmptyFetchShortCircuits(t *testing.T) {
	enricher := &mockEnricher{}
	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{SourcesTotal: 2}},
		Enricher: enricher,
		Articles: &mockArticleStore{},
		Index:    &mockIndex{},
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunResult{}, result)
	assert.Empty(t, enricher.enriched)
	assert.Equal(t, StateDone, c.State())
}

func TestCoordinator_Run_AllSourcesFailed(t *testing.T) {
	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{SourcesTotal: 3, SourcesFailed: 3}},
		Enricher: &mockEnricher{},
		Articles: &mockArticleStore{},
		Index:    &mockIndex{},
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.AllSourcesFailed)
	assert.Zero(t, result.Fetched)
}

func TestCoordinator_Run_PersistFailureIsolated(t *testing.T) {
	store := &mockArticleStore{createErr: map[string]error{"u2": errors.New("disk full")}}

	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{Entries: entriesFor("u1", "u2", "u3"), SourcesTotal: 1}},
		Enricher: &mockEnricher{},
		Articles: store,
		Index:    &mockIndex{},
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"u1", "u3"}, store.created)
	require.Len(t, result.SampleFailures, 1)
	assert.Contains(t, result.SampleFailures[0].Reason, "persist")
}

func TestCoordinator_Run_ExtractionFallback(t *testing.T) {
	longBody := strings.Repeat("long feed body ", 20)
	entries := []domain.RawEntry{
		{Title: "short", Body: "tiny", URL: "u-short"},
		{Title: "long", Body: longBody, URL: "u-long"},
	}

	extractor := &mockExtractor{text: strings.Repeat("extracted full text ", 20)}
	c := newTestCoordinator(Deps{
		Fetcher:   &mockFetcher{result: feed.FetchResult{Entries: entries, SourcesTotal: 1}},
		Extractor: extractor,
		Enricher:  &mockEnricher{},
		Articles:  &mockArticleStore{},
		Index:     &mockIndex{},
		Extraction: config.ExtractionConfig{
			Enabled:       true,
			Timeout:       time.Second,
			MinTextLength: 100,
		},
	})

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	// only the short body triggers extraction
	assert.Equal(t, []string{"u-short"}, extractor.calls)
}

func TestCoordinator_Run_ExtractionFailureKeepsFeedBody(t *testing.T) {
	entries := []domain.RawEntry{{Title: "short", Body: "tiny", URL: "u1"}}
	enricher := &mockEnricher{}

	c := newTestCoordinator(Deps{
		Fetcher:   &mockFetcher{result: feed.FetchResult{Entries: entries, SourcesTotal: 1}},
		Extractor: &mockExtractor{err: errors.New("fetch blocked")},
		Enricher:  enricher,
		Articles:  &mockArticleStore{},
		Index:     &mockIndex{},
		Extraction: config.ExtractionConfig{
			Enabled:       true,
			Timeout:       time.Second,
			MinTextLength: 100,
		},
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []string{"u1"}, enricher.enriched)
}

func TestCoordinator_Run_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{Entries: entriesFor("u1"), SourcesTotal: 1}},
		Enricher: &mockEnricher{},
		Articles: &mockArticleStore{},
		Index:    &mockIndex{},
	})

	_, err := c.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, StateDone, c.State())
}

func TestCoordinator_Run_IndexInterruption(t *testing.T) {
	c := newTestCoordinator(Deps{
		Fetcher:  &mockFetcher{result: feed.FetchResult{Entries: entriesFor("u1"), SourcesTotal: 1}},
		Enricher: &mockEnricher{},
		Articles: &mockArticleStore{},
		Index:    &mockIndex{err: errors.New("record mentions interrupted: context canceled")},
	})

	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDone, c.State())
}
