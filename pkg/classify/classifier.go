package classify

import (
	"strings"

	"github.com/knownav/knownav/pkg/config"
	"github.com/knownav/knownav/pkg/domain"
)

// Classifier assigns each article to exactly one topic bucket using a
// keyword heuristic over title, body and summary. Bucket order is the
// tie-break: when text matches several buckets the earlier-listed one wins,
// which keeps grouping reproducible.
type Classifier struct {
	buckets       []config.TopicBucket
	defaultBucket string
}

// defaultBuckets is the built-in ordered bucket list used when the config
// provides none
var defaultBuckets = []config.TopicBucket{
	{Name: "AI_ML", Keywords: []string{"ai", "machine learning", "neural", "gpt", "llm", "artificial intelligence", "chatgpt", "openai", "model", "deep learning"}},
	{Name: "Business", Keywords: []string{"startup", "funding", "acquisition", "partnership", "launch", "announces", "market", "investment"}},
	{Name: "Cybersecurity", Keywords: []string{"security", "breach", "hack", "privacy", "vulnerability", "data", "cyber", "protection"}},
	{Name: "Innovation", Keywords: []string{"research", "breakthrough", "innovation", "development", "discovery", "patent", "scientific", "future"}},
}

// New creates a classifier from the config, falling back to the built-in
// bucket list
func New(cfg config.ClassifyConfig) *Classifier {
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	defaultBucket := cfg.DefaultBucket
	if defaultBucket == "" {
		defaultBucket = "Tech"
	}

	return &Classifier{buckets: buckets, defaultBucket: defaultBucket}
}

// Classify returns the topic bucket for the article. Deterministic and
// pure: the same title, body and summary always yield the same bucket.
func (c *Classifier) Classify(article domain.Article) string {
	title := strings.ToLower(article.Title)
	body := strings.ToLower(article.CleanedBody)
	summary := strings.ToLower(article.Summary)

	for _, bucket := range c.buckets {
		for _, kw := range bucket.Keywords {
			if strings.Contains(title, kw) || strings.Contains(body, kw) || strings.Contains(summary, kw) {
				return bucket.Name
			}
		}
	}
	return c.defaultBucket
}

// GroupByBucket groups a run's articles by topic bucket, keeping bucket
// declaration order followed by the default bucket. Recomputed per run,
// never stored.
func (c *Classifier) GroupByBucket(articles []domain.Article) []domain.TopicGroup {
	byBucket := make(map[string][]domain.Article)
	for _, a := range articles {
		byBucket[a.TopicBucket] = append(byBucket[a.TopicBucket], a)
	}

	groups := make([]domain.TopicGroup, 0, len(c.buckets)+1)
	for _, b := range c.buckets {
		if members, ok := byBucket[b.Name]; ok {
			groups = append(groups, domain.TopicGroup{Bucket: b.Name, Articles: members})
		}
	}
	if members, ok := byBucket[c.defaultBucket]; ok {
		groups = append(groups, domain.TopicGroup{Bucket: c.defaultBucket, Articles: members})
	}
	return groups
}
