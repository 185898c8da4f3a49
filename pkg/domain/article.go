package domain

import "time"

// RawEntry is an unprocessed feed item as produced by the feed adapter,
// before dedup and normalization. URL is the natural key across the system.
type RawEntry struct {
	Title     string
	Body      string
	URL       string
	Source    string // feed endpoint the entry came from
	Category  string // config category label of the endpoint
	Published *time.Time
}

// Article is the durable unit persisted after enrichment. Never mutated
// after persist.
type Article struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	CleanedBody string    `json:"cleaned_body,omitempty"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	TopicBucket string    `json:"topic_bucket"`
	Summary     string    `json:"summary"`
	Concepts    []string  `json:"concepts"` // extraction order preserved
	PublishedAt time.Time `json:"published_at"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Concept is a normalized term extracted from article summaries, tracked
// for frequency and recency. Keyed by trimmed, case-folded name.
type Concept struct {
	Name      string    `json:"name"`
	Frequency int64     `json:"frequency"`
	LastSeen  time.Time `json:"last_seen"`
}

// Recommendation pairs a trending concept with its top related articles.
type Recommendation struct {
	Concept   string    `json:"concept"`
	Frequency int64     `json:"frequency"`
	Articles  []Article `json:"articles"`
}

// ConceptSummary describes a single concept with its related articles.
type ConceptSummary struct {
	Concept   string    `json:"concept"`
	Frequency int64     `json:"frequency"`
	LastSeen  time.Time `json:"last_seen"`
	Articles  []Article `json:"articles"`
}

// TopicGroup is a per-run grouping of articles by topic bucket, recomputed
// each run and never stored.
type TopicGroup struct {
	Bucket   string    `json:"bucket"`
	Articles []Article `json:"articles"`
}
