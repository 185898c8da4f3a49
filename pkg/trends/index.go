package trends

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/knownav/knownav/pkg/domain"
)

// trendingTopN caps trend queries; recommendations attach at most
// relatedPerConcept articles each.
const (
	trendingTopN      = 10
	relatedPerConcept = 3
	trendingWindow    = 7 // days, for recommendations
)

// ConceptStore persists concept mentions
type ConceptStore interface {
	Upsert(ctx context.Context, name string, observedAt time.Time) error
	Get(ctx context.Context, name string) (*domain.Concept, error)
	Trending(ctx context.Context, windowDays, topN int) ([]domain.Concept, error)
}

// ArticleStore resolves concept-to-article backlinks by query
type ArticleStore interface {
	GetByConcept(ctx context.Context, concept string, limit int) ([]domain.Article, error)
}

// Index tracks concept frequency and recency across runs and answers trend
// and recommendation queries. Backlinks from concepts to articles are
// recomputed by query rather than stored as graph edges.
type Index struct {
	concepts ConceptStore
	articles ArticleStore
}

// NewIndex creates a concept index over the given stores
func NewIndex(concepts ConceptStore, articles ArticleStore) *Index {
	return &Index{concepts: concepts, articles: articles}
}

// RecordMentions upserts one mention per name in the list. The list is a
// single enrichment event: repeats within it count separately, collapsing
// them would silently change trending results. Per-name store failures are
// logged and skipped so one bad name never loses the rest.
func (i *Index) RecordMentions(ctx context.Context, names []string, observedAt time.Time) error {
	recorded := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("record mentions interrupted: %w", err)
		}
		if err := i.concepts.Upsert(ctx, name, observedAt); err != nil {
			lgr.Printf("[WARN] failed to record concept %q: %v", name, err)
			continue
		}
		recorded++
	}

	lgr.Printf("[DEBUG] recorded %d of %d concept mentions", recorded, len(names))
	return nil
}

// Trending returns up to 10 concepts seen within the window, ordered by
// frequency descending, recency descending, name ascending
func (i *Index) Trending(ctx context.Context, windowDays int) ([]domain.Concept, error) {
	concepts, err := i.concepts.Trending(ctx, windowDays, trendingTopN)
	if err != nil {
		return nil, fmt.Errorf("trending concepts: %w", err)
	}
	return concepts, nil
}

// RelatedArticles finds articles whose concept lists contain the name as a
// case-insensitive substring, newest first
func (i *Index) RelatedArticles(ctx context.Context, conceptName string, limit int) ([]domain.Article, error) {
	articles, err := i.articles.GetByConcept(ctx, conceptName, limit)
	if err != nil {
		return nil, fmt.Errorf("related articles for %q: %w", conceptName, err)
	}
	return articles, nil
}

// Recommendations pairs each trending concept of the last week with its top
// related articles. Concepts with no retrievable articles are omitted, a
// trend nobody can read up on is not actionable.
func (i *Index) Recommendations(ctx context.Context) ([]domain.Recommendation, error) {
	trending, err := i.Trending(ctx, trendingWindow)
	if err != nil {
		return nil, err
	}

	recommendations := make([]domain.Recommendation, 0, len(trending))
	for _, concept := range trending {
		related, err := i.RelatedArticles(ctx, concept.Name, relatedPerConcept)
		if err != nil {
			lgr.Printf("[WARN] skipping recommendation for %q: %v", concept.Name, err)
			continue
		}
		if len(related) == 0 {
			continue
		}

		recommendations = append(recommendations, domain.Recommendation{
			Concept:   concept.Name,
			Frequency: concept.Frequency,
			Articles:  related,
		})
	}

	lgr.Printf("[INFO] generated %d recommendations", len(recommendations))
	return recommendations, nil
}

// ConceptSummary describes one concept's frequency, recency and related
// articles
func (i *Index) ConceptSummary(ctx context.Context, name string) (*domain.ConceptSummary, error) {
	concept, err := i.concepts.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("concept summary: %w", err)
	}

	related, err := i.RelatedArticles(ctx, concept.Name, 5)
	if err != nil {
		return nil, err
	}

	return &domain.ConceptSummary{
		Concept:   concept.Name,
		Frequency: concept.Frequency,
		LastSeen:  concept.LastSeen,
		Articles:  related,
	}, nil
}
