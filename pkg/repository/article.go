package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/knownav/knownav/pkg/domain"
)

// ArticleRepository handles article persistence. Articles are keyed by url:
// a second save of the same url is a no-op, never an update.
type ArticleRepository struct {
	db *sqlx.DB
}

// articleSQL represents an article row for SQL operations
type articleSQL struct {
	ID          int64       `db:"id"`
	Title       string      `db:"title"`
	CleanedBody string      `db:"cleaned_body"`
	URL         string      `db:"url"`
	Source      string      `db:"source"`
	Category    string      `db:"category"`
	TopicBucket string      `db:"topic_bucket"`
	Summary     string      `db:"summary"`
	Concepts    conceptsSQL `db:"concepts"`
	PublishedAt time.Time   `db:"published_at"`
	ProcessedAt time.Time   `db:"processed_at"`
	CreatedAt   time.Time   `db:"created_at"`
}

// conceptsSQL is a JSON array of concept names for SQL operations
type conceptsSQL []string

// Value implements driver.Valuer for database storage
func (c conceptsSQL) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner for database retrieval
func (c *conceptsSQL) Scan(value interface{}) error {
	if value == nil {
		*c = conceptsSQL{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return json.Unmarshal([]byte("[]"), c)
	}

	return json.Unmarshal(data, c)
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(database *sqlx.DB) *ArticleRepository {
	return &ArticleRepository{db: database}
}

// Exists checks whether an article with the given url was already ingested
func (r *ArticleRepository) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM articles WHERE url = ?)", url)
	if err != nil {
		return false, fmt.Errorf("check article exists: %w", err)
	}
	return exists, nil
}

// Create inserts a new article, idempotent by url. Returns false without
// error when the url was already present; a duplicate at save time means
// already-ingested, not a failure.
func (r *ArticleRepository) Create(ctx context.Context, article *domain.Article) (bool, error) {
	sqlArticle := &articleSQL{
		Title:       article.Title,
		CleanedBody: article.CleanedBody,
		URL:         article.URL,
		Source:      article.Source,
		Category:    article.Category,
		TopicBucket: article.TopicBucket,
		Summary:     article.Summary,
		Concepts:    conceptsSQL(article.Concepts),
		PublishedAt: article.PublishedAt,
		ProcessedAt: article.ProcessedAt,
	}

	query := `
		INSERT INTO articles (
			title, cleaned_body, url, source, category,
			topic_bucket, summary, concepts, published_at, processed_at
		) VALUES (
			:title, :cleaned_body, :url, :source, :category,
			:topic_bucket, :summary, :concepts, :published_at, :processed_at
		)
		ON CONFLICT(url) DO NOTHING
	`

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	var created bool
	err := retrier.Do(ctx, func() error {
		result, err := r.db.NamedExecContext(ctx, query, sqlArticle)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("create article: %w", err)}
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return &criticalError{err: fmt.Errorf("get rows affected: %w", err)}
		}
		if affected == 0 {
			created = false // url conflict, treat as already-ingested
			return nil
		}

		id, err := result.LastInsertId()
		if err != nil {
			return &criticalError{err: fmt.Errorf("get insert id: %w", err)}
		}
		article.ID = id
		created = true
		return nil
	})

	return created, err
}

// GetByURL retrieves an article by its url
func (r *ArticleRepository) GetByURL(ctx context.Context, url string) (*domain.Article, error) {
	var sqlArticle articleSQL
	err := r.db.GetContext(ctx, &sqlArticle, "SELECT * FROM articles WHERE url = ?", url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("article %s not found: %w", url, err)
		}
		return nil, fmt.Errorf("get article: %w", err)
	}
	return toDomainArticle(&sqlArticle), nil
}

// GetRecent retrieves the latest articles ordered by publish time
func (r *ArticleRepository) GetRecent(ctx context.Context, limit int) ([]domain.Article, error) {
	query := `
		SELECT * FROM articles
		ORDER BY published_at DESC
		LIMIT ?
	`
	var sqlArticles []articleSQL
	if err := r.db.SelectContext(ctx, &sqlArticles, query, limit); err != nil {
		return nil, fmt.Errorf("get recent articles: %w", err)
	}
	return toDomainArticles(sqlArticles), nil
}

// Search finds articles whose title, summary or concept list contains the
// query, case-insensitive, latest first
func (r *ArticleRepository) Search(ctx context.Context, term string, limit int) ([]domain.Article, error) {
	query := `
		SELECT * FROM articles
		WHERE LOWER(title) LIKE '%' || LOWER(?) || '%'
		   OR LOWER(summary) LIKE '%' || LOWER(?) || '%'
		   OR LOWER(concepts) LIKE '%' || LOWER(?) || '%'
		ORDER BY published_at DESC
		LIMIT ?
	`
	var sqlArticles []articleSQL
	if err := r.db.SelectContext(ctx, &sqlArticles, query, term, term, term, limit); err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	return toDomainArticles(sqlArticles), nil
}

// GetByConcept finds articles whose concept list contains a case-insensitive
// substring match of the concept name, newest first. The backlink is a
// derived query, not a stored edge.
func (r *ArticleRepository) GetByConcept(ctx context.Context, concept string, limit int) ([]domain.Article, error) {
	query := `
		SELECT * FROM articles
		WHERE LOWER(concepts) LIKE '%' || LOWER(?) || '%'
		ORDER BY published_at DESC
		LIMIT ?
	`
	var sqlArticles []articleSQL
	if err := r.db.SelectContext(ctx, &sqlArticles, query, concept, limit); err != nil {
		return nil, fmt.Errorf("get articles by concept: %w", err)
	}
	return toDomainArticles(sqlArticles), nil
}

// GetByDate retrieves articles published on the given day
func (r *ArticleRepository) GetByDate(ctx context.Context, day time.Time) ([]domain.Article, error) {
	query := `
		SELECT * FROM articles
		WHERE date(published_at) = date(?)
		ORDER BY published_at DESC
	`
	var sqlArticles []articleSQL
	if err := r.db.SelectContext(ctx, &sqlArticles, query, day); err != nil {
		return nil, fmt.Errorf("get articles by date: %w", err)
	}
	return toDomainArticles(sqlArticles), nil
}

// Count returns the total number of persisted articles
func (r *ArticleRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM articles"); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

// toDomainArticle converts articleSQL to domain.Article
func toDomainArticle(sqlArticle *articleSQL) *domain.Article {
	return &domain.Article{
		ID:          sqlArticle.ID,
		Title:       sqlArticle.Title,
		CleanedBody: sqlArticle.CleanedBody,
		URL:         sqlArticle.URL,
		Source:      sqlArticle.Source,
		Category:    sqlArticle.Category,
		TopicBucket: sqlArticle.TopicBucket,
		Summary:     sqlArticle.Summary,
		Concepts:    sqlArticle.Concepts,
		PublishedAt: sqlArticle.PublishedAt,
		ProcessedAt: sqlArticle.ProcessedAt,
	}
}

func toDomainArticles(sqlArticles []articleSQL) []domain.Article {
	articles := make([]domain.Article, len(sqlArticles))
	for i := range sqlArticles {
		articles[i] = *toDomainArticle(&sqlArticles[i])
	}
	return articles
}
