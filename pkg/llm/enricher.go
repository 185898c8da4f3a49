package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/knownav/knownav/pkg/config"
	"github.com/knownav/knownav/pkg/domain"
)

// Enricher produces summaries and concept lists for articles via an
// OpenAI-compatible inference endpoint. The endpoint may be slow, rate
// limited or return malformed output; all of that is contained here and
// surfaced as per-article failures, never as batch aborts.
type Enricher struct {
	client *openai.Client
	cfg    config.EnrichmentConfig
}

const summarySystemPrompt = `You are a precise news summarizer. Produce a short factual summary of the provided article text in 2-4 sentences. Write directly about the content itself, never use phrases like "The article discusses". Respond with the summary text only, no preamble.`

const conceptsSystemPrompt = `You extract salient terms from article summaries. Given a summary, respond with a short comma-separated list of 3-7 key concepts (technologies, companies, people, ideas). Respond with the list only, no numbering, no preamble.`

// NewEnricher creates a new enrichment client
func NewEnricher(cfg config.EnrichmentConfig) *Enricher {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	return &Enricher{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}
}

// Summarize sends the text to the inference endpoint and returns the
// trimmed summary. Input is truncated to the configured limit first,
// inference backends impose input-length caps.
func (e *Enricher) Summarize(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("no content to summarize")
	}
	if len(text) > e.cfg.MaxInputChars {
		text = text[:e.cfg.MaxInputChars]
	}

	summary, err := e.complete(ctx, summarySystemPrompt, text)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return summary, nil
}

// ExtractConcepts asks for salient terms derived from the summary, not the
// raw body, to bias toward already-distilled signal. The returned names keep
// first-seen order; case variants are not collapsed here, the concept index
// does that across time.
func (e *Enricher) ExtractConcepts(ctx context.Context, summary string) ([]string, error) {
	if summary == "" {
		return nil, fmt.Errorf("no summary to extract concepts from")
	}

	resp, err := e.complete(ctx, conceptsSystemPrompt, summary)
	if err != nil {
		return nil, fmt.Errorf("extract concepts: %w", err)
	}

	return SplitConcepts(resp), nil
}

// SplitConcepts parses a comma-separated concept list: terms are trimmed,
// empty terms dropped, order preserved, no de-duplication.
func SplitConcepts(s string) []string {
	parts := strings.Split(s, ",")
	concepts := make([]string, 0, len(parts))
	for _, p := range parts {
		if term := strings.TrimSpace(p); term != "" {
			concepts = append(concepts, term)
		}
	}
	return concepts
}

// complete issues a single chat completion with per-call timeout and
// backoff retry. The response decode is explicit: a shape without a
// non-empty first choice is a failure, not something to coerce.
func (e *Enricher) complete(ctx context.Context, systemMsg, userMsg string) (string, error) {
	retrier := repeater.NewBackoff(e.cfg.Retries, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second))

	var content string
	err := retrier.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		resp, err := e.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       e.cfg.Model,
			Temperature: float32(e.cfg.Temperature),
			MaxTokens:   e.cfg.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemMsg},
				{Role: openai.ChatMessageRoleUser, Content: userMsg},
			},
		})
		if err != nil {
			return fmt.Errorf("llm request failed: %w", err)
		}

		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response from llm")
		}

		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return fmt.Errorf("empty response from llm")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Enrich runs both sub-calls for a single article body. Either failing
// turns into an EnrichmentError naming the article's url.
func (e *Enricher) Enrich(ctx context.Context, url, body string) (summary string, concepts []string, err error) {
	summary, err = e.Summarize(ctx, body)
	if err != nil {
		return "", nil, &domain.EnrichmentError{URL: url, Reason: err.Error()}
	}

	concepts, err = e.ExtractConcepts(ctx, summary)
	if err != nil {
		return "", nil, &domain.EnrichmentError{URL: url, Reason: err.Error()}
	}

	return summary, concepts, nil
}

// ProcessBatch enriches articles one by one. Failed articles are excluded
// with their reason; succeeded keeps input order minus failures. A fixed
// pause between consecutive articles throttles against the shared endpoint,
// a deliberate rate limit rather than error recovery.
func (e *Enricher) ProcessBatch(ctx context.Context, articles []domain.Article) (succeeded []domain.Article, failed []domain.FailedEntry) {
	for i, article := range articles {
		if i > 0 {
			select {
			case <-time.After(e.cfg.Pause):
			case <-ctx.Done():
				lgr.Printf("[WARN] enrichment batch canceled after %d of %d articles", i, len(articles))
				return succeeded, failed
			}
		}

		summary, concepts, err := e.Enrich(ctx, article.URL, article.CleanedBody)
		if err != nil {
			lgr.Printf("[WARN] %v", err)
			failed = append(failed, domain.FailedEntry{
				Title:  article.Title,
				URL:    article.URL,
				Reason: err.Error(),
			})
			continue
		}

		article.Summary = summary
		article.Concepts = concepts
		succeeded = append(succeeded, article)
		lgr.Printf("[DEBUG] enriched article %q with %d concepts", article.Title, len(concepts))
	}

	lgr.Printf("[INFO] batch enrichment completed: %d succeeded, %d failed", len(succeeded), len(failed))
	return succeeded, failed
}
