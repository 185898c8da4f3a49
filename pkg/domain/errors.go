package domain

import "fmt"

// EnrichmentError marks a per-article enrichment failure. It excludes the
// article from persistence but never aborts the batch.
type EnrichmentError struct {
	URL    string
	Reason string
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment failed for %s: %s", e.URL, e.Reason)
}

// SourceError marks a single feed endpoint as unavailable or unparseable.
// The endpoint is skipped and retried on the next scheduled run.
type SourceError struct {
	Endpoint string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Endpoint, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
