package domain

// FailedEntry records a single article that failed enrichment, with the
// reason it was excluded from persistence.
type FailedEntry struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// RunResult is the externally observable outcome of a pipeline run.
// A run with zero new articles is a normal, successful outcome.
type RunResult struct {
	Fetched          int
	Processed        int
	Failed           int
	SampleFailures   []FailedEntry // up to 3 entries
	AllSourcesFailed bool          // every configured endpoint errored
}
