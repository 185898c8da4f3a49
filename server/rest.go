package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// statusHandler returns server status with the latest run outcome
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.db.Count(r.Context())
	if err != nil {
		log.Printf("[ERROR] failed to count articles: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	status := map[string]interface{}{
		"status":   "ok",
		"version":  s.version,
		"time":     time.Now().UTC(),
		"articles": count,
	}

	if last := s.status.LastResult(); last != nil {
		status["last_run"] = map[string]interface{}{
			"fetched":            last.Fetched,
			"processed":          last.Processed,
			"failed":             last.Failed,
			"sample_failures":    last.SampleFailures,
			"all_sources_failed": last.AllSourcesFailed,
		}

		groups := map[string]int{}
		for _, g := range s.status.LastGroups() {
			groups[g.Bucket] = len(g.Articles)
		}
		status["last_run_topics"] = groups
	}

	renderJSON(w, r, http.StatusOK, status)
}

// articlesHandler returns the latest persisted articles
func (s *Server) articlesHandler(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultLimit)

	articles, err := s.db.GetRecent(r.Context(), limit)
	if err != nil {
		log.Printf("[ERROR] failed to get articles: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, articles)
}

// searchHandler searches title, summary and concepts
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		renderError(w, r, fmt.Errorf("query parameter q is required"), http.StatusBadRequest)
		return
	}

	limit := parseLimit(r, defaultLimit)

	articles, err := s.db.Search(r.Context(), query, limit)
	if err != nil {
		log.Printf("[ERROR] failed to search articles: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, articles)
}

// articlesByDateHandler returns articles published on the given day
func (s *Server) articlesByDateHandler(w http.ResponseWriter, r *http.Request) {
	dateStr := r.PathValue("date")
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		renderError(w, r, fmt.Errorf("invalid date, expected YYYY-MM-DD"), http.StatusBadRequest)
		return
	}

	articles, err := s.db.GetByDate(r.Context(), day)
	if err != nil {
		log.Printf("[ERROR] failed to get articles by date: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, articles)
}

// trendingHandler returns trending concepts for the requested window
func (s *Server) trendingHandler(w http.ResponseWriter, r *http.Request) {
	days := 7
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 1 {
			renderError(w, r, fmt.Errorf("invalid days parameter"), http.StatusBadRequest)
			return
		}
		days = parsed
	}

	concepts, err := s.index.Trending(r.Context(), days)
	if err != nil {
		log.Printf("[ERROR] failed to get trending concepts: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, concepts)
}

// conceptHandler returns a single concept's summary with related articles
func (s *Server) conceptHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	summary, err := s.index.ConceptSummary(r.Context(), name)
	if err != nil {
		renderError(w, r, err, http.StatusNotFound)
		return
	}

	renderJSON(w, r, http.StatusOK, summary)
}

// conceptArticlesHandler returns articles related to a concept
func (s *Server) conceptArticlesHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	limit := parseLimit(r, defaultLimit)

	articles, err := s.index.RelatedArticles(r.Context(), name, limit)
	if err != nil {
		log.Printf("[ERROR] failed to get related articles: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, articles)
}

// recommendationsHandler returns trending concepts with top related articles
func (s *Server) recommendationsHandler(w http.ResponseWriter, r *http.Request) {
	recommendations, err := s.index.Recommendations(r.Context())
	if err != nil {
		log.Printf("[ERROR] failed to get recommendations: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, recommendations)
}

// parseLimit reads the limit query parameter with bounds applied
func parseLimit(r *http.Request, def int) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return def
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
