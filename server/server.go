package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/knownav/knownav/pkg/domain"
)

// Server exposes the read-only dashboard API over persisted articles and
// concepts. It never mutates the store; all writes happen in the pipeline.
type Server struct {
	config  ConfigProvider
	db      Database
	index   ConceptIndex
	status  RunStatus
	version string
	debug   bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Database interface for dashboard reads
type Database interface {
	GetRecent(ctx context.Context, limit int) ([]domain.Article, error)
	Search(ctx context.Context, term string, limit int) ([]domain.Article, error)
	GetByDate(ctx context.Context, day time.Time) ([]domain.Article, error)
	Count(ctx context.Context) (int64, error)
}

// ConceptIndex interface for trend and recommendation queries
type ConceptIndex interface {
	Trending(ctx context.Context, windowDays int) ([]domain.Concept, error)
	RelatedArticles(ctx context.Context, conceptName string, limit int) ([]domain.Article, error)
	Recommendations(ctx context.Context) ([]domain.Recommendation, error)
	ConceptSummary(ctx context.Context, name string) (*domain.ConceptSummary, error)
}

// RunStatus reports the latest pipeline run outcome
type RunStatus interface {
	LastResult() *domain.RunResult
	LastGroups() []domain.TopicGroup
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// New initializes a new server instance
func New(cfg ConfigProvider, db Database, index ConceptIndex, status RunStatus, version string, debug bool) *Server {
	s := &Server{
		config:  cfg,
		db:      db,
		index:   index,
		status:  status,
		version: version,
		debug:   debug,
		router:  routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("knownav", "knownav", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes wires the read-only API
func (s *Server) setupRoutes() {
	api := s.router.Mount("/api/v1")

	api.HandleFunc("GET /status", s.statusHandler)
	api.HandleFunc("GET /articles", s.articlesHandler)
	api.HandleFunc("GET /articles/search", s.searchHandler)
	api.HandleFunc("GET /articles/date/{date}", s.articlesByDateHandler)
	api.HandleFunc("GET /concepts/trending", s.trendingHandler)
	api.HandleFunc("GET /concepts/{name}", s.conceptHandler)
	api.HandleFunc("GET /concepts/{name}/articles", s.conceptArticlesHandler)
	api.HandleFunc("GET /recommendations", s.recommendationsHandler)
}
