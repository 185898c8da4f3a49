package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/knownav/knownav/pkg/classify"
	"github.com/knownav/knownav/pkg/config"
	"github.com/knownav/knownav/pkg/content"
	"github.com/knownav/knownav/pkg/feed"
	"github.com/knownav/knownav/pkg/llm"
	"github.com/knownav/knownav/pkg/pipeline"
	"github.com/knownav/knownav/pkg/repository"
	"github.com/knownav/knownav/pkg/trends"
	"github.com/knownav/knownav/server"
)

// Opts with all CLI options
type Opts struct {
	Config  string `short:"f" long:"config" env:"CONFIG" default:"knownav.yml" description:"config file path"`
	Server  bool   `short:"s" long:"server" env:"SERVER" description:"start dashboard server after the run"`
	SkipRun bool   `long:"skip-run" env:"SKIP_RUN" description:"skip the pipeline run (server only)"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	// configuration failures are fatal before any run state is entered
	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLog(opts.Debug, cfg.Enrichment.APIKey)

	log.Printf("[INFO] starting knownav version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		cancel()
		os.Exit(1)
	}

	cancel()
	log.Print("[INFO] shutdown complete")
}

// run wires the components and executes the requested modes
func run(ctx context.Context, cfg *config.Config, opts Opts) error {
	repos, err := repository.New(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer repos.Close()

	feedParser := feed.NewParser(cfg.Feeds.Timeout, cfg.Feeds.UserAgent)
	fetcher := feed.NewFetcher(feedParser, cfg.Feeds)
	normalizer := content.NewNormalizer()
	enricher := llm.NewEnricher(cfg.Enrichment)
	classifier := classify.New(cfg.Classify)
	index := trends.NewIndex(repos.Concept, repos.Article)

	var extractor pipeline.Extractor
	if cfg.Extraction.Enabled {
		extractor = content.NewHTTPExtractor(cfg.Extraction.Timeout, cfg.Extraction.UserAgent)
	}

	coordinator := pipeline.NewCoordinator(pipeline.Deps{
		Fetcher:    fetcher,
		Normalizer: normalizer,
		Extractor:  extractor,
		Enricher:   enricher,
		Classifier: classifier,
		Articles:   repos.Article,
		Index:      index,
		Extraction: cfg.Extraction,
	})

	if !opts.SkipRun {
		result, err := coordinator.Run(ctx)
		if err != nil {
			return fmt.Errorf("pipeline run interrupted: %w", err)
		}
		log.Printf("[INFO] run result: fetched=%d processed=%d failed=%d",
			result.Fetched, result.Processed, result.Failed)
	}

	if opts.Server {
		srv := server.New(cfg, repos.Article, index, coordinator, revision, opts.Debug)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	return nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
