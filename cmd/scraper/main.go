package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zozo-catalog-scraper/config"
	"zozo-catalog-scraper/fetcher"
	"zozo-catalog-scraper/models"
	"zozo-catalog-scraper/pipeline"
	"zozo-catalog-scraper/scraper"
	"zozo-catalog-scraper/stats"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultCfg := config.DefaultConfig()

	itemsDefault := defaultCfg.MaxItems
	if value, ok, err := config.EnvInt("SCRAPER_MAX_ITEMS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_MAX_ITEMS: %v\n", err)
		return 1
	} else if ok {
		itemsDefault = value
	}
	retriesDefault := defaultCfg.RetryCount
	if value, ok, err := config.EnvInt("SCRAPER_RETRIES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_RETRIES: %v\n", err)
		return 1
	} else if ok {
		retriesDefault = value
	}
	categoryDefault := defaultCfg.CategoryURL
	if value, ok := config.EnvString("SCRAPER_CATEGORY_URL"); ok {
		categoryDefault = value
	}
	dsnDefault := defaultCfg.DBDSN
	if value, ok := config.EnvString("SCRAPER_DB_DSN"); ok {
		dsnDefault = value
	}

	categoryURL := flag.String("category-url", categoryDefault, "Category page URL to scrape")
	maxItems := flag.Int("max-items", itemsDefault, "Maximum products to collect")
	maxPages := flag.Int("max-pages", defaultCfg.MaxPages, "Maximum catalog pages to visit")
	fetcherKind := flag.String("fetcher", defaultCfg.FetcherKind, "Fetcher implementation: browser or static")
	headless := flag.Bool("headless", defaultCfg.Headless, "Run the browser headless")
	retryCount := flag.Int("retries", retriesDefault, "Maximum retry attempts per page")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	blockCooldownS := flag.Int("block-cooldown", int(defaultCfg.BlockCooldown/time.Second), "Cool-down after an anti-bot block (seconds)")
	delayMinMs := flag.Int("delay-min", int(defaultCfg.DelayMin/time.Millisecond), "Minimum inter-request delay (milliseconds)")
	delayMaxMs := flag.Int("delay-max", int(defaultCfg.DelayMax/time.Millisecond), "Maximum inter-request delay (milliseconds)")
	fetchDetails := flag.Bool("details", defaultCfg.FetchDetails, "Enrich records from product detail pages")
	outputFile := flag.String("output", defaultCfg.OutputFile, "CSV output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "File output format: csv, json, or dual")
	dbDriver := flag.String("db-driver", defaultCfg.DBDriver, "Relational store driver: sqlite, pgx, or empty to disable")
	dbDSN := flag.String("db-dsn", dsnDefault, "Relational store DSN")
	dbTable := flag.String("db-table", defaultCfg.DBTable, "Relational store table name")
	statsFile := flag.String("stats", defaultCfg.StatsFile, "Statistics report path (empty to disable)")
	logFile := flag.String("log-file", defaultCfg.LogFile, "Append-only log file path")
	metricsAddr := flag.String("metrics-addr", defaultCfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	cfg := defaultCfg
	cfg.CategoryURL = *categoryURL
	cfg.MaxItems = *maxItems
	cfg.MaxPages = *maxPages
	cfg.FetcherKind = strings.ToLower(*fetcherKind)
	cfg.Headless = *headless
	cfg.RetryCount = *retryCount
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.BlockCooldown = time.Duration(*blockCooldownS) * time.Second
	cfg.DelayMin = time.Duration(*delayMinMs) * time.Millisecond
	cfg.DelayMax = time.Duration(*delayMaxMs) * time.Millisecond
	cfg.FetchDetails = *fetchDetails
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.DBDriver = *dbDriver
	cfg.DBDSN = *dbDSN
	cfg.DBTable = *dbTable
	cfg.StatsFile = *statsFile
	cfg.LogFile = *logFile
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	logClose, err := setupLogging(cfg.LogFile, cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup: %v\n", err)
		return 1
	}
	defer logClose()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	f, err := newFetcher(cfg)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		return 1
	}

	s, err := scraper.NewScraper(cfg, f)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		f.Close()
		return 1
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("close scraper", slog.Any("error", err))
		}
	}()

	sink, err := createSink(cfg)
	if err != nil {
		slog.Error("creating sink", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("close sink", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing current page")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, runErr := s.Run(ctx)

	// Best-effort partial output: whatever was accumulated before a fatal
	// abort still gets persisted.
	exit := 0
	if len(result.Records) > 0 {
		if err := sink.Persist(result.Records); err != nil {
			slog.Error("persisting records", slog.Any("error", err))
			exit = 1
		} else if err := sink.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			exit = 1
		}
		if cfg.StatsFile != "" {
			summary := stats.Compute(result.Records)
			if err := stats.WriteJSON(cfg.StatsFile, summary); err != nil {
				slog.Error("writing statistics", slog.Any("error", err))
			}
		}
	}

	if runErr != nil {
		var exhausted scraper.ErrRetryExhausted
		if errors.As(runErr, &exhausted) {
			slog.Error("scrape aborted",
				slog.Int("page", exhausted.Page),
				slog.Int("attempts", exhausted.Attempts),
				slog.Any("error", runErr),
			)
		} else {
			slog.Error("scraping failed", slog.Any("error", runErr))
		}
		exit = 1
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, cfg.OutputFile)
	return exit
}

func newFetcher(cfg *config.Config) (fetcher.Fetcher, error) {
	switch cfg.FetcherKind {
	case "static":
		return fetcher.NewStaticFetcher(cfg)
	default:
		return fetcher.NewBrowserFetcher(cfg)
	}
}

func createSink(cfg *config.Config) (pipeline.Sink, error) {
	var sinks []pipeline.Sink

	switch cfg.OutputFormat {
	case "csv":
		cs, err := pipeline.NewCSVSink(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, cs)
	case "json":
		js, err := pipeline.NewJSONSink(jsonFilename(cfg.OutputFile))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, js)
	case "dual":
		cs, err := pipeline.NewCSVSink(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		js, err := pipeline.NewJSONSink(jsonFilename(cfg.OutputFile))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, cs, js)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}

	if cfg.DBDriver != "" {
		ss, err := pipeline.NewSQLSink(cfg.DBDriver, cfg.DBDSN, cfg.DBTable)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ss)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return pipeline.NewDualSink(sinks...), nil
}

func jsonFilename(csvFilename string) string {
	return strings.TrimSuffix(csvFilename, ".csv") + ".jsonl"
}

// setupLogging tees slog output to stdout and the append-only log file.
func setupLogging(logFile string, verbose bool) (func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	out := io.Writer(os.Stdout)
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) && logFile == "" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func printSummary(result *models.ScrapeResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Run id:        %s\n", result.RunID)
	fmt.Printf("  Total items:   %d\n", len(result.Records))
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Blocks:        %d\n", result.BlockCount)
	fmt.Printf("  Skipped cards: %d\n", result.SkippedCards)
	fmt.Printf("  Duplicates:    %d\n", result.Duplicates)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}
