// Package scraper runs the sequential scrape-and-retry loop.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zozo-catalog-scraper/config"
	"zozo-catalog-scraper/fetcher"
	"zozo-catalog-scraper/models"
	"zozo-catalog-scraper/parser"
)

// Scraper paginates through the category, parses each page, and accumulates
// deduplicated records. Pages are fetched strictly sequentially to respect
// the target's rate limits.
type Scraper struct {
	cfg     *config.Config
	fetcher fetcher.Fetcher
	parser  *parser.Parser
	Metrics *Metrics
}

// NewScraper wires a scraper around the given fetcher.
func NewScraper(cfg *config.Config, f fetcher.Fetcher) (*Scraper, error) {
	p, err := parser.New(cfg.IDPattern)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		cfg:     cfg,
		fetcher: f,
		parser:  p,
		Metrics: NewMetrics(),
	}, nil
}

// Run executes the scrape. On retry exhaustion the returned result still
// carries everything accumulated so far, so the caller can persist a
// best-effort partial output before aborting.
func (s *Scraper) Run(ctx context.Context) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	session := models.NewScrapeSession()
	acc := NewAccumulator(s.cfg.MaxItems)
	retry := newRetryController(s.fetcher, s.cfg, s.Metrics, session)

	result := &models.ScrapeResult{
		RunID:        session.RunID,
		StartTime:    session.StartedAt,
		ErrorsByType: make(map[string]int),
	}

	slog.Info("scrape started",
		slog.String("run_id", session.RunID),
		slog.String("category", s.cfg.CategoryURL),
		slog.Int("max_items", s.cfg.MaxItems),
	)

	var runErr error
	for page := 1; page <= s.cfg.MaxPages && !acc.Full(); page++ {
		session.CurrentPage = page

		start := time.Now()
		markup, err := retry.FetchPage(ctx, page)
		s.Metrics.ObserveFetch(time.Since(start))
		result.RequestCount++
		if err != nil {
			result.ErrorCount++
			result.ErrorsByType[fetcher.TypeLabel(err)]++
			runErr = err
			break
		}
		s.Metrics.IncPages()
		result.PageCount++

		records, skipped := s.parser.Extract(markup, fetcher.PageURL(s.cfg.CategoryURL, page))
		result.SkippedCards += skipped
		s.Metrics.AddSkipped(skipped)
		if len(records) == 0 {
			slog.Info("no product cards found, pagination ended", slog.Int("page", page))
			break
		}

		if s.cfg.FetchDetails {
			s.enrich(ctx, acc, records)
		}

		dupBefore := acc.Duplicates()
		added := acc.Add(records)
		s.Metrics.AddItems(added)
		s.Metrics.AddDuplicates(acc.Duplicates() - dupBefore)
		session.Collected = acc.Len()

		slog.Info("page scraped",
			slog.Int("page", page),
			slog.Int("cards", len(records)),
			slog.Int("added", added),
			slog.Int("collected", acc.Len()),
		)
	}

	result.Records = acc.Snapshot()
	result.Duplicates = acc.Duplicates()
	result.RetryCount = session.TotalRetries()
	result.BlockCount = session.Blocks
	result.EndTime = time.Now()

	slog.Info("scrape finished",
		slog.String("run_id", session.RunID),
		slog.Int("collected", len(result.Records)),
		slog.Int("pages", result.PageCount),
		slog.Int("retries", result.RetryCount),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
	)

	return result, runErr
}

// enrich fills a record's optional fields from its detail page. Detail
// failures degrade to card-level data, never abort the run.
func (s *Scraper) enrich(ctx context.Context, acc *Accumulator, records []*models.ProductRecord) {
	for _, record := range records {
		if record == nil || acc.Contains(record.ID) || acc.Full() {
			continue
		}
		markup, err := s.fetcher.LoadDetail(ctx, record.DetailURL)
		if err != nil {
			s.Metrics.IncError(fetcher.TypeLabel(err))
			slog.Warn("detail fetch failed, keeping card fields",
				slog.String("id", record.ID),
				slog.Any("error", err),
			)
			continue
		}
		detail, err := s.parser.ExtractDetail(markup)
		if err != nil {
			slog.Warn("detail parse failed, keeping card fields",
				slog.String("id", record.ID),
				slog.Any("error", err),
			)
			continue
		}
		applyDetail(record, detail)
	}
}

func applyDetail(record *models.ProductRecord, detail *parser.Detail) {
	if detail.Name != "" {
		record.Name = detail.Name
	}
	if detail.Rating != nil {
		record.Rating = detail.Rating
	}
	if detail.ReviewCount > 0 {
		record.ReviewCount = detail.ReviewCount
	}
	if detail.ImageURL != "" {
		record.ImageURL = detail.ImageURL
	}
	if detail.PriceRegular != nil {
		record.PriceRegular = *detail.PriceRegular
		record.PriceDiscounted = detail.PriceDiscounted
	}
	if record.PriceDiscounted != nil && record.PriceDiscounted.GreaterThan(record.PriceRegular) {
		record.PriceDiscounted = nil
	}
}

// Close releases the underlying fetcher session.
func (s *Scraper) Close() error {
	if s.fetcher == nil {
		return nil
	}
	if err := s.fetcher.Close(); err != nil {
		return fmt.Errorf("close fetcher: %w", err)
	}
	return nil
}
