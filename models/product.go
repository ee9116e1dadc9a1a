// Package models defines data structures for the scraper.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductRecord represents one product scraped from a category listing.
// Records are immutable once created; later occurrences of the same ID are
// discarded by the accumulator, not merged.
type ProductRecord struct {
	ID              string           `csv:"id" json:"id"`
	Name            string           `csv:"name" json:"name"`
	Brand           string           `csv:"brand" json:"brand"`
	PriceRegular    decimal.Decimal  `csv:"price_regular" json:"price_regular"`
	PriceDiscounted *decimal.Decimal `csv:"price_discounted" json:"price_discounted,omitempty"`
	Rating          *float64         `csv:"rating" json:"rating,omitempty"`
	ReviewCount     int              `csv:"review_count" json:"review_count"`
	ImageURL        string           `csv:"image_url" json:"image_url"`
	DetailURL       string           `csv:"detail_url" json:"detail_url"`
	ScrapedAt       time.Time        `csv:"scraped_at" json:"scraped_at"`
}

// Discounted reports whether the record carries a discounted price.
func (p *ProductRecord) Discounted() bool {
	return p != nil && p.PriceDiscounted != nil
}

// ScrapeSession is transient per-run state. It is created at run start and
// discarded at run end; nothing here is persisted.
type ScrapeSession struct {
	RunID       string
	StartedAt   time.Time
	CurrentPage int
	Collected   int
	Blocks      int
	PageRetries map[int]int
}

// NewScrapeSession initialises run state for a fresh scrape.
func NewScrapeSession() *ScrapeSession {
	return &ScrapeSession{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now(),
		CurrentPage: 1,
		PageRetries: make(map[int]int),
	}
}

// RecordRetry notes one retry attempt against a page.
func (s *ScrapeSession) RecordRetry(page int) {
	if s.PageRetries == nil {
		s.PageRetries = make(map[int]int)
	}
	s.PageRetries[page]++
}

// TotalRetries sums retry attempts across all pages.
func (s *ScrapeSession) TotalRetries() int {
	total := 0
	for _, n := range s.PageRetries {
		total += n
	}
	return total
}

// ScrapeResult holds the overall outcome of a scraping run.
type ScrapeResult struct {
	Records      []*ProductRecord
	RunID        string
	StartTime    time.Time
	EndTime      time.Time
	PageCount    int
	RequestCount int
	RetryCount   int
	BlockCount   int
	SkippedCards int
	Duplicates   int
	ErrorCount   int
	ErrorsByType map[string]int
}
