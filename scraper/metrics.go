package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	PagesTotal      prometheus.Counter
	FetchDuration   prometheus.Histogram
	ItemsCollected  prometheus.Counter
	DuplicatesTotal prometheus.Counter
	SkippedCards    prometheus.Counter
	RetriesTotal    prometheus.Counter
	BlocksTotal     prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_fetched_total",
			Help: "Total category pages fetched successfully.",
		},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Page fetch latency including render wait and pacing delay.",
			Buckets: prometheus.DefBuckets,
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_collected_total",
			Help: "Total product records accumulated.",
		},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_duplicates_dropped_total",
			Help: "Total records dropped because their id was already seen.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_cards_skipped_total",
			Help: "Total cards skipped for missing required fields.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total retry attempts made by the backoff controller.",
		},
	)
	blocks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_blocks_total",
			Help: "Total anti-bot interstitials encountered.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total fetch errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(pages, fetchDuration, items, duplicates, skipped, retries, blocks, errorsTotal)

	return &Metrics{
		Registry:        registry,
		PagesTotal:      pages,
		FetchDuration:   fetchDuration,
		ItemsCollected:  items,
		DuplicatesTotal: duplicates,
		SkippedCards:    skipped,
		RetriesTotal:    retries,
		BlocksTotal:     blocks,
		ErrorsTotal:     errorsTotal,
	}
}

// IncPages increments the fetched-pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// ObserveFetch records a page fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// AddItems adds to the collected-items counter.
func (m *Metrics) AddItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsCollected.Add(float64(n))
}

// AddDuplicates adds to the dropped-duplicates counter.
func (m *Metrics) AddDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DuplicatesTotal.Add(float64(n))
}

// AddSkipped adds to the skipped-cards counter.
func (m *Metrics) AddSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedCards.Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncBlocks increments the blocks counter.
func (m *Metrics) IncBlocks() {
	if m == nil {
		return
	}
	m.BlocksTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
