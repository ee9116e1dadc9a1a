// Package stats computes descriptive statistics over a scraped record set.
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"zozo-catalog-scraper/models"
)

// BrandCount pairs a brand with its product count.
type BrandCount struct {
	Brand string `json:"brand"`
	Count int    `json:"count"`
}

// Summary is the statistics report written alongside the scraped data.
type Summary struct {
	ProductCount    int          `json:"product_count"`
	PriceMean       float64      `json:"price_mean"`
	PriceMedian     float64      `json:"price_median"`
	PriceMin        float64      `json:"price_min"`
	PriceMax        float64      `json:"price_max"`
	PriceStdDev     float64      `json:"price_stddev"`
	RatedCount      int          `json:"rated_count"`
	RatingMean      float64      `json:"rating_mean"`
	BrandCount      int          `json:"brand_count"`
	TopBrands       []BrandCount `json:"top_brands"`
	DiscountedCount int          `json:"discounted_count"`
	// PriceRatingCorr is the Pearson correlation between effective price
	// and rating; nil when fewer than two rated products exist.
	PriceRatingCorr *float64 `json:"price_rating_correlation,omitempty"`
}

const topBrandLimit = 20

// Compute derives the summary from a record set. Records use their
// discounted price when present, matching what a buyer actually pays.
func Compute(records []*models.ProductRecord) *Summary {
	summary := &Summary{ProductCount: len(records)}
	if len(records) == 0 {
		return summary
	}

	prices := make([]float64, 0, len(records))
	var ratedPrices, ratings []float64
	brands := make(map[string]int)

	for _, record := range records {
		if record == nil {
			continue
		}
		price := effectivePrice(record)
		prices = append(prices, price)
		if record.Brand != "" {
			brands[record.Brand]++
		}
		if record.Discounted() {
			summary.DiscountedCount++
		}
		if record.Rating != nil {
			ratings = append(ratings, *record.Rating)
			ratedPrices = append(ratedPrices, price)
		}
	}

	summary.PriceMean = mean(prices)
	summary.PriceMedian = median(prices)
	summary.PriceMin = minOf(prices)
	summary.PriceMax = maxOf(prices)
	summary.PriceStdDev = stddev(prices)
	summary.RatedCount = len(ratings)
	summary.RatingMean = mean(ratings)
	summary.BrandCount = len(brands)
	summary.TopBrands = topBrands(brands, topBrandLimit)

	if corr, ok := pearson(ratedPrices, ratings); ok {
		summary.PriceRatingCorr = &corr
	}

	return summary
}

// WriteJSON emits the summary as an indented JSON report.
func WriteJSON(filename string, summary *Summary) error {
	dir := filepath.Dir(filename)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write statistics file: %w", err)
	}
	return nil
}

func effectivePrice(record *models.ProductRecord) float64 {
	if record.PriceDiscounted != nil {
		return record.PriceDiscounted.InexactFloat64()
	}
	return record.PriceRegular.InexactFloat64()
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// pearson returns the correlation of paired samples; ok is false when fewer
// than two pairs exist or either side has zero variance.
func pearson(xs, ys []float64) (float64, bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

func topBrands(brands map[string]int, limit int) []BrandCount {
	out := make([]BrandCount, 0, len(brands))
	for brand, count := range brands {
		out = append(out, BrandCount{Brand: brand, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Brand < out[j].Brand
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
