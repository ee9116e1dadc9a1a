package stats

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"zozo-catalog-scraper/models"
)

func record(id, brand string, regular int64, discounted *int64, rating *float64) *models.ProductRecord {
	r := &models.ProductRecord{
		ID:           id,
		Name:         "Item " + id,
		Brand:        brand,
		PriceRegular: decimal.NewFromInt(regular),
	}
	if discounted != nil {
		d := decimal.NewFromInt(*discounted)
		r.PriceDiscounted = &d
	}
	r.Rating = rating
	return r
}

func int64p(v int64) *int64 { return &v }

func float64p(v float64) *float64 { return &v }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputePriceStats(t *testing.T) {
	records := []*models.ProductRecord{
		record("a/1", "BrandA", 1000, nil, nil),
		record("a/2", "BrandA", 2000, nil, nil),
		record("b/3", "BrandB", 3000, nil, nil),
		record("c/4", "BrandC", 4000, nil, nil),
	}

	s := Compute(records)
	if s.ProductCount != 4 {
		t.Fatalf("ProductCount=%d, want 4", s.ProductCount)
	}
	if !almostEqual(s.PriceMean, 2500) {
		t.Fatalf("PriceMean=%v, want 2500", s.PriceMean)
	}
	if !almostEqual(s.PriceMedian, 2500) {
		t.Fatalf("PriceMedian=%v, want 2500", s.PriceMedian)
	}
	if s.PriceMin != 1000 || s.PriceMax != 4000 {
		t.Fatalf("min/max=%v/%v, want 1000/4000", s.PriceMin, s.PriceMax)
	}
	// Sample stddev of 1000,2000,3000,4000.
	want := math.Sqrt((1500*1500 + 500*500 + 500*500 + 1500*1500) / 3.0)
	if !almostEqual(s.PriceStdDev, want) {
		t.Fatalf("PriceStdDev=%v, want %v", s.PriceStdDev, want)
	}
}

func TestComputeUsesDiscountedPrice(t *testing.T) {
	records := []*models.ProductRecord{
		record("a/1", "BrandA", 2000, int64p(1000), nil),
		record("a/2", "BrandA", 3000, nil, nil),
	}

	s := Compute(records)
	if s.DiscountedCount != 1 {
		t.Fatalf("DiscountedCount=%d, want 1", s.DiscountedCount)
	}
	if !almostEqual(s.PriceMean, 2000) {
		t.Fatalf("PriceMean=%v, want discounted price to count", s.PriceMean)
	}
	if s.PriceMin != 1000 {
		t.Fatalf("PriceMin=%v, want 1000", s.PriceMin)
	}
}

func TestComputeOddMedian(t *testing.T) {
	records := []*models.ProductRecord{
		record("a/1", "", 300, nil, nil),
		record("a/2", "", 100, nil, nil),
		record("a/3", "", 200, nil, nil),
	}
	if s := Compute(records); !almostEqual(s.PriceMedian, 200) {
		t.Fatalf("PriceMedian=%v, want 200", s.PriceMedian)
	}
}

func TestComputeRatings(t *testing.T) {
	records := []*models.ProductRecord{
		record("a/1", "BrandA", 1000, nil, float64p(4.0)),
		record("a/2", "BrandA", 2000, nil, float64p(5.0)),
		record("a/3", "BrandA", 3000, nil, nil),
	}

	s := Compute(records)
	if s.RatedCount != 2 {
		t.Fatalf("RatedCount=%d, want 2", s.RatedCount)
	}
	if !almostEqual(s.RatingMean, 4.5) {
		t.Fatalf("RatingMean=%v, want 4.5", s.RatingMean)
	}
	if s.PriceRatingCorr == nil {
		t.Fatalf("expected correlation for 2 rated products")
	}
	// Two points always correlate perfectly.
	if !almostEqual(*s.PriceRatingCorr, 1.0) {
		t.Fatalf("PriceRatingCorr=%v, want 1.0", *s.PriceRatingCorr)
	}
}

func TestComputeCorrelationNeedsVariance(t *testing.T) {
	records := []*models.ProductRecord{
		record("a/1", "", 1000, nil, float64p(4.0)),
		record("a/2", "", 2000, nil, float64p(4.0)),
	}
	if s := Compute(records); s.PriceRatingCorr != nil {
		t.Fatalf("constant ratings must not yield a correlation, got %v", *s.PriceRatingCorr)
	}
}

func TestComputeCorrelationNeedsTwoPairs(t *testing.T) {
	records := []*models.ProductRecord{
		record("a/1", "", 1000, nil, float64p(4.0)),
		record("a/2", "", 2000, nil, nil),
	}
	if s := Compute(records); s.PriceRatingCorr != nil {
		t.Fatalf("single rated product must not yield a correlation")
	}
}

func TestComputeTopBrands(t *testing.T) {
	records := []*models.ProductRecord{
		record("a/1", "BrandA", 1000, nil, nil),
		record("a/2", "BrandA", 1000, nil, nil),
		record("b/3", "BrandB", 1000, nil, nil),
		record("b/4", "BrandB", 1000, nil, nil),
		record("c/5", "BrandC", 1000, nil, nil),
		record("x/6", "", 1000, nil, nil),
	}

	s := Compute(records)
	if s.BrandCount != 3 {
		t.Fatalf("BrandCount=%d, want 3 (blank brands excluded)", s.BrandCount)
	}
	if len(s.TopBrands) != 3 {
		t.Fatalf("TopBrands=%d entries, want 3", len(s.TopBrands))
	}
	// Ties resolve alphabetically.
	if s.TopBrands[0].Brand != "BrandA" || s.TopBrands[1].Brand != "BrandB" {
		t.Fatalf("unexpected brand order: %+v", s.TopBrands)
	}
	if s.TopBrands[0].Count != 2 || s.TopBrands[2].Count != 1 {
		t.Fatalf("unexpected brand counts: %+v", s.TopBrands)
	}
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil)
	if s.ProductCount != 0 || s.PriceMean != 0 || s.PriceRatingCorr != nil {
		t.Fatalf("empty set must produce a zeroed summary: %+v", s)
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "stats.json")
	summary := Compute([]*models.ProductRecord{
		record("a/1", "BrandA", 1500, nil, float64p(4.2)),
	})

	if err := WriteJSON(path, summary); err != nil {
		t.Fatalf("write json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded Summary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid json: %v", err)
	}
	if decoded.ProductCount != 1 || decoded.PriceMean != 1500 {
		t.Fatalf("unexpected report: %+v", decoded)
	}
}
