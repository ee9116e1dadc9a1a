package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zozo-catalog-scraper/config"
	"zozo-catalog-scraper/fetcher"
	"zozo-catalog-scraper/pipeline"
)

// pagedFetcher serves generated catalog markup per page index.
type pagedFetcher struct {
	pages       map[int]string
	pageErrs    map[int]error
	details     map[string]string
	detailCalls int
}

func (pf *pagedFetcher) LoadPage(ctx context.Context, pageIndex int) (string, error) {
	if err, ok := pf.pageErrs[pageIndex]; ok {
		return "", err
	}
	markup, ok := pf.pages[pageIndex]
	if !ok {
		return emptyCatalogMarkup(), nil
	}
	return markup, nil
}

func (pf *pagedFetcher) LoadDetail(ctx context.Context, detailURL string) (string, error) {
	pf.detailCalls++
	markup, ok := pf.details[detailURL]
	if !ok {
		return "", fetcher.ErrNavigation{Err: fmt.Errorf("no detail for %s", detailURL)}
	}
	return markup, nil
}

func (pf *pagedFetcher) Close() error {
	return nil
}

func emptyCatalogMarkup() string {
	return "<html><body><div id=\"searchResultList\"></div></body></html>"
}

// catalogMarkup renders count cards whose goods ids start at firstID.
func catalogMarkup(firstID, count int) string {
	var b strings.Builder
	b.WriteString("<html><body><div id=\"searchResultList\">")
	for i := 0; i < count; i++ {
		id := firstID + i
		b.WriteString(`<div class="p-catalog-item">`)
		fmt.Fprintf(&b, `<div class="p-catalog-item__brand">Brand%d</div>`, id%3)
		fmt.Fprintf(&b, `<div class="p-catalog-item__name">Item %d</div>`, id)
		fmt.Fprintf(&b, `<a href="/shop/shop%d/goods/%d/?gid=%d&amp;did=%d">item</a>`, id%5, id, id, id*10)
		fmt.Fprintf(&b, `<div class="p-catalog-item__price">¥%d</div>`, 1000+id)
		fmt.Fprintf(&b, `<img src="/images/%d.jpg" />`, id)
		b.WriteString("</div>")
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.CategoryURL = "https://shop.example.test/category/tops/"
	cfg.MaxItems = 50
	cfg.MaxPages = 10
	cfg.RetryCount = 1
	cfg.FetchDetails = false
	return cfg
}

func TestRunCollectsAcrossPages(t *testing.T) {
	cfg := testConfig()

	ff := &pagedFetcher{pages: map[int]string{
		1: catalogMarkup(1, 10),
		2: catalogMarkup(11, 10),
	}}

	s, err := NewScraper(cfg, ff)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Records) != 20 {
		t.Fatalf("records=%d, want 20", len(result.Records))
	}
	seen := make(map[string]struct{})
	for _, record := range result.Records {
		if record.ID == "" {
			t.Fatalf("record with empty id: %+v", record)
		}
		if _, ok := seen[record.ID]; ok {
			t.Fatalf("duplicate id %q", record.ID)
		}
		seen[record.ID] = struct{}{}
	}
	if result.PageCount != 3 {
		t.Fatalf("pages=%d, want 3 (two with cards, one empty)", result.PageCount)
	}
}

func TestRunEndToEndPersistsRecords(t *testing.T) {
	cfg := testConfig()

	ff := &pagedFetcher{pages: map[int]string{
		1: catalogMarkup(1, 10),
		2: catalogMarkup(11, 10),
	}}

	s, err := NewScraper(cfg, ff)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")
	sink, err := pipeline.NewCSVSink(path)
	if err != nil {
		t.Fatalf("new csv sink: %v", err)
	}
	if err := sink.Persist(result.Records); err != nil {
		t.Fatalf("persist: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 21 {
		t.Fatalf("rows=%d, want 21 (header + 20 records)", len(rows))
	}
	ids := make(map[string]struct{})
	for _, row := range rows[1:] {
		if _, ok := ids[row[0]]; ok {
			t.Fatalf("duplicate id %q persisted", row[0])
		}
		ids[row[0]] = struct{}{}
	}
}

func TestRunStopsAtMaxItems(t *testing.T) {
	cfg := testConfig()
	cfg.MaxItems = 15

	ff := &pagedFetcher{pages: map[int]string{
		1: catalogMarkup(1, 10),
		2: catalogMarkup(11, 10),
		3: catalogMarkup(21, 10),
	}}

	s, err := NewScraper(cfg, ff)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Records) != 15 {
		t.Fatalf("records=%d, want max items 15", len(result.Records))
	}
	if result.PageCount != 2 {
		t.Fatalf("pages=%d, want 2 (cap reached on page 2)", result.PageCount)
	}
}

func TestRunDeduplicatesAcrossPages(t *testing.T) {
	cfg := testConfig()

	// Page 2 repeats half of page 1, as happens when the catalog shifts
	// between requests.
	ff := &pagedFetcher{pages: map[int]string{
		1: catalogMarkup(1, 10),
		2: catalogMarkup(6, 10),
	}}

	s, err := NewScraper(cfg, ff)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Records) != 15 {
		t.Fatalf("records=%d, want 15 distinct", len(result.Records))
	}
	if result.Duplicates != 5 {
		t.Fatalf("duplicates=%d, want 5", result.Duplicates)
	}
}

func TestRunSurfacesExhaustionWithPartialRecords(t *testing.T) {
	cfg := testConfig()
	cfg.RetryCount = 1

	ff := &pagedFetcher{
		pages: map[int]string{
			1: catalogMarkup(1, 10),
		},
		pageErrs: map[int]error{
			2: fetcher.ErrTimeout{Err: context.DeadlineExceeded},
		},
	}

	s, err := NewScraper(cfg, ff)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	result, err := s.Run(context.Background())

	var exhausted ErrRetryExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if len(result.Records) != 10 {
		t.Fatalf("partial records=%d, want 10 for best-effort persistence", len(result.Records))
	}
	if result.ErrorsByType["timeout"] == 0 {
		t.Fatalf("expected timeout in errors by type: %v", result.ErrorsByType)
	}
}

func TestRunEnrichesFromDetailPages(t *testing.T) {
	cfg := testConfig()
	cfg.FetchDetails = true

	detail := `<html><body>
		<h1 class="p-goods-information__heading">Enriched Name</h1>
		<div class="c-rating" aria-label="平均評価4.0"></div>
		<span class="c-rating-total">（7）</span>
	</body></html>`

	details := make(map[string]string)
	for id := 1; id <= 3; id++ {
		url := fmt.Sprintf("https://shop.example.test/shop/shop%d/goods-sale/%d/?did=%d", id%5, id, id*10)
		details[url] = detail
	}

	ff := &pagedFetcher{
		pages:   map[int]string{1: catalogMarkup(1, 3)},
		details: details,
	}

	s, err := NewScraper(cfg, ff)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Records) != 3 {
		t.Fatalf("records=%d, want 3", len(result.Records))
	}
	for _, record := range result.Records {
		if record.Name != "Enriched Name" {
			t.Fatalf("record not enriched: %+v", record)
		}
		if record.Rating == nil || *record.Rating != 4.0 {
			t.Fatalf("rating=%v, want 4.0", record.Rating)
		}
		if record.ReviewCount != 7 {
			t.Fatalf("review count=%d, want 7", record.ReviewCount)
		}
	}
	if ff.detailCalls != 3 {
		t.Fatalf("detail calls=%d, want 3", ff.detailCalls)
	}
}
