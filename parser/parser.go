// Package parser extracts product records from rendered catalog markup.
package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"zozo-catalog-scraper/models"
)

// Structural selectors for the target site. Confirm against the live page
// before deployment; the catalog markup changes between site builds.
const (
	cardSelector        = "div.p-catalog-item"
	cardBrandSelector   = ".p-catalog-item__brand"
	cardNameSelector    = ".p-catalog-item__name"
	cardLinkSelector    = `a[href*="/shop/"]`
	cardPriceSelector   = ".p-catalog-item__price"
	cardStrikeSelector  = ".u-text-style-strike"
	cardImageSelector   = "img"
	detailNameSelector  = ".p-goods-information__heading"
	ratingSelector      = ".c-rating"
	ratingTotalSelector = ".c-rating-total"
	detailImageSelector = "#photoMain img"
	detailPriceSelector = ".p-goods-information__price"
	detailDiscSelector  = ".p-goods-information__price--discount"
	pricedownSelector   = ".p-goods-information-pricedown__rate"
	strikeSelector      = ".u-text-style-strike"
)

var (
	shopPathRe = regexp.MustCompile(`/shop/([^/]+)/`)
	gidRe      = regexp.MustCompile(`gid=(\d+)`)
	didRe      = regexp.MustCompile(`did=(\d+)`)
	digitsRe   = regexp.MustCompile(`\d+`)
)

// Parser turns page markup into validated product records.
type Parser struct {
	idPattern *regexp.Regexp
}

// New compiles the configured id-derivation pattern.
func New(idPattern string) (*Parser, error) {
	re, err := regexp.Compile(idPattern)
	if err != nil {
		return nil, fmt.Errorf("compile id pattern: %w", err)
	}
	return &Parser{idPattern: re}, nil
}

// Extract returns the product records found in category-page markup plus the
// number of cards skipped. A card missing its name or detail URL is skipped
// and logged, never fatal to the batch.
func (p *Parser) Extract(markup, pageURL string) ([]*models.ProductRecord, int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		slog.Error("parse category markup", slog.Any("error", err))
		return nil, 0
	}

	base, _ := url.Parse(pageURL)

	var records []*models.ProductRecord
	skipped := 0
	doc.Find(cardSelector).Each(func(i int, card *goquery.Selection) {
		record := p.extractCard(card, base)
		if record == nil {
			skipped++
			slog.Warn("skipping card with missing required fields",
				slog.Int("index", i),
				slog.String("page", pageURL),
			)
			return
		}
		records = append(records, record)
	})
	return records, skipped
}

func (p *Parser) extractCard(card *goquery.Selection, base *url.URL) *models.ProductRecord {
	name := strings.TrimSpace(card.Find(cardNameSelector).Text())
	if name == "" {
		return nil
	}

	href, ok := card.Find(cardLinkSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil
	}
	detailURL := CanonicalDetailURL(href, base)
	if detailURL == "" {
		return nil
	}

	brand := strings.TrimSpace(card.Find(cardBrandSelector).Text())

	current := ParsePrice(card.Find(cardPriceSelector).First().Text())
	strike := ParsePrice(card.Find(cardStrikeSelector).First().Text())
	regular, discounted := reconcilePrices(current, strike)

	imageURL := ""
	if src, ok := card.Find(cardImageSelector).First().Attr("src"); ok {
		imageURL = absolutize(src, base)
	}

	record := &models.ProductRecord{
		ID:              p.DeriveID(detailURL),
		Name:            name,
		Brand:           brand,
		PriceDiscounted: discounted,
		ImageURL:        imageURL,
		DetailURL:       detailURL,
		ScrapedAt:       time.Now(),
	}
	if regular != nil {
		record.PriceRegular = *regular
	}
	return record
}

// Detail carries fields scraped from a product detail page. Pointer fields
// stay nil when the page did not expose them.
type Detail struct {
	Name            string
	Rating          *float64
	ReviewCount     int
	ImageURL        string
	PriceRegular    *decimal.Decimal
	PriceDiscounted *decimal.Decimal
}

// ExtractDetail pulls enrichment fields from detail-page markup.
func (p *Parser) ExtractDetail(markup string) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse detail markup: %w", err)
	}

	detail := &Detail{
		Name: strings.TrimSpace(doc.Find(detailNameSelector).Text()),
	}

	if label, ok := doc.Find(ratingSelector).Attr("aria-label"); ok {
		detail.Rating = parseRating(label)
	}
	detail.ReviewCount = parseReviewCount(doc.Find(ratingTotalSelector).Text())

	if src, ok := doc.Find(detailImageSelector).First().Attr("src"); ok {
		detail.ImageURL = strings.TrimSpace(src)
	}

	// The discounted variant takes precedence when the product is on sale.
	priceSel := doc.Find(detailDiscSelector)
	if priceSel.Length() == 0 {
		priceSel = doc.Find(detailPriceSelector)
	}
	current := ParsePrice(ownText(priceSel.First()))

	var strike *decimal.Decimal
	if doc.Find(pricedownSelector).Length() > 0 {
		strike = ParsePrice(doc.Find(strikeSelector).First().Text())
	}
	detail.PriceRegular, detail.PriceDiscounted = reconcilePrices(current, strike)

	return detail, nil
}

// DeriveID applies the configured pattern to a detail URL, falling back to
// the trimmed URL path when the pattern does not match.
func (p *Parser) DeriveID(detailURL string) string {
	if m := p.idPattern.FindStringSubmatch(detailURL); len(m) >= 3 {
		return m[1] + "/" + m[2]
	}
	if parsed, err := url.Parse(detailURL); err == nil && parsed.Path != "" {
		return strings.Trim(parsed.Path, "/")
	}
	return detailURL
}

// CanonicalDetailURL rebuilds a card link into the canonical goods-sale form
// when the shop, goods id, and display id can all be recovered.
func CanonicalDetailURL(href string, base *url.URL) string {
	shop := shopPathRe.FindStringSubmatch(href)
	gid := gidRe.FindStringSubmatch(href)
	did := didRe.FindStringSubmatch(href)
	if len(shop) == 2 && len(gid) == 2 && len(did) == 2 {
		scheme, host := "https", "zozo.jp"
		if base != nil && base.Host != "" {
			scheme, host = base.Scheme, base.Host
		}
		return fmt.Sprintf("%s://%s/shop/%s/goods-sale/%s/?did=%s", scheme, host, shop[1], gid[1], did[1])
	}
	return absolutize(href, base)
}

// ParsePrice extracts a decimal amount from price text. Non-numeric text
// yields nil (the field stays absent) rather than an error.
func ParsePrice(text string) *decimal.Decimal {
	digits := strings.Join(digitsRe.FindAllString(text, -1), "")
	if digits == "" {
		return nil
	}
	value, err := decimal.NewFromString(digits)
	if err != nil {
		return nil
	}
	return &value
}

// reconcilePrices maps a current price plus optional strike-through original
// onto the regular/discounted pair, keeping discounted <= regular.
func reconcilePrices(current, strike *decimal.Decimal) (regular, discounted *decimal.Decimal) {
	switch {
	case current == nil:
		return strike, nil
	case strike == nil:
		return current, nil
	case current.GreaterThan(*strike):
		// Inconsistent markup; trust the current price and drop the sale.
		return current, nil
	default:
		return strike, current
	}
}

func parseRating(label string) *float64 {
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(label), "平均評価"))
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || value < 0 || value > 5 {
		return nil
	}
	return &value
}

func parseReviewCount(text string) int {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "（）()")
	count, err := strconv.Atoi(text)
	if err != nil || count < 0 {
		return 0
	}
	return count
}

func absolutize(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() || base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}

// ownText returns the selection's text with child-element text removed, the
// way the price nodes wrap currency marks in spans.
func ownText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	clone := sel.Clone()
	clone.Find("span").Remove()
	return strings.TrimSpace(clone.Text())
}
