package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"zozo-catalog-scraper/config"
)

// StaticFetcher retrieves pages over plain HTTP with a colly collector. It
// serves targets whose category markup is server-rendered; the collector's
// limit rule carries the mandatory randomized inter-request delay.
type StaticFetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	cache     *detailCache

	mu      sync.Mutex
	body    []byte
	status  int
	lastErr error
}

// NewStaticFetcher builds the collector in the sequential configuration the
// scrape loop requires.
func NewStaticFetcher(cfg *config.Config) (*StaticFetcher, error) {
	parsed, err := url.Parse(cfg.CategoryURL)
	if err != nil {
		return nil, fmt.Errorf("parse category url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("category url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(cfg.NavTimeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.NavTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.DelayMin,
		RandomDelay: cfg.DelayMax - cfg.DelayMin,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	cache, err := newDetailCache(detailCacheSize)
	if err != nil {
		return nil, err
	}

	sf := &StaticFetcher{
		cfg:       cfg,
		collector: collector,
		cache:     cache,
	}

	collector.OnResponse(func(r *colly.Response) {
		sf.mu.Lock()
		sf.body = r.Body
		sf.status = r.StatusCode
		sf.mu.Unlock()
	})
	collector.OnError(func(r *colly.Response, err error) {
		sf.mu.Lock()
		if r != nil {
			sf.status = r.StatusCode
		}
		sf.lastErr = err
		sf.mu.Unlock()
	})

	return sf, nil
}

// WithTransport swaps the HTTP transport, used by tests to inject mocks.
func (sf *StaticFetcher) WithTransport(transport http.RoundTripper) {
	sf.collector.WithTransport(transport)
}

// LoadPage fetches the paginated category URL.
func (sf *StaticFetcher) LoadPage(ctx context.Context, pageIndex int) (string, error) {
	return sf.fetch(ctx, PageURL(sf.cfg.CategoryURL, pageIndex))
}

// LoadDetail fetches a product detail page, serving repeats from the cache.
func (sf *StaticFetcher) LoadDetail(ctx context.Context, detailURL string) (string, error) {
	if markup, ok := sf.cache.get(detailURL); ok {
		return markup, nil
	}
	markup, err := sf.fetch(ctx, detailURL)
	if err != nil {
		return "", err
	}
	sf.cache.put(detailURL, markup)
	return markup, nil
}

func (sf *StaticFetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return "", ErrNavigation{Err: err}
		}
	}

	sf.mu.Lock()
	sf.body = nil
	sf.status = 0
	sf.lastErr = nil
	sf.mu.Unlock()

	visitErr := sf.collector.Visit(pageURL)

	sf.mu.Lock()
	body := sf.body
	status := sf.status
	fetchErr := sf.lastErr
	sf.mu.Unlock()

	if fetchErr == nil {
		fetchErr = visitErr
	}
	if classified := Classify(fetchErr, status); classified != nil {
		return "", classified
	}

	markup := string(body)
	if err := detectBlock(markup, sf.cfg.BlockedMarkers); err != nil {
		return "", err
	}
	return markup, nil
}

// Close is a no-op; the collector holds no session resources.
func (sf *StaticFetcher) Close() error {
	return nil
}
