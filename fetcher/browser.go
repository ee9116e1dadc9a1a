package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/chromedp/chromedp"

	"zozo-catalog-scraper/config"
)

// navigatorPatch hides the webdriver flag automation checks look for.
const navigatorPatch = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// BrowserFetcher drives a headless Chrome session through chromedp. The
// browser is a single shared resource owned exclusively by this fetcher:
// acquired at construction, released by Close.
type BrowserFetcher struct {
	cfg   *config.Config
	cache *detailCache

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewBrowserFetcher starts the Chrome session.
func NewBrowserFetcher(cfg *config.Config) (*BrowserFetcher, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(1280, 900),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so session failures surface at run start
	// instead of on the first page.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser session: %w", err)
	}

	cache, err := newDetailCache(detailCacheSize)
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}

	return &BrowserFetcher{
		cfg:           cfg,
		cache:         cache,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

// LoadPage navigates to the paginated category URL, waits for the dynamic
// content to render, and returns the resulting markup.
func (bf *BrowserFetcher) LoadPage(ctx context.Context, pageIndex int) (string, error) {
	pageURL := PageURL(bf.cfg.CategoryURL, pageIndex)
	markup, err := bf.render(ctx, pageURL)
	if err != nil {
		return "", err
	}
	if err := detectBlock(markup, bf.cfg.BlockedMarkers); err != nil {
		return "", err
	}
	pacing(ctx, bf.cfg.DelayMin, bf.cfg.DelayMax)
	return markup, nil
}

// LoadDetail fetches a product detail page, serving repeats from the cache.
func (bf *BrowserFetcher) LoadDetail(ctx context.Context, detailURL string) (string, error) {
	if markup, ok := bf.cache.get(detailURL); ok {
		return markup, nil
	}
	markup, err := bf.render(ctx, detailURL)
	if err != nil {
		return "", err
	}
	if err := detectBlock(markup, bf.cfg.BlockedMarkers); err != nil {
		return "", err
	}
	bf.cache.put(detailURL, markup)
	pacing(ctx, bf.cfg.DelayMin, bf.cfg.DelayMax)
	return markup, nil
}

func (bf *BrowserFetcher) render(ctx context.Context, pageURL string) (string, error) {
	navCtx, cancel := context.WithTimeout(bf.browserCtx, bf.cfg.NavTimeout)
	defer cancel()
	if done := propagateCancel(ctx, cancel); done != nil {
		defer close(done)
	}

	slog.Debug("loading page", slog.String("url", pageURL))

	// Scroll to a random height so the session looks less mechanical and
	// lazy-loaded cards below the fold get rendered.
	scroll := fmt.Sprintf("window.scrollTo(0, %d)", 300+rand.Intn(400))

	var markup string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.Evaluate(navigatorPatch, nil),
		renderWait(bf.cfg.RenderTimeout, "body"),
		chromedp.Evaluate(scroll, nil),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout{Err: fmt.Errorf("render %s: %w", pageURL, err)}
		}
		return "", ErrNavigation{Err: fmt.Errorf("navigate %s: %w", pageURL, err)}
	}
	return markup, nil
}

// renderWait bounds the dynamic-content wait separately from navigation so a
// slow render classifies as a timeout rather than a navigation failure.
func renderWait(bound time.Duration, selector string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, bound)
		defer cancel()
		if err := chromedp.WaitReady(selector, chromedp.ByQuery).Do(waitCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return context.DeadlineExceeded
			}
			return err
		}
		return nil
	})
}

// propagateCancel ties the tab context to the caller's context without
// replacing the browser-derived parent chromedp requires.
func propagateCancel(ctx context.Context, cancel context.CancelFunc) chan struct{} {
	if ctx == nil || ctx.Done() == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return done
}

// Close releases the browser session.
func (bf *BrowserFetcher) Close() error {
	bf.cancelBrowser()
	bf.cancelAlloc()
	return nil
}
