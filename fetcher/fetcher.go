// Package fetcher loads category and detail pages from the target site.
package fetcher

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

// Fetcher retrieves rendered markup for catalog pages. Implementations own
// whatever session state (browser, cookies) the transport needs; page loads
// are strictly sequential and include the mandatory inter-request delay.
type Fetcher interface {
	// LoadPage navigates to the category page with the given 1-based index
	// and returns its markup.
	LoadPage(ctx context.Context, pageIndex int) (string, error)
	// LoadDetail fetches a product detail page by absolute URL.
	LoadDetail(ctx context.Context, detailURL string) (string, error)
	Close() error
}

// PageURL builds the paginated category URL for a 1-based page index.
func PageURL(categoryURL string, pageIndex int) string {
	parsed, err := url.Parse(categoryURL)
	if err != nil {
		return fmt.Sprintf("%s?page=%d", categoryURL, pageIndex)
	}
	query := parsed.Query()
	query.Set("page", fmt.Sprintf("%d", pageIndex))
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// detectBlock scans markup for configured challenge markers.
func detectBlock(markup string, markers []string) error {
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		if strings.Contains(markup, marker) {
			return ErrBlocked{Marker: marker}
		}
	}
	return nil
}

// pacing sleeps a randomized duration within [min, max] to respect the
// target site's rate limits. It returns early on context cancellation.
func pacing(ctx context.Context, min, max time.Duration) {
	if max <= 0 {
		return
	}
	delay := min
	if span := max - min; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span) + 1))
	}
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
