package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"zozo-catalog-scraper/config"
	"zozo-catalog-scraper/fetcher"
	"zozo-catalog-scraper/models"
)

// ErrRetryExhausted aborts the run: once a page stays unreachable through
// every attempt, subsequent pages are assumed unreachable too.
type ErrRetryExhausted struct {
	Page     int
	Attempts int
	Err      error
}

func (e ErrRetryExhausted) Error() string {
	return fmt.Sprintf("retries exhausted for page %d after %d attempts: %v", e.Page, e.Attempts, e.Err)
}

func (e ErrRetryExhausted) Unwrap() error {
	return e.Err
}

type fetchState int

const (
	stateAttempting fetchState = iota
	stateSucceeded
	stateExhausted
)

// retryController wraps Fetcher.LoadPage with the backoff state machine.
// Timeouts and navigation failures retry with capped exponential backoff;
// a block gets exactly one extended cool-down retry before exhausting.
type retryController struct {
	fetcher fetcher.Fetcher
	cfg     *config.Config
	metrics *Metrics
	session *models.ScrapeSession

	sleep func(time.Duration)
}

func newRetryController(f fetcher.Fetcher, cfg *config.Config, metrics *Metrics, session *models.ScrapeSession) *retryController {
	return &retryController{
		fetcher: f,
		cfg:     cfg,
		metrics: metrics,
		session: session,
		sleep:   time.Sleep,
	}
}

// FetchPage drives the state machine for one page until it succeeds or
// exhausts its attempts.
func (rc *retryController) FetchPage(ctx context.Context, page int) (string, error) {
	state := stateAttempting
	attempt := 0
	blockRetried := false

	for state == stateAttempting {
		markup, err := rc.fetcher.LoadPage(ctx, page)
		if err == nil {
			state = stateSucceeded
			return markup, nil
		}
		if ctx != nil && ctx.Err() != nil {
			return "", fmt.Errorf("fetch page %d: %w", page, ctx.Err())
		}

		rc.metrics.IncError(fetcher.TypeLabel(err))

		var blocked fetcher.ErrBlocked
		if errors.As(err, &blocked) {
			if blockRetried {
				rc.metrics.IncBlocks()
				rc.session.Blocks++
				state = stateExhausted
				return "", ErrRetryExhausted{Page: page, Attempts: attempt + 2, Err: err}
			}
			blockRetried = true
			rc.metrics.IncBlocks()
			rc.session.Blocks++
			rc.session.RecordRetry(page)
			slog.Warn("blocked by anti-bot challenge, cooling down",
				slog.Int("page", page),
				slog.String("marker", blocked.Marker),
				slog.Duration("cooldown", rc.cfg.BlockCooldown),
			)
			rc.sleep(rc.cfg.BlockCooldown)
			continue
		}

		if !fetcher.Transient(err) {
			return "", fmt.Errorf("fetch page %d: %w", page, err)
		}

		attempt++
		if attempt > rc.cfg.RetryCount {
			state = stateExhausted
			return "", ErrRetryExhausted{Page: page, Attempts: attempt, Err: err}
		}

		delay := rc.backoff(attempt)
		rc.metrics.IncRetries()
		rc.session.RecordRetry(page)
		slog.Warn("transient fetch failure, retrying",
			slog.Int("page", page),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", rc.cfg.RetryCount),
			slog.Duration("backoff", delay),
			slog.Any("error", err),
		)
		rc.sleep(delay)
	}

	return "", ErrRetryExhausted{Page: page, Attempts: attempt}
}

// backoff grows the delay exponentially with jitter, capped at the
// configured maximum.
func (rc *retryController) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rc.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	delay += time.Duration(rand.Int63n(int64(base)/2 + 1))
	if max := rc.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
