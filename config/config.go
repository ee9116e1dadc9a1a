package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	CategoryURL string
	MaxItems    int
	MaxPages    int

	FetcherKind   string // browser or static
	UserAgent     string
	Headless      bool
	RenderTimeout time.Duration
	NavTimeout    time.Duration
	DelayMin      time.Duration
	DelayMax      time.Duration

	RetryCount      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	BlockCooldown   time.Duration
	BlockedMarkers  []string

	// IDPattern derives the record id from a detail URL. It must contain
	// two capture groups; the id is group1/group2.
	IDPattern    string
	FetchDetails bool

	OutputFile   string
	OutputFormat string // csv, json, or dual
	DBDriver     string // sqlite, pgx, or empty to disable
	DBDSN        string
	DBTable      string
	StatsFile    string
	LogFile      string
	MetricsAddr  string
	Verbose      bool
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		CategoryURL:     "https://zozo.jp/category/tops/",
		MaxItems:        200,
		MaxPages:        50,
		FetcherKind:     "browser",
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Headless:        true,
		RenderTimeout:   15 * time.Second,
		NavTimeout:      30 * time.Second,
		DelayMin:        1 * time.Second,
		DelayMax:        3 * time.Second,
		RetryCount:      3,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 8 * time.Second,
		BlockCooldown:   60 * time.Second,
		BlockedMarkers: []string{
			"captcha-delivery",
			"cf-challenge",
			"Access Denied",
			"しばらく時間をおいてから",
		},
		IDPattern:    `/shop/([^/]+)/(?:goods|goods-sale)/(\d+)`,
		FetchDetails: false,
		OutputFile:   "output/products.csv",
		OutputFormat: "csv",
		DBDriver:     "sqlite",
		DBDSN:        "output/products.db",
		DBTable:      "products",
		StatsFile:    "output/statistics.json",
		LogFile:      "scraping.log",
		Verbose:      false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.CategoryURL == "" {
		return fmt.Errorf("category URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.CategoryURL)
	if err != nil {
		return fmt.Errorf("invalid category URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("category URL must include a host")
	}

	if c.MaxItems <= 0 {
		return fmt.Errorf("max items must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.FetcherKind != "browser" && c.FetcherKind != "static" {
		return fmt.Errorf("fetcher must be browser or static")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.RenderTimeout <= 0 {
		return fmt.Errorf("render timeout must be positive")
	}
	if c.NavTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.DelayMin < 0 {
		return fmt.Errorf("minimum delay cannot be negative")
	}
	if c.DelayMax < c.DelayMin {
		return fmt.Errorf("maximum delay (%s) cannot be below minimum delay (%s)", c.DelayMax, c.DelayMin)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry count cannot be negative")
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("retry backoff must be positive")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.BlockCooldown < 0 {
		return fmt.Errorf("block cooldown cannot be negative")
	}
	if c.IDPattern == "" {
		return fmt.Errorf("id pattern cannot be empty")
	}
	if _, err := regexp.Compile(c.IDPattern); err != nil {
		return fmt.Errorf("invalid id pattern: %w", err)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	switch c.DBDriver {
	case "", "sqlite", "pgx":
	default:
		return fmt.Errorf("db driver must be sqlite, pgx, or empty")
	}
	if c.DBDriver != "" {
		if c.DBDSN == "" {
			return fmt.Errorf("db dsn cannot be empty when a db driver is set")
		}
		if c.DBTable == "" {
			return fmt.Errorf("db table cannot be empty when a db driver is set")
		}
	}

	return nil
}

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, true, nil
}
