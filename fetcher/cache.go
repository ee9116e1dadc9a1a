package fetcher

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// detailCacheSize bounds the cached detail markup; detail pages run a few
// hundred KB each, so keep the working set modest.
const detailCacheSize = 256

// detailCache remembers detail-page markup by URL so duplicate cards across
// adjacent catalog pages never trigger a refetch.
type detailCache struct {
	lru *lru.Cache[string, string]
}

func newDetailCache(size int) (*detailCache, error) {
	if size <= 0 {
		size = detailCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create detail cache: %w", err)
	}
	return &detailCache{lru: cache}, nil
}

func (dc *detailCache) get(url string) (string, bool) {
	return dc.lru.Get(url)
}

func (dc *detailCache) put(url, markup string) {
	dc.lru.Add(url, markup)
}
