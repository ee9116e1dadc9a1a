package scraper

import (
	"zozo-catalog-scraper/models"
)

// Accumulator merges parsed batches into the run's ordered collection,
// dropping repeats by id. It is owned by the single scrape loop, so no
// locking is required.
type Accumulator struct {
	maxItems   int
	seen       map[string]struct{}
	records    []*models.ProductRecord
	duplicates int
}

// NewAccumulator caps the collection at maxItems.
func NewAccumulator(maxItems int) *Accumulator {
	return &Accumulator{
		maxItems: maxItems,
		seen:     make(map[string]struct{}),
	}
}

// Add ingests a batch, inserting only records whose id has not been seen,
// and returns the number inserted. Insertion stops once the cap is reached.
func (a *Accumulator) Add(records []*models.ProductRecord) int {
	added := 0
	for _, record := range records {
		if record == nil || record.ID == "" {
			continue
		}
		if a.Full() {
			break
		}
		if _, ok := a.seen[record.ID]; ok {
			a.duplicates++
			continue
		}
		a.seen[record.ID] = struct{}{}
		a.records = append(a.records, record)
		added++
	}
	return added
}

// Contains reports whether an id has already been accumulated.
func (a *Accumulator) Contains(id string) bool {
	_, ok := a.seen[id]
	return ok
}

// Snapshot returns the accumulated records in insertion order.
func (a *Accumulator) Snapshot() []*models.ProductRecord {
	out := make([]*models.ProductRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Full reports whether the configured cap has been reached.
func (a *Accumulator) Full() bool {
	return len(a.records) >= a.maxItems
}

// Len returns the number of accumulated records.
func (a *Accumulator) Len() int {
	return len(a.records)
}

// Duplicates returns how many repeated ids were dropped.
func (a *Accumulator) Duplicates() int {
	return a.duplicates
}
