// Package pipeline persists accumulated product records.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"zozo-catalog-scraper/models"
)

// Sink writes the full record set to a persistent form. Persist is an
// idempotent bulk overwrite: re-running it with the same records replaces
// rather than duplicates.
type Sink interface {
	Persist(records []*models.ProductRecord) error
	Validate() error
	Close() error
}

// DualSink fans a record set out to several sinks.
type DualSink struct {
	sinks []Sink
}

// NewDualSink combines sinks into one.
func NewDualSink(sinks ...Sink) *DualSink {
	return &DualSink{sinks: sinks}
}

// Persist writes the records to every sink, failing on the first error.
func (ds *DualSink) Persist(records []*models.ProductRecord) error {
	for _, sink := range ds.sinks {
		if err := sink.Persist(records); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every sink's output.
func (ds *DualSink) Validate() error {
	var errs []error
	for _, sink := range ds.sinks {
		if err := sink.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

// Close closes every sink, reporting any failures together.
func (ds *DualSink) Close() error {
	var errs []error
	for _, sink := range ds.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
