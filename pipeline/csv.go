package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"zozo-catalog-scraper/models"
)

var csvHeader = []string{
	"id", "name", "brand", "price_regular", "price_discounted",
	"rating", "review_count", "image_url", "detail_url", "scraped_at",
}

// CSVSink writes the record set to a UTF-8 CSV file with a header row.
// Each Persist truncates and rewrites the file, keeping the output
// idempotent.
type CSVSink struct {
	filename string
}

// NewCSVSink prepares the output location.
func NewCSVSink(filename string) (*CSVSink, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &CSVSink{filename: filename}, nil
}

// Persist writes all records, replacing any previous file contents.
func (cs *CSVSink) Persist(records []*models.ProductRecord) error {
	f, err := os.Create(cs.filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.ID,
			record.Name,
			record.Brand,
			record.PriceRegular.String(),
			"",
			"",
			strconv.Itoa(record.ReviewCount),
			record.ImageURL,
			record.DetailURL,
			record.ScrapedAt.Format(time.RFC3339),
		}
		if record.PriceDiscounted != nil {
			row[4] = record.PriceDiscounted.String()
		}
		if record.Rating != nil {
			row[5] = strconv.FormatFloat(*record.Rating, 'f', -1, 64)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Validate ensures the file has content besides the header.
func (cs *CSVSink) Validate() error {
	info, err := os.Stat(cs.filename)
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// Close is a no-op; Persist opens and closes the file per call.
func (cs *CSVSink) Close() error {
	return nil
}
