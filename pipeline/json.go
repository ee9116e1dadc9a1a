package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"zozo-catalog-scraper/models"
)

// JSONSink writes the record set as newline-delimited JSON. Like the CSV
// sink, each Persist truncates and rewrites the file.
type JSONSink struct {
	filename string
}

// NewJSONSink prepares the output location.
func NewJSONSink(filename string) (*JSONSink, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONSink{filename: filename}, nil
}

// Persist writes all records in JSONL format.
func (js *JSONSink) Persist(records []*models.ProductRecord) error {
	f, err := os.Create(js.filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := buffer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Validate ensures the JSON file has data.
func (js *JSONSink) Validate() error {
	info, err := os.Stat(js.filename)
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// Close is a no-op; Persist opens and closes the file per call.
func (js *JSONSink) Close() error {
	return nil
}
