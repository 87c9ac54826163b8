package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	consentsvc "consent-bridge/internal/service/consent"
)

// BatchRunner applies a batch of consent entries.
type BatchRunner interface {
	Process(ctx context.Context, source string, entries []consentsvc.Entry) (*consentsvc.Result, error)
}

// columns maps accepted header names onto entry keys.
var columns = map[string]string{
	"contact_email":  "contact_email",
	"email":          "contact_email",
	"propertyname":   "propertyName",
	"property_name":  "propertyName",
	"propertyvalue":  "propertyValue",
	"property_value": "propertyValue",
}

// CSVImporter reads consent rows (contact_email,propertyName,propertyValue)
// and runs them through the batch orchestrator as one batch.
type CSVImporter struct {
	reader *csv.Reader
	runner BatchRunner
}

func NewCSVImporter(r io.Reader, runner BatchRunner) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{
		reader: csvr,
		runner: runner,
	}
}

// Entries parses every row. Blank rows are skipped; empty cells are left out
// of the entry so validation reports them as missing.
func (i *CSVImporter) Entries() ([]consentsvc.Entry, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read headers: %w", err)
	}
	index, err := headerIndex(headers)
	if err != nil {
		return nil, err
	}

	var entries []consentsvc.Entry
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("read row: %w", err)
		}

		if entry := parseRow(record, index); entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Validate parses the file and checks every entry without calling upstream.
func (i *CSVImporter) Validate() (int, error) {
	entries, err := i.Entries()
	if err != nil {
		return 0, err
	}
	for n, e := range entries {
		if _, err := e.Instruction(); err != nil {
			return n, fmt.Errorf("row %d: %w", n+2, err)
		}
	}
	return len(entries), nil
}

// Run parses the file and applies it as a single batch.
func (i *CSVImporter) Run(ctx context.Context) (*consentsvc.Result, error) {
	entries, err := i.Entries()
	if err != nil {
		return nil, err
	}
	return i.runner.Process(ctx, "csv", entries)
}

func headerIndex(headers []string) (map[string]int, error) {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		key, ok := columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))]
		if ok {
			idx[key] = i
		}
	}
	for _, required := range []string{"contact_email", "propertyName", "propertyValue"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	return idx, nil
}

func parseRow(record []string, index map[string]int) consentsvc.Entry {
	entry := consentsvc.Entry{}
	for key := range index {
		if v := pick(record, index, key); v != "" {
			entry[key] = v
		}
	}
	if len(entry) == 0 {
		return nil
	}
	return entry
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
