package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Reserved CSV columns. Every other column is a record field.
const (
	columnID    = "id"
	columnLabel = "label"
)

func readRecordsFile(path string) ([]models.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRecords(f)
}

// readRecords parses a CSV with a header row. Empty cells are treated as absent fields.
func readRecords(r io.Reader) ([]models.Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	seen := map[string]bool{}
	for _, h := range header {
		if h == "" {
			return nil, errors.New("header has an empty column name")
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate column '%s'", h)
		}
		seen[h] = true
	}

	records := []models.Record{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var id, label string
		fields := map[string]string{}
		for i, value := range row {
			switch header[i] {
			case columnID:
				id = strings.TrimSpace(value)
			case columnLabel:
				label = strings.TrimSpace(value)
			default:
				if strings.TrimSpace(value) != "" {
					fields[header[i]] = value
				}
			}
		}
		records = append(records, models.NewRecord(id, label, fields))
	}
	return records, nil
}
