// Package dataset loads evaluation inputs from CSV files.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tartakovsky/prompttester/internal/models"
)

// Recognised column names. Only content is required.
const (
	ColumnID      = "id"
	ColumnName    = "name"
	ColumnContent = "content"
)

// Row maps column name to value for one CSV record.
type Row map[string]string

// LoadCSV reads path and returns its data rows. The first record is the header.
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv: %s is empty (no header row)", path)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(headers))
		for j, h := range headers {
			row[h] = record[j]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadCSVRange returns data rows start..end (1-based, inclusive). end is
// clamped to the number of rows; a start past the end yields no rows.
func LoadCSVRange(path string, start, end int) ([]Row, error) {
	if start < 1 {
		return nil, fmt.Errorf("csv: range start must be >= 1, got %d", start)
	}
	if end < start {
		return nil, fmt.Errorf("csv: range end (%d) must be >= start (%d)", end, start)
	}

	all, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	if start > len(all) {
		return []Row{}, nil
	}
	if end > len(all) {
		end = len(all)
	}
	return all[start-1 : end], nil
}

// ParseRange parses "N" or "N-M" into an inclusive 1-based row range.
func ParseRange(s string) (start, end int, err error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	start, err = strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid row range %q", s)
	}
	if !found {
		return start, start, nil
	}
	end, err = strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid row range %q", s)
	}
	return start, end, nil
}

// Inputs converts rows to input items. Missing ids become i1, i2, ... by
// position and missing names become "Input N". Ids must be unique.
func Inputs(rows []Row) ([]models.InputItem, error) {
	out := make([]models.InputItem, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		content, ok := row[ColumnContent]
		if !ok {
			return nil, fmt.Errorf("csv: row %d has no %q column", i+1, ColumnContent)
		}
		n := strconv.Itoa(i + 1)
		item := models.InputItem{
			ID:      strings.TrimSpace(row[ColumnID]),
			Name:    strings.TrimSpace(row[ColumnName]),
			Content: content,
		}
		if item.ID == "" {
			item.ID = "i" + n
		}
		if item.Name == "" {
			item.Name = "Input " + n
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("csv: duplicate input id %q on row %d", item.ID, i+1)
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	return out, nil
}

// LoadInputs reads input items from path, optionally restricted to a row
// range such as "2-5". An empty rowRange loads every row.
func LoadInputs(path, rowRange string) ([]models.InputItem, error) {
	var (
		rows []Row
		err  error
	)
	if rowRange == "" {
		rows, err = LoadCSV(path)
	} else {
		start, end, perr := ParseRange(rowRange)
		if perr != nil {
			return nil, perr
		}
		rows, err = LoadCSVRange(path, start, end)
	}
	if err != nil {
		return nil, err
	}
	return Inputs(rows)
}
