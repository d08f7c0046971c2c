// Package ingest parses uploaded CSV and Excel bytes into a table. The
// analysis engine never touches raw files; everything downstream works on
// the parsed table.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"datalens/domain/table"
	"datalens/internal/errors"
	"datalens/ports"
)

// Reader implements ports.IngestionPort for CSV and Excel uploads
type Reader struct {
	sheet string
}

// NewReader creates a reader. sheet names the Excel worksheet to read;
// empty selects Sheet1.
func NewReader(sheet string) *Reader {
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &Reader{sheet: sheet}
}

// Load parses raw bytes under the given format hint into a table
func (r *Reader) Load(ctx context.Context, data []byte, hint ports.FormatHint) (*table.Table, error) {
	if len(data) == 0 {
		return nil, errors.ParseError("empty upload", nil)
	}

	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch hint {
	case ports.FormatCSV:
		rows, err = r.readCSV(data)
	case ports.FormatExcel:
		rows, err = r.readExcel(data)
	default:
		return nil, errors.ParseError("unsupported format hint: "+string(hint), nil)
	}
	if err != nil {
		return nil, err
	}

	if len(rows) < 2 {
		return nil, errors.ParseError("file must have a header row and at least one data row", nil)
	}

	t := buildTable(rows)
	log.Printf("[Ingest] %s upload parsed in %.2fms (%d columns, %d rows)",
		strings.ToUpper(string(hint)), float64(time.Since(start).Nanoseconds())/1e6,
		t.ColumnCount(), t.RowCount())
	return t, nil
}

func (r *Reader) readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // tolerate ragged rows; short rows pad as missing
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.ParseError("failed to read CSV data", err)
	}
	return rows, nil
}

func (r *Reader) readExcel(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.ParseError("failed to open Excel data", err)
	}
	defer f.Close()

	sheet := r.sheet
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		// fall back to the first sheet when the configured one is absent
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.ParseError("workbook has no sheets", nil)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.ParseError("failed to read sheet "+sheet, err)
	}
	return rows, nil
}

// buildTable trims headers, uniquifies blank and repeated names, and
// parses cells. Repeated names get a positional suffix so every cell
// stays addressable by column name.
func buildTable(rows [][]string) *table.Table {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	seen := make(map[string]bool, len(headerRow))
	for i, header := range headerRow {
		name := strings.TrimSpace(header)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		for seen[name] {
			name = fmt.Sprintf("%s_%d", name, i+1)
		}
		seen[name] = true
		headers[i] = name
	}
	return table.NewFromRows(headers, rows[1:])
}
