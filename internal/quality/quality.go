// Package quality implements missing-value detection and remediation over
// the current table state.
package quality

import (
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"

	"datalens/domain/table"
	"datalens/internal/errors"
)

// FindIssues scans the table and returns one issue per missing cell, in
// row-major order. Issues reflect the table state at the given version and
// go stale on any mutation.
func FindIssues(t *table.Table, version table.Version) []table.DataIssue {
	var issues []table.DataIssue
	names := t.ColumnNames()
	for row := 0; row < t.RowCount(); row++ {
		for _, name := range names {
			cell, err := t.Cell(row, name)
			if err != nil {
				continue
			}
			if cell.Missing {
				issues = append(issues, table.DataIssue{
					Row:     row,
					Column:  name,
					Kind:    table.IssueMissing,
					Version: version,
				})
			}
		}
	}
	return issues
}

// Remediate applies a bulk missing-value fix and returns the resulting
// table. Delete removes every row containing at least one missing value
// across any column, not just the targets, then reindexes. Imputations act
// per target column.
func Remediate(t *table.Table, action table.RemediationAction, targetColumns []string) (*table.Table, error) {
	switch action {
	case table.RemediateDelete:
		return deleteMissingRows(t), nil
	case table.RemediateImputeMean:
		return imputeStatistic(t, targetColumns, stats.Mean)
	case table.RemediateImputeMedian:
		return imputeStatistic(t, targetColumns, stats.Median)
	case table.RemediateImputeMode:
		return imputeMode(t, targetColumns)
	default:
		return nil, errors.InvalidInput("unknown remediation action: " + string(action))
	}
}

// EditCell parses rawText as a real number and writes it into the cell at
// (row, column). A failed parse leaves the table unchanged and returns a
// distinguishable InvalidNumericInput failure; callers preserving the
// lenient manual-correction UX may simply ignore it.
func EditCell(t *table.Table, row int, column string, rawText string) (*table.Table, error) {
	trimmed := strings.TrimSpace(rawText)
	num, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, errors.InvalidNumericInput(rawText)
	}
	return t.WithCell(row, column, table.NumericCell(num))
}

// deleteMissingRows drops every row with at least one missing cell in any
// column, then reindexes contiguously from zero.
func deleteMissingRows(t *table.Table) *table.Table {
	var drop []int
	names := t.ColumnNames()
	for row := 0; row < t.RowCount(); row++ {
		for _, name := range names {
			cell, err := t.Cell(row, name)
			if err != nil {
				continue
			}
			if cell.Missing {
				drop = append(drop, row)
				break
			}
		}
	}
	if len(drop) == 0 {
		return t
	}
	return t.DropRows(drop)
}

// imputeStatistic fills missing cells in each numeric target column with a
// statistic of that column's own non-missing values. Non-numeric targets
// are skipped.
func imputeStatistic(t *table.Table, targetColumns []string, statFn func(stats.Float64Data) (float64, error)) (*table.Table, error) {
	next := t
	for _, name := range targetColumns {
		if !next.HasColumn(name) {
			return nil, errors.NotFound("column " + name)
		}
		if !next.IsNumericColumn(name) {
			continue
		}
		values, _, err := next.NumericValues(name)
		if err != nil || len(values) == 0 {
			continue
		}
		fill, err := statFn(values)
		if err != nil {
			return nil, errors.Wrapf(err, "computing fill value for %s", name)
		}
		next, err = fillMissing(next, name, table.NumericCell(fill))
		if err != nil {
			return nil, err
		}
	}
	return next, nil
}

// imputeMode fills missing cells with the most frequent non-missing value
// of the column. Columns with no non-missing values are left untouched.
func imputeMode(t *table.Table, targetColumns []string) (*table.Table, error) {
	next := t
	for _, name := range targetColumns {
		col, err := next.Column(name)
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int)
		order := make(map[string]int)
		for i, cell := range col.Cells {
			if cell.Missing {
				continue
			}
			if _, seen := counts[cell.Raw]; !seen {
				order[cell.Raw] = i
			}
			counts[cell.Raw]++
		}
		if len(counts) == 0 {
			continue
		}
		mode := ""
		best := -1
		for raw, n := range counts {
			// first-seen wins ties so the result is deterministic
			if n > best || (n == best && order[raw] < order[mode]) {
				mode, best = raw, n
			}
		}
		next, err = fillMissing(next, name, table.ParseCell(mode))
		if err != nil {
			return nil, err
		}
	}
	return next, nil
}

func fillMissing(t *table.Table, column string, fill table.Cell) (*table.Table, error) {
	col, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	cells := make([]table.Cell, len(col.Cells))
	for i, cell := range col.Cells {
		if cell.Missing {
			cells[i] = fill
		} else {
			cells[i] = cell
		}
	}
	return t.WithColumnCells(column, cells)
}
