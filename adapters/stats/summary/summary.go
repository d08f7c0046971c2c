// Package summary implements column schema inference: numeric/non-numeric
// classification and per-column descriptive statistics over the current
// table state.
package summary

import (
	"github.com/montanaflynn/stats"

	"datalens/domain/table"
)

// Summarize computes one ColumnSummary per column of the current table.
// A column is numeric when every non-missing value parses as a real number.
// Statistics are computed over non-missing values only; an all-missing
// column reports them as absent, never zero.
func Summarize(t *table.Table) []table.ColumnSummary {
	summaries := make([]table.ColumnSummary, 0, t.ColumnCount())
	for _, name := range t.ColumnNames() {
		summaries = append(summaries, summarizeColumn(t, name))
	}
	return summaries
}

func summarizeColumn(t *table.Table, name string) table.ColumnSummary {
	col, _ := t.Column(name)

	s := table.ColumnSummary{Name: name, Type: table.TypeNonNumeric}
	numeric := true
	for _, cell := range col.Cells {
		if cell.Missing {
			s.MissingCount++
			continue
		}
		s.PresentCount++
		if !cell.Numeric {
			numeric = false
		}
	}
	if !numeric {
		return s
	}
	s.Type = table.TypeNumeric
	if s.PresentCount == 0 {
		// all-missing: numeric by convention but every statistic is absent
		return s
	}

	values, _, _ := t.NumericValues(name)
	if mean, err := stats.Mean(values); err == nil {
		s.Mean = &mean
	}
	if std, err := stats.StandardDeviationSample(values); err == nil {
		s.StdDev = &std
	}
	if min, err := stats.Min(values); err == nil {
		s.Min = &min
	}
	if max, err := stats.Max(values); err == nil {
		s.Max = &max
	}
	if median, err := stats.Median(values); err == nil {
		s.Median = &median
	}
	return s
}

// NumericColumns returns the names of columns eligible for numeric-only
// variable selection. All-missing columns are excluded: they carry no
// usable observations.
func NumericColumns(t *table.Table) []string {
	var names []string
	for _, name := range t.ColumnNames() {
		if t.IsNumericColumn(name) {
			names = append(names, name)
		}
	}
	return names
}
