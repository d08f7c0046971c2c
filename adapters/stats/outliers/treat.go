package outliers

import (
	"math"

	"github.com/montanaflynn/stats"

	"datalens/domain/table"
	"datalens/internal/errors"
)

// Treat applies an outlier treatment to one column and returns the
// resulting table. Outlier membership is recomputed fresh under the given
// method before applying; record indices held by the caller are ignored.
// Log and sqrt transform the entire column; delete and impute act only on
// flagged rows/cells.
func Treat(t *table.Table, column string, action table.TreatmentAction, method table.OutlierMethod) (*table.Table, error) {
	if !t.IsNumericColumn(column) {
		return nil, errors.ValidationError("column " + column + " is not numeric")
	}

	switch action {
	case table.TreatIgnore:
		return t, nil
	case table.TreatDelete:
		record, flagged := DetectColumn(t, column, method, 0)
		if !flagged {
			return t, nil
		}
		return t.DropRows(record.Rows), nil
	case table.TreatWinsorize:
		return winsorize(t, column, method)
	case table.TreatImputeMean:
		return imputeFlagged(t, column, method, meanOf)
	case table.TreatImputeMedian:
		return imputeFlagged(t, column, method, medianOf)
	case table.TreatLog:
		return logTransform(t, column)
	case table.TreatSqrt:
		return sqrtTransform(t, column)
	default:
		return nil, errors.InvalidInput("unknown treatment action: " + string(action))
	}
}

// winsorize clips the whole column. Under IQR the clip bounds are the fence
// bounds; score-based methods have no natural bound, so values are clipped
// to the min/max of the non-flagged values. The latter is a documented
// simplification kept on purpose, not a statistical bound.
func winsorize(t *table.Table, column string, method table.OutlierMethod) (*table.Table, error) {
	values, rows, err := t.NumericValues(column)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return t, nil
	}

	var lower, upper float64
	if method == table.MethodIQR {
		q1 := interpolatedQuantile(values, 0.25)
		q3 := interpolatedQuantile(values, 0.75)
		iqr := q3 - q1
		lower = q1 - iqrFence*iqr
		upper = q3 + iqrFence*iqr
	} else {
		record, flagged := DetectColumn(t, column, method, 0)
		if !flagged {
			return t, nil
		}
		kept := excludeRows(values, rows, record.Rows)
		if len(kept) == 0 {
			return t, nil
		}
		lower, _ = stats.Min(kept)
		upper, _ = stats.Max(kept)
	}

	return replaceNumeric(t, column, func(v float64) float64 {
		if v < lower {
			return lower
		}
		if v > upper {
			return upper
		}
		return v
	})
}

// imputeFlagged replaces flagged cells with a statistic of the non-flagged
// values.
func imputeFlagged(t *table.Table, column string, method table.OutlierMethod, statFn func([]float64) (float64, error)) (*table.Table, error) {
	record, flagged := DetectColumn(t, column, method, 0)
	if !flagged {
		return t, nil
	}
	values, rows, err := t.NumericValues(column)
	if err != nil {
		return nil, err
	}
	kept := excludeRows(values, rows, record.Rows)
	if len(kept) == 0 {
		return t, nil
	}
	fill, err := statFn(kept)
	if err != nil {
		return nil, errors.Wrap(err, "computing imputation value")
	}

	isFlagged := make(map[int]bool, len(record.Rows))
	for _, r := range record.Rows {
		isFlagged[r] = true
	}
	col, _ := t.Column(column)
	cells := make([]table.Cell, len(col.Cells))
	copy(cells, col.Cells)
	for r := range cells {
		if isFlagged[r] {
			cells[r] = table.NumericCell(fill)
		}
	}
	return t.WithColumnCells(column, cells)
}

// logTransform applies the natural log to the whole column. A column whose
// minimum is <= 0 is shifted by |min|+1 first so every log argument is >= 1.
func logTransform(t *table.Table, column string) (*table.Table, error) {
	values, _, err := t.NumericValues(column)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return t, nil
	}
	min, _ := stats.Min(values)
	shift := 0.0
	if min <= 0 {
		shift = math.Abs(min) + 1
	}
	return replaceNumeric(t, column, func(v float64) float64 {
		return math.Log(v + shift)
	})
}

// sqrtTransform applies the square root to the whole column, shifting by
// |min| first when the minimum is negative.
func sqrtTransform(t *table.Table, column string) (*table.Table, error) {
	values, _, err := t.NumericValues(column)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return t, nil
	}
	min, _ := stats.Min(values)
	shift := 0.0
	if min < 0 {
		shift = math.Abs(min)
	}
	return replaceNumeric(t, column, func(v float64) float64 {
		return math.Sqrt(v + shift)
	})
}

// replaceNumeric maps fn over every present numeric cell of the column,
// leaving missing cells untouched.
func replaceNumeric(t *table.Table, column string, fn func(float64) float64) (*table.Table, error) {
	col, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	cells := make([]table.Cell, len(col.Cells))
	for i, cell := range col.Cells {
		if cell.Missing || !cell.Numeric {
			cells[i] = cell
			continue
		}
		cells[i] = table.NumericCell(fn(cell.Num))
	}
	return t.WithColumnCells(column, cells)
}

func excludeRows(values []float64, rows []int, excluded []int) []float64 {
	skip := make(map[int]bool, len(excluded))
	for _, r := range excluded {
		skip[r] = true
	}
	kept := make([]float64, 0, len(values))
	for i, v := range values {
		if !skip[rows[i]] {
			kept = append(kept, v)
		}
	}
	return kept
}

func meanOf(values []float64) (float64, error)   { return stats.Mean(values) }
func medianOf(values []float64) (float64, error) { return stats.Median(values) }
