// Package testkit builds synthetic tables with known structure for tests:
// controlled correlation, injected outliers, and injected missingness.
package testkit

import (
	"fmt"
	"math/rand"

	"datalens/domain/table"
)

// Generator produces deterministic synthetic tables
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator with a fixed seed so tests are
// reproducible.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// LinearTable builds a table with columns x and y where y = slope*x +
// intercept + gaussian noise. noise = 0 produces an exact linear
// relationship.
func (g *Generator) LinearTable(n int, slope, intercept, noise float64) *table.Table {
	xCells := make([]table.Cell, n)
	yCells := make([]table.Cell, n)
	for i := 0; i < n; i++ {
		x := float64(i) + g.rng.Float64()
		y := slope*x + intercept + noise*g.rng.NormFloat64()
		xCells[i] = table.NumericCell(x)
		yCells[i] = table.NumericCell(y)
	}
	return table.New([]table.Column{
		{Name: "x", Cells: xCells},
		{Name: "y", Cells: yCells},
	})
}

// WithOutliers appends rows whose named column value is far outside the
// existing range, returning the new table and the appended row indices.
func (g *Generator) WithOutliers(t *table.Table, column string, magnitudes []float64) (*table.Table, []int) {
	columns := make([]table.Column, t.ColumnCount())
	for i, col := range t.Columns {
		cells := make([]table.Cell, len(col.Cells))
		copy(cells, col.Cells)
		columns[i] = table.Column{Name: col.Name, Cells: cells}
	}

	base := t.RowCount()
	rows := make([]int, 0, len(magnitudes))
	for k, mag := range magnitudes {
		for i := range columns {
			if columns[i].Name == column {
				columns[i].Cells = append(columns[i].Cells, table.NumericCell(mag))
			} else {
				columns[i].Cells = append(columns[i].Cells, table.NumericCell(float64(k)))
			}
		}
		rows = append(rows, base+k)
	}
	return table.New(columns), rows
}

// WithMissing blanks the given cells
func (g *Generator) WithMissing(t *table.Table, column string, rows []int) *table.Table {
	next := t.Clone()
	col, err := next.Column(column)
	if err != nil {
		return next
	}
	for _, r := range rows {
		if r >= 0 && r < len(col.Cells) {
			col.Cells[r] = table.MissingCell()
		}
	}
	return next
}

// RawTable builds a table from raw string cells, parsing each the way
// ingestion would.
func RawTable(headers []string, rows [][]string) *table.Table {
	return table.NewFromRows(headers, rows)
}

// NumericTable builds a table from named float columns
func NumericTable(columns map[string][]float64, order []string) *table.Table {
	cols := make([]table.Column, 0, len(order))
	for _, name := range order {
		values, ok := columns[name]
		if !ok {
			panic(fmt.Sprintf("testkit: column %s not provided", name))
		}
		cells := make([]table.Cell, len(values))
		for i, v := range values {
			cells[i] = table.NumericCell(v)
		}
		cols = append(cols, table.Column{Name: name, Cells: cells})
	}
	return table.New(cols)
}
