package table

import (
	"fmt"
	"strconv"
	"strings"

	"datalens/domain/core"
)

// Version is a monotonic marker for the table state. Derived data (issues,
// outlier records, correlation rows) is only valid against the version it
// was computed at.
type Version uint64

// Cell holds a single raw value. A cell is missing when the raw text is
// empty or a recognized null marker; it is numeric when the raw text parses
// as a real number.
type Cell struct {
	Raw     string  `json:"raw"`
	Num     float64 `json:"num"`
	Numeric bool    `json:"numeric"`
	Missing bool    `json:"missing"`
}

// null markers recognized at parse time, lowercase
var nullMarkers = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
	"-":    true,
}

// ParseCell classifies a raw string value into a Cell
func ParseCell(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if nullMarkers[strings.ToLower(trimmed)] {
		return Cell{Raw: trimmed, Missing: true}
	}
	if num, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Cell{Raw: trimmed, Num: num, Numeric: true}
	}
	return Cell{Raw: trimmed}
}

// NumericCell builds a present numeric cell directly
func NumericCell(v float64) Cell {
	return Cell{Raw: strconv.FormatFloat(v, 'g', -1, 64), Num: v, Numeric: true}
}

// MissingCell builds a missing cell
func MissingCell() Cell {
	return Cell{Missing: true}
}

// Column is a named, ordered sequence of cells
type Column struct {
	Name  string `json:"name"`
	Cells []Cell `json:"cells"`
}

// Table is an ordered set of equal-length columns with a contiguous,
// zero-based row index. Rows are addressed by position; the index is only
// renumbered by explicit row deletion.
type Table struct {
	Columns []Column
	byName  map[string]int
}

// New creates a table from ordered columns. All columns must already have
// equal length; callers building tables row-wise should use NewFromRows.
func New(columns []Column) *Table {
	t := &Table{Columns: columns}
	t.reindex()
	return t
}

// NewFromRows creates a table from a header and row-major raw string data.
// Short rows are padded with missing cells so the equal-length invariant
// holds.
func NewFromRows(headers []string, rows [][]string) *Table {
	columns := make([]Column, len(headers))
	for i, name := range headers {
		columns[i] = Column{Name: name, Cells: make([]Cell, 0, len(rows))}
	}
	for _, row := range rows {
		for i := range columns {
			if i < len(row) {
				columns[i].Cells = append(columns[i].Cells, ParseCell(row[i]))
			} else {
				columns[i].Cells = append(columns[i].Cells, MissingCell())
			}
		}
	}
	return New(columns)
}

func (t *Table) reindex() {
	t.byName = make(map[string]int, len(t.Columns))
	for i, col := range t.Columns {
		t.byName[col.Name] = i
	}
}

// RowCount returns the number of rows
func (t *Table) RowCount() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Cells)
}

// ColumnCount returns the number of columns
func (t *Table) ColumnCount() int {
	return len(t.Columns)
}

// ColumnNames returns the ordered column names
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// HasColumn reports whether a column exists
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Column returns the column with the given name
func (t *Table) Column(name string) (*Column, error) {
	idx, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", core.ErrColumnNotFound, name)
	}
	return &t.Columns[idx], nil
}

// Cell returns the cell at (row, column)
func (t *Table) Cell(row int, column string) (Cell, error) {
	col, err := t.Column(column)
	if err != nil {
		return Cell{}, err
	}
	if row < 0 || row >= len(col.Cells) {
		return Cell{}, core.ErrRowNotFound
	}
	return col.Cells[row], nil
}

// NumericValues returns the non-missing numeric values of a column together
// with the row index each value came from. Non-numeric present cells are
// skipped.
func (t *Table) NumericValues(column string) (values []float64, rows []int, err error) {
	col, err := t.Column(column)
	if err != nil {
		return nil, nil, err
	}
	for i, cell := range col.Cells {
		if cell.Missing || !cell.Numeric {
			continue
		}
		values = append(values, cell.Num)
		rows = append(rows, i)
	}
	return values, rows, nil
}

// IsNumericColumn reports whether every non-missing value in the column
// parses as a real number. A column with no present values is not numeric.
func (t *Table) IsNumericColumn(column string) bool {
	col, err := t.Column(column)
	if err != nil {
		return false
	}
	present := 0
	for _, cell := range col.Cells {
		if cell.Missing {
			continue
		}
		if !cell.Numeric {
			return false
		}
		present++
	}
	return present > 0
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	columns := make([]Column, len(t.Columns))
	for i, col := range t.Columns {
		cells := make([]Cell, len(col.Cells))
		copy(cells, col.Cells)
		columns[i] = Column{Name: col.Name, Cells: cells}
	}
	return New(columns)
}

// Project returns a new table holding exactly the named columns in the
// given order, preserving row order. Unknown names fail the whole call.
func (t *Table) Project(names []string) (*Table, error) {
	columns := make([]Column, 0, len(names))
	for _, name := range names {
		col, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		cells := make([]Cell, len(col.Cells))
		copy(cells, col.Cells)
		columns = append(columns, Column{Name: name, Cells: cells})
	}
	return New(columns), nil
}

// DropRows returns a new table without the given rows. Remaining rows are
// reindexed contiguously from zero; indices held by callers are invalid
// against the result.
func (t *Table) DropRows(rows []int) *Table {
	drop := make(map[int]bool, len(rows))
	for _, r := range rows {
		drop[r] = true
	}
	columns := make([]Column, len(t.Columns))
	for i, col := range t.Columns {
		kept := make([]Cell, 0, len(col.Cells))
		for r, cell := range col.Cells {
			if !drop[r] {
				kept = append(kept, cell)
			}
		}
		columns[i] = Column{Name: col.Name, Cells: kept}
	}
	return New(columns)
}

// WithCell returns a new table with the cell at (row, column) replaced
func (t *Table) WithCell(row int, column string, cell Cell) (*Table, error) {
	if _, err := t.Cell(row, column); err != nil {
		return nil, err
	}
	next := t.Clone()
	col, _ := next.Column(column)
	col.Cells[row] = cell
	return next, nil
}

// WithColumnCells returns a new table with the named column's cells replaced.
// The replacement must preserve the row count.
func (t *Table) WithColumnCells(column string, cells []Cell) (*Table, error) {
	if _, err := t.Column(column); err != nil {
		return nil, err
	}
	if len(cells) != t.RowCount() {
		return nil, core.NewValidationError(column, "replacement column length differs from table row count")
	}
	next := t.Clone()
	col, _ := next.Column(column)
	col.Cells = cells
	return next, nil
}

// MissingRate returns the fraction of missing cells across the whole table
func (t *Table) MissingRate() float64 {
	total := t.RowCount() * t.ColumnCount()
	if total == 0 {
		return 0
	}
	missing := 0
	for _, col := range t.Columns {
		for _, cell := range col.Cells {
			if cell.Missing {
				missing++
			}
		}
	}
	return float64(missing) / float64(total)
}
