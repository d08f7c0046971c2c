package ingest

import (
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"datalens/internal/errors"
	"datalens/ports"
)

func TestLoad_CSV(t *testing.T) {
	data := []byte("age,income,city\n34,50000,Boston\n28,,Denver\n45,72000,\n")

	r := NewReader("")
	tbl, err := r.Load(context.Background(), data, ports.FormatCSV)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.RowCount() != 3 || tbl.ColumnCount() != 3 {
		t.Fatalf("table is %dx%d, want 3x3", tbl.RowCount(), tbl.ColumnCount())
	}
	names := tbl.ColumnNames()
	if names[0] != "age" || names[1] != "income" || names[2] != "city" {
		t.Errorf("columns = %v", names)
	}
	cell, _ := tbl.Cell(0, "age")
	if !cell.Numeric || cell.Num != 34 {
		t.Errorf("age[0] = %+v", cell)
	}
	cell, _ = tbl.Cell(1, "income")
	if !cell.Missing {
		t.Errorf("income[1] = %+v, want missing", cell)
	}
	cell, _ = tbl.Cell(2, "city")
	if !cell.Missing {
		t.Errorf("city[2] = %+v, want missing", cell)
	}
}

func TestLoad_CSVRaggedRowsPadAsMissing(t *testing.T) {
	data := []byte("a,b,c\n1,2,3\n4,5\n")

	r := NewReader("")
	tbl, err := r.Load(context.Background(), data, ports.FormatCSV)
	if err != nil {
		t.Fatal(err)
	}
	cell, _ := tbl.Cell(1, "c")
	if !cell.Missing {
		t.Errorf("short row cell = %+v, want missing", cell)
	}
}

func TestLoad_BlankHeadersGetNames(t *testing.T) {
	data := []byte("a,,c\n1,2,3\n")

	r := NewReader("")
	tbl, err := r.Load(context.Background(), data, ports.FormatCSV)
	if err != nil {
		t.Fatal(err)
	}
	names := tbl.ColumnNames()
	if names[1] != "column_2" {
		t.Errorf("blank header became %q, want column_2", names[1])
	}
}

func TestLoad_DuplicateHeadersUniquified(t *testing.T) {
	data := []byte("a,a,b\n1,2,3\n")

	r := NewReader("")
	tbl, err := r.Load(context.Background(), data, ports.FormatCSV)
	if err != nil {
		t.Fatal(err)
	}
	names := tbl.ColumnNames()
	want := []string{"a", "a_2", "b"}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("names[%d] = %q, want %q", i, names[i], name)
		}
	}

	// both columns stay addressable with distinct values
	first, _ := tbl.Cell(0, "a")
	second, _ := tbl.Cell(0, "a_2")
	if first.Num != 1 || second.Num != 2 {
		t.Errorf("cells = %v, %v, want 1, 2", first.Num, second.Num)
	}
}

func TestLoad_EmptyUpload(t *testing.T) {
	r := NewReader("")
	_, err := r.Load(context.Background(), nil, ports.FormatCSV)
	if err == nil {
		t.Fatal("empty upload must fail")
	}
	if errors.GetCode(err) != errors.CodeParseError {
		t.Errorf("error code = %s", errors.GetCode(err))
	}
}

func TestLoad_HeaderOnly(t *testing.T) {
	r := NewReader("")
	_, err := r.Load(context.Background(), []byte("a,b,c\n"), ports.FormatCSV)
	if err == nil {
		t.Fatal("a header without data rows must fail")
	}
	if errors.GetCode(err) != errors.CodeParseError {
		t.Errorf("error code = %s", errors.GetCode(err))
	}
}

func TestLoad_UnknownFormatHint(t *testing.T) {
	r := NewReader("")
	if _, err := r.Load(context.Background(), []byte("a\n1\n"), ports.FormatHint("parquet")); err == nil {
		t.Fatal("unknown hint must fail")
	}
}

func TestLoad_Excel(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"score", "label"},
		{1.5, "low"},
		{9.25, "high"},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cellRef, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader("Sheet1")
	tbl, err := r.Load(context.Background(), buf.Bytes(), ports.FormatExcel)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.RowCount() != 2 || tbl.ColumnCount() != 2 {
		t.Fatalf("table is %dx%d, want 2x2", tbl.RowCount(), tbl.ColumnCount())
	}
	cell, _ := tbl.Cell(1, "score")
	if !cell.Numeric || cell.Num != 9.25 {
		t.Errorf("score[1] = %+v", cell)
	}
}

func TestLoad_ExcelMissingSheetFallsBack(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetRow("Sheet1", "A1", &[]interface{}{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]interface{}{"1"}); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader("NoSuchSheet")
	tbl, err := r.Load(context.Background(), buf.Bytes(), ports.FormatExcel)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.RowCount() != 1 {
		t.Errorf("RowCount = %d, want 1", tbl.RowCount())
	}
}
