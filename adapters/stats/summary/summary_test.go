package summary

import (
	"math"
	"testing"

	"datalens/domain/table"
	"datalens/internal/testkit"
)

func TestSummarize_MixedColumns(t *testing.T) {
	tbl := testkit.RawTable(
		[]string{"num", "text", "sparse"},
		[][]string{
			{"1", "red", "10"},
			{"2", "blue", ""},
			{"3", "red", "30"},
			{"4", "12", ""},
		},
	)

	summaries := Summarize(tbl)
	if len(summaries) != 3 {
		t.Fatalf("got %d summaries", len(summaries))
	}
	byName := make(map[string]table.ColumnSummary, len(summaries))
	for _, s := range summaries {
		byName[s.Name] = s
	}

	num := byName["num"]
	if num.Type != table.TypeNumeric || num.PresentCount != 4 || num.MissingCount != 0 {
		t.Errorf("num = %+v", num)
	}
	if num.Mean == nil || *num.Mean != 2.5 {
		t.Errorf("num mean = %v, want 2.5", num.Mean)
	}
	if num.Min == nil || *num.Min != 1 || num.Max == nil || *num.Max != 4 {
		t.Errorf("num bounds = %+v", num)
	}
	if num.Median == nil || *num.Median != 2.5 {
		t.Errorf("num median = %v", num.Median)
	}
	if num.StdDev == nil || math.Abs(*num.StdDev-1.2909944487) > 1e-9 {
		t.Errorf("num stddev = %v", num.StdDev)
	}

	// one numeric-looking value does not make a text column numeric
	text := byName["text"]
	if text.Type != table.TypeNonNumeric {
		t.Errorf("text type = %s", text.Type)
	}
	if text.Mean != nil {
		t.Error("non-numeric columns carry no statistics")
	}

	sparse := byName["sparse"]
	if sparse.Type != table.TypeNumeric || sparse.PresentCount != 2 || sparse.MissingCount != 2 {
		t.Errorf("sparse = %+v", sparse)
	}
	if sparse.Mean == nil || *sparse.Mean != 20 {
		t.Errorf("sparse mean = %v, want 20", sparse.Mean)
	}
}

func TestSummarize_AllMissingColumn(t *testing.T) {
	tbl := testkit.RawTable([]string{"empty"}, [][]string{{""}, {"na"}, {"null"}})

	summaries := Summarize(tbl)
	s := summaries[0]
	if s.Type != table.TypeNumeric {
		t.Errorf("all-missing column type = %s, numeric by convention", s.Type)
	}
	if s.PresentCount != 0 || s.MissingCount != 3 {
		t.Errorf("counts = %+v", s)
	}
	if s.Mean != nil || s.StdDev != nil || s.Min != nil || s.Max != nil || s.Median != nil {
		t.Error("all-missing statistics must be absent, never zero")
	}
}

func TestNumericColumns_ExcludesAllMissing(t *testing.T) {
	tbl := testkit.RawTable(
		[]string{"a", "text", "empty"},
		[][]string{
			{"1", "x", ""},
			{"2", "y", ""},
		},
	)

	names := NumericColumns(tbl)
	if len(names) != 1 || names[0] != "a" {
		t.Errorf("numeric columns = %v, want [a]", names)
	}
}
