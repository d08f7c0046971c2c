package correlation

import (
	"context"
	"math"
	"testing"

	"datalens/domain/table"
	"datalens/internal/testkit"
)

func TestCorrelate_PerfectLinear(t *testing.T) {
	tbl := testkit.NumericTable(map[string][]float64{
		"x": {1, 2, 3, 4, 5, 6, 7, 8},
		"y": {2, 4, 6, 8, 10, 12, 14, 16},
	}, []string{"x", "y"})

	e := NewEngine(2)
	rows, err := e.Correlate(context.Background(), tbl, "y", []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.Variable != "x" || row.N != 8 {
		t.Errorf("row = %+v", row)
	}
	if math.Abs(row.Pearson.R-1) > 1e-9 {
		t.Errorf("pearson r = %v, want 1", row.Pearson.R)
	}
	if row.Pearson.P >= 0.001 {
		t.Errorf("pearson p = %v, want < 0.001", row.Pearson.P)
	}
	if math.Abs(row.Spearman.R-1) > 1e-9 {
		t.Errorf("spearman rho = %v, want 1", row.Spearman.R)
	}
	if math.Abs(row.Kendall.R-1) > 1e-9 {
		t.Errorf("kendall tau = %v, want 1", row.Kendall.R)
	}
	if row.Strength != "strong" {
		t.Errorf("strength = %q, want strong", row.Strength)
	}
}

func TestCorrelate_NoisyLinear(t *testing.T) {
	gen := testkit.NewGenerator(42)
	tbl := gen.LinearTable(200, 2, 1, 0.5)

	e := NewEngine(2)
	rows, err := e.Correlate(context.Background(), tbl, "y", []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	row := rows[0]
	if row.Pearson.R < 0.95 {
		t.Errorf("pearson r = %v on a strong linear relation with mild noise", row.Pearson.R)
	}
	if row.Pearson.P >= 0.001 {
		t.Errorf("pearson p = %v, want < 0.001", row.Pearson.P)
	}
	if row.PearsonCI.Lower >= row.Pearson.R || row.PearsonCI.Upper <= row.Pearson.R {
		t.Errorf("CI [%v, %v] must contain r=%v", row.PearsonCI.Lower, row.PearsonCI.Upper, row.Pearson.R)
	}
	if row.Strength != "strong" {
		t.Errorf("strength = %q", row.Strength)
	}
}

func TestCorrelate_MissingShrinksSample(t *testing.T) {
	gen := testkit.NewGenerator(7)
	tbl := gen.LinearTable(50, 1, 0, 0)
	tbl = gen.WithMissing(tbl, "x", []int{0, 1, 2, 3, 4})

	e := NewEngine(1)
	rows, err := e.Correlate(context.Background(), tbl, "y", []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].N != 45 {
		t.Errorf("n = %d, want 45 after blanking 5 cells", rows[0].N)
	}
}

func TestCorrelate_PreservesVariableOrder(t *testing.T) {
	tbl := testkit.NumericTable(map[string][]float64{
		"a": {1, 2, 3, 4, 5},
		"b": {5, 4, 3, 2, 1},
		"y": {2, 4, 6, 8, 10},
	}, []string{"a", "b", "y"})

	e := NewEngine(2)
	rows, err := e.Correlate(context.Background(), tbl, "y", []string{"b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Variable != "b" || rows[1].Variable != "a" {
		t.Errorf("row order = [%s %s], want [b a]", rows[0].Variable, rows[1].Variable)
	}
	if rows[0].Pearson.R > 0 {
		t.Errorf("b vs y should be negatively correlated, got %v", rows[0].Pearson.R)
	}
}

func TestCorrelate_DegenerateSample(t *testing.T) {
	tbl := testkit.NumericTable(map[string][]float64{
		"x": {1, 2},
		"y": {3, 4},
	}, []string{"x", "y"})

	e := NewEngine(1)
	rows, err := e.Correlate(context.Background(), tbl, "y", []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	row := rows[0]
	if row.N != 2 {
		t.Errorf("n = %d, want 2", row.N)
	}
	for name, s := range map[string]table.CorrelationStat{
		"pearson": row.Pearson, "spearman": row.Spearman, "kendall": row.Kendall,
	} {
		if s.R != 0 || s.P != 1 {
			t.Errorf("%s = %+v, want the r=0 p=1 sentinel", name, s)
		}
	}
	if row.Strength != "none" {
		t.Errorf("strength = %q, want none", row.Strength)
	}
}

func TestCorrelate_PairwiseCompleteN(t *testing.T) {
	tbl := testkit.RawTable(
		[]string{"x", "z", "y"},
		[][]string{
			{"1", "1", "2"},
			{"2", "", "4"},
			{"3", "3", "6"},
			{"4", "4", "8"},
			{"5", "", "10"},
		},
	)

	e := NewEngine(2)
	rows, err := e.Correlate(context.Background(), tbl, "y", []string{"x", "z"})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].N != 5 {
		t.Errorf("x pair n = %d, want 5", rows[0].N)
	}
	if rows[1].N != 3 {
		t.Errorf("z pair n = %d, want 3 after dropping incomplete rows", rows[1].N)
	}
}

func TestCorrelate_NonNumericDependent(t *testing.T) {
	tbl := testkit.RawTable([]string{"x", "y"}, [][]string{{"1", "a"}, {"2", "b"}})
	e := NewEngine(1)
	if _, err := e.Correlate(context.Background(), tbl, "y", []string{"x"}); err == nil {
		t.Fatal("non-numeric dependent must fail")
	}
}

func TestFisherInterval(t *testing.T) {
	ci := fisherInterval(0.8, 30)
	if ci.Level != 0.95 {
		t.Errorf("level = %v", ci.Level)
	}
	if ci.Lower >= 0.8 || ci.Upper <= 0.8 {
		t.Errorf("interval [%v, %v] must strictly contain r", ci.Lower, ci.Upper)
	}
	if ci.Lower <= -1 || ci.Upper >= 1 {
		t.Errorf("interval [%v, %v] must stay inside (-1, 1)", ci.Lower, ci.Upper)
	}
	// symmetric on the z scale, not the r scale
	z := math.Atanh(0.8)
	lo, hi := math.Atanh(ci.Lower), math.Atanh(ci.Upper)
	if math.Abs((z-lo)-(hi-z)) > 1e-9 {
		t.Errorf("interval must be symmetric around atanh(r): z-lo=%v hi-z=%v", z-lo, hi-z)
	}
}

func TestFisherInterval_ClampsNearOne(t *testing.T) {
	ci := fisherInterval(1, 50)
	if math.IsInf(ci.Lower, 0) || math.IsInf(ci.Upper, 0) || math.IsNaN(ci.Lower) {
		t.Errorf("interval at r=1 must be finite, got [%v, %v]", ci.Lower, ci.Upper)
	}
	if ci.Upper > 1 {
		t.Errorf("upper = %v, must not exceed 1", ci.Upper)
	}
}

func TestRankTransform_AverageTies(t *testing.T) {
	ranks := rankTransform([]float64{1, 2, 2, 3})
	want := []float64{1, 2.5, 2.5, 4}
	for i := range want {
		if ranks[i] != want[i] {
			t.Fatalf("ranks = %v, want %v", ranks, want)
		}
	}
}

func TestSpearman_RobustToMonotoneNonlinearity(t *testing.T) {
	// y = x^3 is monotone, so rho is exactly 1 while pearson is below 1
	x := []float64{1, 2, 3, 4, 5, 6}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = v * v * v
	}
	rho := spearman(x, y)
	if math.Abs(rho.R-1) > 1e-9 {
		t.Errorf("rho = %v, want 1", rho.R)
	}
	p := pearson(x, y)
	if p.R >= 1 {
		t.Errorf("pearson r = %v, expected below 1 on a nonlinear relation", p.R)
	}
}

func TestCorrelationPValue_PerfectFit(t *testing.T) {
	if p := correlationPValue(1, 10); p != 0 {
		t.Errorf("p at r=1 = %v, want 0", p)
	}
	if p := correlationPValue(0, 10); math.Abs(p-1) > 1e-9 {
		t.Errorf("p at r=0 = %v, want 1", p)
	}
}

func TestClassifyStrength(t *testing.T) {
	cases := map[float64]string{0.9: "strong", 0.7: "strong", 0.5: "moderate", 0.2: "weak", 0.05: "none"}
	for absR, want := range cases {
		if got := classifyStrength(absR); got != want {
			t.Errorf("classifyStrength(%v) = %q, want %q", absR, got, want)
		}
	}
}
