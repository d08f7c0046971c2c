// Package correlation computes Pearson, Spearman, and Kendall association
// statistics of each independent variable against one dependent variable,
// using pairwise-complete observations per pair.
package correlation

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"datalens/domain/table"
	"datalens/internal/errors"
)

const (
	confidenceLevel = 0.95
	// atanh diverges at |r| = 1; clamp before transforming
	fisherClamp = 0.999
	minSample   = 3
)

// Engine runs per-variable correlation computations, bounded by a weighted
// semaphore. Each variable's sample is assembled independently, so n may
// differ across rows due to differing missingness.
type Engine struct {
	sem *semaphore.Weighted
}

// NewEngine creates an engine allowing maxParallel concurrent variables
func NewEngine(maxParallel int) *Engine {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Engine{sem: semaphore.NewWeighted(int64(maxParallel))}
}

// Correlate computes one CorrelationRow per independent variable against
// the dependent variable. A pair with n <= 2 degenerates to r=0, p=1 for
// every method; that is a defined sentinel, not an error.
func (e *Engine) Correlate(ctx context.Context, t *table.Table, dependent string, independents []string) ([]table.CorrelationRow, error) {
	if !t.IsNumericColumn(dependent) {
		return nil, errors.ValidationError("dependent variable " + dependent + " is not numeric")
	}

	rows := make([]table.CorrelationRow, len(independents))
	var (
		wg       sync.WaitGroup
		firstErr error
		errOnce  sync.Once
	)
	for i, name := range independents {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Timeout("correlation")
		}
		wg.Add(1)
		go func(slot int, variable string) {
			defer wg.Done()
			defer e.sem.Release(1)
			row, err := correlatePair(t, dependent, variable)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			rows[slot] = row
		}(i, name)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return rows, nil
}

func correlatePair(t *table.Table, dependent, independent string) (table.CorrelationRow, error) {
	colDep, err := t.Column(dependent)
	if err != nil {
		return table.CorrelationRow{}, err
	}
	colInd, err := t.Column(independent)
	if err != nil {
		return table.CorrelationRow{}, err
	}

	// pairwise-complete: drop rows missing in either variable
	var dep, ind []float64
	for i := range colDep.Cells {
		cd, ci := colDep.Cells[i], colInd.Cells[i]
		if cd.Missing || !cd.Numeric || ci.Missing || !ci.Numeric {
			continue
		}
		dep = append(dep, cd.Num)
		ind = append(ind, ci.Num)
	}

	row := table.CorrelationRow{Variable: independent, N: len(dep)}
	if len(dep) < minSample {
		row.Pearson = table.CorrelationStat{R: 0, P: 1}
		row.Spearman = table.CorrelationStat{R: 0, P: 1}
		row.Kendall = table.CorrelationStat{R: 0, P: 1}
		row.PearsonCI = table.ConfidenceInterval{Level: confidenceLevel}
		row.Strength = "none"
		return row, nil
	}

	row.Pearson = pearson(ind, dep)
	row.PearsonCI = fisherInterval(row.Pearson.R, len(dep))
	row.Spearman = spearman(ind, dep)
	row.Kendall = kendall(ind, dep)
	row.Strength = classifyStrength(math.Abs(row.Pearson.R))
	return row, nil
}

// pearson computes the sample correlation coefficient and its two-sided
// p-value from the t-distribution with n-2 degrees of freedom.
func pearson(x, y []float64) table.CorrelationStat {
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return table.CorrelationStat{R: 0, P: 1}
	}
	return table.CorrelationStat{R: r, P: correlationPValue(r, len(x))}
}

// spearman ranks both samples (average ranks for ties) and correlates the
// ranks.
func spearman(x, y []float64) table.CorrelationStat {
	rx := rankTransform(x)
	ry := rankTransform(y)
	rho := stat.Correlation(rx, ry, nil)
	if math.IsNaN(rho) {
		return table.CorrelationStat{R: 0, P: 1}
	}
	return table.CorrelationStat{R: rho, P: correlationPValue(rho, len(x))}
}

// kendall computes tau with a normal-approximation p-value
func kendall(x, y []float64) table.CorrelationStat {
	tau := stat.Kendall(x, y, nil)
	if math.IsNaN(tau) {
		return table.CorrelationStat{R: 0, P: 1}
	}
	n := float64(len(x))
	// Var(tau) under independence = 2(2n+5) / (9n(n-1))
	sigma := math.Sqrt(2 * (2*n + 5) / (9 * n * (n - 1)))
	if sigma == 0 {
		return table.CorrelationStat{R: tau, P: 1}
	}
	z := tau / sigma
	p := 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))
	return table.CorrelationStat{R: tau, P: clampP(p)}
}

// correlationPValue turns a correlation into a two-sided t-test p-value
func correlationPValue(r float64, n int) float64 {
	if n < minSample {
		return 1
	}
	df := float64(n - 2)
	denom := 1 - r*r
	if denom <= 0 {
		return 0
	}
	tStat := r * math.Sqrt(df/denom)
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return clampP(2 * (1 - tDist.CDF(math.Abs(tStat))))
}

// fisherInterval derives the 95% confidence interval via the Fisher
// z-transform: atanh(r) +/- z * 1/sqrt(n-3), mapped back with tanh. The
// interval is symmetric on the z scale, not the correlation scale.
func fisherInterval(r float64, n int) table.ConfidenceInterval {
	ci := table.ConfidenceInterval{Level: confidenceLevel}
	if n <= minSample {
		ci.Lower, ci.Upper = r, r
		return ci
	}
	clamped := math.Max(-fisherClamp, math.Min(fisherClamp, r))
	z := math.Atanh(clamped)
	se := 1 / math.Sqrt(float64(n-3))
	zCrit := distuv.UnitNormal.Quantile(1 - (1-confidenceLevel)/2)
	ci.Lower = math.Tanh(z - zCrit*se)
	ci.Upper = math.Tanh(z + zCrit*se)
	return ci
}

// rankTransform assigns average ranks to ties
func rankTransform(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// ranks are 1-based; ties share the average of their positions
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

func classifyStrength(absR float64) string {
	switch {
	case absR >= 0.7:
		return "strong"
	case absR >= 0.4:
		return "moderate"
	case absR >= 0.1:
		return "weak"
	default:
		return "none"
	}
}

func clampP(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
