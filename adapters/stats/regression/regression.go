// Package regression computes bivariate fit descriptors over the paired
// non-missing (x, y) observations of two numeric columns: an ordinary
// least-squares line, a locally weighted regression curve, and a polynomial
// fit of a requested degree.
package regression

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"datalens/domain/table"
	"datalens/internal/errors"
)

const (
	curveSamples  = 100
	lowessSpan    = 2.0 / 3.0
	maxPolyDegree = 6
)

// Options selects which fit curves to compute
type Options struct {
	Line             bool `json:"line"`
	Lowess           bool `json:"lowess"`
	PolynomialDegree int  `json:"polynomial_degree"` // 0 disables
}

// Point is one paired observation
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LineFit is the OLS line with its goodness of fit
type LineFit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	Curve     []Point `json:"curve"`
}

// PolyFit is a polynomial fit; Coefficients are ordered from the constant
// term upward.
type PolyFit struct {
	Degree       int       `json:"degree"`
	Coefficients []float64 `json:"coefficients"`
	Curve        []Point   `json:"curve"`
}

// Bivariate holds the descriptors for one (x, y) column pair
type Bivariate struct {
	X      string   `json:"x"`
	Y      string   `json:"y"`
	N      int      `json:"n"`
	Points []Point  `json:"points"`
	Line   *LineFit `json:"line,omitempty"`
	Lowess []Point  `json:"lowess,omitempty"`
	Poly   *PolyFit `json:"poly,omitempty"`
}

// Descriptors computes the requested fits over the pairwise-complete
// observations of columns x and y.
func Descriptors(t *table.Table, x, y string, opts Options) (*Bivariate, error) {
	xs, ys, err := pairedValues(t, x, y)
	if err != nil {
		return nil, err
	}
	if len(xs) < 3 {
		return nil, errors.ValidationError("too few paired observations for a fit")
	}

	b := &Bivariate{X: x, Y: y, N: len(xs)}
	b.Points = make([]Point, len(xs))
	for i := range xs {
		b.Points[i] = Point{X: xs[i], Y: ys[i]}
	}

	if opts.Line {
		b.Line = fitLine(xs, ys)
	}
	if opts.Lowess {
		b.Lowess = fitLowess(xs, ys)
	}
	if opts.PolynomialDegree > 0 {
		poly, err := fitPolynomial(xs, ys, opts.PolynomialDegree)
		if err != nil {
			return nil, err
		}
		b.Poly = poly
	}
	return b, nil
}

// pairedValues drops any row where either column is missing or non-numeric
func pairedValues(t *table.Table, x, y string) ([]float64, []float64, error) {
	colX, err := t.Column(x)
	if err != nil {
		return nil, nil, err
	}
	colY, err := t.Column(y)
	if err != nil {
		return nil, nil, err
	}

	var xs, ys []float64
	for i := range colX.Cells {
		cx, cy := colX.Cells[i], colY.Cells[i]
		if cx.Missing || !cx.Numeric || cy.Missing || !cy.Numeric {
			continue
		}
		xs = append(xs, cx.Num)
		ys = append(ys, cy.Num)
	}
	return xs, ys, nil
}

func fitLine(xs, ys []float64) *LineFit {
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	r := stat.Correlation(xs, ys, nil)
	fit := &LineFit{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  r * r,
	}
	fit.Curve = sampleCurve(xs, func(x float64) float64 {
		return intercept + slope*x
	})
	return fit
}

// fitPolynomial solves the Vandermonde least-squares system with QR
func fitPolynomial(xs, ys []float64, degree int) (*PolyFit, error) {
	if degree < 1 || degree > maxPolyDegree {
		return nil, errors.InvalidInput("polynomial degree out of range")
	}
	if len(xs) <= degree {
		return nil, errors.ValidationError("not enough observations for the requested degree")
	}

	n := len(xs)
	a := mat.NewDense(n, degree+1, nil)
	for i, x := range xs {
		pow := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, pow)
			pow *= x
		}
	}
	b := mat.NewVecDense(n, ys)

	var qr mat.QR
	qr.Factorize(a)
	coef := mat.NewVecDense(degree+1, nil)
	if err := qr.SolveVecTo(coef, false, b); err != nil {
		return nil, errors.Wrap(err, "solving polynomial least squares")
	}

	coefficients := make([]float64, degree+1)
	for j := range coefficients {
		coefficients[j] = coef.AtVec(j)
	}
	fit := &PolyFit{Degree: degree, Coefficients: coefficients}
	fit.Curve = sampleCurve(xs, func(x float64) float64 {
		y, pow := 0.0, 1.0
		for _, c := range coefficients {
			y += c * pow
			pow *= x
		}
		return y
	})
	return fit, nil
}

// fitLowess computes a locally weighted regression curve: for each
// evaluation point a tricube-weighted linear fit over the nearest span of
// observations.
func fitLowess(xs, ys []float64) []Point {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	sx := make([]float64, n)
	sy := make([]float64, n)
	for i, j := range idx {
		sx[i] = xs[j]
		sy[i] = ys[j]
	}

	window := int(math.Ceil(lowessSpan * float64(n)))
	if window < 3 {
		window = 3
	}
	if window > n {
		window = n
	}

	curve := make([]Point, n)
	for i, x := range sx {
		lo, hi := nearestWindow(sx, i, window)
		maxDist := math.Max(math.Abs(x-sx[lo]), math.Abs(x-sx[hi-1]))
		if maxDist == 0 {
			maxDist = 1
		}

		var sw, swx, swy, swxx, swxy float64
		for j := lo; j < hi; j++ {
			w := tricube(math.Abs(x-sx[j]) / maxDist)
			sw += w
			swx += w * sx[j]
			swy += w * sy[j]
			swxx += w * sx[j] * sx[j]
			swxy += w * sx[j] * sy[j]
		}
		denom := sw*swxx - swx*swx
		if math.Abs(denom) < 1e-12 {
			curve[i] = Point{X: x, Y: swy / sw}
			continue
		}
		slope := (sw*swxy - swx*swy) / denom
		intercept := (swy - slope*swx) / sw
		curve[i] = Point{X: x, Y: intercept + slope*x}
	}
	return curve
}

// nearestWindow returns the half-open index range of the window nearest to
// position i in sorted x order.
func nearestWindow(sx []float64, i, window int) (int, int) {
	lo := i - window/2
	if lo < 0 {
		lo = 0
	}
	hi := lo + window
	if hi > len(sx) {
		hi = len(sx)
		lo = hi - window
	}
	return lo, hi
}

func tricube(u float64) float64 {
	if u >= 1 {
		return 0
	}
	c := 1 - u*u*u
	return c * c * c
}

// sampleCurve evaluates fn on an even grid spanning the observed x range
func sampleCurve(xs []float64, fn func(float64) float64) []Point {
	min, max := xs[0], xs[0]
	for _, x := range xs {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	if min == max {
		return []Point{{X: min, Y: fn(min)}}
	}
	step := (max - min) / float64(curveSamples-1)
	points := make([]Point, curveSamples)
	for i := range points {
		x := min + float64(i)*step
		points[i] = Point{X: x, Y: fn(x)}
	}
	return points
}
