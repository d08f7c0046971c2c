// Package distribution computes univariate distribution descriptors: kernel
// density curves, five-number box summaries, and quantile-quantile pairs
// against a reference distribution. Rendering the descriptors to images is
// an external collaborator's job.
package distribution

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"datalens/domain/table"
	"datalens/internal/errors"
)

// Reference names the theoretical distribution for Q-Q comparison
type Reference string

const (
	RefNormal   Reference = "normal"
	RefStudentT Reference = "student_t" // df = 10
	RefUniform  Reference = "uniform"
)

const (
	kdeGridSize  = 128
	studentTDF   = 10
	histogramMax = 30
)

// CurvePoint is one (x, y) sample of a computed curve
type CurvePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bin is one histogram bin with density-scaled height
type Bin struct {
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	Count   int     `json:"count"`
	Density float64 `json:"density"`
}

// FiveNumber is the box summary
type FiveNumber struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// QQPair pairs one theoretical quantile with the matching sample quantile
type QQPair struct {
	Theoretical float64 `json:"theoretical"`
	Sample      float64 `json:"sample"`
}

// Univariate holds every descriptor needed to render the three univariate
// views of one column.
type Univariate struct {
	Column    string       `json:"column"`
	N         int          `json:"n"`
	KDE       []CurvePoint `json:"kde"`
	Bandwidth float64      `json:"bandwidth"`
	Histogram []Bin        `json:"histogram"`
	Box       FiveNumber   `json:"box"`
	QQ        []QQPair     `json:"qq"`
	Reference Reference    `json:"reference"`
	Skewness  float64      `json:"skewness"`
	Kurtosis  float64      `json:"kurtosis"`
}

// Descriptors computes the univariate descriptors of one numeric column
// over its non-missing values.
func Descriptors(t *table.Table, column string, ref Reference) (*Univariate, error) {
	if !t.IsNumericColumn(column) {
		return nil, errors.ValidationError("column " + column + " is not numeric")
	}
	values, _, err := t.NumericValues(column)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, errors.ValidationError("column " + column + " has too few observations")
	}

	mean, _ := stats.Mean(values)
	std, _ := stats.StandardDeviationSample(values)

	u := &Univariate{
		Column:    column,
		N:         len(values),
		Reference: ref,
		Skewness:  sampleSkewness(values, mean, std),
		Kurtosis:  sampleKurtosis(values, mean, std),
	}

	u.Box = fiveNumber(values)
	u.Histogram = histogram(values)
	u.KDE, u.Bandwidth = kde(values, std)

	qq, err := qqPairs(values, mean, std, ref)
	if err != nil {
		return nil, err
	}
	u.QQ = qq
	return u, nil
}

func fiveNumber(values []float64) FiveNumber {
	min, _ := stats.Min(values)
	max, _ := stats.Max(values)
	median, _ := stats.Median(values)
	return FiveNumber{
		Min:    min,
		Q1:     interpolatedQuantile(values, 0.25),
		Median: median,
		Q3:     interpolatedQuantile(values, 0.75),
		Max:    max,
	}
}

// histogram bins the sample with the square-root rule, capped for very
// large samples, scaling heights to integrate to one.
func histogram(values []float64) []Bin {
	min, _ := stats.Min(values)
	max, _ := stats.Max(values)
	nBins := int(math.Ceil(math.Sqrt(float64(len(values)))))
	if nBins > histogramMax {
		nBins = histogramMax
	}
	if nBins < 1 || min == max {
		return []Bin{{Lower: min, Upper: max, Count: len(values), Density: 1}}
	}

	width := (max - min) / float64(nBins)
	bins := make([]Bin, nBins)
	for i := range bins {
		bins[i].Lower = min + float64(i)*width
		bins[i].Upper = bins[i].Lower + width
	}
	for _, v := range values {
		idx := int((v - min) / width)
		if idx >= nBins {
			idx = nBins - 1
		}
		bins[idx].Count++
	}
	total := float64(len(values))
	for i := range bins {
		bins[i].Density = float64(bins[i].Count) / (total * width)
	}
	return bins
}

// kde evaluates a gaussian kernel density estimate on an even grid spanning
// three bandwidths past the sample range. Bandwidth follows Silverman's
// rule of thumb.
func kde(values []float64, std float64) ([]CurvePoint, float64) {
	n := float64(len(values))
	iqr := interpolatedQuantile(values, 0.75) - interpolatedQuantile(values, 0.25)
	spread := std
	if iqr > 0 && iqr/1.34 < spread {
		spread = iqr / 1.34
	}
	if spread <= 0 {
		spread = 1
	}
	bw := 0.9 * spread * math.Pow(n, -0.2)

	min, _ := stats.Min(values)
	max, _ := stats.Max(values)
	lo := min - 3*bw
	hi := max + 3*bw
	step := (hi - lo) / float64(kdeGridSize-1)

	norm := distuv.Normal{Mu: 0, Sigma: 1}
	points := make([]CurvePoint, kdeGridSize)
	for i := range points {
		x := lo + float64(i)*step
		density := 0.0
		for _, v := range values {
			density += norm.Prob((x - v) / bw)
		}
		points[i] = CurvePoint{X: x, Y: density / (n * bw)}
	}
	return points, bw
}

// qqPairs matches sample order statistics against reference quantiles at
// plotting positions (i - 0.5)/n. The sample is standardized so all three
// references compare on their own natural scale.
func qqPairs(values []float64, mean, std float64, ref Reference) ([]QQPair, error) {
	quantile, err := referenceQuantile(ref)
	if err != nil {
		return nil, err
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	pairs := make([]QQPair, n)
	for i, v := range sorted {
		p := (float64(i) + 0.5) / float64(n)
		sample := v
		if std > 0 {
			sample = (v - mean) / std
		}
		pairs[i] = QQPair{Theoretical: quantile(p), Sample: sample}
	}
	return pairs, nil
}

func referenceQuantile(ref Reference) (func(float64) float64, error) {
	switch ref {
	case RefNormal:
		d := distuv.Normal{Mu: 0, Sigma: 1}
		return d.Quantile, nil
	case RefStudentT:
		d := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: studentTDF}
		return d.Quantile, nil
	case RefUniform:
		d := distuv.Uniform{Min: 0, Max: 1}
		return d.Quantile, nil
	default:
		return nil, errors.InvalidInput("unknown reference distribution: " + string(ref))
	}
}

// sampleSkewness computes the adjusted Fisher-Pearson coefficient
func sampleSkewness(values []float64, mean, std float64) float64 {
	if len(values) < 3 || std == 0 {
		return 0
	}
	n := float64(len(values))
	sum := 0.0
	for _, v := range values {
		d := (v - mean) / std
		sum += d * d * d
	}
	return (sum / n) * math.Sqrt(n*(n-1)) / (n - 2)
}

// sampleKurtosis computes excess kurtosis
func sampleKurtosis(values []float64, mean, std float64) float64 {
	if len(values) < 4 || std == 0 {
		return 0
	}
	n := float64(len(values))
	sum := 0.0
	for _, v := range values {
		d := (v - mean) / std
		sum += d * d * d * d
	}
	return sum/n - 3
}

func interpolatedQuantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
