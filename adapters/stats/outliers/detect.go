// Package outliers implements per-column outlier detection and treatment.
// Detection always runs against the current table state; flagged row
// indices are never valid beyond the version they were computed at, so
// treatment recomputes membership fresh instead of trusting caller-held
// records.
package outliers

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/semaphore"

	"datalens/domain/table"
	"datalens/internal/errors"
)

const (
	iqrFence          = 1.5
	zThreshold        = 3.0
	modifiedZConstant = 0.6745
	modifiedZCutoff   = 3.5
)

// Detector runs detection across the numeric columns of a table, bounded
// by a weighted semaphore so wide tables do not fan out unboundedly.
type Detector struct {
	sem *semaphore.Weighted
}

// NewDetector creates a detector allowing maxParallel concurrent columns
func NewDetector(maxParallel int) *Detector {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Detector{sem: semaphore.NewWeighted(int64(maxParallel))}
}

// Detect computes an OutlierRecord per numeric column under the given
// method. Columns with zero flagged values are omitted. Columns are
// independent read-only queries and run concurrently.
func (d *Detector) Detect(ctx context.Context, t *table.Table, method table.OutlierMethod, version table.Version) (map[string]table.OutlierRecord, error) {
	if _, ok := detectors[method]; !ok {
		return nil, errors.InvalidInput("unknown outlier method: " + string(method))
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records = make(map[string]table.OutlierRecord)
	)
	for _, name := range t.ColumnNames() {
		if !t.IsNumericColumn(name) {
			continue
		}
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Timeout("outlier detection")
		}
		wg.Add(1)
		go func(column string) {
			defer wg.Done()
			defer d.sem.Release(1)
			record, flagged := DetectColumn(t, column, method, version)
			if !flagged {
				return
			}
			mu.Lock()
			records[column] = record
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return records, nil
}

// DetectColumn runs detection for a single numeric column. The boolean is
// false when nothing was flagged (including degenerate-spread columns).
func DetectColumn(t *table.Table, column string, method table.OutlierMethod, version table.Version) (table.OutlierRecord, bool) {
	values, rows, err := t.NumericValues(column)
	if err != nil || len(values) == 0 {
		return table.OutlierRecord{}, false
	}

	fn := detectors[method]
	if fn == nil {
		return table.OutlierRecord{}, false
	}
	flagged, lower, upper := fn(values)
	if len(flagged) == 0 {
		return table.OutlierRecord{}, false
	}

	record := table.OutlierRecord{
		Column:  column,
		Method:  method,
		Count:   len(flagged),
		Rows:    make([]int, 0, len(flagged)),
		Values:  make([]float64, 0, len(flagged)),
		Lower:   lower,
		Upper:   upper,
		Version: version,
	}
	for _, i := range flagged {
		record.Rows = append(record.Rows, rows[i])
		record.Values = append(record.Values, values[i])
	}
	return record, true
}

// detectFunc flags positions within the value slice and may report the
// method's bounds (IQR only; score-based methods have no natural bound).
type detectFunc func(values []float64) (flagged []int, lower, upper *float64)

var detectors = map[table.OutlierMethod]detectFunc{
	table.MethodIQR:       detectIQR,
	table.MethodZScore:    detectZScore,
	table.MethodModifiedZ: detectModifiedZ,
}

// detectIQR flags values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR] with
// quartiles computed by linear interpolation.
func detectIQR(values []float64) ([]int, *float64, *float64) {
	q1 := interpolatedQuantile(values, 0.25)
	q3 := interpolatedQuantile(values, 0.75)
	iqr := q3 - q1
	lower := q1 - iqrFence*iqr
	upper := q3 + iqrFence*iqr

	var flagged []int
	for i, v := range values {
		if v < lower || v > upper {
			flagged = append(flagged, i)
		}
	}
	return flagged, &lower, &upper
}

// detectZScore flags |z| > 3 under the sample mean and standard deviation
func detectZScore(values []float64) ([]int, *float64, *float64) {
	mean, _ := stats.Mean(values)
	std, err := stats.StandardDeviationSample(values)
	if err != nil || std == 0 {
		return nil, nil, nil
	}

	var flagged []int
	for i, v := range values {
		if math.Abs((v-mean)/std) > zThreshold {
			flagged = append(flagged, i)
		}
	}
	return flagged, nil, nil
}

// detectModifiedZ flags |0.6745*(x-median)/MAD| > 3.5. A zero MAD means the
// column has degenerate spread and nothing is flagged.
func detectModifiedZ(values []float64) ([]int, *float64, *float64) {
	median, _ := stats.Median(values)
	mad, err := stats.MedianAbsoluteDeviation(values)
	if err != nil || mad == 0 {
		return nil, nil, nil
	}

	var flagged []int
	for i, v := range values {
		if math.Abs(modifiedZConstant*(v-median)/mad) > modifiedZCutoff {
			flagged = append(flagged, i)
		}
	}
	return flagged, nil, nil
}

// interpolatedQuantile computes quantile q in [0,1] by linear interpolation
// between closest ranks.
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
