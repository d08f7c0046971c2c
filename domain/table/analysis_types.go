package table

// ColumnType classifies a column for analysis purposes
type ColumnType string

const (
	TypeNumeric    ColumnType = "numeric"
	TypeNonNumeric ColumnType = "non_numeric"
)

// ColumnSummary describes one column of the current table. Numeric
// statistics are pointers so an all-missing column reports them as absent
// rather than zero. Summaries are derived values, recomputed on demand and
// never cached across mutations.
type ColumnSummary struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	MissingCount int        `json:"missing_count"`
	PresentCount int        `json:"present_count"`
	Mean         *float64   `json:"mean,omitempty"`
	StdDev       *float64   `json:"std_dev,omitempty"`
	Min          *float64   `json:"min,omitempty"`
	Max          *float64   `json:"max,omitempty"`
	Median       *float64   `json:"median,omitempty"`
}

// IssueKind categorizes a data quality issue
type IssueKind string

const (
	IssueMissing IssueKind = "missing"
)

// DataIssue locates a single quality problem in the current table. Issues
// always reflect the table state at the version they were scanned from.
type DataIssue struct {
	Row     int       `json:"row"`
	Column  string    `json:"column"`
	Kind    IssueKind `json:"kind"`
	Version Version   `json:"version"`
}

// RemediationAction is a bulk quality fix applied across columns
type RemediationAction string

const (
	RemediateDelete       RemediationAction = "delete"
	RemediateImputeMean   RemediationAction = "impute_mean"
	RemediateImputeMedian RemediationAction = "impute_median"
	RemediateImputeMode   RemediationAction = "impute_mode"
)

// OutlierMethod selects the per-column outlier detection rule
type OutlierMethod string

const (
	MethodIQR       OutlierMethod = "iqr"
	MethodZScore    OutlierMethod = "z_score"
	MethodModifiedZ OutlierMethod = "modified_z"
)

// OutlierRecord holds the flagged observations of one numeric column under
// one method. Row indices are only valid against the version the record was
// computed at; treatments recompute membership rather than trust a caller's
// record.
type OutlierRecord struct {
	Column  string        `json:"column"`
	Method  OutlierMethod `json:"method"`
	Count   int           `json:"count"`
	Rows    []int         `json:"rows"`
	Values  []float64     `json:"values"`
	Lower   *float64      `json:"lower,omitempty"`
	Upper   *float64      `json:"upper,omitempty"`
	Version Version       `json:"version"`
}

// TreatmentAction is a per-column outlier treatment
type TreatmentAction string

const (
	TreatIgnore       TreatmentAction = "ignore"
	TreatDelete       TreatmentAction = "delete"
	TreatWinsorize    TreatmentAction = "winsorize"
	TreatImputeMean   TreatmentAction = "impute_mean"
	TreatImputeMedian TreatmentAction = "impute_median"
	TreatLog          TreatmentAction = "log"
	TreatSqrt         TreatmentAction = "sqrt"
)

// CorrelationStat is one coefficient with its significance
type CorrelationStat struct {
	R float64 `json:"r"`
	P float64 `json:"p"`
}

// ConfidenceInterval is a two-sided interval on the correlation scale
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// CorrelationRow holds the association of one independent variable with the
// dependent variable under all three methods. N is the pairwise-complete
// sample size and may differ across rows.
type CorrelationRow struct {
	Variable  string             `json:"variable"`
	N         int                `json:"n"`
	Pearson   CorrelationStat    `json:"pearson"`
	PearsonCI ConfidenceInterval `json:"pearson_ci"`
	Spearman  CorrelationStat    `json:"spearman"`
	Kendall   CorrelationStat    `json:"kendall"`
	Strength  string             `json:"strength"`
}
