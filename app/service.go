// Package app wires the table store, workflow machine, and analysis
// engines into the step-gated session service the UI talks to.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"datalens/adapters/stats/correlation"
	"datalens/adapters/stats/distribution"
	"datalens/adapters/stats/outliers"
	"datalens/adapters/stats/regression"
	"datalens/adapters/stats/summary"
	"datalens/domain/core"
	"datalens/domain/table"
	"datalens/domain/workflow"
	"datalens/internal"
	"datalens/internal/config"
	"datalens/internal/errors"
	"datalens/internal/quality"
	"datalens/internal/store"
	"datalens/ports"
)

// Service owns one analysis session: a single mutable table behind a
// version-bumping store, a forward-only workflow machine, and the analysis
// engines. Operations are serialized by a busy gate; a second operation
// arriving while one is in flight is refused, never queued.
type Service struct {
	ID        core.SessionID
	CreatedAt core.Timestamp

	log        *internal.Logger
	cfg        *config.Config
	store      *store.Store
	machine    *workflow.Machine
	ingestion  ports.IngestionPort
	reporter   ports.ReporterPort
	renderer   ports.RendererPort
	detector   *outliers.Detector
	correlator *correlation.Engine

	busy atomic.Bool

	mu           sync.Mutex // guards the selection fields below
	method       table.OutlierMethod
	dependent    string
	independents []string
	dataset      *DatasetMeta
}

// DatasetMeta describes the upload a session is working on, captured at
// ingest time. Row/column counts reflect the upload, not later mutations.
type DatasetMeta struct {
	ID          core.DatasetID `json:"id"`
	LoadedAt    core.Timestamp `json:"loaded_at"`
	Rows        int            `json:"rows"`
	Columns     int            `json:"columns"`
	MissingRate float64        `json:"missing_rate"`
}

// NewService creates a session at the initial workflow step
func NewService(cfg *config.Config, ingestion ports.IngestionPort, reporter ports.ReporterPort, opts ...Option) *Service {
	s := &Service{
		ID:         core.SessionID(core.NewID()),
		CreatedAt:  core.Now(),
		log:        internal.DefaultLogger,
		cfg:        cfg,
		store:      store.New(),
		machine:    workflow.NewMachine(),
		ingestion:  ingestion,
		reporter:   reporter,
		detector:   outliers.NewDetector(cfg.Ops.MaxParallel),
		correlator: correlation.NewEngine(cfg.Ops.MaxParallel),
		method:     table.MethodIQR,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option customizes a session service
type Option func(*Service)

// WithRenderer attaches the optional external rendering collaborator
func WithRenderer(r ports.RendererPort) Option {
	return func(s *Service) { s.renderer = r }
}

// WithLogger replaces the default logger
func WithLogger(l *internal.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Step returns the current workflow step
func (s *Service) Step() workflow.Step {
	return s.machine.Current()
}

// Version returns the current table version
func (s *Service) Version() table.Version {
	return s.store.Version()
}

// Dataset returns the upload metadata, or nil before a load succeeds
func (s *Service) Dataset() *DatasetMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

// begin claims the busy gate; operations arriving while another is in
// flight are refused so the UI can tell the user to wait.
func (s *Service) begin() error {
	if !s.busy.CompareAndSwap(false, true) {
		return errors.Busy()
	}
	return nil
}

func (s *Service) end() {
	s.busy.Store(false)
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.Ops.Timeout)
}

// LoadDataset parses an upload and installs it as the session table. A
// parse failure keeps the workflow at the upload step so the user can
// retry; success moves on to variable selection.
func (s *Service) LoadDataset(ctx context.Context, data []byte, hint ports.FormatHint) ([]table.ColumnSummary, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	if s.machine.Current() == workflow.StepInit {
		if err := s.machine.Advance(workflow.StepUpload); err != nil {
			return nil, errors.WithCode(errors.CodeValidationError, err)
		}
	}
	if s.machine.Current() != workflow.StepUpload {
		return nil, errors.ValidationError("dataset is already loaded for this session")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	start := time.Now()
	t, err := s.ingestion.Load(ctx, data, hint)
	if err != nil {
		s.log.Warn("[Workflow] upload failed: %v", err)
		return nil, err
	}
	version := s.store.Replace(t)
	if err := s.machine.Advance(workflow.StepVariableSelection); err != nil {
		return nil, errors.WithCode(errors.CodeValidationError, err)
	}

	s.mu.Lock()
	s.dataset = &DatasetMeta{
		ID:          core.DatasetID(core.NewID()),
		LoadedAt:    core.Now(),
		Rows:        t.RowCount(),
		Columns:     t.ColumnCount(),
		MissingRate: t.MissingRate(),
	}
	s.mu.Unlock()

	s.log.Info("[Workflow] dataset loaded: %d columns, %d rows, %.1f%% missing (v%d, %.1fms)",
		t.ColumnCount(), t.RowCount(), t.MissingRate()*100, version,
		float64(time.Since(start).Microseconds())/1000)
	return summary.Summarize(t), nil
}

// Summaries recomputes column summaries from the current table state
func (s *Service) Summaries() ([]table.ColumnSummary, error) {
	var result []table.ColumnSummary
	err := s.store.View(func(t *table.Table) error {
		result = summary.Summarize(t)
		return nil
	})
	return result, err
}

// NumericColumns lists columns eligible for variable selection
func (s *Service) NumericColumns() ([]string, error) {
	var result []string
	err := s.store.View(func(t *table.Table) error {
		result = summary.NumericColumns(t)
		return nil
	})
	return result, err
}

// SelectVariables fixes exactly one dependent and at least one independent
// variable, all numeric, and projects the table to exactly that column set.
func (s *Service) SelectVariables(ctx context.Context, dependent string, independents []string) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	if s.machine.Current() != workflow.StepVariableSelection {
		return errors.ValidationError("variable selection is not the current step")
	}
	if dependent == "" {
		return errors.ValidationError("a dependent variable is required")
	}
	if len(independents) == 0 {
		return errors.ValidationError("at least one independent variable is required")
	}

	selected := append([]string{dependent}, independents...)
	seen := make(map[string]bool, len(selected))
	err := s.store.View(func(t *table.Table) error {
		for _, name := range selected {
			if seen[name] {
				return errors.ValidationError("variable " + name + " selected twice")
			}
			seen[name] = true
			if !t.HasColumn(name) {
				return errors.ValidationError("unknown column: " + name)
			}
			if !t.IsNumericColumn(name) {
				return errors.ValidationError("column " + name + " is not numeric")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	version, err := s.store.Project(ctx, selected)
	if err != nil {
		return err
	}
	if err := s.machine.Advance(workflow.StepQuality); err != nil {
		return errors.WithCode(errors.CodeValidationError, err)
	}

	s.mu.Lock()
	s.dependent = dependent
	s.independents = append([]string(nil), independents...)
	s.mu.Unlock()

	s.log.Info("[Workflow] variables selected: %s ~ %v (v%d)", dependent, independents, version)
	return nil
}

// Issues scans the current table for missing-value issues
func (s *Service) Issues() ([]table.DataIssue, error) {
	if err := s.machine.Require(workflow.StepQuality); err != nil {
		return nil, errors.WithCode(errors.CodeValidationError, err)
	}
	var issues []table.DataIssue
	err := s.store.ViewVersioned(func(t *table.Table, v table.Version) error {
		issues = quality.FindIssues(t, v)
		return nil
	})
	return issues, err
}

// Remediate applies a bulk missing-value fix at the quality step
func (s *Service) Remediate(ctx context.Context, action table.RemediationAction, targetColumns []string) (table.Version, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.end()

	if s.machine.Current() != workflow.StepQuality {
		return 0, errors.ValidationError("remediation is only available at the quality step")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	version, err := s.store.Mutate(ctx, "remediate", func(t *table.Table) (*table.Table, error) {
		return quality.Remediate(t, action, targetColumns)
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("[Workflow] remediation %s applied (v%d)", action, version)
	return version, nil
}

// EditCell writes a manually corrected numeric value into one cell. A
// non-numeric input is reported as a distinguishable failure and leaves the
// table unchanged.
func (s *Service) EditCell(ctx context.Context, row int, column string, rawText string) (table.Version, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.end()

	if s.machine.Current() != workflow.StepQuality {
		return 0, errors.ValidationError("cell edits are only available at the quality step")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.store.Mutate(ctx, "edit_cell", func(t *table.Table) (*table.Table, error) {
		return quality.EditCell(t, row, column, rawText)
	})
}

// Advance moves the workflow forward one step. Only steps without an
// entry precondition are reachable here: quality to outliers and the
// analysis steps beyond it. Upload, variable selection, and quality are
// entered exclusively through LoadDataset and SelectVariables, which
// establish the table and projection those steps depend on.
func (s *Service) Advance(next workflow.Step) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	if next < workflow.StepOutliers {
		return errors.ValidationError("step " + next.String() + " is entered through its own operation")
	}
	if err := s.machine.Advance(next); err != nil {
		return errors.WithCode(errors.CodeValidationError, err)
	}
	s.log.Debug("[Workflow] advanced to %s", next)
	return nil
}

// SetOutlierMethod selects the detection rule for subsequent detect and
// treat calls. Changing the method invalidates prior records by contract;
// detection is recomputed, never reused across methods.
func (s *Service) SetOutlierMethod(method table.OutlierMethod) error {
	switch method {
	case table.MethodIQR, table.MethodZScore, table.MethodModifiedZ:
	default:
		return errors.InvalidInput("unknown outlier method: " + string(method))
	}
	s.mu.Lock()
	s.method = method
	s.mu.Unlock()
	return nil
}

// OutlierMethod returns the currently selected method
func (s *Service) OutlierMethod() table.OutlierMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method
}

// DetectOutliers runs detection across all numeric columns under the
// session's method, against the current table state.
func (s *Service) DetectOutliers(ctx context.Context) (map[string]table.OutlierRecord, error) {
	if err := s.machine.Require(workflow.StepOutliers); err != nil {
		return nil, errors.WithCode(errors.CodeValidationError, err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var records map[string]table.OutlierRecord
	err := s.store.ViewVersioned(func(t *table.Table, v table.Version) error {
		var err error
		records, err = s.detector.Detect(ctx, t, s.OutlierMethod(), v)
		return err
	})
	return records, err
}

// TreatOutliers applies one treatment to one column. Membership is
// recomputed fresh inside the treatment; any records the caller holds are
// stale the moment this publishes.
func (s *Service) TreatOutliers(ctx context.Context, column string, action table.TreatmentAction) (table.Version, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.end()

	if s.machine.Current() != workflow.StepOutliers {
		return 0, errors.ValidationError("outlier treatment is only available at the outliers step")
	}

	method := s.OutlierMethod()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	version, err := s.store.Mutate(ctx, "treat_outliers", func(t *table.Table) (*table.Table, error) {
		return outliers.Treat(t, column, action, method)
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("[Workflow] outlier treatment %s applied to %s under %s (v%d)", action, column, method, version)
	return version, nil
}

// UnivariateDescriptors computes distribution descriptors for one column
func (s *Service) UnivariateDescriptors(column string, ref distribution.Reference) (*distribution.Univariate, error) {
	if err := s.machine.Require(workflow.StepUnivariate); err != nil {
		return nil, errors.WithCode(errors.CodeValidationError, err)
	}
	var result *distribution.Univariate
	err := s.store.View(func(t *table.Table) error {
		var err error
		result, err = distribution.Descriptors(t, column, ref)
		return err
	})
	return result, err
}

// BivariateDescriptors computes fit-curve descriptors for one column pair
func (s *Service) BivariateDescriptors(x, y string, opts regression.Options) (*regression.Bivariate, error) {
	if err := s.machine.Require(workflow.StepBivariate); err != nil {
		return nil, errors.WithCode(errors.CodeValidationError, err)
	}
	var result *regression.Bivariate
	err := s.store.View(func(t *table.Table) error {
		var err error
		result, err = regression.Descriptors(t, x, y, opts)
		return err
	})
	return result, err
}

// Correlate computes the correlation rows of every independent variable
// against the dependent variable, over the current table state.
func (s *Service) Correlate(ctx context.Context) ([]table.CorrelationRow, error) {
	if err := s.machine.Require(workflow.StepCorrelation); err != nil {
		return nil, errors.WithCode(errors.CodeValidationError, err)
	}

	s.mu.Lock()
	dependent := s.dependent
	independents := append([]string(nil), s.independents...)
	s.mu.Unlock()

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []table.CorrelationRow
	err := s.store.View(func(t *table.Table) error {
		var err error
		rows, err = s.correlator.Correlate(ctx, t, dependent, independents)
		return err
	})
	return rows, err
}

// ExportReport recomputes the correlation set and hands it to the report
// collaborator.
func (s *Service) ExportReport(ctx context.Context) (*ports.ReportDocument, error) {
	rows, err := s.Correlate(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	dependent := s.dependent
	s.mu.Unlock()

	return s.reporter.CorrelationReport(ctx, ports.ReportRequest{
		Title:        "Correlation Analysis",
		DependentVar: dependent,
		Rows:         rows,
	})
}

// RenderFigure forwards a figure to the external renderer, when configured
func (s *Service) RenderFigure(ctx context.Context, spec ports.FigureSpec) (ports.ImagePair, error) {
	if s.renderer == nil {
		return ports.ImagePair{}, errors.ValidationError("no renderer configured")
	}
	return s.renderer.Render(ctx, spec)
}
