package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalens/adapters/ingest"
	"datalens/adapters/report"
	"datalens/adapters/stats/distribution"
	"datalens/adapters/stats/regression"
	"datalens/domain/table"
	"datalens/domain/workflow"
	"datalens/internal/config"
	"datalens/internal/errors"
	"datalens/ports"
)

func testConfig() *config.Config {
	return &config.Config{
		Ops: config.OpsConfig{
			Timeout:     5 * time.Second,
			MaxParallel: 2,
		},
	}
}

func newTestService() *Service {
	return NewService(testConfig(), ingest.NewReader(""), report.NewBuilder())
}

// csvWithOutlier has a perfectly linear A~B relation once the outlier row
// is removed, plus a non-numeric column the engine must classify and
// exclude from selection.
const csvWithOutlier = `A,B,C
1,2,red
2,4,blue
3,6,red
4,8,blue
100,10,green
`

func loadAndSelect(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	_, err := s.LoadDataset(ctx, []byte(csvWithOutlier), ports.FormatCSV)
	require.NoError(t, err)
	require.NoError(t, s.SelectVariables(ctx, "B", []string{"A"}))
}

func TestService_FullWorkflow(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	summaries, err := s.LoadDataset(ctx, []byte(csvWithOutlier), ports.FormatCSV)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, workflow.StepVariableSelection, s.Step())

	types := make(map[string]table.ColumnType, len(summaries))
	for _, sum := range summaries {
		types[sum.Name] = sum.Type
	}
	assert.Equal(t, table.TypeNumeric, types["A"])
	assert.Equal(t, table.TypeNonNumeric, types["C"])

	meta := s.Dataset()
	require.NotNil(t, meta)
	assert.Equal(t, 5, meta.Rows)
	assert.Equal(t, 3, meta.Columns)
	assert.False(t, meta.ID.String() == "")

	require.NoError(t, s.SelectVariables(ctx, "B", []string{"A"}))
	assert.Equal(t, workflow.StepQuality, s.Step())

	// projection dropped the non-numeric column
	names, err := s.NumericColumns()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, names)

	issues, err := s.Issues()
	require.NoError(t, err)
	assert.Empty(t, issues)

	require.NoError(t, s.Advance(workflow.StepOutliers))

	records, err := s.DetectOutliers(ctx)
	require.NoError(t, err)
	require.Contains(t, records, "A")
	assert.Equal(t, []int{4}, records["A"].Rows)
	assert.NotContains(t, records, "B")

	before := s.Version()
	_, err = s.TreatOutliers(ctx, "A", table.TreatDelete)
	require.NoError(t, err)
	assert.Greater(t, s.Version(), before)

	// the treated table has no outliers left under the same method
	records, err = s.DetectOutliers(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, s.Advance(workflow.StepUnivariate))
	u, err := s.UnivariateDescriptors("A", distribution.RefNormal)
	require.NoError(t, err)
	assert.Equal(t, 4, u.N)

	require.NoError(t, s.Advance(workflow.StepBivariate))
	b, err := s.BivariateDescriptors("A", "B", regression.Options{Line: true})
	require.NoError(t, err)
	require.NotNil(t, b.Line)
	assert.InDelta(t, 2.0, b.Line.Slope, 1e-9)

	require.NoError(t, s.Advance(workflow.StepCorrelation))
	rows, err := s.Correlate(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].Variable)
	assert.InDelta(t, 1.0, rows[0].Pearson.R, 1e-9)
	assert.Less(t, rows[0].Pearson.P, 0.001)
	assert.Equal(t, "strong", rows[0].Strength)

	doc, err := s.ExportReport(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Data), "Pearson Correlation")
	assert.True(t, strings.Contains(string(doc.Data), "B"))
}

func TestService_StepGates(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	// nothing past upload is reachable on a fresh session
	_, err := s.Issues()
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))

	_, err = s.DetectOutliers(ctx)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))

	_, err = s.Correlate(ctx)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))

	err = s.SelectVariables(ctx, "B", []string{"A"})
	require.Error(t, err)

	// skipping steps is refused and leaves the machine where it was
	err = s.Advance(workflow.StepCorrelation)
	require.Error(t, err)
	assert.Equal(t, workflow.StepInit, s.Step())
}

func TestService_AdvanceCannotBypassVariableSelection(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	_, err := s.LoadDataset(ctx, []byte(csvWithOutlier), ports.FormatCSV)
	require.NoError(t, err)

	// quality is only entered through SelectVariables; the generic
	// advance must refuse it so no analysis runs on an unprojected table
	err = s.Advance(workflow.StepQuality)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
	assert.Equal(t, workflow.StepVariableSelection, s.Step())

	_, err = s.Issues()
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))

	// the same guard covers the steps below quality on a fresh session
	fresh := newTestService()
	err = fresh.Advance(workflow.StepUpload)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
	assert.Equal(t, workflow.StepInit, fresh.Step())

	// the dedicated operation still moves forward
	require.NoError(t, s.SelectVariables(ctx, "B", []string{"A"}))
	assert.Equal(t, workflow.StepQuality, s.Step())
}

func TestService_UploadFailureKeepsUploadStep(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	_, err := s.LoadDataset(ctx, []byte("header,only\n"), ports.FormatCSV)
	require.Error(t, err)
	assert.Equal(t, errors.CodeParseError, errors.GetCode(err))
	assert.Equal(t, workflow.StepUpload, s.Step())

	// retry succeeds from the same step
	_, err = s.LoadDataset(ctx, []byte(csvWithOutlier), ports.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepVariableSelection, s.Step())
}

func TestService_SecondUploadRefused(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	_, err := s.LoadDataset(ctx, []byte(csvWithOutlier), ports.FormatCSV)
	require.NoError(t, err)
	_, err = s.LoadDataset(ctx, []byte(csvWithOutlier), ports.FormatCSV)
	require.Error(t, err)
}

func TestService_SelectVariablesValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	_, err := s.LoadDataset(ctx, []byte(csvWithOutlier), ports.FormatCSV)
	require.NoError(t, err)

	assert.Error(t, s.SelectVariables(ctx, "", []string{"A"}))
	assert.Error(t, s.SelectVariables(ctx, "B", nil))
	assert.Error(t, s.SelectVariables(ctx, "B", []string{"B"}))
	assert.Error(t, s.SelectVariables(ctx, "B", []string{"nope"}))
	assert.Error(t, s.SelectVariables(ctx, "C", []string{"A"}))

	// still at variable selection after every refused attempt
	assert.Equal(t, workflow.StepVariableSelection, s.Step())
	require.NoError(t, s.SelectVariables(ctx, "B", []string{"A"}))
}

func TestService_RemediationWorkflow(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	csv := "A,B\n1,2\n,4\n3,6\n4,8\n"
	_, err := s.LoadDataset(ctx, []byte(csv), ports.FormatCSV)
	require.NoError(t, err)
	require.NoError(t, s.SelectVariables(ctx, "B", []string{"A"}))

	issues, err := s.Issues()
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].Row)
	assert.Equal(t, "A", issues[0].Column)

	before := s.Version()
	version, err := s.Remediate(ctx, table.RemediateDelete, nil)
	require.NoError(t, err)
	assert.Greater(t, version, before)

	issues, err = s.Issues()
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestService_EditCellInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	loadAndSelect(t, s)

	before := s.Version()
	_, err := s.EditCell(ctx, 0, "A", "banana")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidNumericInput, errors.GetCode(err))
	assert.Equal(t, before, s.Version())

	version, err := s.EditCell(ctx, 0, "A", "1.5")
	require.NoError(t, err)
	assert.Greater(t, version, before)
}

func TestService_OutlierMethodSelection(t *testing.T) {
	s := newTestService()
	assert.Equal(t, table.MethodIQR, s.OutlierMethod())

	require.NoError(t, s.SetOutlierMethod(table.MethodModifiedZ))
	assert.Equal(t, table.MethodModifiedZ, s.OutlierMethod())

	assert.Error(t, s.SetOutlierMethod(table.OutlierMethod("mahalanobis")))
	assert.Equal(t, table.MethodModifiedZ, s.OutlierMethod())
}

func TestService_BusyGate(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	// occupy the gate directly and verify a competing operation is refused,
	// not queued
	require.NoError(t, s.begin())
	_, err := s.LoadDataset(ctx, []byte(csvWithOutlier), ports.FormatCSV)
	require.Error(t, err)
	assert.Equal(t, errors.CodeBusy, errors.GetCode(err))
	s.end()

	_, err = s.LoadDataset(ctx, []byte(csvWithOutlier), ports.FormatCSV)
	require.NoError(t, err)
}

func TestService_RenderFigureWithoutRenderer(t *testing.T) {
	s := newTestService()
	_, err := s.RenderFigure(context.Background(), ports.FigureSpec{})
	require.Error(t, err)
}
