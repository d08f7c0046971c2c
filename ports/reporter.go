package ports

import (
	"context"

	"datalens/domain/core"
	"datalens/domain/table"
)

// ReportRequest carries everything the report collaborator needs: the
// dependent variable and one correlation row per independent variable.
type ReportRequest struct {
	Title        string
	DependentVar string
	Rows         []table.CorrelationRow
}

// ReportDocument is an opaque rendered document for download
type ReportDocument struct {
	ID          core.ReportID
	GeneratedAt core.Timestamp
	Filename    string
	ContentType string
	Data        []byte
}

// ReporterPort produces a downloadable correlation report. The engine
// supplies only the correlation result set.
type ReporterPort interface {
	CorrelationReport(ctx context.Context, req ReportRequest) (*ReportDocument, error)
}
