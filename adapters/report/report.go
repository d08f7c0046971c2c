// Package report renders a correlation result set into a downloadable
// document: a title section listing the analyzed variables followed by one
// section per correlation method.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"datalens/domain/core"
	"datalens/domain/table"
	"datalens/internal/errors"
	"datalens/ports"
)

// Builder implements ports.ReporterPort by composing a markdown document
// and rendering it to HTML bytes.
type Builder struct{}

// NewBuilder creates a report builder
func NewBuilder() *Builder {
	return &Builder{}
}

// CorrelationReport builds the document for one correlation result set
func (b *Builder) CorrelationReport(ctx context.Context, req ports.ReportRequest) (*ports.ReportDocument, error) {
	if len(req.Rows) == 0 {
		return nil, errors.ValidationError("no correlation results to report")
	}

	var doc strings.Builder
	title := req.Title
	if title == "" {
		title = "Correlation Analysis"
	}
	fmt.Fprintf(&doc, "# %s\n\n", title)
	fmt.Fprintf(&doc, "Generated %s\n\n", time.Now().Format("2006-01-02 15:04"))
	fmt.Fprintf(&doc, "**Dependent variable:** %s\n\n", req.DependentVar)
	doc.WriteString("**Independent variables:**\n\n")
	for _, row := range req.Rows {
		fmt.Fprintf(&doc, "- %s (n=%d)\n", row.Variable, row.N)
	}
	doc.WriteString("\n")

	writePearsonSection(&doc, req.Rows)
	writeRankSection(&doc, "Spearman Rank Correlation", req.Rows, func(r table.CorrelationRow) table.CorrelationStat {
		return r.Spearman
	})
	writeRankSection(&doc, "Kendall Tau Correlation", req.Rows, func(r table.CorrelationRow) table.CorrelationStat {
		return r.Kendall
	})

	p := parser.NewWithExtensions(parser.CommonExtensions)
	html := markdown.ToHTML([]byte(doc.String()), p, nil)

	return &ports.ReportDocument{
		ID:          core.ReportID(core.NewID()),
		GeneratedAt: core.Now(),
		Filename:    "correlation_report.html",
		ContentType: "text/html; charset=utf-8",
		Data:        html,
	}, nil
}

func writePearsonSection(doc *strings.Builder, rows []table.CorrelationRow) {
	doc.WriteString("## Pearson Correlation\n\n")
	doc.WriteString("| Variable | n | r | p | 95% CI | Strength |\n")
	doc.WriteString("|---|---|---|---|---|---|\n")
	for _, row := range rows {
		fmt.Fprintf(doc, "| %s | %d | %.4f | %s | [%.4f, %.4f] | %s |\n",
			row.Variable, row.N, row.Pearson.R, formatP(row.Pearson.P),
			row.PearsonCI.Lower, row.PearsonCI.Upper, row.Strength)
	}
	doc.WriteString("\n")
}

func writeRankSection(doc *strings.Builder, heading string, rows []table.CorrelationRow, pick func(table.CorrelationRow) table.CorrelationStat) {
	fmt.Fprintf(doc, "## %s\n\n", heading)
	doc.WriteString("| Variable | n | coefficient | p |\n")
	doc.WriteString("|---|---|---|---|\n")
	for _, row := range rows {
		s := pick(row)
		fmt.Fprintf(doc, "| %s | %d | %.4f | %s |\n", row.Variable, row.N, s.R, formatP(s.P))
	}
	doc.WriteString("\n")
}

func formatP(p float64) string {
	if p < 0.001 {
		return "<0.001"
	}
	return fmt.Sprintf("%.4f", p)
}
