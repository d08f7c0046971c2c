package ports

import (
	"context"

	"datalens/domain/table"
)

// FormatHint names the upload format the caller believes it sent
type FormatHint string

const (
	FormatCSV   FormatHint = "csv"
	FormatExcel FormatHint = "excel"
)

// IngestionPort turns raw uploaded bytes into a table. The engine never
// parses files itself; a failed parse is fatal to the upload step but
// retryable by re-uploading.
type IngestionPort interface {
	Load(ctx context.Context, data []byte, hint FormatHint) (*table.Table, error)
}
