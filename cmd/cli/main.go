// Command cli runs the analysis engines headless against a local CSV or
// Excel file, for scripting and quick inspection without the web UI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"datalens/adapters/ingest"
	"datalens/adapters/stats/correlation"
	"datalens/adapters/stats/outliers"
	"datalens/adapters/stats/summary"
	"datalens/domain/table"
	"datalens/internal/config"
	"datalens/ports"
)

var (
	filePath string
	sheet    string
)

func main() {
	root := &cobra.Command{
		Use:   "datalens",
		Short: "Headless tabular analysis",
	}
	root.PersistentFlags().StringVarP(&filePath, "file", "f", "", "path to a CSV or Excel file")
	root.PersistentFlags().StringVar(&sheet, "sheet", "Sheet1", "Excel worksheet name")
	_ = root.MarkPersistentFlagRequired("file")

	root.AddCommand(summaryCmd(), outliersCmd(), correlateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadTable() (*table.Table, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	hint := ports.FormatExcel
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		hint = ports.FormatCSV
	}
	return ingest.NewReader(sheet).Load(context.Background(), data, hint)
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print per-column summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTable()
			if err != nil {
				return err
			}
			return printJSON(summary.Summarize(t))
		},
	}
}

func outliersCmd() *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "outliers",
		Short: "Detect per-column outliers",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTable()
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			detector := outliers.NewDetector(cfg.Ops.MaxParallel)
			records, err := detector.Detect(context.Background(), t, table.OutlierMethod(method), 1)
			if err != nil {
				return err
			}
			return printJSON(records)
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", string(table.MethodIQR), "iqr, z_score, or modified_z")
	return cmd
}

func correlateCmd() *cobra.Command {
	var dependent string
	var independents []string
	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Correlate independent variables against a dependent variable",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTable()
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(independents) == 0 {
				for _, name := range summary.NumericColumns(t) {
					if name != dependent {
						independents = append(independents, name)
					}
				}
			}
			engine := correlation.NewEngine(cfg.Ops.MaxParallel)
			rows, err := engine.Correlate(context.Background(), t, dependent, independents)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
	cmd.Flags().StringVarP(&dependent, "dependent", "d", "", "dependent variable")
	cmd.Flags().StringSliceVarP(&independents, "independent", "i", nil, "independent variables (default: all other numeric columns)")
	_ = cmd.MarkFlagRequired("dependent")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
