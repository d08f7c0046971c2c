// Command api is a stateless one-shot analysis endpoint: it accepts a
// dataset upload plus a variable selection and returns summaries, outlier
// records, and correlation rows in a single response, without the stepped
// session workflow the UI uses.
package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"datalens/adapters/ingest"
	"datalens/adapters/stats/correlation"
	"datalens/adapters/stats/outliers"
	"datalens/adapters/stats/summary"
	"datalens/domain/table"
	"datalens/internal/config"
	"datalens/ports"
)

type analyzeResponse struct {
	Columns  []table.ColumnSummary          `json:"columns"`
	Outliers map[string]table.OutlierRecord `json:"outliers"`
	Rows     []table.CorrelationRow         `json:"rows,omitempty"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	reader := ingest.NewReader(cfg.Data.DefaultSheet)
	detector := outliers.NewDetector(cfg.Ops.MaxParallel)
	correlator := correlation.NewEngine(cfg.Ops.MaxParallel)

	r := chi.NewRouter()
	r.Use(middleware.Logger, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/analyze", func(w http.ResponseWriter, req *http.Request) {
		file, header, err := req.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a file upload is required"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, cfg.Data.MaxUploadBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
			return
		}

		hint := ports.FormatExcel
		if strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
			hint = ports.FormatCSV
		}
		t, err := reader.Load(req.Context(), data, hint)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		method := table.OutlierMethod(req.URL.Query().Get("method"))
		if method == "" {
			method = table.MethodIQR
		}
		records, err := detector.Detect(req.Context(), t, method, 1)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}

		resp := analyzeResponse{
			Columns:  summary.Summarize(t),
			Outliers: records,
		}

		if dep := req.URL.Query().Get("dependent"); dep != "" {
			indeps := req.URL.Query()["independent"]
			if len(indeps) == 0 {
				for _, name := range summary.NumericColumns(t) {
					if name != dep {
						indeps = append(indeps, name)
					}
				}
			}
			rows, err := correlator.Correlate(req.Context(), t, dep, indeps)
			if err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}
			resp.Rows = rows
		}

		writeJSON(w, http.StatusOK, resp)
	})

	log.Printf("Starting datalens API on :%s", cfg.Server.APIPort)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.APIPort, r))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
