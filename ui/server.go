// Package ui exposes the guided analysis workflow over HTTP. Each session
// is one dataset walked through upload, variable selection, quality,
// outliers, and the analysis steps; handlers are thin and all invariants
// live in the app service.
package ui

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"datalens/adapters/stats/distribution"
	"datalens/adapters/stats/regression"
	"datalens/app"
	"datalens/domain/core"
	"datalens/domain/table"
	"datalens/domain/workflow"
	"datalens/internal"
	"datalens/internal/config"
	"datalens/internal/errors"
	"datalens/ports"
)

// Server is the web server for the analysis workflow
type Server struct {
	router   *gin.Engine
	sessions *app.SessionManager
	cfg      *config.Config
	log      *internal.Logger
}

// NewServer creates the server and registers all routes
func NewServer(cfg *config.Config, sessions *app.SessionManager) *Server {
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = cfg.Data.MaxUploadBytes

	s := &Server{
		router:   router,
		sessions: sessions,
		cfg:      cfg,
		log:      internal.DefaultLogger,
	}
	s.registerRoutes()
	return s
}

// Start runs the server on the configured port
func (s *Server) Start() error {
	s.log.Info("[UI] listening on :%s", s.cfg.Server.Port)
	return s.router.Run(":" + s.cfg.Server.Port)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	api.POST("/sessions", s.createSession)

	session := api.Group("/sessions/:id")
	session.GET("", s.sessionState)
	session.POST("/dataset", s.uploadDataset)
	session.GET("/summary", s.columnSummaries)
	session.GET("/variables", s.numericVariables)
	session.POST("/variables", s.selectVariables)
	session.GET("/issues", s.listIssues)
	session.POST("/remediate", s.remediate)
	session.POST("/cell", s.editCell)
	session.POST("/advance", s.advance)
	session.PUT("/outliers/method", s.setOutlierMethod)
	session.GET("/outliers", s.detectOutliers)
	session.POST("/outliers/treat", s.treatOutliers)
	session.GET("/univariate", s.univariate)
	session.GET("/bivariate", s.bivariate)
	session.GET("/correlation", s.correlate)
	session.GET("/report", s.exportReport)
}

func (s *Server) createSession(c *gin.Context) {
	svc := s.sessions.Create()
	c.JSON(http.StatusCreated, gin.H{
		"session_id": svc.ID.String(),
		"step":       svc.Step().String(),
	})
}

func (s *Server) session(c *gin.Context) (*app.Service, bool) {
	svc, err := s.sessions.Get(core.SessionID(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return svc, true
}

func (s *Server) sessionState(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	state := gin.H{
		"session_id": svc.ID.String(),
		"created_at": svc.CreatedAt,
		"step":       svc.Step().String(),
		"version":    svc.Version(),
	}
	if meta := svc.Dataset(); meta != nil {
		state["dataset"] = meta
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) uploadDataset(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a file upload is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.Data.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	if int64(len(data)) > s.cfg.Data.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds size limit"})
		return
	}

	hint := formatHint(c.PostForm("format"), header.Filename)
	summaries, err := svc.LoadDataset(c.Request.Context(), data, hint)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"step":    svc.Step().String(),
		"version": svc.Version(),
		"columns": summaries,
	})
}

func (s *Server) columnSummaries(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	summaries, err := svc.Summaries()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": summaries})
}

func (s *Server) numericVariables(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	names, err := svc.NumericColumns()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"numeric_columns": names})
}

type selectVariablesRequest struct {
	Dependent    string   `json:"dependent" binding:"required"`
	Independents []string `json:"independents" binding:"required"`
}

func (s *Server) selectVariables(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	var req selectVariablesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := svc.SelectVariables(c.Request.Context(), req.Dependent, req.Independents); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"step": svc.Step().String(), "version": svc.Version()})
}

func (s *Server) listIssues(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	issues, err := svc.Issues()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues, "count": len(issues)})
}

type remediateRequest struct {
	Action  string   `json:"action" binding:"required"`
	Columns []string `json:"columns"`
}

func (s *Server) remediate(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	var req remediateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	version, err := svc.Remediate(c.Request.Context(), table.RemediationAction(req.Action), req.Columns)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}

type editCellRequest struct {
	Row    int    `json:"row"`
	Column string `json:"column" binding:"required"`
	Value  string `json:"value" binding:"required"`
}

func (s *Server) editCell(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	var req editCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	version, err := svc.EditCell(c.Request.Context(), req.Row, req.Column, req.Value)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}

type advanceRequest struct {
	Step string `json:"step" binding:"required"`
}

func (s *Server) advance(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	next, err := stepByName(req.Step)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := svc.Advance(next); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"step": svc.Step().String()})
}

type outlierMethodRequest struct {
	Method string `json:"method" binding:"required"`
}

func (s *Server) setOutlierMethod(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	var req outlierMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := svc.SetOutlierMethod(table.OutlierMethod(req.Method)); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"method": req.Method})
}

func (s *Server) detectOutliers(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	records, err := svc.DetectOutliers(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"method":  svc.OutlierMethod(),
		"version": svc.Version(),
		"records": records,
	})
}

type treatOutliersRequest struct {
	Column string `json:"column" binding:"required"`
	Action string `json:"action" binding:"required"`
}

func (s *Server) treatOutliers(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	var req treatOutliersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	version, err := svc.TreatOutliers(c.Request.Context(), req.Column, table.TreatmentAction(req.Action))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}

func (s *Server) univariate(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	column := c.Query("column")
	if column == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "column query parameter is required"})
		return
	}
	ref := distribution.Reference(c.DefaultQuery("reference", string(distribution.RefNormal)))
	result, err := svc.UnivariateDescriptors(column, ref)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) bivariate(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	x, y := c.Query("x"), c.Query("y")
	if x == "" || y == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x and y query parameters are required"})
		return
	}
	opts := regression.Options{
		Line:   c.DefaultQuery("line", "true") == "true",
		Lowess: c.Query("lowess") == "true",
	}
	if deg := c.Query("degree"); deg != "" {
		d, err := strconv.Atoi(deg)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "degree must be an integer"})
			return
		}
		opts.PolynomialDegree = d
	}
	result, err := svc.BivariateDescriptors(x, y, opts)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) correlate(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	rows, err := svc.Correlate(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows, "version": svc.Version()})
}

func (s *Server) exportReport(c *gin.Context) {
	svc, ok := s.session(c)
	if !ok {
		return
	}
	doc, err := svc.ExportReport(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, doc.ContentType, doc.Data)
}

// writeError maps application error codes onto HTTP statuses. Validation
// refusals and busy signals are client-visible states, not server faults.
func (s *Server) writeError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeValidationError, errors.CodeInvalidInput, errors.CodeInvalidNumericInput:
		status = http.StatusUnprocessableEntity
	case errors.CodeParseError:
		status = http.StatusBadRequest
	case errors.CodeBusy:
		status = http.StatusConflict
	case errors.CodeTimeout:
		status = http.StatusGatewayTimeout
	case errors.CodeNotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func formatHint(explicit, filename string) ports.FormatHint {
	if explicit != "" {
		return ports.FormatHint(explicit)
	}
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return ports.FormatCSV
	}
	return ports.FormatExcel
}

func stepByName(name string) (workflow.Step, error) {
	steps := map[string]workflow.Step{
		"outliers":    workflow.StepOutliers,
		"univariate":  workflow.StepUnivariate,
		"bivariate":   workflow.StepBivariate,
		"correlation": workflow.StepCorrelation,
	}
	step, ok := steps[name]
	if !ok {
		return 0, fmt.Errorf("unknown step: %s", name)
	}
	return step, nil
}
