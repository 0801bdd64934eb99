package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BV-BRC/sheet-analyst/internal/admission"
	"github.com/BV-BRC/sheet-analyst/internal/analysis"
	"github.com/BV-BRC/sheet-analyst/internal/chart"
	"github.com/BV-BRC/sheet-analyst/internal/config"
	"github.com/BV-BRC/sheet-analyst/internal/generator"
	"github.com/BV-BRC/sheet-analyst/internal/intake"
	"github.com/BV-BRC/sheet-analyst/internal/sandbox"
	"github.com/BV-BRC/sheet-analyst/internal/table"
	"github.com/BV-BRC/sheet-analyst/pkg/auth"
)

// RequestIDHeader carries the pipeline request id in responses.
const RequestIDHeader = "X-Request-ID"

// Handler contains all HTTP handlers.
type Handler struct {
	config *config.Config
	engine *analysis.Engine
	charts *chart.Store
	logger *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(cfg *config.Config, engine *analysis.Engine, charts *chart.Store, logger *zap.Logger) *Handler {
	return &Handler{
		config: cfg,
		engine: engine,
		charts: charts,
		logger: logger,
	}
}

type errorBody struct {
	Error        string `json:"error"`
	Type         string `json:"type"`
	Reason       string `json:"reason,omitempty"`
	Kind         string `json:"kind,omitempty"`
	ExecutedCode string `json:"executed_code,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

// TablePayload is a table sent inline with an execute request.
type TablePayload struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// ExecuteRequest is the JSON body of an execute request.
type ExecuteRequest struct {
	Code   string         `json:"code"`
	Tables []TablePayload `json:"tables"`
}

// Root handles the banner request.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Sheet analyst API running. POST a question and a workbook to /api/v1/analyze.",
	})
}

// HealthCheck handles health check requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "sheet-analyst",
	})
}

// Policy describes what analysis code may use. The denylist is not exposed.
func (h *Handler) Policy(w http.ResponseWriter, r *http.Request) {
	p := h.engine.Policy()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"primitives":    p.Primitives(),
		"plotting":      p.Plotting(),
		"table_result":  p.TableResult(),
		"scalar_result": p.ScalarResult(),
	})
}

// Analyze handles a question over an uploaded workbook.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set(RequestIDHeader, id)

	if err := h.parseMultipart(w, r); err != nil {
		h.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		h.errorResponse(w, "query is required", http.StatusBadRequest)
		return
	}
	tables, err := h.uploadedTables(r)
	if err != nil {
		h.pipelineError(w, id, err)
		return
	}

	h.logger.Info("analyze request", zap.String("request_id", id), zap.String("query", query), zap.Int("tables", len(tables)))
	resp, err := h.engine.Analyze(r.Context(), analysis.Request{
		ID:        id,
		Question:  query,
		Tables:    tables,
		Principal: principal(r),
	})
	if err != nil {
		h.pipelineError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Execute runs supplied code without the model. It accepts JSON with
// inline tables or a multipart form with a workbook.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set(RequestIDHeader, id)

	var code string
	var tables []*table.Table

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := h.parseMultipart(w, r); err != nil {
			h.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()
		code = r.FormValue("code")
		var err error
		if tables, err = h.uploadedTables(r); err != nil {
			h.pipelineError(w, id, err)
			return
		}
	} else {
		var req ExecuteRequest
		body := http.MaxBytesReader(w, r.Body, h.maxUpload())
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			h.errorResponse(w, "invalid request body", http.StatusBadRequest)
			return
		}
		code = req.Code
		for _, p := range req.Tables {
			t, err := table.FromValues(p.Name, p.Columns, p.Rows)
			if err != nil {
				h.pipelineError(w, id, err)
				return
			}
			t.Source = p.Name
			tables = append(tables, t)
		}
	}

	resp, err := h.engine.Execute(r.Context(), analysis.Request{
		ID:        id,
		Tables:    tables,
		Principal: principal(r),
	}, code)
	if err != nil {
		h.pipelineError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ServePlot serves a chart artifact by bare file name.
func (h *Handler) ServePlot(w http.ResponseWriter, r *http.Request) {
	if h.charts == nil {
		h.errorResponse(w, "plots are not enabled", http.StatusNotFound)
		return
	}
	path, err := h.charts.Path(chi.URLParam(r, "name"))
	if err != nil {
		h.errorResponse(w, "invalid plot name", http.StatusBadRequest)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		h.errorResponse(w, "plot not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.errorResponse(w, "plot not found", http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *Handler) maxUpload() int64 {
	mb := h.config.Server.MaxUploadMB
	if mb <= 0 {
		mb = 32
	}
	return mb << 20
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload())
	if err := r.ParseMultipartForm(h.maxUpload()); err != nil {
		return fmt.Errorf("invalid multipart upload: %w", err)
	}
	return nil
}

// uploadedTables loads the excel_file part, honouring an optional sheets
// list of required sheet names.
func (h *Handler) uploadedTables(r *http.Request) ([]*table.Table, error) {
	file, header, err := r.FormFile("excel_file")
	if err != nil {
		return nil, &table.LoadError{Msg: "excel_file is required"}
	}
	defer file.Close()

	var required []string
	for _, s := range strings.Split(r.FormValue("sheets"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			required = append(required, s)
		}
	}
	return table.Load(header.Filename, file, required)
}

func principal(r *http.Request) string {
	if p := auth.GetPrincipalFromContext(r.Context()); p != nil {
		return p.Name
	}
	return ""
}

// errorResponse writes a plain client error.
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	typ := "bad_request"
	if status == http.StatusNotFound {
		typ = "not_found"
	}
	writeJSON(w, status, errorBody{Error: message, Type: typ})
}

// pipelineError maps pipeline failures to status codes. Messages never
// include the denylist or the matched token.
func (h *Handler) pipelineError(w http.ResponseWriter, id string, err error) {
	body := errorBody{RequestID: id}
	var ae *analysis.Error
	if errors.As(err, &ae) {
		body.ExecutedCode = ae.Code
	}

	var (
		le    *table.LoadError
		ie    *intake.Error
		rej   *admission.Rejection
		fault *sandbox.Fault
		ue    *generator.UpstreamError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &le):
		status, body.Type, body.Error = http.StatusBadRequest, "load_error", le.Error()
	case errors.As(err, &ie):
		status, body.Type, body.Error = http.StatusBadRequest, "intake_error", ie.Error()
	case errors.As(err, &rej):
		status, body.Type, body.Error = http.StatusForbidden, "admission_rejected", rej.Error()
		body.Reason = string(rej.Reason)
	case errors.As(err, &fault):
		body.Type = "execution_fault"
		body.Kind = string(fault.Kind)
		body.Error = fmt.Sprintf("Error executing analysis code: %s: %s", fault.Kind, fault.Message)
		body.ExecutedCode = fault.Code
	case errors.As(err, &ue):
		status, body.Type, body.Error = http.StatusBadGateway, "upstream_model_error", "the model request failed"
		h.logger.Warn("upstream model error", zap.String("request_id", id), zap.Error(ue))
	default:
		body.Type, body.Error = "internal_error", "internal server error"
		h.logger.Error("unhandled pipeline error", zap.String("request_id", id), zap.Error(err))
	}
	writeJSON(w, status, body)
}
