package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/logger"
	"github.com/kailas-cloud/expensify-os/internal/plugin"
	healthuc "github.com/kailas-cloud/expensify-os/internal/usecase/health"
	runuc "github.com/kailas-cloud/expensify-os/internal/usecase/run"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest     = "bad_request"
	CodeInvalidMonth   = "invalid_month"
	CodeNoPlugins      = "no_plugins_selected"
	CodeRunInProgress  = "run_in_progress"
	CodeLedgerDisabled = "ledger_disabled"
	CodeUnauthorized   = "unauthorized"
	CodeInternalError  = "internal_error"
)

const maxRequestBody = 64 << 10

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunService executes runs.
type RunService interface {
	Run(ctx context.Context, req runuc.Request) (domain.Summary, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// LedgerForgetter drops a ledger entry so the month can be resubmitted.
type LedgerForgetter interface {
	Forget(ctx context.Context, plugin string, month domain.Month) error
}

// ServerConfig wires the Server.
type ServerConfig struct {
	Runs    RunService
	Health  HealthChecker
	Ledger  LedgerForgetter // nil when no ledger is configured
	Plugins []plugin.Registration
	Targets []runuc.Target
	Logger  *zap.Logger
	Now     func() time.Time
}

// Server serves the control plane API.
type Server struct {
	runs       RunService
	health     HealthChecker
	ledger     LedgerForgetter
	plugins    []plugin.Registration
	targets    []runuc.Target
	registered map[string]struct{}
	logger     *zap.Logger
	now        func() time.Time
}

// NewServer creates a control plane server.
func NewServer(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	registered := make(map[string]struct{}, len(cfg.Plugins))
	for _, reg := range cfg.Plugins {
		registered[reg.Name] = struct{}{}
	}
	return &Server{
		runs:       cfg.Runs,
		health:     cfg.Health,
		ledger:     cfg.Ledger,
		plugins:    cfg.Plugins,
		targets:    cfg.Targets,
		registered: registered,
		logger:     log,
		now:        now,
	}
}

// Routes mounts the API handlers on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/v1/plugins", s.ListPlugins)
	r.Post("/v1/runs", s.CreateRun)
	r.Delete("/v1/ledger/{plugin}/{month}", s.ForgetLedgerEntry)
}

// PluginInfo describes one registered plugin.
type PluginInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Configured  bool   `json:"configured"`
	Enabled     bool   `json:"enabled"`
}

// ListPlugins handles GET /v1/plugins.
func (s *Server) ListPlugins(w http.ResponseWriter, _ *http.Request) {
	configured := make(map[string]runuc.Target, len(s.targets))
	for _, t := range s.targets {
		configured[t.Name] = t
	}

	out := make([]PluginInfo, 0, len(s.plugins))
	for _, reg := range s.plugins {
		t, ok := configured[reg.Name]
		out = append(out, PluginInfo{
			Name:        reg.Name,
			Description: reg.Description,
			Configured:  ok,
			Enabled:     ok && t.Enabled,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// RunRequest is the body of POST /v1/runs. Every field is optional.
type RunRequest struct {
	Month   string   `json:"month"`
	Sources []string `json:"sources"`
	DryRun  bool     `json:"dry_run"`
	Force   bool     `json:"force"`
}

// RunResponse is the body returned by POST /v1/runs.
type RunResponse struct {
	domain.Summary
	Failed  bool     `json:"failed"`
	Ignored []string `json:"ignored,omitempty"`
}

// CreateRun handles POST /v1/runs. The run executes synchronously and keeps
// going if the client disconnects.
func (s *Server) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
			return
		}
	}

	month := domain.PreviousMonth(s.now())
	if body.Month != "" {
		m, err := domain.ParseMonth(body.Month)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidMonth, err.Error())
			return
		}
		month = m
	}

	targets, ignored := runuc.SelectTargets(s.targets, body.Sources, s.isRegistered)
	ignoredNames := make([]string, 0, len(ignored))
	for _, t := range ignored {
		ignoredNames = append(ignoredNames, t.Name)
	}
	if len(targets) == 0 {
		writeError(w, http.StatusBadRequest, CodeNoPlugins, "no enabled plugins selected")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	summary, err := s.runs.Run(ctx, runuc.Request{
		Month:   month,
		Targets: targets,
		DryRun:  body.DryRun,
		Force:   body.Force,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		Summary: summary,
		Failed:  summary.Failed(),
		Ignored: ignoredNames,
	})
}

// ForgetLedgerEntry handles DELETE /v1/ledger/{plugin}/{month}.
func (s *Server) ForgetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, CodeLedgerDisabled, "no ledger configured")
		return
	}

	month, err := domain.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidMonth, err.Error())
		return
	}

	if err := s.ledger.Forget(r.Context(), chi.URLParam(r, "plugin"), month); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) isRegistered(name string) bool {
	_, ok := s.registered[name]
	return ok
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.From(r.Context(), s.logger)
	switch {
	case errors.Is(err, runuc.ErrBusy):
		log.Warn("Run rejected", zap.Error(err))
		writeError(w, http.StatusConflict, CodeRunInProgress, err.Error())
	case errors.Is(err, domain.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, CodeInvalidMonth, err.Error())
	default:
		log.Error("Internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
