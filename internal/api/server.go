package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hasanmaki/rekaprgu-3duta/internal/audit"
	"github.com/hasanmaki/rekaprgu-3duta/internal/classifier"
	"github.com/hasanmaki/rekaprgu-3duta/internal/config"
	"github.com/hasanmaki/rekaprgu-3duta/internal/export"
	"github.com/hasanmaki/rekaprgu-3duta/internal/models"
	"github.com/hasanmaki/rekaprgu-3duta/internal/ratelimit"
	"github.com/hasanmaki/rekaprgu-3duta/internal/telemetry"
)

const dateLayout = "2006-01-02"

// TransactionSource fetches raw rows from the transaction table.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, productCodes []string, start, end *time.Time) ([]models.TransactionRecord, error)
	Ping(ctx context.Context) error
}

// Server wires the report and audit HTTP surface.
type Server struct {
	cfg     config.Config
	source  TransactionSource
	engine  *audit.Engine
	limiter *ratelimit.TokenBucket
	sinks   map[string]export.Sink

	// The last query result is retained so filter/usage/audit-from-report
	// operate on it; this replaces the original UI's session state.
	mu     sync.Mutex
	report *retainedReport
}

type retainedReport struct {
	ID   string
	Rows []models.LabeledRecord
}

// New constructs the API server. The limiter may be nil to disable
// enqueue throttling; sinks map export destinations to storage.
func New(cfg config.Config, source TransactionSource, engine *audit.Engine, limiter *ratelimit.TokenBucket, sinks map[string]export.Sink) *Server {
	return &Server{
		cfg:     cfg,
		source:  source,
		engine:  engine,
		limiter: limiter,
		sinks:   sinks,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/reports", func(r chi.Router) {
		r.Post("/query", s.handleReportQuery)
		r.Post("/filter", s.handleReportFilter)
		r.Post("/usage", s.handleReportUsage)
	})

	r.Route("/audit", func(r chi.Router) {
		r.Post("/queue", s.handleAuditQueue)
		r.Post("/start", s.handleAuditStart)
		r.Post("/pause", s.handleAuditPause)
		r.Post("/resume", s.handleAuditResume)
		r.Post("/stop", s.handleAuditStop)
		r.Get("/status", s.handleAuditStatus)
		r.Get("/results", s.handleAuditResults)
		r.Post("/export", s.handleAuditExport)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.source != nil {
		if err := s.source.Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type reportQueryRequest struct {
	ProductCodes []string `json:"product_codes"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
}

type reportQueryResponse struct {
	ReportID     string                      `json:"report_id"`
	Rows         []models.LabeledRecord      `json:"rows"`
	Summary      []classifier.SummaryRow     `json:"summary"`
	Metrics      classifier.DashboardMetrics `json:"metrics"`
	StatusCounts []classifier.StatusCount    `json:"status_counts"`
}

func (s *Server) handleReportQuery(w http.ResponseWriter, r *http.Request) {
	var req reportQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.ProductCodes) == 0 {
		http.Error(w, "product_codes is required", http.StatusBadRequest)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		http.Error(w, "invalid start_date", http.StatusBadRequest)
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		http.Error(w, "invalid end_date", http.StatusBadRequest)
		return
	}

	records, err := s.source.FetchTransactions(r.Context(), req.ProductCodes, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	labeled := classifier.Label(records)
	telemetry.ReportRows.Add(float64(len(labeled)))

	reportID := uuid.New().String()
	s.mu.Lock()
	s.report = &retainedReport{ID: reportID, Rows: labeled}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, reportQueryResponse{
		ReportID:     reportID,
		Rows:         labeled,
		Summary:      classifier.Summarize(labeled),
		Metrics:      classifier.Metrics(labeled),
		StatusCounts: classifier.StatusCounts(labeled),
	})
}

func (s *Server) handleReportFilter(w http.ResponseWriter, r *http.Request) {
	var opts classifier.FilterOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	report, ok := s.retained()
	if !ok {
		http.Error(w, "no report loaded", http.StatusConflict)
		return
	}
	rows := classifier.Filter(report.Rows, opts)
	writeJSON(w, http.StatusOK, map[string]any{
		"report_id": report.ID,
		"rows":      rows,
		"metrics":   classifier.Metrics(rows),
	})
}

type usageRequest struct {
	Price          int64 `json:"price"`
	OpeningBalance int64 `json:"opening_balance"`
	ClosingBalance int64 `json:"closing_balance"`
}

func (s *Server) handleReportUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	report, ok := s.retained()
	if !ok {
		http.Error(w, "no report loaded", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, classifier.Usage(req.Price, req.OpeningBalance, req.ClosingBalance, report.Rows))
}

type auditQueueRequest struct {
	Numbers    []string `json:"numbers"`
	FromReport bool     `json:"from_report"`
}

type auditQueueResponse struct {
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
}

func (s *Server) handleAuditQueue(w http.ResponseWriter, r *http.Request) {
	var req auditQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), tenantFromRequest(r))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	numbers := req.Numbers
	if req.FromReport {
		report, ok := s.retained()
		if !ok {
			http.Error(w, "no report loaded", http.StatusConflict)
			return
		}
		numbers = append(numbers, destinations(report.Rows)...)
	}
	if len(numbers) == 0 {
		http.Error(w, "no numbers to queue", http.StatusBadRequest)
		return
	}

	var resp auditQueueResponse
	for _, n := range numbers {
		if s.engine.Enqueue(n) {
			resp.Accepted++
			telemetry.EnqueueCounter.Inc()
		} else {
			resp.Rejected = append(resp.Rejected, n)
		}
	}
	status := http.StatusAccepted
	if len(resp.Rejected) > 0 {
		// Partial acceptance: the queue ran out of capacity.
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

type auditStartRequest struct {
	Endpoint          string `json:"endpoint"`
	Username          string `json:"username"`
	CardIdentifier    string `json:"card_identifier"`
	PackageIdentifier string `json:"package_identifier"`
	Precheck          *bool  `json:"precheck"`
}

func (s *Server) handleAuditStart(w http.ResponseWriter, r *http.Request) {
	var req auditStartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	cfg := audit.CheckerConfig{
		Endpoint:          firstNonEmpty(req.Endpoint, s.cfg.AuditEndpoint),
		Username:          firstNonEmpty(req.Username, s.cfg.AuditUsername),
		CardIdentifier:    firstNonEmpty(req.CardIdentifier, s.cfg.CardIdentifier),
		PackageIdentifier: firstNonEmpty(req.PackageIdentifier, s.cfg.PackageIdentifier),
		Timeout:           s.cfg.AuditCheckTimeout,
		Precheck:          s.cfg.AuditPrecheck,
		PrecheckNumber:    s.cfg.AuditPrecheckTo,
	}
	if req.Precheck != nil {
		cfg.Precheck = *req.Precheck
	}
	if cfg.Endpoint == "" {
		http.Error(w, "audit endpoint is not configured", http.StatusBadRequest)
		return
	}

	s.engine.Start(audit.NewChecker(cfg).Check)
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleAuditPause(w http.ResponseWriter, _ *http.Request) {
	s.engine.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleAuditResume(w http.ResponseWriter, _ *http.Request) {
	s.engine.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleAuditStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleAuditStatus(w http.ResponseWriter, _ *http.Request) {
	counters := s.engine.Counters()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":     s.engine.Running(),
		"paused":      s.engine.Paused(),
		"queue_depth": s.engine.QueueDepth(),
		"counters":    counters,
		"results":     len(s.engine.Results()),
	})
}

func (s *Server) handleAuditResults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Results())
}

type exportRequest struct {
	Format      string `json:"format"`
	Destination string `json:"destination"`
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if req.Format == "" {
		req.Format = "json"
	}
	if req.Destination == "" {
		req.Destination = "local"
	}

	body, contentType, err := export.Encode(req.Format, s.engine.Results())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sink, ok := s.sinks[req.Destination]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown export destination %q", req.Destination), http.StatusBadRequest)
		return
	}
	location, err := sink.Store(r.Context(), export.Filename(req.Format), body, contentType)
	if err != nil {
		http.Error(w, "export failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"location": location})
}

func (s *Server) retained() (*retainedReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return nil, false
	}
	return s.report, true
}

// destinations returns the unique destination numbers of a report, in
// first-seen order.
func destinations(rows []models.LabeledRecord) []string {
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.Destination]; ok {
			continue
		}
		seen[r.Destination] = struct{}{}
		out = append(out, r.Destination)
	}
	return out
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
