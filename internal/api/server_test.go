package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hasanmaki/rekaprgu-3duta/internal/audit"
	"github.com/hasanmaki/rekaprgu-3duta/internal/config"
	"github.com/hasanmaki/rekaprgu-3duta/internal/export"
	"github.com/hasanmaki/rekaprgu-3duta/internal/models"
)

type fakeSource struct {
	records []models.TransactionRecord
	start   *time.Time
	end     *time.Time
}

func (f *fakeSource) FetchTransactions(_ context.Context, _ []string, start, end *time.Time) ([]models.TransactionRecord, error) {
	f.start, f.end = start, end
	return f.records, nil
}

func (f *fakeSource) Ping(context.Context) error { return nil }

func strPtr(s string) *string { return &s }

func newTestServer(t *testing.T, source *fakeSource) (*Server, http.Handler) {
	t.Helper()
	engine := audit.NewEngine(audit.EngineConfig{QueueCapacity: 2, PerItemDelay: time.Second})
	srv := New(config.Config{AuditEndpoint: "http://provider.test/check"}, source, engine, nil, map[string]export.Sink{
		"local": &export.FileSink{BaseDir: t.TempDir()},
	})
	return srv, srv.Router()
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReportQuery(t *testing.T) {
	source := &fakeSource{records: []models.TransactionRecord{
		{ProductCode: "P10", Destination: "0811", StatusCode: 20, Serial: strPtr("SUP1")},
		{ProductCode: "P10", Destination: "0822", StatusCode: 40},
	}}
	_, h := newTestServer(t, source)

	rec := postJSON(t, h, "/reports/query", map[string]any{
		"product_codes": []string{"P10"},
		"start_date":    "2024-03-01",
		"end_date":      "2024-03-07",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	var resp reportQueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ReportID == "" {
		t.Fatal("missing report id")
	}
	if len(resp.Rows) != 2 || resp.Rows[0].FinalStatus != models.FinalProfit {
		t.Fatalf("unexpected rows: %+v", resp.Rows)
	}
	if len(resp.Summary) != 2 {
		t.Fatalf("expected 2 summary rows, got %d", len(resp.Summary))
	}
	if resp.Metrics.Total != 2 || resp.Metrics.Failed != 1 {
		t.Fatalf("unexpected metrics: %+v", resp.Metrics)
	}

	// Date bounds were forwarded to the query layer.
	if source.start == nil || source.end == nil {
		t.Fatal("date range not passed to source")
	}
	if !source.start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %s", source.start)
	}
}

func TestReportQueryValidation(t *testing.T) {
	_, h := newTestServer(t, &fakeSource{})

	rec := postJSON(t, h, "/reports/query", map[string]any{"product_codes": []string{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty product codes: status = %d", rec.Code)
	}

	rec = postJSON(t, h, "/reports/query", map[string]any{
		"product_codes": []string{"P10"},
		"start_date":    "01-03-2024",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: status = %d", rec.Code)
	}
}

func TestReportFilterAndUsage(t *testing.T) {
	source := &fakeSource{records: []models.TransactionRecord{
		{ProductCode: "P10", Destination: "0811", StatusCode: 20, Serial: strPtr("SUP1")},
		{ProductCode: "P10", Destination: "0822", StatusCode: 40},
	}}
	_, h := newTestServer(t, source)

	// Filter before any query conflicts.
	rec := postJSON(t, h, "/reports/filter", map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("filter without report: status = %d", rec.Code)
	}

	postJSON(t, h, "/reports/query", map[string]any{"product_codes": []string{"P10"}})

	rec = postJSON(t, h, "/reports/filter", map[string]any{
		"final_statuses": []string{models.FinalFailedA1},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("filter: status = %d", rec.Code)
	}
	var filtered struct {
		Rows []models.LabeledRecord `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(filtered.Rows) != 1 || filtered.Rows[0].Destination != "0822" {
		t.Fatalf("unexpected filtered rows: %+v", filtered.Rows)
	}

	rec = postJSON(t, h, "/reports/usage", map[string]any{
		"price":           10000,
		"opening_balance": 100000,
		"closing_balance": 90000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("usage: status = %d", rec.Code)
	}
	var usage struct {
		Actual  int64 `json:"actual_pemakaian"`
		Matched bool  `json:"cocok"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if usage.Actual != 10000 || !usage.Matched {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestAuditQueueCapacity(t *testing.T) {
	_, h := newTestServer(t, &fakeSource{})

	rec := postJSON(t, h, "/audit/queue", map[string]any{
		"numbers": []string{"0811", "0822", "0833"},
	})
	// Capacity is 2 and the worker is not running, so one is rejected.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var resp auditQueueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Accepted != 2 || len(resp.Rejected) != 1 || resp.Rejected[0] != "0833" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rec = postJSON(t, h, "/audit/queue", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty queue request: status = %d", rec.Code)
	}
}

func TestAuditControlFlow(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"msisdn":"62811","custbalanceinfo":"5"}`))
	}))
	defer provider.Close()

	srv, h := newTestServer(t, &fakeSource{})

	postJSON(t, h, "/audit/queue", map[string]any{"numbers": []string{"0811"}})

	rec := postJSON(t, h, "/audit/start", map[string]any{"endpoint": provider.URL, "username": "u"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status = %d body=%s", rec.Code, rec.Body)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(srv.engine.Results()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/status", nil))
	var status struct {
		Running  bool                 `json:"running"`
		Counters models.AuditCounters `json:"counters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Counters.Processed != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}

	rec = postJSON(t, h, "/audit/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: status = %d", rec.Code)
	}
	if srv.engine.Running() {
		t.Fatal("engine still running after stop")
	}

	rec = postJSON(t, h, "/audit/export", map[string]any{"format": "csv"})
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status = %d body=%s", rec.Code, rec.Body)
	}
	var exported map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &exported); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if exported["location"] == "" {
		t.Fatal("export location missing")
	}
}

func TestAuditStartRequiresEndpoint(t *testing.T) {
	engine := audit.NewEngine(audit.EngineConfig{QueueCapacity: 1, PerItemDelay: time.Second})
	srv := New(config.Config{}, &fakeSource{}, engine, nil, nil)
	h := srv.Router()

	rec := postJSON(t, h, "/audit/start", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without endpoint", rec.Code)
	}
}
