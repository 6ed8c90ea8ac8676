package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/hasanmaki/rekaprgu-3duta/internal/models"
)

func sampleResults() []models.AuditOutcome {
	return []models.AuditOutcome{
		{
			Number:            "081234567890",
			Status:            models.AuditSuccess,
			CardName:          "KARTU PERDANA",
			CardActivation:    "2024-01-01",
			CardExpiry:        "2025-01-01",
			PackageName:       "Paket Data",
			PackageActivation: "2024-02-01",
			PackageExpiry:     "2024-03-01",
			Balance:           "125000",
		},
		{
			Number:      "081200000000",
			Status:      models.AuditSkipped,
			ErrorDetail: "HTTP 500",
		},
	}
}

func TestJSONUsesOriginalKeys(t *testing.T) {
	data, err := JSON(sampleResults())
	if err != nil {
		t.Fatalf("json export: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if decoded[0]["nomor"] != "081234567890" || decoded[0]["kartu"] != "KARTU PERDANA" {
		t.Fatalf("unexpected keys: %v", decoded[0])
	}
	if decoded[1]["error"] != "HTTP 500" {
		t.Fatalf("skipped row should carry error detail: %v", decoded[1])
	}
}

func TestJSONEmpty(t *testing.T) {
	data, err := JSON(nil)
	if err != nil {
		t.Fatalf("json export: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("empty export = %q, want []", data)
	}
}

func TestRowsErrorMarkers(t *testing.T) {
	rows := Rows(sampleResults())
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "nomor" || rows[0][7] != "balance" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][1] != "KARTU PERDANA" || rows[1][7] != "125000" {
		t.Fatalf("unexpected success row: %v", rows[1])
	}
	if rows[2][1] != "ERROR" || rows[2][4] != "ERROR" || rows[2][7] != "HTTP 500" {
		t.Fatalf("unexpected error row: %v", rows[2])
	}
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := CSV(&buf, sampleResults()); err != nil {
		t.Fatalf("csv export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 csv lines, got %d", len(lines))
	}
}

func TestEncodeRejectsUnknownFormat(t *testing.T) {
	if _, _, err := Encode("xml", nil); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink := &FileSink{BaseDir: dir}
	loc, err := sink.Store(context.Background(), "audit_results_test.json", []byte("[]"), "application/json")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	data, err := os.ReadFile(loc)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("stored body = %q", data)
	}
}

func TestFilename(t *testing.T) {
	name := Filename("csv")
	if !strings.HasPrefix(name, "audit_results_") || !strings.HasSuffix(name, ".csv") {
		t.Fatalf("unexpected filename %q", name)
	}
}
