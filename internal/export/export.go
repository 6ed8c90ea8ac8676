package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hasanmaki/rekaprgu-3duta/internal/models"
)

// errorMarker substitutes the card/package cells of a non-success row
// so exported tables stay rectangular.
const errorMarker = "ERROR"

var csvHeader = []string{"nomor", "kartu", "act_kartu", "end_kartu", "paket", "act_paket", "end_paket", "balance"}

// JSON renders the outcomes as an indented array using the original
// export key names.
func JSON(results []models.AuditOutcome) ([]byte, error) {
	if results == nil {
		results = []models.AuditOutcome{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	return data, nil
}

// Rows flattens outcomes into CSV records, header first. Skipped and
// errored rows carry the ERROR marker and put the failure detail in
// the balance column, matching the original export shape.
func Rows(results []models.AuditOutcome) [][]string {
	rows := make([][]string, 0, len(results)+1)
	rows = append(rows, csvHeader)
	for _, r := range results {
		if r.Status == models.AuditSuccess {
			rows = append(rows, []string{
				r.Number,
				r.CardName, r.CardActivation, r.CardExpiry,
				r.PackageName, r.PackageActivation, r.PackageExpiry,
				r.Balance,
			})
			continue
		}
		detail := r.ErrorDetail
		if detail == "" {
			detail = "Unknown error"
		}
		rows = append(rows, []string{r.Number, errorMarker, "", "", errorMarker, "", "", detail})
	}
	return rows
}

// CSV writes the flattened table to w.
func CSV(w io.Writer, results []models.AuditOutcome) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(results)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Encode renders the outcomes in the requested format ("json" or "csv").
func Encode(format string, results []models.AuditOutcome) ([]byte, string, error) {
	switch format {
	case "", "json":
		data, err := JSON(results)
		return data, "application/json", err
	case "csv":
		var buf bytes.Buffer
		if err := CSV(&buf, results); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

// Filename builds the timestamped export name, e.g.
// audit_results_20240301_093000.json.
func Filename(ext string) string {
	return fmt.Sprintf("audit_results_%s.%s", time.Now().Format("20060102_150405"), ext)
}
