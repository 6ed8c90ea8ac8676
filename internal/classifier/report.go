package classifier

import (
	"sort"
	"strings"

	"github.com/hasanmaki/rekaprgu-3duta/internal/models"
)

// DashboardMetrics are the headline numbers for a result set.
type DashboardMetrics struct {
	Total              int `json:"total"`
	UniqueDestinations int `json:"unique_tujuan"`
	Success            int `json:"sukses"`
	Failed             int `json:"gagal"`
}

// Metrics computes dashboard metrics. Success counts both profit and
// loss verdicts: fulfillment happened either way.
func Metrics(records []models.LabeledRecord) DashboardMetrics {
	m := DashboardMetrics{Total: len(records)}
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.Destination] = struct{}{}
		switch r.FinalStatus {
		case models.FinalProfit, models.FinalLoss:
			m.Success++
		case models.FinalFailedA1:
			m.Failed++
		}
	}
	m.UniqueDestinations = len(seen)
	return m
}

// StatusCount is one final-status bucket with its row count.
type StatusCount struct {
	FinalStatus string `json:"final_status"`
	Count       int    `json:"count"`
}

// StatusCounts tallies rows per final status, most frequent first.
func StatusCounts(records []models.LabeledRecord) []StatusCount {
	if len(records) == 0 {
		return nil
	}
	tally := make(map[string]int)
	for _, r := range records {
		tally[r.FinalStatus]++
	}
	counts := make([]StatusCount, 0, len(tally))
	for fs, n := range tally {
		counts = append(counts, StatusCount{FinalStatus: fs, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].FinalStatus < counts[j].FinalStatus
	})
	return counts
}

// FilterOptions narrows a labeled result set. String fields match as
// case-insensitive substrings; empty fields match everything.
type FilterOptions struct {
	FinalStatuses []string `json:"final_statuses"`
	ProductCode   string   `json:"kode_produk"`
	Destination   string   `json:"tujuan"`
	Serial        string   `json:"sn"`
}

// Filter returns the rows matching every provided option.
func Filter(records []models.LabeledRecord, opts FilterOptions) []models.LabeledRecord {
	statuses := make(map[string]struct{}, len(opts.FinalStatuses))
	for _, fs := range opts.FinalStatuses {
		statuses[fs] = struct{}{}
	}

	out := make([]models.LabeledRecord, 0, len(records))
	for _, r := range records {
		if len(statuses) > 0 {
			if _, ok := statuses[r.FinalStatus]; !ok {
				continue
			}
		}
		if !containsFold(r.ProductCode, opts.ProductCode) {
			continue
		}
		if !containsFold(r.Destination, opts.Destination) {
			continue
		}
		if opts.Serial != "" {
			if r.Serial == nil || !containsFold(*r.Serial, opts.Serial) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// UsageReport reconciles balance movement against classified profit rows.
type UsageReport struct {
	AssumedUsage int64 `json:"asumsi_pemakaian"`
	ActualUsage  int64 `json:"actual_pemakaian"`
	Difference   int64 `json:"selisih"`
	Matched      bool  `json:"cocok"`
}

// Usage compares assumed usage (opening minus closing balance) with
// actual usage (unit price times profit rows). Only profit rows count:
// losses are double injects the balance should not have paid twice for.
func Usage(price, openingBalance, closingBalance int64, records []models.LabeledRecord) UsageReport {
	var profit int64
	for _, r := range records {
		if r.FinalStatus == models.FinalProfit {
			profit++
		}
	}
	assumed := openingBalance - closingBalance
	actual := price * profit
	diff := actual - assumed
	return UsageReport{
		AssumedUsage: assumed,
		ActualUsage:  actual,
		Difference:   diff,
		Matched:      diff == 0,
	}
}
