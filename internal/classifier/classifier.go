package classifier

import (
	"sort"
	"strings"

	"github.com/hasanmaki/rekaprgu-3duta/internal/models"
)

// SuccessCode is the provider status code for a fulfilled transaction.
const SuccessCode = 20

// serialPrefix marks a serial issued by direct fulfillment.
const serialPrefix = "SUP"

// Label derives the status columns for a result set in two passes:
// a row-level label from (status, sn), then a per-destination verdict
// broadcast to every row sharing the destination. It never fails; a
// missing serial counts as the non-SUP case.
func Label(records []models.TransactionRecord) []models.LabeledRecord {
	labeled := make([]models.LabeledRecord, 0, len(records))
	for _, r := range records {
		labeled = append(labeled, models.LabeledRecord{
			TransactionRecord: r,
			StatusLabel:       rowLabel(r.StatusCode, r.Serial),
		})
	}

	type groupCounts struct {
		valid int
		wait  int
	}
	groups := make(map[string]*groupCounts)
	for _, l := range labeled {
		g := groups[l.Destination]
		if g == nil {
			g = &groupCounts{}
			groups[l.Destination] = g
		}
		switch l.StatusLabel {
		case models.LabelSuccessValid:
			g.valid++
		case models.LabelSuccessWait:
			g.wait++
		}
	}

	for i := range labeled {
		g := groups[labeled[i].Destination]
		labeled[i].FinalStatus = verdict(g.valid, g.wait)
	}
	return labeled
}

func rowLabel(statusCode int, serial *string) string {
	if statusCode != SuccessCode {
		return models.LabelFailed
	}
	if serial != nil && strings.HasPrefix(*serial, serialPrefix) {
		return models.LabelSuccessValid
	}
	return models.LabelSuccessWait
}

// verdict is total over (valid, wait): a single direct fulfillment is
// profit, more than one is a double inject (loss), waits alone still
// count as profit, and a group with neither is a hard failure.
func verdict(valid, wait int) string {
	switch {
	case valid == 1:
		return models.FinalProfit
	case valid > 1:
		return models.FinalLoss
	case wait > 0:
		return models.FinalProfit
	default:
		return models.FinalFailedA1
	}
}

// SummaryRow is one pivot row keyed by (product code, destination).
type SummaryRow struct {
	ProductCode string         `json:"kode_produk"`
	Destination string         `json:"tujuan"`
	Counts      map[string]int `json:"counts"`
}

// Summarize pivots labeled rows into per-(product, destination) counts,
// one column per final status. Rows are sorted so repeated queries over
// the same data render identically. Empty input yields an empty table.
func Summarize(records []models.LabeledRecord) []SummaryRow {
	if len(records) == 0 {
		return nil
	}

	type key struct {
		product     string
		destination string
	}
	cells := make(map[key]map[string]int)
	for _, r := range records {
		k := key{r.ProductCode, r.Destination}
		if cells[k] == nil {
			counts := make(map[string]int, len(models.FinalStatuses))
			for _, fs := range models.FinalStatuses {
				counts[fs] = 0
			}
			cells[k] = counts
		}
		cells[k][r.FinalStatus]++
	}

	rows := make([]SummaryRow, 0, len(cells))
	for k, counts := range cells {
		rows = append(rows, SummaryRow{ProductCode: k.product, Destination: k.destination, Counts: counts})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProductCode != rows[j].ProductCode {
			return rows[i].ProductCode < rows[j].ProductCode
		}
		return rows[i].Destination < rows[j].Destination
	})
	return rows
}
