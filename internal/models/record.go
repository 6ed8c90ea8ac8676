package models

import (
	"time"
)

// StatusLabel is the per-row classification of a transaction.
// Wire spellings match the upstream reporting vocabulary.
const (
	LabelFailed       = "GAGAL"
	LabelSuccessValid = "SUKSES VALID"
	LabelSuccessWait  = "SUKSES WAIT"
)

// FinalStatus is the per-destination verdict broadcast to every row in the group.
const (
	FinalProfit   = "SUKSES PROFIT"
	FinalLoss     = "SUKSES LOSS"
	FinalFailedA1 = "GAGAL A1"
)

// FinalStatuses lists verdict values in pivot-column order.
var FinalStatuses = []string{FinalProfit, FinalLoss, FinalFailedA1}

// TransactionRecord is one raw row from the transaksi table.
type TransactionRecord struct {
	ProductCode     string    `json:"kode_produk"`
	Destination     string    `json:"tujuan"`
	StatusCode      int       `json:"status"`
	Serial          *string   `json:"sn,omitempty"`
	StatusTimestamp time.Time `json:"tgl_status"`
}

// LabeledRecord is a transaction with its derived status columns.
type LabeledRecord struct {
	TransactionRecord
	StatusLabel string `json:"status_label"`
	FinalStatus string `json:"final_status"`
}
