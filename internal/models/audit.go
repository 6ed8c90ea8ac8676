package models

// AuditStatus buckets the outcome of one status-check request.
const (
	AuditSuccess = "success"
	AuditSkipped = "skipped"
	AuditError   = "error"
)

// AuditTask is one subscriber number waiting in the check queue.
type AuditTask struct {
	PhoneNumber string `json:"nomor"`
}

// AuditOutcome is the result of checking a single number against the
// provider API. Exactly one outcome is appended per dequeued task.
type AuditOutcome struct {
	Number            string `json:"nomor"`
	Status            string `json:"status"`
	ErrorDetail       string `json:"error,omitempty"`
	CardName          string `json:"kartu,omitempty"`
	CardActivation    string `json:"act_kartu,omitempty"`
	CardExpiry        string `json:"end_kartu,omitempty"`
	PackageName       string `json:"paket,omitempty"`
	PackageActivation string `json:"act_paket,omitempty"`
	PackageExpiry     string `json:"end_paket,omitempty"`
	Balance           string `json:"balance,omitempty"`
}

// AuditCounters is a snapshot of the engine's per-bucket totals.
type AuditCounters struct {
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Errored   int64 `json:"errored"`
}
