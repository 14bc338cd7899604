package models

// Record is the canonical flat record shape pushed to the destination store.
// Fields holds the destination column values; ListingID is the reconciliation
// key and is always present and non-empty for records produced by a mapper.
type Record struct {
	ListingID string                 `json:"listing_id"`
	Fields    map[string]interface{} `json:"fields"`
}

// Outcome describes what happened to a single record during an upsert pass.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeFailed  Outcome = "failed"
)

// UpsertOutcome is the per-record result of a reconciliation attempt.
type UpsertOutcome struct {
	ListingID string  `json:"listing_id"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`
}

// FailedRecord captures a record that failed both upsert attempts, written to
// the failed-records ledger for manual reprocessing.
type FailedRecord struct {
	ListingID string                 `json:"listing_id"`
	Fields    map[string]interface{} `json:"fields"`
	Error     string                 `json:"error"`
}
