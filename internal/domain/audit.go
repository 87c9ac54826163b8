package domain

import "time"

// Batch outcomes recorded in the audit log.
const (
	BatchRunning   = "running"
	BatchSucceeded = "succeeded"
	BatchAborted   = "aborted"
)

// ConsentBatch is an audit record of one batch run.
type ConsentBatch struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Size       int        `json:"size"`
	Applied    int        `json:"applied"`
	Outcome    string     `json:"outcome"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// ConsentBatchItem records an instruction that was applied upstream.
type ConsentBatchItem struct {
	BatchID    string       `json:"batchId"`
	Sequence   int          `json:"sequence"`
	Email      string       `json:"email"`
	CustomerID int64        `json:"customerId"`
	State      ConsentState `json:"state"`
	AppliedAt  time.Time    `json:"appliedAt"`
}
