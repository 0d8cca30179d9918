package types

import (
	"encoding/json"
	"time"
)

// AnalysisJob is one unit of work in the analysis queue. Jobs are claimed
// atomically, processed by exactly one worker, and are terminal once
// completed or failed; reprocessing happens through the next scheduled scan.
type AnalysisJob struct {
	ID          string          `json:"id"`
	WalletID    string          `json:"walletId"`
	Task        TaskType        `json:"task"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"createdAt"`
	ProcessedAt time.Time       `json:"processedAt,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// APIRequest is one persisted outbound call owned by the request gateway.
// Exactly one gateway driver may hold it in processing, stamped with the
// driver's processing id.
type APIRequest struct {
	ID           string          `json:"id"`
	Provider     string          `json:"provider"`
	Data         json.RawMessage `json:"data"`
	Status       Status          `json:"status"`
	Attempts     int             `json:"attempts"`
	ProcessingID string          `json:"processingId,omitempty"`
	RetryAt      time.Time       `json:"retryAt,omitempty"`
	ClaimedAt    time.Time       `json:"claimedAt,omitempty"`
	Result       string          `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	CompletedAt  time.Time       `json:"completedAt,omitempty"`
}

// Retryable reports whether the request may return to pending after a
// transient failure.
func (r *APIRequest) Retryable(maxAttempts int) bool {
	return r.Attempts < maxAttempts
}
