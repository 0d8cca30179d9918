// Package types holds the persisted entities shared by the store, the
// gateway and the analysis workers.
package types

// TaskType identifies an analysis job kind. One worker polls per type.
type TaskType string

const (
	TaskFullScan          TaskType = "full_scan"
	TaskFetchTransactions TaskType = "fetch_transactions"
	TaskAnalyzeApprovals  TaskType = "analyze_approvals"
	TaskAnalyzeContracts  TaskType = "analyze_contracts"
	TaskAnalyzeActivity   TaskType = "analyze_activity"
	TaskAnalyzeLPStake    TaskType = "analyze_lp_stake"
)

// AllTasks lists every task type in a stable order.
var AllTasks = []TaskType{
	TaskFullScan,
	TaskFetchTransactions,
	TaskAnalyzeApprovals,
	TaskAnalyzeContracts,
	TaskAnalyzeActivity,
	TaskAnalyzeLPStake,
}

// AnalyzerTasks are the four independent analyzers fanned out after a fetch.
var AnalyzerTasks = []TaskType{
	TaskAnalyzeApprovals,
	TaskAnalyzeContracts,
	TaskAnalyzeActivity,
	TaskAnalyzeLPStake,
}

// Status is shared by analysis jobs and api requests.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Severity ranks a finding for notification thresholding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is at or above the threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return severityRank[s] >= severityRank[threshold]
}

// Valid reports whether s names a known severity. Unknown strings rank as
// zero in AtLeast, so thresholds must be validated before use.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Stream names one of the three transaction feeds cached per wallet.
type Stream string

const (
	StreamNormal Stream = "normal"
	StreamToken  Stream = "token"
	StreamNFT    Stream = "nft"
)

// AllStreams lists the fetcher streams in a stable order.
var AllStreams = []Stream{StreamNormal, StreamToken, StreamNFT}
