package types

import "time"

// Approval is one standing token approval surfaced by the approval analyzer.
type Approval struct {
	Kind           string   `json:"kind"` // erc20, nft, permit, permit2
	Token          string   `json:"token"`
	TokenLabel     string   `json:"tokenLabel,omitempty"`
	Spender        string   `json:"spender"`
	SpenderLabel   string   `json:"spenderLabel,omitempty"`
	Amount         string   `json:"amount,omitempty"`
	Unlimited      bool     `json:"unlimited,omitempty"`
	Deadline       uint64   `json:"deadline,omitempty"`
	Severity       Severity `json:"severity"`
	RevokeCalldata string   `json:"revokeCalldata,omitempty"`
	TxHash         string   `json:"txHash,omitempty"`
}

// Fingerprint returns the canonical lowercase identity of the approval used
// for diffing successive analysis cycles.
func (a *Approval) Fingerprint() string {
	switch a.Kind {
	case "permit2":
		return lower("permit2-" + a.Spender)
	default:
		return lower(a.Kind + "-" + a.Token + "-" + a.Spender)
	}
}

// KeywordHit is a risky keyword found in verified source code.
type KeywordHit struct {
	Keyword string   `json:"keyword"`
	Tier    Severity `json:"tier"`
}

// SelectorHit is a risky function selector found in raw bytecode.
type SelectorHit struct {
	Selector string   `json:"selector"`
	Name     string   `json:"name"`
	Tier     Severity `json:"tier"`
}

// HoneypotFlags are the source-level honeypot heuristics.
type HoneypotFlags struct {
	HiddenApprove       bool `json:"hiddenApprove,omitempty"`
	HardcodedBlock      bool `json:"hardcodedBlock,omitempty"`
	ObfuscatedEncoding  bool `json:"obfuscatedEncoding,omitempty"`
	UnnecessarySafeMath bool `json:"unnecessarySafeMath,omitempty"`
}

// Any reports whether any honeypot heuristic fired.
func (h HoneypotFlags) Any() bool {
	return h.HiddenApprove || h.HardcodedBlock || h.ObfuscatedEncoding || h.UnnecessarySafeMath
}

// ContractFinding is the analysis result for one interacted contract.
type ContractFinding struct {
	Address        string        `json:"address"`
	Label          string        `json:"label,omitempty"`
	Implementation string        `json:"implementation,omitempty"`
	Verified       bool          `json:"verified"`
	ContractName   string        `json:"contractName,omitempty"`
	NoBytecode     bool          `json:"noBytecode,omitempty"`
	Keywords       []KeywordHit  `json:"keywords,omitempty"`
	Selectors      []SelectorHit `json:"selectors,omitempty"`
	Honeypot       HoneypotFlags `json:"honeypot,omitempty"`
	AISummary      string        `json:"aiSummary,omitempty"`
	Severity       Severity      `json:"severity"`
}

// Fingerprint is the contract address, lowercased.
func (f *ContractFinding) Fingerprint() string { return lower(f.Address) }

// Position is a potential forgotten LP or staking position.
type Position struct {
	Contract   string    `json:"contract"`
	Label      string    `json:"label,omitempty"`
	Method     string    `json:"method"`
	TxHash     string    `json:"txHash,omitempty"`
	LastSeenAt time.Time `json:"lastSeenAt,omitempty"`
}

// ActivityMetrics summarizes the wallet's normal-transaction history.
type ActivityMetrics struct {
	TransactionCount          int       `json:"transactionCount"`
	FirstTxAt                 time.Time `json:"firstTxAt,omitempty"`
	LastTxAt                  time.Time `json:"lastTxAt,omitempty"`
	WalletAgeDays             int       `json:"walletAgeDays"`
	UniqueInteractedAddresses int       `json:"uniqueInteractedAddresses"`
}

// ApprovalSection is the report slot written by the approval analyzer.
type ApprovalSection struct {
	Items     []Approval `json:"items"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// ContractSection buckets interacted contracts by verification and risk.
type ContractSection struct {
	UnverifiedContracts        []ContractFinding `json:"unverifiedContracts"`
	UnverifiedWithRisks        []ContractFinding `json:"unverifiedWithRisks"`
	VerifiedContractsWithRisks []ContractFinding `json:"verifiedContractsWithRisks"`
	Error                      string            `json:"error,omitempty"`
	UpdatedAt                  time.Time         `json:"updatedAt"`
}

// PositionSection is the report slot written by the LP/stake analyzer.
type PositionSection struct {
	Items     []Position `json:"items"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// FetchSection records the outcome of the latest transaction fetch. Error
// carries the first stream failure; partial fetches still run the analyzers.
type FetchSection struct {
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActivitySection is the report slot written by the activity analyzer.
type ActivitySection struct {
	Metrics   ActivityMetrics `json:"metrics"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ReportDetails holds the per-analyzer sub-sections. Each analyzer owns
// exactly one slot, so concurrent cycles never contend on a section.
type ReportDetails struct {
	Fetch     *FetchSection    `json:"fetch,omitempty"`
	Approvals *ApprovalSection `json:"approvals,omitempty"`
	Contracts *ContractSection `json:"contracts,omitempty"`
	Activity  *ActivitySection `json:"activity,omitempty"`
	Positions *PositionSection `json:"positions,omitempty"`
}

// Report is the latest analysis output for a wallet. The risk score is
// written by the activity analyzer over whatever sections exist at that
// moment.
type Report struct {
	WalletID  string        `json:"walletId"`
	RiskScore int           `json:"riskScore"`
	Summary   string        `json:"summary,omitempty"`
	Details   ReportDetails `json:"details"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
