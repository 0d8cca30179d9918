package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/chainsentry/chainsentry/notify"
	"github.com/chainsentry/chainsentry/types"
)

// contractCacheWindow is how long an analyzed contract is reused before
// being re-examined.
const contractCacheWindow = 24 * time.Hour

// aiPromptLimit caps how much source is handed to the summarizer.
const aiPromptLimit = 6000

// handleAnalyzeContracts examines every distinct counterparty contract in
// the wallet's history, buckets them by verification and risk, updates the
// interacted-contract state and alerts on new high-risk findings.
func (e *Env) handleAnalyzeContracts(ctx context.Context, job *types.AnalysisJob) error {
	wallet, err := e.store.GetWallet(job.WalletID)
	if err != nil {
		return err
	}

	interacted := distinctCounterparties(wallet)
	section := &types.ContractSection{UpdatedAt: time.Now().UTC()}
	var alerts []notify.Alert

	for _, addr := range interacted {
		finding, err := e.contractFinding(ctx, wallet.Chain, addr)
		if err != nil {
			// One contract failing never fails the siblings.
			log.Warn("Contract analysis failed", "chain", wallet.Chain, "address", addr, "err", err)
			if section.Error == "" {
				section.Error = err.Error()
			}
			continue
		}
		finding.Label = e.labels.Resolve(ctx, wallet.Chain, []string{addr})[addr]

		switch {
		case finding.Verified && (len(finding.Keywords) > 0 || finding.Honeypot.Any()):
			section.VerifiedContractsWithRisks = append(section.VerifiedContractsWithRisks, *finding)
		case !finding.Verified && hasHighSelector(finding.Selectors):
			section.UnverifiedWithRisks = append(section.UnverifiedWithRisks, *finding)
		case !finding.Verified:
			section.UnverifiedContracts = append(section.UnverifiedContracts, *finding)
		}

		if alert, ok := contractAlert(finding); ok {
			alerts = append(alerts, alert)
		}
	}

	if _, err := e.store.UpdateReport(wallet.ID, func(r *types.Report) {
		r.Details.Contracts = section
	}); err != nil {
		return err
	}

	sent := e.notifier.Publish(ctx, wallet.UserID, wallet.State.Contracts, alerts)
	if sent > 0 {
		alertsSentMeter.Mark(int64(sent))
	}

	// The stored state is the full interacted set, not just the risky one,
	// so a contract only ever alerts on first sight.
	_, err = e.store.UpdateWallet(wallet.ID, func(w *types.Wallet) error {
		w.State.Contracts = interacted
		return nil
	})
	return err
}

// distinctCounterparties returns the lowercased distinct `to` addresses of
// the wallet's normal transactions, excluding the wallet itself.
func distinctCounterparties(wallet *types.Wallet) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tx := range wallet.Cache.Normal {
		to := strings.ToLower(tx.To)
		if to == "" || to == strings.ToLower(wallet.Address) {
			continue
		}
		if _, ok := seen[to]; ok {
			continue
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	return out
}

// contractFinding returns the cached analysis when fresh, otherwise runs a
// full analysis and caches it.
func (e *Env) contractFinding(ctx context.Context, chainName, address string) (*types.ContractFinding, error) {
	if cached, err := e.store.GetContractAnalysis(chainName, address); err == nil &&
		cached.Fresh(time.Now().UTC(), contractCacheWindow) {
		finding := cached.Finding
		return &finding, nil
	}

	finding, err := e.analyzeContract(ctx, chainName, address)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutContractAnalysis(&types.ContractAnalysis{
		Address: address,
		Chain:   chainName,
		Finding: *finding,
	}); err != nil {
		log.Debug("Failed to cache contract analysis", "address", address, "err", err)
	}
	return finding, nil
}

func (e *Env) analyzeContract(ctx context.Context, chainName, address string) (*types.ContractFinding, error) {
	finding := &types.ContractFinding{Address: strings.ToLower(address), Severity: types.SeverityInfo}

	// Proxies are analyzed through their implementation.
	analyzed := common.HexToAddress(address)
	if impl, ok := e.chain.Implementation(ctx, chainName, analyzed); ok {
		finding.Implementation = strings.ToLower(impl.Hex())
		analyzed = impl
	}

	info, err := e.chain.SourceCode(ctx, chainName, analyzed.Hex())
	if err != nil {
		return nil, err
	}

	if info.SourceCode != "" {
		finding.Verified = true
		finding.ContractName = info.ContractName
		finding.Keywords = scanKeywords(info.SourceCode)
		finding.Honeypot = scanHoneypot(info.SourceCode)
		finding.Severity = maxKeywordTier(finding.Keywords)
		if hp := honeypotSeverity(finding.Honeypot); hp.AtLeast(finding.Severity) {
			finding.Severity = hp
		}
		if needsAISummary(finding.Keywords, finding.Honeypot) {
			finding.AISummary = e.summarizeSource(ctx, finding.ContractName, info.SourceCode)
		}
		return finding, nil
	}

	code := e.chain.Code(ctx, chainName, analyzed)
	if len(code) == 0 {
		finding.NoBytecode = true
		return finding, nil
	}
	finding.Selectors = scanSelectors(code)
	finding.Severity = maxSelectorTier(finding.Selectors)
	return finding, nil
}

func (e *Env) summarizeSource(ctx context.Context, name, source string) string {
	if len(source) > aiPromptLimit {
		source = source[:aiPromptLimit]
	}
	prompt := fmt.Sprintf(
		"Summarize the security risks of the following Solidity contract %q in two sentences for a wallet holder who interacted with it:\n\n%s",
		name, source)
	summary, err := e.chain.Summarize(ctx, prompt)
	if err != nil {
		log.Warn("AI summary failed", "contract", name, "err", err)
		return ""
	}
	return summary
}

func maxKeywordTier(hits []types.KeywordHit) types.Severity {
	top := types.SeverityInfo
	for _, h := range hits {
		if h.Tier.AtLeast(top) {
			top = h.Tier
		}
	}
	return top
}

func hasHighSelector(hits []types.SelectorHit) bool {
	for _, h := range hits {
		if h.Tier == types.SeverityHigh {
			return true
		}
	}
	return false
}

func contractAlert(f *types.ContractFinding) (notify.Alert, bool) {
	display := f.Label
	if display == "" {
		display = f.Address
	}
	switch {
	case f.Honeypot.HiddenApprove:
		return notify.Alert{
			Fingerprint: f.Fingerprint(),
			Severity:    types.SeverityCritical,
			Title:       "CRITICAL HONEYPOT ALERT",
			Body:        fmt.Sprintf("Contract %s overrides transfer logic with a hidden approve call.", display),
		}, true
	case !f.Verified && hasHighSelector(f.Selectors):
		return notify.Alert{
			Fingerprint: f.Fingerprint(),
			Severity:    types.SeverityHigh,
			Title:       fmt.Sprintf("High-risk unverified contract interaction: %s", display),
			Body:        fmt.Sprintf("Bytecode exposes %s.", f.Selectors[0].Name),
		}, true
	case f.Verified && f.Severity.AtLeast(types.SeverityHigh):
		return notify.Alert{
			Fingerprint: f.Fingerprint(),
			Severity:    f.Severity,
			Title:       fmt.Sprintf("Risky verified contract interaction: %s", display),
			Body:        fmt.Sprintf("Source contains %d flagged patterns.", len(f.Keywords)),
		}, true
	}
	return notify.Alert{}, false
}
