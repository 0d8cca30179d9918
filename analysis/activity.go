package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chainsentry/chainsentry/types"
)

// handleAnalyzeActivity computes the activity metrics and the final risk
// score. The score sums contributions from whatever report sections exist
// at this moment; a lagging sibling analyzer simply contributes zero.
func (e *Env) handleAnalyzeActivity(ctx context.Context, job *types.AnalysisJob) error {
	wallet, err := e.store.GetWallet(job.WalletID)
	if err != nil {
		return err
	}
	metrics := computeActivityMetrics(wallet, time.Now().UTC())

	_, err = e.store.UpdateReport(wallet.ID, func(r *types.Report) {
		r.Details.Activity = &types.ActivitySection{Metrics: metrics, UpdatedAt: time.Now().UTC()}
		r.RiskScore = riskScore(r, metrics)
		r.Summary = summarize(r, metrics)
	})
	return err
}

func computeActivityMetrics(wallet *types.Wallet, now time.Time) types.ActivityMetrics {
	m := types.ActivityMetrics{TransactionCount: len(wallet.Cache.Normal)}

	self := strings.ToLower(wallet.Address)
	unique := make(map[string]struct{})
	for _, tx := range wallet.Cache.Normal {
		if t := tx.Time(); !t.IsZero() {
			if m.FirstTxAt.IsZero() || t.Before(m.FirstTxAt) {
				m.FirstTxAt = t
			}
			if t.After(m.LastTxAt) {
				m.LastTxAt = t
			}
		}
		for _, addr := range []string{strings.ToLower(tx.From), strings.ToLower(tx.To)} {
			if addr != "" && addr != self {
				unique[addr] = struct{}{}
			}
		}
	}
	m.UniqueInteractedAddresses = len(unique)

	// A wallet with no history ages from its registration time.
	since := m.FirstTxAt
	if since.IsZero() {
		since = wallet.CreatedAt
	}
	if !since.IsZero() {
		m.WalletAgeDays = int(now.Sub(since).Hours() / 24)
	}
	return m
}

// riskScore sums the capped contributions and clamps to [0, 100].
func riskScore(r *types.Report, m types.ActivityMetrics) int {
	score := 0

	if sec := r.Details.Approvals; sec != nil {
		unlimited, limited := 0, 0
		for _, a := range sec.Items {
			if a.Kind != "erc20" {
				continue
			}
			if a.Unlimited {
				unlimited++
			} else {
				limited++
			}
		}
		score += capped(unlimited*10, 30)
		score += capped(limited*2, 10)
	}
	if sec := r.Details.Contracts; sec != nil {
		unverified := len(sec.UnverifiedContracts) + len(sec.UnverifiedWithRisks)
		score += capped(unverified*5, 25)
		score += capped(len(sec.VerifiedContractsWithRisks)*3, 15)
	}
	if m.TransactionCount > 0 && m.TransactionCount < 10 {
		score += 10
	}
	if m.WalletAgeDays < 30 {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func capped(v, max int) int {
	if v > max {
		return max
	}
	return v
}

func summarize(r *types.Report, m types.ActivityMetrics) string {
	var parts []string
	if sec := r.Details.Approvals; sec != nil && len(sec.Items) > 0 {
		parts = append(parts, fmt.Sprintf("%d standing approvals", len(sec.Items)))
	}
	if sec := r.Details.Contracts; sec != nil {
		if n := len(sec.UnverifiedContracts) + len(sec.UnverifiedWithRisks); n > 0 {
			parts = append(parts, fmt.Sprintf("%d unverified contracts", n))
		}
	}
	if sec := r.Details.Positions; sec != nil && len(sec.Items) > 0 {
		parts = append(parts, fmt.Sprintf("%d potential forgotten positions", len(sec.Items)))
	}
	parts = append(parts, fmt.Sprintf("%d transactions over %d days", m.TransactionCount, m.WalletAgeDays))
	return fmt.Sprintf("Risk score %d: %s.", r.RiskScore, strings.Join(parts, ", "))
}
