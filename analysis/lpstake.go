package analysis

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/chainsentry/chainsentry/chain"
	"github.com/chainsentry/chainsentry/types"
)

// Liquidity and staking entry points. Argument decoding is not needed; the
// destination contract is the finding.
var lpStakeSigs = mustSigSet([]chain.SigSpec{
	{Sig: "addLiquidity(address,address,uint256,uint256,uint256,uint256,address,uint256)"},
	{Sig: "addLiquidityETH(address,uint256,uint256,uint256,address,uint256)"},
	{Sig: "stake(uint256)"},
	{Sig: "deposit(uint256)"},
	{Sig: "deposit(uint256,address)"},
})

// handleAnalyzeLPStake records the distinct contracts the wallet has pushed
// liquidity or stakes into as potential forgotten positions.
func (e *Env) handleAnalyzeLPStake(ctx context.Context, job *types.AnalysisJob) error {
	wallet, err := e.store.GetWallet(job.WalletID)
	if err != nil {
		return err
	}

	latest := make(map[string]types.Position)
	for _, tx := range wallet.Cache.Normal {
		if !tx.IsFrom(wallet.Address) || tx.To == "" {
			continue
		}
		call, ok := lpStakeSigs.Parse(tx.Input)
		if !ok {
			continue
		}
		contract := strings.ToLower(tx.To)
		pos := types.Position{
			Contract:   contract,
			Method:     call.Name,
			TxHash:     tx.Hash,
			LastSeenAt: tx.Time(),
		}
		if prev, ok := latest[contract]; !ok || pos.LastSeenAt.After(prev.LastSeenAt) {
			latest[contract] = pos
		}
	}

	positions := make([]types.Position, 0, len(latest))
	addrs := make([]string, 0, len(latest))
	for contract := range latest {
		addrs = append(addrs, contract)
	}
	resolved := e.labels.Resolve(ctx, wallet.Chain, addrs)
	for contract, pos := range latest {
		pos.Label = resolved[contract]
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Contract < positions[j].Contract })

	_, err = e.store.UpdateReport(wallet.ID, func(r *types.Report) {
		r.Details.Positions = &types.PositionSection{Items: positions, UpdatedAt: time.Now().UTC()}
	})
	return err
}
