package analysis

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/chainsentry/chainsentry/chain"
	"github.com/chainsentry/chainsentry/notify"
	"github.com/chainsentry/chainsentry/types"
)

// Approval intents are reconstructed from these signatures. The Permit2
// variants carry nested tuples and are matched by selector only.
var approvalSigs = mustSigSet([]chain.SigSpec{
	{Sig: "approve(address,uint256)", Decode: true},
	{Sig: "setApprovalForAll(address,bool)", Decode: true},
	{Sig: "permit(address,address,uint256,uint256,uint8,bytes32,bytes32)", Decode: true},
	{Sig: "permitTransferFrom(((address,uint256),uint256,uint256),(address,uint256),address,bytes)"},
	{Sig: "permitWitnessTransferFrom(((address,uint256),uint256,uint256),(address,uint256),address,bytes32,string,bytes)"},
	{Sig: "permitTransferFrom(((address,uint256)[],uint256,uint256),(address,uint256)[],address,bytes)"},
})

func mustSigSet(specs []chain.SigSpec) *chain.SignatureSet {
	set, err := chain.NewSignatureSet(specs)
	if err != nil {
		panic(err)
	}
	return set
}

// longLivedPermit is the deadline horizon beyond which a permit is flagged.
const longLivedPermit = 365 * 24 * time.Hour

type approvalIntent struct {
	kind     string // erc20, nft, permit, permit2
	token    common.Address
	spender  common.Address
	deadline uint64
	txHash   string
}

// reconstructIntents replays the wallet's outgoing transactions in block
// order and keeps the latest intent per (token, spender) pair. A
// setApprovalForAll(op, false) removes the pair.
func reconstructIntents(wallet *types.Wallet) []approvalIntent {
	txs := make([]types.Transaction, 0, len(wallet.Cache.Normal))
	for _, tx := range wallet.Cache.Normal {
		if tx.IsFrom(wallet.Address) && tx.To != "" {
			txs = append(txs, tx)
		}
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Block() < txs[j].Block() })

	intents := make(map[string]approvalIntent)
	order := make([]string, 0)
	put := func(key string, in approvalIntent) {
		if _, seen := intents[key]; !seen {
			order = append(order, key)
		}
		intents[key] = in
	}
	drop := func(key string) {
		delete(intents, key)
	}

	for _, tx := range txs {
		call, ok := approvalSigs.Parse(tx.Input)
		if !ok {
			continue
		}
		token := common.HexToAddress(tx.To)
		switch {
		case call.Sig == "approve(address,uint256)":
			spender, ok := call.Args[0].(common.Address)
			if !ok {
				continue
			}
			put(intentKey("erc20", token, spender), approvalIntent{
				kind: "erc20", token: token, spender: spender, txHash: tx.Hash,
			})
		case call.Sig == "setApprovalForAll(address,bool)":
			operator, ok := call.Args[0].(common.Address)
			if !ok {
				continue
			}
			approved, _ := call.Args[1].(bool)
			key := intentKey("nft", token, operator)
			if !approved {
				drop(key)
				continue
			}
			put(key, approvalIntent{kind: "nft", token: token, spender: operator, txHash: tx.Hash})
		case call.Name == "permit":
			spender, ok := call.Args[1].(common.Address)
			if !ok {
				continue
			}
			deadline := uint64(0)
			if d, ok := call.Args[3].(*big.Int); ok {
				deadline = d.Uint64()
			}
			put(intentKey("permit", token, spender), approvalIntent{
				kind: "permit", token: token, spender: spender, deadline: deadline, txHash: tx.Hash,
			})
		case strings.HasPrefix(call.Name, "permit"):
			// Permit2 family: a standing approval through the Permit2 contract.
			put(intentKey("permit2", token, token), approvalIntent{
				kind: "permit2", token: token, spender: token, txHash: tx.Hash,
			})
		}
	}

	out := make([]approvalIntent, 0, len(intents))
	for _, key := range order {
		if in, ok := intents[key]; ok {
			out = append(out, in)
		}
	}
	return out
}

func intentKey(kind string, token, spender common.Address) string {
	return kind + "-" + strings.ToLower(token.Hex()) + "-" + strings.ToLower(spender.Hex())
}

// handleAnalyzeApprovals confirms each surviving intent on-chain, writes the
// approvals report section, notifies new findings and stores the new
// fingerprint set.
func (e *Env) handleAnalyzeApprovals(ctx context.Context, job *types.AnalysisJob) error {
	wallet, err := e.store.GetWallet(job.WalletID)
	if err != nil {
		return err
	}
	owner := common.HexToAddress(wallet.Address)
	now := time.Now().UTC()

	var approvals []types.Approval
	for _, intent := range reconstructIntents(wallet) {
		switch intent.kind {
		case "erc20":
			allowance := e.chain.Allowance(ctx, wallet.Chain, intent.token, owner, intent.spender)
			if allowance.IsZero() {
				continue
			}
			unlimited := isUnlimited(allowance)
			severity := types.SeverityMedium
			if unlimited {
				severity = types.SeverityHigh
			}
			decimals := e.chain.Decimals(ctx, wallet.Chain, intent.token)
			approvals = append(approvals, types.Approval{
				Kind:           "erc20",
				Token:          strings.ToLower(intent.token.Hex()),
				Spender:        strings.ToLower(intent.spender.Hex()),
				Amount:         formatAmount(allowance, decimals),
				Unlimited:      unlimited,
				Severity:       severity,
				RevokeCalldata: chain.EncodeRevokeApprove(intent.spender),
				TxHash:         intent.txHash,
			})
		case "nft":
			if !e.chain.IsApprovedForAll(ctx, wallet.Chain, intent.token, owner, intent.spender) {
				continue
			}
			approvals = append(approvals, types.Approval{
				Kind:           "nft",
				Token:          strings.ToLower(intent.token.Hex()),
				Spender:        strings.ToLower(intent.spender.Hex()),
				Severity:       types.SeverityHigh,
				RevokeCalldata: chain.EncodeRevokeApprovalForAll(intent.spender),
				TxHash:         intent.txHash,
			})
		case "permit":
			severity := types.SeverityInfo
			if intent.deadline > uint64(now.Add(longLivedPermit).Unix()) {
				severity = types.SeverityMedium
			}
			approvals = append(approvals, types.Approval{
				Kind:     "permit",
				Token:    strings.ToLower(intent.token.Hex()),
				Spender:  strings.ToLower(intent.spender.Hex()),
				Deadline: intent.deadline,
				Severity: severity,
				TxHash:   intent.txHash,
			})
		case "permit2":
			approvals = append(approvals, types.Approval{
				Kind:     "permit2",
				Token:    strings.ToLower(intent.token.Hex()),
				Spender:  strings.ToLower(intent.spender.Hex()),
				Severity: types.SeverityMedium,
				TxHash:   intent.txHash,
			})
		}
	}

	e.decorateApprovals(ctx, wallet.Chain, approvals)

	if _, err := e.store.UpdateReport(wallet.ID, func(r *types.Report) {
		r.Details.Approvals = &types.ApprovalSection{Items: approvals, UpdatedAt: now}
	}); err != nil {
		return err
	}

	fingerprints := make([]string, 0, len(approvals))
	alerts := make([]notify.Alert, 0, len(approvals))
	for i := range approvals {
		fingerprints = append(fingerprints, approvals[i].Fingerprint())
		alerts = append(alerts, approvalAlert(&approvals[i]))
	}
	sent := e.notifier.Publish(ctx, wallet.UserID, wallet.State.Approvals, alerts)
	if sent > 0 {
		alertsSentMeter.Mark(int64(sent))
	}

	_, err = e.store.UpdateWallet(wallet.ID, func(w *types.Wallet) error {
		w.State.Approvals = fingerprints
		return nil
	})
	return err
}

func (e *Env) decorateApprovals(ctx context.Context, chainName string, approvals []types.Approval) {
	addrs := make([]string, 0, len(approvals)*2)
	for i := range approvals {
		addrs = append(addrs, approvals[i].Token, approvals[i].Spender)
	}
	resolved := e.labels.Resolve(ctx, chainName, addrs)
	for i := range approvals {
		approvals[i].TokenLabel = resolved[approvals[i].Token]
		approvals[i].SpenderLabel = resolved[approvals[i].Spender]
	}
}

func approvalAlert(a *types.Approval) notify.Alert {
	spender := a.SpenderLabel
	if spender == "" {
		spender = a.Spender
	}
	var title string
	switch {
	case a.Kind == "erc20" && a.Unlimited:
		title = fmt.Sprintf("Unlimited ERC20 approval granted to %s", spender)
	case a.Kind == "erc20":
		title = fmt.Sprintf("ERC20 approval granted to %s", spender)
	case a.Kind == "nft":
		title = fmt.Sprintf("Collection-wide NFT approval granted to %s", spender)
	case a.Kind == "permit":
		title = fmt.Sprintf("Long-lived token permit signed for %s", spender)
	default:
		title = fmt.Sprintf("Permit2 standing approval via %s", spender)
	}
	body := fmt.Sprintf("Token: %s", a.Token)
	if a.RevokeCalldata != "" {
		body += "\nRevoke calldata: " + a.RevokeCalldata
	}
	return notify.Alert{
		Fingerprint: a.Fingerprint(),
		Severity:    a.Severity,
		Title:       title,
		Body:        body,
	}
}

var maxUint256 = new(uint256.Int).SetAllOne()

func isUnlimited(v *uint256.Int) bool { return v.Eq(maxUint256) }

// formatAmount renders a token amount with the given decimals, trimming
// trailing zeros from the fraction.
func formatAmount(v *uint256.Int, decimals uint8) string {
	s := v.Dec()
	if decimals == 0 {
		return s
	}
	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], s[len(s)-d:]
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
