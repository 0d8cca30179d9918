package analysis

import (
	"encoding/hex"
	"strings"

	"github.com/chainsentry/chainsentry/types"
)

// Risky function selectors scanned for in unverified bytecode. Presence of
// any HIGH selector places the contract in the unverifiedWithRisks bucket.
var riskySelectors = []types.SelectorHit{
	{Selector: "0x592ac5a6", Name: "delegatecall(bytes)", Tier: types.SeverityHigh},
	{Selector: "0x3659cfe6", Name: "upgradeTo(address)", Tier: types.SeverityHigh},
	{Selector: "0x4f1ef286", Name: "upgradeToAndCall(address,bytes)", Tier: types.SeverityHigh},
	{Selector: "0x13af4035", Name: "setOwner(address)", Tier: types.SeverityHigh},
	{Selector: "0xc01a7570", Name: "kill()", Tier: types.SeverityHigh},
	{Selector: "0x83197ef0", Name: "destroy()", Tier: types.SeverityHigh},
	{Selector: "0x93252358", Name: "rug()", Tier: types.SeverityHigh},
	{Selector: "0xe9b28907", Name: "exit()", Tier: types.SeverityHigh},
	{Selector: "0x40c10f19", Name: "mint(address,uint256)", Tier: types.SeverityMedium},
	{Selector: "0x8456cb59", Name: "pause()", Tier: types.SeverityMedium},
	{Selector: "0xf2fde38b", Name: "transferOwnership(address)", Tier: types.SeverityMedium},
	{Selector: "0x42966c68", Name: "burn(uint256)", Tier: types.SeverityLow},
	{Selector: "0x715018a6", Name: "renounceOwnership()", Tier: types.SeverityLow},
}

// scanSelectors looks for risky 4-byte selectors in raw bytecode. A
// substring match over the hex image is a heuristic, but it is the standard
// one for unverified contracts.
func scanSelectors(code []byte) []types.SelectorHit {
	image := hex.EncodeToString(code)
	var hits []types.SelectorHit
	for _, sel := range riskySelectors {
		if strings.Contains(image, strings.TrimPrefix(sel.Selector, "0x")) {
			hits = append(hits, sel)
		}
	}
	return hits
}

// maxSelectorTier returns the highest tier among the hits.
func maxSelectorTier(hits []types.SelectorHit) types.Severity {
	top := types.SeverityInfo
	for _, h := range hits {
		if h.Tier.AtLeast(top) {
			top = h.Tier
		}
	}
	return top
}
