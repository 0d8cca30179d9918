package analysis

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsentry/chainsentry/types"
)

func TestScanSelectors(t *testing.T) {
	// A dispatch table fragment containing upgradeTo and mint.
	code := common.Hex2Bytes("6080604052" + "3659cfe6" + "00" + "40c10f19" + "fe")

	hits := scanSelectors(code)
	require.Len(t, hits, 2)
	assert.Equal(t, "upgradeTo(address)", hits[0].Name)
	assert.Equal(t, types.SeverityHigh, hits[0].Tier)
	assert.Equal(t, "mint(address,uint256)", hits[1].Name)
	assert.Equal(t, types.SeverityMedium, hits[1].Tier)
}

func TestScanSelectorsClean(t *testing.T) {
	assert.Empty(t, scanSelectors(common.Hex2Bytes("6080604052600080fd")))
	assert.Empty(t, scanSelectors(nil))
}

func TestMaxSelectorTier(t *testing.T) {
	assert.Equal(t, types.SeverityInfo, maxSelectorTier(nil))
	assert.Equal(t, types.SeverityHigh, maxSelectorTier([]types.SelectorHit{
		{Tier: types.SeverityLow},
		{Tier: types.SeverityHigh},
		{Tier: types.SeverityMedium},
	}))
}

func TestHasHighSelector(t *testing.T) {
	assert.False(t, hasHighSelector([]types.SelectorHit{{Tier: types.SeverityMedium}}))
	assert.True(t, hasHighSelector([]types.SelectorHit{
		{Tier: types.SeverityLow},
		{Tier: types.SeverityHigh},
	}))
}
