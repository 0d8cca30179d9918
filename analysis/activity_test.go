package analysis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsentry/chainsentry/types"
)

func TestComputeActivityMetrics(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	wallet := &types.Wallet{
		Address:   "0xme",
		CreatedAt: now.Add(-100 * 24 * time.Hour),
	}
	wallet.Cache.Normal = []types.Transaction{
		{TimeStamp: strconv.FormatInt(now.Add(-90*24*time.Hour).Unix(), 10), From: "0xme", To: "0xaa"},
		{TimeStamp: strconv.FormatInt(now.Add(-10*24*time.Hour).Unix(), 10), From: "0xbb", To: "0xme"},
		{TimeStamp: strconv.FormatInt(now.Add(-50*24*time.Hour).Unix(), 10), From: "0xme", To: "0xaa"},
	}

	m := computeActivityMetrics(wallet, now)
	assert.Equal(t, 3, m.TransactionCount)
	assert.Equal(t, 90, m.WalletAgeDays, "age runs from the first transaction")
	assert.Equal(t, now.Add(-90*24*time.Hour), m.FirstTxAt)
	assert.Equal(t, now.Add(-10*24*time.Hour), m.LastTxAt)
	assert.Equal(t, 2, m.UniqueInteractedAddresses, "self is excluded, duplicates collapse")
}

func TestComputeActivityMetricsEmptyWallet(t *testing.T) {
	now := time.Now().UTC()
	wallet := &types.Wallet{Address: "0xme", CreatedAt: now.Add(-48 * time.Hour)}

	m := computeActivityMetrics(wallet, now)
	assert.Zero(t, m.TransactionCount)
	assert.Equal(t, 2, m.WalletAgeDays, "an empty wallet ages from registration")
}

func TestRiskScore(t *testing.T) {
	mkApprovals := func(unlimited, limited int) *types.ApprovalSection {
		sec := &types.ApprovalSection{}
		for i := 0; i < unlimited; i++ {
			sec.Items = append(sec.Items, types.Approval{Kind: "erc20", Unlimited: true})
		}
		for i := 0; i < limited; i++ {
			sec.Items = append(sec.Items, types.Approval{Kind: "erc20"})
		}
		return sec
	}
	oldActive := types.ActivityMetrics{TransactionCount: 500, WalletAgeDays: 400}

	tests := []struct {
		name    string
		details types.ReportDetails
		metrics types.ActivityMetrics
		want    int
	}{
		{
			name:    "brand new empty wallet",
			metrics: types.ActivityMetrics{TransactionCount: 0, WalletAgeDays: 0},
			want:    10,
		},
		{
			name:    "old quiet wallet",
			metrics: oldActive,
			want:    0,
		},
		{
			name:    "young wallet with few transactions",
			metrics: types.ActivityMetrics{TransactionCount: 5, WalletAgeDays: 10},
			want:    20,
		},
		{
			name:    "unlimited approvals cap at 30",
			details: types.ReportDetails{Approvals: mkApprovals(7, 0)},
			metrics: oldActive,
			want:    30,
		},
		{
			name:    "limited approvals cap at 10",
			details: types.ReportDetails{Approvals: mkApprovals(0, 9)},
			metrics: oldActive,
			want:    10,
		},
		{
			name: "unverified contracts cap at 25",
			details: types.ReportDetails{Contracts: &types.ContractSection{
				UnverifiedContracts: make([]types.ContractFinding, 4),
				UnverifiedWithRisks: make([]types.ContractFinding, 4),
			}},
			metrics: oldActive,
			want:    25,
		},
		{
			name: "verified risky contracts cap at 15",
			details: types.ReportDetails{Contracts: &types.ContractSection{
				VerifiedContractsWithRisks: make([]types.ContractFinding, 10),
			}},
			metrics: oldActive,
			want:    15,
		},
		{
			name: "everything maxed clamps at 100",
			details: types.ReportDetails{
				Approvals: mkApprovals(10, 10),
				Contracts: &types.ContractSection{
					UnverifiedWithRisks:        make([]types.ContractFinding, 10),
					VerifiedContractsWithRisks: make([]types.ContractFinding, 10),
				},
			},
			metrics: types.ActivityMetrics{TransactionCount: 3, WalletAgeDays: 1},
			want:    100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &types.Report{Details: tt.details}
			assert.Equal(t, tt.want, riskScore(r, tt.metrics))
		})
	}
}

func TestAnalyzeActivityWritesReport(t *testing.T) {
	te := newTestEnv(t)
	te.seedNormalTxs(t, []types.Transaction{
		{Hash: "0x1", BlockNumber: "10", TimeStamp: "1700000000", From: te.wallet.Address, To: "0xaa"},
	})

	require.NoError(t, te.env.handleAnalyzeActivity(context.Background(), te.job()))

	report, err := te.store.GetReport(te.wallet.ID)
	require.NoError(t, err)
	require.NotNil(t, report.Details.Activity)
	assert.Equal(t, 1, report.Details.Activity.Metrics.TransactionCount)
	assert.NotEmpty(t, report.Summary)
	assert.GreaterOrEqual(t, report.RiskScore, 10, "young low-activity wallet scores")
}
