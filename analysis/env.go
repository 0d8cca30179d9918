package analysis

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/chainsentry/chainsentry/chain"
	"github.com/chainsentry/chainsentry/config"
	"github.com/chainsentry/chainsentry/notify"
	"github.com/chainsentry/chainsentry/store"
	"github.com/chainsentry/chainsentry/types"
)

// ChainService is what the analyzers need from the blockchain adapter.
// Narrowed to an interface so tests can run against a fake chain.
type ChainService interface {
	NormalTransactions(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error)
	TokenTransfers(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error)
	NFTTransfers(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error)
	SourceCode(ctx context.Context, chain, address string) (*chain.SourceInfo, error)
	Summarize(ctx context.Context, prompt string) (string, error)
	Allowance(ctx context.Context, chain string, token, owner, spender common.Address) *uint256.Int
	IsApprovedForAll(ctx context.Context, chain string, token, owner, operator common.Address) bool
	Decimals(ctx context.Context, chain string, token common.Address) uint8
	Code(ctx context.Context, chain string, address common.Address) []byte
	Implementation(ctx context.Context, chain string, address common.Address) (common.Address, bool)
}

// Labeler decorates addresses with display names.
type Labeler interface {
	Resolve(ctx context.Context, chain string, addresses []string) map[string]string
}

// Env is the shared dependency set of every analysis handler.
type Env struct {
	cfg      *config.Config
	store    *store.Store
	chain    ChainService
	labels   Labeler
	notifier *notify.Notifier
}

// NewEnv assembles the handler environment.
func NewEnv(cfg *config.Config, st *store.Store, svc ChainService, labels Labeler, notifier *notify.Notifier) *Env {
	return &Env{cfg: cfg, store: st, chain: svc, labels: labels, notifier: notifier}
}
