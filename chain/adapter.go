// Package chain translates domain operations into explorer calls routed
// through the request gateway and direct JSON-RPC reads. It is stateless
// apart from lazily dialed RPC clients; failed on-chain reads collapse to
// zero values so partial information never aborts an analysis.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/chainsentry/chainsentry/config"
	"github.com/chainsentry/chainsentry/gateway"
	"github.com/chainsentry/chainsentry/params"
	"github.com/chainsentry/chainsentry/types"
)

// Submitter is the slice of the gateway the adapter depends on.
type Submitter interface {
	Submit(ctx context.Context, provider string, data any) (string, error)
}

// Adapter is the façade over the gateway and the per-chain RPC clients.
type Adapter struct {
	gw  Submitter
	cfg *config.Config

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// New builds an adapter. RPC clients are dialed on first use per chain.
func New(cfg *config.Config, gw Submitter) *Adapter {
	return &Adapter{
		gw:      gw,
		cfg:     cfg,
		clients: make(map[string]*ethclient.Client),
	}
}

func (a *Adapter) client(chain string) (*ethclient.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[chain]; ok {
		return c, nil
	}
	endpoint, ok := a.cfg.RPCEndpoints[chain]
	if !ok {
		return nil, fmt.Errorf("no rpc endpoint for chain %s", chain)
	}
	c, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc for %s: %w", chain, err)
	}
	a.clients[chain] = c
	return c, nil
}

// explorerParams builds the base query for the unified explorer endpoint.
func explorerParams(chain, module, action string) (map[string]string, error) {
	id, ok := params.ChainIDs[chain]
	if !ok {
		return nil, fmt.Errorf("unsupported chain %s", chain)
	}
	return map[string]string{
		"module":  module,
		"action":  action,
		"chainid": strconv.Itoa(id),
	}, nil
}

func (a *Adapter) listTransactions(ctx context.Context, chain, action, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error) {
	p, err := explorerParams(chain, "account", action)
	if err != nil {
		return nil, err
	}
	p["address"] = address
	p["startblock"] = strconv.FormatUint(startBlock, 10)
	p["endblock"] = "99999999"
	p["page"] = "1"
	p["offset"] = strconv.Itoa(limit)
	if descending {
		p["sort"] = "desc"
	} else {
		p["sort"] = "asc"
	}

	result, err := a.gw.Submit(ctx, config.ProviderEtherscan, gateway.ExplorerRequest{Params: p})
	if err != nil {
		return nil, err
	}
	var txs []types.Transaction
	if err := json.Unmarshal([]byte(result), &txs); err != nil {
		return nil, fmt.Errorf("unexpected %s result shape: %w", action, err)
	}
	return txs, nil
}

// NormalTransactions lists normal transactions for the address.
func (a *Adapter) NormalTransactions(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error) {
	return a.listTransactions(ctx, chain, "txlist", address, startBlock, descending, limit)
}

// TokenTransfers lists ERC-20 transfer events involving the address.
func (a *Adapter) TokenTransfers(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error) {
	return a.listTransactions(ctx, chain, "tokentx", address, startBlock, descending, limit)
}

// NFTTransfers lists ERC-721 transfer events involving the address.
func (a *Adapter) NFTTransfers(ctx context.Context, chain, address string, startBlock uint64, descending bool, limit int) ([]types.Transaction, error) {
	return a.listTransactions(ctx, chain, "tokennfttx", address, startBlock, descending, limit)
}

// SourceInfo is the verified source metadata for a contract.
type SourceInfo struct {
	SourceCode   string `json:"SourceCode"`
	ContractName string `json:"ContractName"`
}

// SourceCode fetches verified source for the contract, when available.
// An unverified contract yields an empty SourceCode, not an error.
func (a *Adapter) SourceCode(ctx context.Context, chain, address string) (*SourceInfo, error) {
	p, err := explorerParams(chain, "contract", "getsourcecode")
	if err != nil {
		return nil, err
	}
	p["address"] = address

	result, err := a.gw.Submit(ctx, config.ProviderEtherscan, gateway.ExplorerRequest{Params: p})
	if err != nil {
		return nil, err
	}
	var infos []SourceInfo
	if err := json.Unmarshal([]byte(result), &infos); err != nil {
		return nil, fmt.Errorf("unexpected getsourcecode result shape: %w", err)
	}
	if len(infos) == 0 {
		return &SourceInfo{}, nil
	}
	return &infos[0], nil
}

// Summarize sends a prompt to the AI provider through the gateway, sharing
// its rate-limit and retry machinery.
func (a *Adapter) Summarize(ctx context.Context, prompt string) (string, error) {
	return a.gw.Submit(ctx, config.ProviderGemini, gateway.AIRequest{Prompt: prompt})
}

func logReadFailure(op, chain, address string, err error) {
	log.Debug("On-chain read failed, treating as unknown", "op", op, "chain", chain, "address", address, "err", err)
}
