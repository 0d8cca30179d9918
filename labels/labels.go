// Package labels resolves addresses to human-readable names through a
// layered cache: process memo, persistent store, on-chain name(), explorer
// source metadata. New findings are persisted best-effort.
package labels

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/chainsentry/chainsentry/chain"
	"github.com/chainsentry/chainsentry/store"
	"github.com/chainsentry/chainsentry/types"
)

// Resolver is the slice of the chain adapter the service consults for the
// two remote layers.
type Resolver interface {
	Name(ctx context.Context, chain string, address common.Address) string
	SourceCode(ctx context.Context, chain, address string) (*chain.SourceInfo, error)
	Implementation(ctx context.Context, chain string, address common.Address) (common.Address, bool)
}

// Service memoizes resolutions per process and persists new findings.
// Safe for concurrent use by many workers.
type Service struct {
	store    *store.Store
	resolver Resolver

	mu   sync.Mutex
	memo map[string]string
}

// New builds a label service.
func New(st *store.Store, resolver Resolver) *Service {
	return &Service{
		store:    st,
		resolver: resolver,
		memo:     make(map[string]string),
	}
}

func memoKey(chainName, address string) string {
	return chainName + "/" + strings.ToLower(address)
}

// Resolve returns a map address → label for the addresses that could be
// named; unknown addresses are left out.
func (s *Service) Resolve(ctx context.Context, chainName string, addresses []string) map[string]string {
	out := make(map[string]string)
	for _, addr := range addresses {
		if label := s.resolveOne(ctx, chainName, addr); label != "" {
			out[addr] = label
		}
	}
	return out
}

// ResolveOne returns the label for a single address, empty when unknown.
func (s *Service) ResolveOne(ctx context.Context, chainName, address string) string {
	return s.resolveOne(ctx, chainName, address)
}

func (s *Service) resolveOne(ctx context.Context, chainName, address string) string {
	key := memoKey(chainName, address)

	s.mu.Lock()
	if label, ok := s.memo[key]; ok {
		s.mu.Unlock()
		return label
	}
	s.mu.Unlock()

	label, source := s.lookup(ctx, chainName, address)
	// Memoize even misses so a dead address is only chased once per process.
	s.mu.Lock()
	s.memo[key] = label
	s.mu.Unlock()

	if label != "" && source != "store" {
		if err := s.store.PutLabel(&types.AddressLabel{
			Address: address,
			Chain:   chainName,
			Label:   label,
			Source:  source,
		}); err != nil {
			log.Debug("Failed to persist label", "address", address, "err", err)
		}
	}
	return label
}

func (s *Service) lookup(ctx context.Context, chainName, address string) (label, source string) {
	if stored, err := s.store.GetLabel(chainName, address); err == nil {
		return stored.Label, "store"
	}
	if name := s.resolver.Name(ctx, chainName, common.HexToAddress(address)); name != "" {
		return name, "onchain"
	}
	info, err := s.resolver.SourceCode(ctx, chainName, address)
	if err != nil || info.ContractName == "" {
		return "", ""
	}
	name := info.ContractName
	// Proxies are named after their implementation when it resolves to
	// something more specific.
	if strings.Contains(strings.ToLower(name), "proxy") {
		if impl, ok := s.resolver.Implementation(ctx, chainName, common.HexToAddress(address)); ok {
			if implInfo, err := s.resolver.SourceCode(ctx, chainName, impl.Hex()); err == nil &&
				implInfo.ContractName != "" && implInfo.ContractName != name {
				name = implInfo.ContractName
			}
		}
	}
	return name, "explorer"
}
