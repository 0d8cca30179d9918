package labels

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsentry/chainsentry/chain"
	"github.com/chainsentry/chainsentry/store"
	"github.com/chainsentry/chainsentry/types"
)

type fakeResolver struct {
	names     map[string]string
	sources   map[string]*chain.SourceInfo
	impls     map[string]common.Address
	nameCalls int
}

func (f *fakeResolver) Name(ctx context.Context, chainName string, address common.Address) string {
	f.nameCalls++
	return f.names[address.Hex()]
}

func (f *fakeResolver) SourceCode(ctx context.Context, chainName, address string) (*chain.SourceInfo, error) {
	if info, ok := f.sources[common.HexToAddress(address).Hex()]; ok {
		return info, nil
	}
	return &chain.SourceInfo{}, nil
}

func (f *fakeResolver) Implementation(ctx context.Context, chainName string, address common.Address) (common.Address, bool) {
	impl, ok := f.impls[address.Hex()]
	return impl, ok
}

func newTestService(t *testing.T, r *fakeResolver) (*Service, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, r), st
}

func TestResolveStoreFirst(t *testing.T) {
	addr := "0x1000000000000000000000000000000000000001"
	r := &fakeResolver{names: map[string]string{common.HexToAddress(addr).Hex(): "OnChain"}}
	svc, st := newTestService(t, r)

	require.NoError(t, st.PutLabel(&types.AddressLabel{Address: addr, Chain: "ethereum", Label: "Stored", Source: "local"}))

	got := svc.ResolveOne(context.Background(), "ethereum", addr)
	assert.Equal(t, "Stored", got)
	assert.Zero(t, r.nameCalls, "a stored label never goes remote")
}

func TestResolveOnchainNameAndPersist(t *testing.T) {
	addr := "0x1000000000000000000000000000000000000002"
	r := &fakeResolver{names: map[string]string{common.HexToAddress(addr).Hex(): "Tether USD"}}
	svc, st := newTestService(t, r)

	got := svc.ResolveOne(context.Background(), "ethereum", addr)
	assert.Equal(t, "Tether USD", got)

	stored, err := st.GetLabel("ethereum", addr)
	require.NoError(t, err)
	assert.Equal(t, "Tether USD", stored.Label)
	assert.Equal(t, "onchain", stored.Source)
}

func TestResolveExplorerFallback(t *testing.T) {
	addr := "0x1000000000000000000000000000000000000003"
	r := &fakeResolver{
		sources: map[string]*chain.SourceInfo{
			common.HexToAddress(addr).Hex(): {ContractName: "UniswapV2Router02"},
		},
	}
	svc, _ := newTestService(t, r)

	got := svc.ResolveOne(context.Background(), "ethereum", addr)
	assert.Equal(t, "UniswapV2Router02", got)
}

func TestResolveProxyPrefersImplementationName(t *testing.T) {
	proxy := "0x1000000000000000000000000000000000000004"
	impl := common.HexToAddress("0x1000000000000000000000000000000000000005")
	r := &fakeResolver{
		sources: map[string]*chain.SourceInfo{
			common.HexToAddress(proxy).Hex(): {ContractName: "TransparentUpgradeableProxy"},
			impl.Hex():                       {ContractName: "LendingPool"},
		},
		impls: map[string]common.Address{common.HexToAddress(proxy).Hex(): impl},
	}
	svc, _ := newTestService(t, r)

	got := svc.ResolveOne(context.Background(), "ethereum", proxy)
	assert.Equal(t, "LendingPool", got)
}

func TestResolveProxyKeepsNameWhenImplUnnamed(t *testing.T) {
	proxy := "0x1000000000000000000000000000000000000006"
	impl := common.HexToAddress("0x1000000000000000000000000000000000000007")
	r := &fakeResolver{
		sources: map[string]*chain.SourceInfo{
			common.HexToAddress(proxy).Hex(): {ContractName: "ERC1967Proxy"},
		},
		impls: map[string]common.Address{common.HexToAddress(proxy).Hex(): impl},
	}
	svc, _ := newTestService(t, r)

	got := svc.ResolveOne(context.Background(), "ethereum", proxy)
	assert.Equal(t, "ERC1967Proxy", got)
}

func TestResolveMemoizesMisses(t *testing.T) {
	addr := "0x1000000000000000000000000000000000000008"
	r := &fakeResolver{}
	svc, _ := newTestService(t, r)

	assert.Empty(t, svc.ResolveOne(context.Background(), "ethereum", addr))
	assert.Empty(t, svc.ResolveOne(context.Background(), "ethereum", addr))
	assert.Equal(t, 1, r.nameCalls, "a miss is chased once per process")
}

func TestResolveMany(t *testing.T) {
	known := "0x1000000000000000000000000000000000000009"
	unknown := "0x100000000000000000000000000000000000000a"
	r := &fakeResolver{names: map[string]string{common.HexToAddress(known).Hex(): "Known"}}
	svc, _ := newTestService(t, r)

	out := svc.Resolve(context.Background(), "ethereum", []string{known, unknown})
	assert.Equal(t, map[string]string{known: "Known"}, out)
}
